package network

// client -> server
const (
	MsgTypeHeartbeat  = 1
	MsgTypeJoinRoom   = 101
	MsgTypeLeaveRoom  = 102
	MsgTypeStartGame  = 201
	MsgTypeCallNumber = 202
	MsgTypeClaimWin   = 203
	MsgTypeResetGame  = 204
)

// server -> client
const (
	MsgTypeAck          = 300
	MsgTypeRoomUpdate   = 301
	MsgTypeGameStarted  = 303
	MsgTypeNumberCalled = 304
	MsgTypeGameFinished = 305
	MsgTypeWinClaimed   = 306
)

var msgNames = map[uint16]string{
	MsgTypeHeartbeat:    "heartbeat",
	MsgTypeJoinRoom:     "join_room",
	MsgTypeLeaveRoom:    "leave_room",
	MsgTypeStartGame:    "start_game",
	MsgTypeCallNumber:   "call_number",
	MsgTypeClaimWin:     "claim_bingo",
	MsgTypeResetGame:    "reset_bingo",
	MsgTypeAck:          "ack",
	MsgTypeRoomUpdate:   "room_update",
	MsgTypeGameStarted:  "game_started",
	MsgTypeNumberCalled: "number_called",
	MsgTypeGameFinished: "game_finished",
	MsgTypeWinClaimed:   "bingo_claimed",
}

// MsgName is used for logs and metric labels.
func MsgName(msgID uint16) string {
	if n, ok := msgNames[msgID]; ok {
		return n
	}
	return "unknown"
}
