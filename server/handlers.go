package server

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/wfunc/bingoserver/errs"
	"github.com/wfunc/bingoserver/logger"
	"github.com/wfunc/bingoserver/models"
	"github.com/wfunc/bingoserver/network"
	"github.com/wfunc/bingoserver/room"
	"github.com/wfunc/bingoserver/session"
)

// Ack answers one client event on the issuing connection only.
type Ack struct {
	Seq   uint64      `json:"seq"`
	Event string      `json:"event"`
	OK    bool        `json:"ok"`
	Error *errs.Error `json:"error,omitempty"`
	Data  any         `json:"data,omitempty"`
}

type envelope struct {
	Seq uint64 `json:"seq"`
}

type joinRequest struct {
	RoomID         string `json:"roomId"`
	PlayerName     string `json:"playerName"`
	IsHost         bool   `json:"isHost"`
	ResumePlayerID string `json:"resumePlayerId"`
}

type joinReply struct {
	Player models.Player       `json:"player"`
	Room   models.RoomSnapshot `json:"room"`
}

type callRequest struct {
	Number models.CalledNumber `json:"number"`
}

type claimRequest struct {
	Pattern string `json:"pattern"`
	Marked  []int  `json:"marked"`
}

type claimReply struct {
	Accepted bool `json:"accepted"`
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	sess.Touch()
	if packet.MsgID == network.MsgTypeHeartbeat {
		return
	}

	start := time.Now()
	s.monitor.IncMessagesReceived()

	var env envelope
	if len(packet.Data) > 0 {
		// malformed JSON is reported by decode; here it only costs the seq
		_ = json.Unmarshal(packet.Data, &env)
	}

	data, err := s.dispatch(sess, packet)
	s.monitor.ObserveMessageLatency(time.Since(start))

	event := network.MsgName(packet.MsgID)
	ack := Ack{Seq: env.Seq, Event: event, OK: err == nil, Data: data}
	if err != nil {
		code := errs.CodeOf(err)
		ack.Error = errs.Public(err)
		ack.Data = nil
		s.monitor.IncRejected(string(code))
		if code == errs.CodeInternal {
			logger.Log.Errorw("event failed", "session", sess.GetID(), "event", event, "err", err)
		} else {
			logger.Log.Warnw("event rejected", "session", sess.GetID(), "event", event, "code", code)
		}
	}
	s.sendAck(sess, ack)
}

func (s *GameServer) sendAck(sess *session.Session, ack Ack) {
	data, err := json.Marshal(ack)
	if err != nil {
		logger.Log.Errorw("encode ack failed", "session", sess.GetID(), "err", err)
		return
	}
	if err := sess.Send(network.MsgTypeAck, data); err != nil {
		logger.Log.Warnw("ack not delivered", "session", sess.GetID(), "err", err)
	}
}

func decode(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errs.ErrInvalidPayload
	}
	return nil
}

// seat returns the room the session is seated in.
func (s *GameServer) seat(sess *session.Session) (*room.Room, string, error) {
	roomID, playerID := sess.Seat()
	if roomID == "" {
		return nil, "", errs.ErrNotInRoom
	}
	r, ok := s.roomManager.GetRoom(roomID)
	if !ok {
		return nil, "", errs.ErrRoomNotFound
	}
	return r, playerID, nil
}

func (s *GameServer) dispatch(sess *session.Session, packet *network.Packet) (any, error) {
	switch packet.MsgID {
	case network.MsgTypeJoinRoom:
		return s.handleJoinRoom(sess, packet.Data)
	case network.MsgTypeLeaveRoom:
		err := s.lifecycle.Leave(sess)
		s.monitor.SetActiveRooms(s.roomManager.Count())
		return nil, err
	case network.MsgTypeStartGame:
		r, playerID, err := s.seat(sess)
		if err != nil {
			return nil, err
		}
		return nil, r.Start(playerID)
	case network.MsgTypeCallNumber:
		return s.handleCallNumber(sess, packet.Data)
	case network.MsgTypeClaimWin:
		return s.handleClaimWin(sess, packet.Data)
	case network.MsgTypeResetGame:
		r, playerID, err := s.seat(sess)
		if err != nil {
			return nil, err
		}
		return nil, r.Reset(playerID)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		return nil, errs.ErrUnknownEvent
	}
}

func (s *GameServer) handleJoinRoom(sess *session.Session, data []byte) (any, error) {
	var req joinRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	// 显示名以令牌为准
	if name := strings.TrimSpace(req.PlayerName); name != "" && name != sess.Identity.DisplayName {
		return nil, errs.ErrNameMismatch
	}

	var (
		player models.Player
		snap   models.RoomSnapshot
		err    error
	)
	if req.ResumePlayerID != "" {
		player, snap, err = s.lifecycle.Resume(sess, req.RoomID, req.ResumePlayerID)
	} else {
		player, snap, err = s.lifecycle.Join(sess, req.RoomID, req.IsHost)
	}
	s.monitor.SetActiveRooms(s.roomManager.Count())
	if err != nil {
		return nil, err
	}

	logger.Log.Infof("Session %s joined room %s as %s", sess.GetID(), snap.ID, player.ID)
	return joinReply{Player: player, Room: snap}, nil
}

func (s *GameServer) handleCallNumber(sess *session.Session, data []byte) (any, error) {
	var req callRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	r, playerID, err := s.seat(sess)
	if err != nil {
		return nil, err
	}
	called, err := r.CallNumber(playerID, req.Number)
	if err != nil {
		return nil, err
	}
	s.monitor.IncNumbersCalled()
	return called, nil
}

func (s *GameServer) handleClaimWin(sess *session.Session, data []byte) (any, error) {
	var req claimRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	r, playerID, err := s.seat(sess)
	if err != nil {
		return nil, err
	}
	accepted, err := r.ClaimWin(playerID, req.Pattern, req.Marked)
	if err != nil {
		return nil, err
	}
	if accepted {
		s.monitor.IncWinsClaimed()
	}
	return claimReply{Accepted: accepted}, nil
}
