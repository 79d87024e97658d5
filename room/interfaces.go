package room

import "github.com/wfunc/bingoserver/models"

// Broadcaster defines the interface for broadcasting messages to a room.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, payload any) error
}

// Recorder receives a summary of every finished round. It is called after
// the room lock is released and must not block for long.
type Recorder interface {
	Record(rec models.GameRecord)
}
