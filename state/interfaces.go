// state/interfaces.go
package state

import "github.com/wfunc/bingoserver/models"

// RoomContext is what the lifecycle states need from a room. Defined here to
// break the import cycle between room and state. Implementations are called
// while the room is already locked.
type RoomContext interface {
	GetID() string
	ClearRound()
	Snapshot() models.RoomSnapshot
	Emit(msgID uint16, payload any)
}
