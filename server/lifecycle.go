package server

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/bingoserver/broadcast"
	"github.com/wfunc/bingoserver/errs"
	"github.com/wfunc/bingoserver/logger"
	"github.com/wfunc/bingoserver/models"
	"github.com/wfunc/bingoserver/room"
	"github.com/wfunc/bingoserver/session"
	"github.com/wfunc/bingoserver/timer"
)

// Lifecycle ties connections to seats. Every seat is left exactly once,
// whether through leave_room, a disconnect or an expired grace window.
type Lifecycle struct {
	rooms  *room.Manager
	hub    *broadcast.Hub
	timers *timer.TimerManager
	grace  time.Duration
	held   map[string]int64 // playerID -> expiry timer
	mutex  sync.Mutex
}

func NewLifecycle(rooms *room.Manager, hub *broadcast.Hub, timers *timer.TimerManager, grace time.Duration) *Lifecycle {
	return &Lifecycle{
		rooms:  rooms,
		hub:    hub,
		timers: timers,
		grace:  grace,
		held:   make(map[string]int64),
	}
}

// Join seats the session in roomID. The session is subscribed first so it
// cannot miss a broadcast issued between the join and the ack.
func (l *Lifecycle) Join(sess *session.Session, roomID string, requestedHost bool) (models.Player, models.RoomSnapshot, error) {
	if rid, _ := sess.Seat(); rid != "" {
		return models.Player{}, models.RoomSnapshot{}, errs.ErrAlreadyJoined
	}

	l.hub.Subscribe(roomID, sess)
	_, player, snap, err := l.rooms.Join(roomID, sess.Identity.DisplayName, requestedHost)
	if err != nil {
		l.hub.Unsubscribe(roomID, sess.GetID())
		return models.Player{}, models.RoomSnapshot{}, err
	}
	if err := sess.Bind(roomID, player.ID); err != nil {
		l.hub.Unsubscribe(roomID, sess.GetID())
		l.rooms.Leave(roomID, player.ID)
		return models.Player{}, models.RoomSnapshot{}, errs.ErrAlreadyJoined
	}
	return player, snap, nil
}

// Resume rebinds a held seat to a new connection.
func (l *Lifecycle) Resume(sess *session.Session, roomID, playerID string) (models.Player, models.RoomSnapshot, error) {
	if rid, _ := sess.Seat(); rid != "" {
		return models.Player{}, models.RoomSnapshot{}, errs.ErrAlreadyJoined
	}

	l.hub.Subscribe(roomID, sess)
	r, player, snap, err := l.rooms.Resume(roomID, playerID, sess.Identity.DisplayName)
	if err != nil {
		l.hub.Unsubscribe(roomID, sess.GetID())
		// 宽限期已过，正在进行的对局不能再加入
		if errors.Is(err, errs.ErrSeatNotResumable) {
			if r, ok := l.rooms.GetRoom(roomID); ok && r.Status() == models.StatusPlaying {
				return models.Player{}, models.RoomSnapshot{}, errs.ErrGameInProgress
			}
		}
		return models.Player{}, models.RoomSnapshot{}, err
	}
	l.cancelExpiry(playerID)

	if err := sess.Bind(r.ID, player.ID); err != nil {
		l.hub.Unsubscribe(roomID, sess.GetID())
		return models.Player{}, models.RoomSnapshot{}, errs.ErrAlreadyJoined
	}
	logger.Log.Infow("seat resumed", "room", roomID, "player", playerID, "session", sess.GetID())
	return player, snap, nil
}

// Leave handles an explicit leave_room.
func (l *Lifecycle) Leave(sess *session.Session) error {
	roomID, playerID, ok := sess.Unbind()
	if !ok {
		return errs.ErrNotInRoom
	}
	l.hub.Unsubscribe(roomID, sess.GetID())
	return l.rooms.Leave(roomID, playerID)
}

// Disconnect runs when the connection is gone. With a grace window the
// seat is held, otherwise it is left right away.
func (l *Lifecycle) Disconnect(sess *session.Session) {
	roomID, playerID, ok := sess.Unbind()
	if !ok {
		return
	}
	l.hub.Unsubscribe(roomID, sess.GetID())

	if l.grace <= 0 {
		if err := l.rooms.Leave(roomID, playerID); err != nil {
			logger.Log.Warnw("leave on disconnect failed", "room", roomID, "player", playerID, "err", err)
		}
		return
	}

	r, ok := l.rooms.GetRoom(roomID)
	if !ok {
		return
	}

	// held under the mutex so the seat and its timer appear together
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if err := r.Hold(playerID); err != nil {
		logger.Log.Warnw("hold seat failed", "room", roomID, "player", playerID, "err", err)
		return
	}
	var id int64
	id = l.timers.AddTimer(l.grace, 0, func() { l.expire(roomID, playerID, &id) })
	l.held[playerID] = id
	logger.Log.Infow("seat held", "room", roomID, "player", playerID, "grace", l.grace)
}

// expire drops the seat unless its timer was cancelled or replaced by a
// later hold. timerID is read under the mutex; Disconnect writes it there.
func (l *Lifecycle) expire(roomID, playerID string, timerID *int64) {
	l.mutex.Lock()
	if id, ok := l.held[playerID]; !ok || id != *timerID {
		l.mutex.Unlock()
		return
	}
	delete(l.held, playerID)
	l.mutex.Unlock()

	removed, err := l.rooms.Expire(roomID, playerID)
	if err != nil && !errors.Is(err, errs.ErrRoomNotFound) && !errors.Is(err, errs.ErrNotInRoom) {
		logger.Log.Warnw("expire seat failed", "room", roomID, "player", playerID, "err", err)
		return
	}
	if removed {
		logger.Log.Infow("seat expired", "room", roomID, "player", playerID)
	}
}

func (l *Lifecycle) cancelExpiry(playerID string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if id, ok := l.held[playerID]; ok {
		l.timers.RemoveTimer(id)
		delete(l.held, playerID)
	}
}

// Held returns the number of seats waiting for a reconnect.
func (l *Lifecycle) Held() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.held)
}
