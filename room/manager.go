// room/manager.go
package room

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/bingoserver/errs"
	"github.com/wfunc/bingoserver/logger"
	"github.com/wfunc/bingoserver/models"
	"github.com/wfunc/bingoserver/timer"
)

// IdlePolicy 决定房间空置后的处理方式
type IdlePolicy string

const (
	IdleDispose IdlePolicy = "dispose"
	IdlePark    IdlePolicy = "park"
)

type ManagerConfig struct {
	Room        Options
	Broadcaster Broadcaster
	MaxRooms    int
	IdlePolicy  IdlePolicy
	// IdleTTL bounds how long a parked room is kept. Zero keeps it forever.
	IdleTTL time.Duration
	Timers  *timer.TimerManager
	// OnRemove runs after a room left the registry, with the registry locked.
	// remaining is the number of rooms left.
	OnRemove func(roomID string, remaining int)
}

// Manager 管理所有房间
type Manager struct {
	cfg       ManagerConfig
	rooms     map[string]*Room
	idle      map[string]int64 // roomID -> park timer
	ownTimers bool
	mutex     sync.RWMutex
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(cfg ManagerConfig) *Manager {
	if cfg.MaxRooms < 1 {
		cfg.MaxRooms = 1
	}
	if cfg.IdlePolicy == "" {
		cfg.IdlePolicy = IdleDispose
	}
	m := &Manager{
		rooms: make(map[string]*Room),
		idle:  make(map[string]int64),
	}
	if cfg.Timers == nil {
		cfg.Timers = timer.NewTimerManager(0)
		m.ownTimers = true
	}
	m.cfg = cfg
	return m
}

// Close stops the park timers if the manager created them.
func (m *Manager) Close() {
	if m.ownTimers {
		m.cfg.Timers.Stop()
	}
}

// Join creates the room on first use and seats the player.
func (m *Manager) Join(roomID, name string, requestedHost bool) (*Room, models.Player, models.RoomSnapshot, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, models.Player{}, models.RoomSnapshot{}, errs.ErrInvalidRoomID
	}
	if _, err := ValidateName(name); err != nil {
		return nil, models.Player{}, models.RoomSnapshot{}, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	r, created, err := m.createOrGetLocked(roomID)
	if err != nil {
		return nil, models.Player{}, models.RoomSnapshot{}, err
	}
	m.cancelIdleLocked(roomID)

	player, snap, err := r.Join(name)
	if err != nil {
		if created {
			m.removeLocked(roomID)
		}
		return nil, models.Player{}, models.RoomSnapshot{}, err
	}
	if requestedHost && !player.IsHost {
		logger.Log.Debugw("host request ignored, room already has a host", "room", roomID, "player", player.ID)
	}
	return r, player, snap, nil
}

// CreateOrGet returns the room with id, creating it when there is capacity.
func (m *Manager) CreateOrGet(id string) (*Room, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.createOrGetLocked(id)
}

func (m *Manager) createOrGetLocked(id string) (*Room, bool, error) {
	if r, ok := m.rooms[id]; ok {
		return r, false, nil
	}
	if len(m.rooms) >= m.cfg.MaxRooms {
		return nil, false, errs.ErrRoomLimitReached
	}
	r := NewRoom(id, m.cfg.Room, m.cfg.Broadcaster)
	m.rooms[id] = r
	logger.Log.Infow("room created", "room", id)
	return r, true, nil
}

// Resume reattaches a held seat.
func (m *Manager) Resume(roomID, playerID, name string) (*Room, models.Player, models.RoomSnapshot, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return nil, models.Player{}, models.RoomSnapshot{}, errs.ErrRoomNotFound
	}
	m.cancelIdleLocked(roomID)

	player, snap, err := r.Resume(playerID, name)
	if err != nil {
		return nil, models.Player{}, models.RoomSnapshot{}, err
	}
	return r, player, snap, nil
}

// Leave removes a seat and applies the idle policy when the room empties.
func (m *Manager) Leave(roomID, playerID string) error {
	r, ok := m.GetRoom(roomID)
	if !ok {
		return errs.ErrRoomNotFound
	}
	remaining, err := r.Leave(playerID)
	if err != nil {
		return err
	}
	if remaining == 0 {
		m.vacated(roomID)
	}
	return nil
}

// Expire drops a held seat whose grace window ran out. It reports whether a
// seat was actually removed.
func (m *Manager) Expire(roomID, playerID string) (bool, error) {
	r, ok := m.GetRoom(roomID)
	if !ok {
		return false, errs.ErrRoomNotFound
	}
	remaining, removed, err := r.Expire(playerID)
	if err != nil {
		return false, err
	}
	if removed && remaining == 0 {
		m.vacated(roomID)
	}
	return removed, nil
}

func (m *Manager) vacated(roomID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	r, ok := m.rooms[roomID]
	if !ok || r.PlayerCount() > 0 {
		return
	}

	switch m.cfg.IdlePolicy {
	case IdlePark:
		logger.Log.Infow("room parked", "room", roomID, "ttl", m.cfg.IdleTTL)
		if m.cfg.IdleTTL > 0 {
			m.cancelIdleLocked(roomID)
			var id int64
			id = m.cfg.Timers.AddTimer(m.cfg.IdleTTL, 0, func() { m.reap(roomID, &id) })
			m.idle[roomID] = id
		}
	default:
		m.removeLocked(roomID)
	}
}

// reap disposes a parked room unless its timer was replaced or cancelled.
// timerID is read under the lock; it is written while vacated holds it.
func (m *Manager) reap(roomID string, timerID *int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if id, ok := m.idle[roomID]; !ok || id != *timerID {
		return
	}
	delete(m.idle, roomID)
	if r, ok := m.rooms[roomID]; ok && r.PlayerCount() == 0 {
		m.removeLocked(roomID)
	}
}

func (m *Manager) cancelIdleLocked(roomID string) {
	if id, ok := m.idle[roomID]; ok {
		m.cfg.Timers.RemoveTimer(id)
		delete(m.idle, roomID)
	}
}

func (m *Manager) removeLocked(roomID string) {
	if _, ok := m.rooms[roomID]; !ok {
		return
	}
	m.cancelIdleLocked(roomID)
	delete(m.rooms, roomID)
	logger.Log.Infow("room removed", "room", roomID)
	if m.cfg.OnRemove != nil {
		m.cfg.OnRemove(roomID, len(m.rooms))
	}
}

// RemoveRoom 从管理器中移除一个房间
func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.removeLocked(id)
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	r, exists := m.rooms[id]
	return r, exists
}

// Rooms returns the live rooms, oldest first.
func (m *Manager) Rooms() []*Room {
	m.mutex.RLock()
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	m.mutex.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// AllocateID picks the room a registering client should join. A host gets
// a fresh id while there is capacity, otherwise a parked empty room. Other
// players are pointed at the oldest room, or a fresh id if there is none.
// The room itself is only created on join.
func (m *Manager) AllocateID(host bool) (string, error) {
	rooms := m.Rooms()
	if !host && len(rooms) > 0 {
		return rooms[0].ID, nil
	}
	if len(rooms) < m.cfg.MaxRooms {
		return uuid.NewString(), nil
	}
	for _, r := range rooms {
		if r.PlayerCount() == 0 {
			return r.ID, nil
		}
	}
	return "", errs.ErrRoomLimitReached
}
