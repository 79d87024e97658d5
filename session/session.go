// session/session.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/bingoserver/auth"
	"github.com/wfunc/bingoserver/network"
)

var (
	ErrClosed       = errors.New("session closed")
	ErrQueueFull    = errors.New("session send queue full")
	ErrAlreadyBound = errors.New("session already bound to a room")
)

type outbound struct {
	msgID uint16
	data  []byte
}

type Session struct {
	ID        string
	Conn      network.Connection
	Identity  auth.Identity
	CreatedAt time.Time

	lastActive time.Time
	roomID     string
	playerID   string
	send       chan outbound
	done       chan struct{}
	closeOnce  sync.Once
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection, queueSize int) *Session {
	if queueSize < 1 {
		queueSize = 1
	}
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
		send:       make(chan outbound, queueSize),
		done:       make(chan struct{}),
	}
}

// Send queues a frame without blocking. A full queue means the peer is not
// keeping up; the session is closed so it cannot hold back anyone else.
func (s *Session) Send(msgID uint16, data []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.send <- outbound{msgID: msgID, data: data}:
		return nil
	case <-s.done:
		return ErrClosed
	default:
		s.Close()
		return ErrQueueFull
	}
}

// WritePump drains the queue onto the connection until the session closes.
func (s *Session) WritePump() {
	for {
		select {
		case m := <-s.send:
			if err := s.Conn.Send(m.msgID, m.data); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

// Bind associates the session with a seat in a room.
func (s *Session) Bind(roomID, playerID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.roomID != "" {
		return ErrAlreadyBound
	}
	s.roomID = roomID
	s.playerID = playerID
	return nil
}

// Unbind clears the seat and reports what it was. Only the first caller
// gets ok == true, which is what makes leave run once.
func (s *Session) Unbind() (roomID, playerID string, ok bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.roomID == "" {
		return "", "", false
	}
	roomID, playerID = s.roomID, s.playerID
	s.roomID, s.playerID = "", ""
	return roomID, playerID, true
}

func (s *Session) Seat() (roomID, playerID string) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomID, s.playerID
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.Conn.Close()
	})
	return err
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// CloseAll 关闭所有会话，用于停服
func (m *Manager) CloseAll() {
	m.mutex.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mutex.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}
