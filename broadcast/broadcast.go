// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/wfunc/bingoserver/logger"
	"github.com/wfunc/bingoserver/network"
)

// Subscriber is one connection in a room's broadcast group. Send must not
// block; session.Session queues the frame.
type Subscriber interface {
	GetID() string
	Send(msgID uint16, data []byte) error
}

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, payload any) error
}

// Hub 基于房间的广播器
type Hub struct {
	rooms  map[string]map[string]Subscriber // roomID -> subscriberID -> subscriber
	mutex  sync.RWMutex
	onDrop func(roomID, subscriberID string)
}

// NewHub creates a hub. onDrop, if set, is called for each subscriber whose
// delivery failed.
func NewHub(onDrop func(roomID, subscriberID string)) *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]Subscriber),
		onDrop: onDrop,
	}
}

func (h *Hub) Subscribe(roomID string, s Subscriber) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	group, ok := h.rooms[roomID]
	if !ok {
		group = make(map[string]Subscriber)
		h.rooms[roomID] = group
	}
	group[s.GetID()] = s
}

func (h *Hub) Unsubscribe(roomID, subscriberID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if group, ok := h.rooms[roomID]; ok {
		delete(group, subscriberID)
		if len(group) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) Subscribers(roomID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[roomID])
}

// BroadcastToRoom marshals payload once and hands the frame to every
// subscriber. A failing subscriber is unsubscribed and skipped.
func (h *Hub) BroadcastToRoom(roomID string, msgID uint16, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.mutex.RLock()
	group := h.rooms[roomID]
	subs := make([]Subscriber, 0, len(group))
	for _, s := range group {
		subs = append(subs, s)
	}
	h.mutex.RUnlock()

	for _, s := range subs {
		if err := s.Send(msgID, data); err != nil {
			logger.Log.Warnw("broadcast delivery failed",
				"room", roomID, "subscriber", s.GetID(), "event", network.MsgName(msgID), "err", err)
			h.Unsubscribe(roomID, s.GetID())
			if h.onDrop != nil {
				h.onDrop(roomID, s.GetID())
			}
		}
	}
	return nil
}
