package broadcast

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/wfunc/bingoserver/network"
)

type frame struct {
	msgID uint16
	data  []byte
}

// mockSubscriber records frames; fail makes every Send return an error.
type mockSubscriber struct {
	id     string
	fail   bool
	mu     sync.Mutex
	frames []frame
}

func (m *mockSubscriber) GetID() string { return m.id }

func (m *mockSubscriber) Send(msgID uint16, data []byte) error {
	if m.fail {
		return errors.New("queue full")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, frame{msgID, data})
	return nil
}

func TestHub_BroadcastToRoom(t *testing.T) {
	hub := NewHub(nil)
	a := &mockSubscriber{id: "a"}
	b := &mockSubscriber{id: "b"}
	other := &mockSubscriber{id: "c"}

	hub.Subscribe("room1", a)
	hub.Subscribe("room1", b)
	hub.Subscribe("room2", other)

	payload := map[string]int{"value": 12}
	if err := hub.BroadcastToRoom("room1", network.MsgTypeNumberCalled, payload); err != nil {
		t.Fatalf("BroadcastToRoom failed: %v", err)
	}

	for _, s := range []*mockSubscriber{a, b} {
		if len(s.frames) != 1 {
			t.Fatalf("Expected subscriber %s to get 1 frame, got %d", s.id, len(s.frames))
		}
		var got map[string]int
		json.Unmarshal(s.frames[0].data, &got)
		if got["value"] != 12 {
			t.Errorf("Unexpected payload for %s: %s", s.id, s.frames[0].data)
		}
	}
	if len(other.frames) != 0 {
		t.Error("Subscribers of other rooms should not receive the broadcast")
	}
}

func TestHub_FailingSubscriberDoesNotBlockOthers(t *testing.T) {
	var dropped []string
	hub := NewHub(func(roomID, subscriberID string) {
		dropped = append(dropped, subscriberID)
	})

	dead := &mockSubscriber{id: "dead", fail: true}
	alive := &mockSubscriber{id: "alive"}
	hub.Subscribe("room", dead)
	hub.Subscribe("room", alive)

	hub.BroadcastToRoom("room", network.MsgTypeRoomUpdate, nil)
	hub.BroadcastToRoom("room", network.MsgTypeRoomUpdate, nil)

	if len(alive.frames) != 2 {
		t.Errorf("Expected the live subscriber to get 2 frames, got %d", len(alive.frames))
	}
	if len(dropped) != 1 || dropped[0] != "dead" {
		t.Errorf("Expected the dead subscriber to be dropped once, got %v", dropped)
	}
	if hub.Subscribers("room") != 1 {
		t.Errorf("Expected 1 remaining subscriber, got %d", hub.Subscribers("room"))
	}
}

func TestHub_OrderPerSubscriber(t *testing.T) {
	hub := NewHub(nil)
	s := &mockSubscriber{id: "s"}
	hub.Subscribe("room", s)

	order := []uint16{network.MsgTypeNumberCalled, network.MsgTypeRoomUpdate, network.MsgTypeGameFinished}
	for _, id := range order {
		hub.BroadcastToRoom("room", id, nil)
	}

	if len(s.frames) != len(order) {
		t.Fatalf("Expected %d frames, got %d", len(order), len(s.frames))
	}
	for i, id := range order {
		if s.frames[i].msgID != id {
			t.Errorf("Frame %d: expected %d, got %d", i, id, s.frames[i].msgID)
		}
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub(nil)
	hub.Subscribe("room", &mockSubscriber{id: "a"})
	hub.Subscribe("room", &mockSubscriber{id: "b"})

	hub.Unsubscribe("room", "a")
	if hub.Subscribers("room") != 1 {
		t.Errorf("Expected 1 subscriber after unsubscribe, got %d", hub.Subscribers("room"))
	}

	hub.Unsubscribe("room", "b")
	hub.Unsubscribe("room", "b")
	if hub.Subscribers("room") != 0 {
		t.Errorf("Expected 0 subscribers, got %d", hub.Subscribers("room"))
	}
}

func TestHub_MarshalError(t *testing.T) {
	hub := NewHub(nil)
	s := &mockSubscriber{id: "s"}
	hub.Subscribe("room", s)

	if err := hub.BroadcastToRoom("room", network.MsgTypeRoomUpdate, make(chan int)); err == nil {
		t.Fatal("Expected a marshal error")
	}
	if len(s.frames) != 0 {
		t.Error("Nothing should be delivered when the payload cannot be encoded")
	}
}
