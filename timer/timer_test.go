package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTimerManager_FiresOnce(t *testing.T) {
	m := NewTimerManager(5 * time.Millisecond)
	defer m.Stop()

	var fired int32
	m.AddTimer(10*time.Millisecond, 0, func() { atomic.AddInt32(&fired, 1) })

	waitFor(t, func() bool { return atomic.LoadInt32(&fired) == 1 })
	time.Sleep(30 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 1 {
		t.Errorf("Expected a one-shot timer to fire once, fired %d times", n)
	}
	if m.Pending() != 0 {
		t.Errorf("Expected empty queue, got %d", m.Pending())
	}
}

func TestTimerManager_Remove(t *testing.T) {
	m := NewTimerManager(5 * time.Millisecond)
	defer m.Stop()

	var fired int32
	id := m.AddTimer(50*time.Millisecond, 0, func() { atomic.AddInt32(&fired, 1) })

	if !m.RemoveTimer(id) {
		t.Fatal("RemoveTimer should find the pending task")
	}
	if m.RemoveTimer(id) {
		t.Error("RemoveTimer should report false for an unknown task")
	}

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("Removed timer should not fire")
	}
}

func TestTimerManager_Interval(t *testing.T) {
	m := NewTimerManager(5 * time.Millisecond)
	defer m.Stop()

	var fired int32
	id := m.AddTimer(5*time.Millisecond, 5*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	waitFor(t, func() bool { return atomic.LoadInt32(&fired) >= 3 })
	m.RemoveTimer(id)
}

func TestTimerManager_Order(t *testing.T) {
	m := NewTimerManager(time.Hour)
	defer m.Stop()

	m.AddTimer(30*time.Millisecond, 0, func() {})
	first := m.AddTimer(10*time.Millisecond, 0, func() {})
	m.AddTimer(20*time.Millisecond, 0, func() {})

	ready := m.due(time.Now().Add(15 * time.Millisecond))
	if len(ready) != 1 || ready[0].Id != first {
		t.Fatalf("Expected only the earliest task to be due, got %d tasks", len(ready))
	}
	if m.Pending() != 2 {
		t.Errorf("Expected 2 pending tasks, got %d", m.Pending())
	}
}
