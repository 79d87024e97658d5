package models

import (
	"testing"
	"time"
)

func TestRoomSnapshot_Host(t *testing.T) {
	snap := RoomSnapshot{Players: []Player{
		{ID: "a", Name: "Alice"},
		{ID: "b", Name: "Bob", IsHost: true},
	}}

	host, ok := snap.Host()
	if !ok {
		t.Fatal("Expected a host to be found")
	}
	if host.ID != "b" {
		t.Errorf("Expected host b, got %s", host.ID)
	}

	if _, ok := (RoomSnapshot{}).Host(); ok {
		t.Error("Empty snapshot should not have a host")
	}
}

func TestGameRecord_GormRoundTrip(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := GameRecord{
		RoomID:        "room-1",
		Players:       []Player{{ID: "a", Name: "Alice", IsHost: true}},
		CalledNumbers: []CalledNumber{{Value: 12, Category: "B"}, {Value: 40, Category: "N"}},
		Winners:       []WinClaim{{PlayerID: "a", PlayerName: "Alice", Pattern: "line"}},
		StartedAt:     start,
		FinishedAt:    start.Add(90 * time.Second),
	}

	g := rec.ToGorm()
	if g.CallCount != 2 {
		t.Errorf("Expected call count 2, got %d", g.CallCount)
	}
	if g.Duration != 90 {
		t.Errorf("Expected duration 90s, got %d", g.Duration)
	}

	back := FromGorm(g)
	if back.RoomID != rec.RoomID || len(back.Winners) != 1 || back.Winners[0].Pattern != "line" {
		t.Errorf("Record did not survive conversion: %+v", back)
	}
}

func TestGameRecord_DurationWithoutStart(t *testing.T) {
	rec := GameRecord{FinishedAt: time.Now()}
	if rec.Duration() != 0 {
		t.Errorf("Expected zero duration without a start time, got %v", rec.Duration())
	}
}
