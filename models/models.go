// models/models.go
package models

import (
	"time"
)

// Status 房间的生命周期状态
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Player is a seat in a room. ID is minted on join and stays with the seat
// across a reconnection inside the grace window.
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsHost    bool   `json:"isHost"`
	Connected bool   `json:"connected"`
}

// CalledNumber 一个已叫出的号码
type CalledNumber struct {
	Value    int    `json:"value" yaml:"value"`
	Category string `json:"category" yaml:"category"`
}

// WinClaim 一条被接受的中奖声明
type WinClaim struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Pattern    string `json:"pattern"`
}

// RoomSnapshot is the full room state sent with every room_update.
type RoomSnapshot struct {
	ID            string         `json:"id"`
	Players       []Player       `json:"players"`
	CalledNumbers []CalledNumber `json:"calledNumbers"`
	CurrentNumber *CalledNumber  `json:"currentNumber"`
	Winners       []WinClaim     `json:"winners"`
	Status        Status         `json:"status"`
}

// Host returns the host seat, if any.
func (s RoomSnapshot) Host() (Player, bool) {
	for _, p := range s.Players {
		if p.IsHost {
			return p, true
		}
	}
	return Player{}, false
}

// GameRecord 一局结束后的记录
type GameRecord struct {
	RoomID        string         `json:"room_id"`
	Players       []Player       `json:"players"`
	CalledNumbers []CalledNumber `json:"called_numbers"`
	Winners       []WinClaim     `json:"winners"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
}

// Duration 游戏时长
func (r GameRecord) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
