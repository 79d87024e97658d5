// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormGameRecord 游戏记录模型
type GormGameRecord struct {
	gorm.Model
	RoomID     string         `gorm:"index;not null"`
	Players    []Player       `gorm:"type:jsonb;serializer:json;not null"`
	Called     []CalledNumber `gorm:"type:jsonb;serializer:json;not null"`
	Winners    []WinClaim     `gorm:"type:jsonb;serializer:json;not null"`
	CallCount  int            `gorm:"default:0"`
	Duration   int            `gorm:"default:0"` // 游戏时长(秒)
	StartedAt  time.Time
	FinishedAt time.Time `gorm:"index"`
}

func (GormGameRecord) TableName() string {
	return "game_records"
}

// ToGorm converts a record for storage.
func (r GameRecord) ToGorm() *GormGameRecord {
	return &GormGameRecord{
		RoomID:     r.RoomID,
		Players:    r.Players,
		Called:     r.CalledNumbers,
		Winners:    r.Winners,
		CallCount:  len(r.CalledNumbers),
		Duration:   int(r.Duration().Seconds()),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// FromGorm 还原记录
func FromGorm(g *GormGameRecord) GameRecord {
	return GameRecord{
		RoomID:        g.RoomID,
		Players:       g.Players,
		CalledNumbers: g.Called,
		Winners:       g.Winners,
		StartedAt:     g.StartedAt,
		FinishedAt:    g.FinishedAt,
	}
}
