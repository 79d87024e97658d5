// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq" // PostgreSQL 驱动

	"github.com/wfunc/bingoserver/models"
)

// PostgreSQL 数据库实现
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(dsn string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构，列与 GORM 模型一致
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS game_records (
            id BIGSERIAL PRIMARY KEY,
            room_id TEXT NOT NULL,
            players JSONB NOT NULL,
            called JSONB NOT NULL,
            winners JSONB NOT NULL,
            call_count BIGINT DEFAULT 0,
            duration BIGINT DEFAULT 0,
            started_at TIMESTAMPTZ,
            finished_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_game_records_room_id ON game_records(room_id);
        CREATE INDEX IF NOT EXISTS idx_game_records_finished_at ON game_records(finished_at);
    `)
	return err
}

// SaveGameRecord 保存游戏记录
func (p *PostgreSQL) SaveGameRecord(ctx context.Context, rec models.GameRecord) error {
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return err
	}
	called, err := json.Marshal(rec.CalledNumbers)
	if err != nil {
		return err
	}
	winners, err := json.Marshal(rec.Winners)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
        INSERT INTO game_records (room_id, players, called, winners, call_count, duration, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err = p.db.ExecContext(ctx, query,
		rec.RoomID, players, called, winners,
		len(rec.CalledNumbers), int(rec.Duration().Seconds()),
		rec.StartedAt, rec.FinishedAt)
	return err
}

func (p *PostgreSQL) RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
        SELECT room_id, players, called, winners, started_at, finished_at
        FROM game_records
        ORDER BY finished_at DESC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.GameRecord
	for rows.Next() {
		var (
			rec                      models.GameRecord
			players, called, winners []byte
			started, finished        sql.NullTime
		)
		if err := rows.Scan(&rec.RoomID, &players, &called, &winners, &started, &finished); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(players, &rec.Players); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(called, &rec.CalledNumbers); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(winners, &rec.Winners); err != nil {
			return nil, err
		}
		rec.StartedAt = started.Time
		rec.FinishedAt = finished.Time
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
