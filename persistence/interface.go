// persistence/interface.go
package persistence

import (
	"context"
	"fmt"

	"github.com/wfunc/bingoserver/models"
)

// Database 数据库接口
type Database interface {
	SaveGameRecord(ctx context.Context, rec models.GameRecord) error
	// RecentGameRecords returns up to limit records, newest first.
	RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error)
	Close() error
}

// 错误定义
var (
	ErrUnknownDriver = fmt.Errorf("unknown database driver")
)
