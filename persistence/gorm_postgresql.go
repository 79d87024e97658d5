// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/bingoserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(dsn string) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold: time.Second,   // 慢SQL阈值
			LogLevel:      logger.Silent, // 日志级别
			Colorful:      false,         // 禁用彩色打印
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}
	return newGormWithDB(db)
}

func newGormWithDB(db *gorm.DB) (*GormPostgreSQL, error) {
	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := db.AutoMigrate(&models.GormGameRecord{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// SaveGameRecord 保存游戏记录
func (p *GormPostgreSQL) SaveGameRecord(ctx context.Context, rec models.GameRecord) error {
	return p.db.WithContext(ctx).Create(rec.ToGorm()).Error
}

func (p *GormPostgreSQL) RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error) {
	var rows []models.GormGameRecord
	err := p.db.WithContext(ctx).
		Order("finished_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.GameRecord, len(rows))
	for i := range rows {
		out[i] = models.FromGorm(&rows[i])
	}
	return out, nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

