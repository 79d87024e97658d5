// services/record_service.go
package services

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/bingoserver/logger"
	"github.com/wfunc/bingoserver/models"
	"github.com/wfunc/bingoserver/persistence"
)

const (
	saveTimeout  = 5 * time.Second
	defaultLimit = 20
	maxLimit     = 100
)

// RecordService 保存结束的对局。Record 不阻塞房间，写库在后台进行。
type RecordService struct {
	db persistence.Database
	wg sync.WaitGroup
}

func NewRecordService(db persistence.Database) *RecordService {
	return &RecordService{db: db}
}

// Record implements room.Recorder.
func (s *RecordService) Record(rec models.GameRecord) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := s.db.SaveGameRecord(ctx, rec); err != nil {
			logger.Log.Errorw("save game record failed", "room", rec.RoomID, "err", err)
			return
		}
		logger.Log.Infow("game record saved",
			"room", rec.RoomID, "calls", len(rec.CalledNumbers), "winners", len(rec.Winners), "duration", rec.Duration())
	}()
}

// Recent returns finished rounds, newest first. limit is clamped to
// [1, 100]; zero means the default of 20.
func (s *RecordService) Recent(ctx context.Context, limit int) ([]models.GameRecord, error) {
	switch {
	case limit <= 0:
		limit = defaultLimit
	case limit > maxLimit:
		limit = maxLimit
	}
	recs, err := s.db.RecentGameRecords(ctx, limit)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []models.GameRecord{}
	}
	return recs, nil
}

// Wait blocks until every pending write has finished.
func (s *RecordService) Wait() {
	s.wg.Wait()
}

// Close waits for pending writes and closes the database.
func (s *RecordService) Close() error {
	s.wg.Wait()
	return s.db.Close()
}
