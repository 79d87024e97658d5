package persistence

import (
	"context"
	"sync"

	"github.com/wfunc/bingoserver/models"
)

// Memory keeps the last capacity records in process. Used when no database
// is configured and in tests.
type Memory struct {
	records  []models.GameRecord
	capacity int
	mutex    sync.RWMutex
}

func NewMemory(capacity int) *Memory {
	if capacity < 1 {
		capacity = 100
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) SaveGameRecord(_ context.Context, rec models.GameRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.records = append(m.records, rec)
	if over := len(m.records) - m.capacity; over > 0 {
		m.records = append(m.records[:0:0], m.records[over:]...)
	}
	return nil
}

func (m *Memory) RecentGameRecords(_ context.Context, limit int) ([]models.GameRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	out := make([]models.GameRecord, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
