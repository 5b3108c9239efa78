package spamcache

import (
	"context"
	"sync"
	"time"

	"github.com/chadiek/callscreen/internal/models"
	"github.com/chadiek/callscreen/internal/phone"
)

// Memory is an in-process Cache.
type Memory struct {
	Retention time.Duration
	Now       func() time.Time

	mu      sync.RWMutex
	records map[phone.Number]models.ClassificationRecord
}

// NewMemory returns an empty in-memory cache with the default retention.
func NewMemory() *Memory {
	return &Memory{
		Retention: DefaultRetention,
		Now:       time.Now,
		records:   make(map[phone.Number]models.ClassificationRecord),
	}
}

func (m *Memory) Get(_ context.Context, number phone.Number) (models.ClassificationRecord, bool) {
	m.mu.RLock()
	rec, ok := m.records[number]
	m.mu.RUnlock()
	if !ok {
		observe("miss")
		return models.ClassificationRecord{}, false
	}
	if !expired(rec, m.Now(), m.Retention) {
		observe("hit")
		return rec, true
	}

	m.mu.Lock()
	// a newer put may have landed between the read and write locks
	if cur, ok := m.records[number]; ok && cur.ObservedAt.Equal(rec.ObservedAt) {
		delete(m.records, number)
	}
	m.mu.Unlock()
	observe("expired")
	return models.ClassificationRecord{}, false
}

func (m *Memory) Put(_ context.Context, rec models.ClassificationRecord) error {
	m.mu.Lock()
	m.records[rec.PhoneNumber] = rec
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored records, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
