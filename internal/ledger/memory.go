package ledger

import (
	"context"
	"sync"

	"github.com/livepoll/backend/internal/models"
)

type memoryKey struct {
	identity string
	pollID   string
}

// Memory is an in-process ledger.
type Memory struct {
	mu      sync.RWMutex
	records map[memoryKey]models.VoteRecord
}

// NewMemory creates an empty in-process ledger.
func NewMemory() *Memory {
	return &Memory{records: make(map[memoryKey]models.VoteRecord)}
}

func (m *Memory) Get(_ context.Context, identity, pollID string) (*models.VoteRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[memoryKey{identity: identity, pollID: pollID}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) Put(_ context.Context, identity, pollID string, rec models.VoteRecord) error {
	key := memoryKey{identity: identity, pollID: pollID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; ok {
		return ErrVoteExists
	}
	m.records[key] = rec
	return nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
