package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/trdSystemDev/Medko-Prescricao/config"
	"github.com/trdSystemDev/Medko-Prescricao/normalize"
)

// MemoryStore keeps rows in process memory with a unique natural key. It
// backs dry runs and tests.
type MemoryStore struct {
	mu        sync.Mutex
	rows      []normalize.Row
	keys      map[string]struct{}
	connected bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]struct{})}
}

func (s *MemoryStore) Name() string { return config.BackendMemory }

func (s *MemoryStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

// Seed stores rows without going through the constraint check.
func (s *MemoryStore) Seed(rows ...normalize.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.keys[r.NaturalKey()] = struct{}{}
		s.rows = append(s.rows, r)
	}
}

// InsertBatch is all or nothing: one colliding key, against stored rows or
// within the batch, rejects the whole batch.
func (s *MemoryStore) InsertBatch(ctx context.Context, rows []normalize.Row) InsertResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return insertFailed(fmt.Errorf("memory store not connected"))
	}

	seen := make(map[string]struct{}, len(rows))
	for i := range rows {
		key := rows[i].NaturalKey()
		if _, ok := s.keys[key]; ok {
			return insertConflict(fmt.Errorf("duplicate key %q", key))
		}
		if _, ok := seen[key]; ok {
			return insertConflict(fmt.Errorf("duplicate key %q within batch", key))
		}
		seen[key] = struct{}{}
	}

	for i := range rows {
		s.keys[rows[i].NaturalKey()] = struct{}{}
	}
	s.rows = append(s.rows, rows...)
	return insertOK(len(rows))
}

func (s *MemoryStore) InsertRow(ctx context.Context, row normalize.Row) InsertResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return insertFailed(fmt.Errorf("memory store not connected"))
	}

	key := row.NaturalKey()
	if _, ok := s.keys[key]; ok {
		return insertConflict(fmt.Errorf("duplicate key %q", key))
	}
	s.keys[key] = struct{}{}
	s.rows = append(s.rows, row)
	return insertOK(1)
}

func (s *MemoryStore) CountRows(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rows)), nil
}

// Rows returns a copy of the stored rows in insertion order.
func (s *MemoryStore) Rows() []normalize.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]normalize.Row, len(s.rows))
	copy(out, s.rows)
	return out
}
