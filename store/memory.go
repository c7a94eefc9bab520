package store

import (
	"context"
	"sync"

	"github.com/hupe1980/channelmesh/core"
)

// InMemoryStore is a volatile Store keeping records in a process local map.
// It is safe for concurrent access and best suited for tests or ephemeral
// runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[core.ChannelID][]Record
	closed  bool
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[core.ChannelID][]Record)}
}

// Append implements Store.
func (s *InMemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.records[rec.ChannelID] = append(s.records[rec.ChannelID], rec)
	return nil
}

// Recent implements Store.
func (s *InMemoryStore) Recent(_ context.Context, channelID core.ChannelID, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	all := s.records[channelID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Record, len(all))
	copy(out, all)
	return out, nil
}

// Close implements Store.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
