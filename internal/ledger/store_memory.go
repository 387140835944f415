package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ndaflow/pkg/platform/sentinel"
)

// InMemoryStore keeps ledger entries in memory for tests and dev runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewInMemoryStore constructs an empty in-memory ledger.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*Entry)}
}

func (s *InMemoryStore) Seen(_ context.Context, messageID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.entries[messageID]; ok {
		copied := *entry
		return &copied, nil
	}
	return nil, fmt.Errorf("ledger entry %s: %w", messageID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.MessageID] = &entry
	return nil
}

func (s *InMemoryStore) MarkResponseSent(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[messageID]
	if !ok {
		return fmt.Errorf("ledger entry %s: %w", messageID, sentinel.ErrNotFound)
	}
	entry.ResponseSent = true
	return nil
}

func (s *InMemoryStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ProcessedAt.After(entries[j].ProcessedAt) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
