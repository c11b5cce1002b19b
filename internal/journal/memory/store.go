package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sujalmh/vector-loader-automation/internal/journal"
)

// Store is an in-memory implementation of journal.Journal
type Store struct {
	mu      sync.RWMutex
	entries map[string][]*journal.Entry
	ids     map[string]struct{}
	closed  bool
}

var _ journal.Journal = (*Store)(nil)

// New creates a new in-memory journal
func New() *Store {
	return &Store{
		entries: make(map[string][]*journal.Entry),
		ids:     make(map[string]struct{}),
	}
}

func (s *Store) Append(ctx context.Context, entry *journal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("journal closed")
	}
	if _, exists := s.ids[entry.ID]; exists {
		return fmt.Errorf("entry %s already exists", entry.ID)
	}

	cp := *entry
	s.entries[entry.PassID] = append(s.entries[entry.PassID], &cp)
	s.ids[entry.ID] = struct{}{}
	return nil
}

func (s *Store) List(ctx context.Context, passID string) ([]*journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.entries[passID]
	result := make([]*journal.Entry, 0, len(stored))
	for _, e := range stored {
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.entries = make(map[string][]*journal.Entry)
	s.ids = make(map[string]struct{})
	return nil
}
