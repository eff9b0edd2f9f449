package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-go-golems/branchat/pkg/conversation"
)

type memoryEntry struct {
	state     *conversation.State
	updatedAt time.Time
}

// InMemoryStore is a thread-safe Store. States are cloned on the way in and out.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
	closed  bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: map[string]memoryEntry{},
		now:     time.Now,
	}
}

func (s *InMemoryStore) Load(_ context.Context, id string) (*conversation.State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, false, err
	}
	e, ok := s.entries[id]
	if !ok {
		return nil, false, nil
	}
	return e.state.Clone(), true, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		e := s.entries[id]
		out = append(out, summarize(id, e.state, e.updatedAt))
	}
	return out, nil
}

func (s *InMemoryStore) Save(_ context.Context, id string, state *conversation.State) error {
	if err := ValidateConversationID(id); err != nil {
		return err
	}
	if state == nil {
		state = conversation.NewState()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.put(id, state.Clone(), s.now())
	return nil
}

func (s *InMemoryStore) put(id string, state *conversation.State, updatedAt time.Time) {
	s.entries[id] = memoryEntry{state: state, updatedAt: updatedAt}
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if _, ok := s.entries[id]; !ok {
		return ErrConversationNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *InMemoryStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

var _ Store = (*InMemoryStore)(nil)
