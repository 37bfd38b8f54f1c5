package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/janhq/usage-sync/internal/domain/syncstate"
)

// SyncStateStore is an in-memory syncstate.Repository.
type SyncStateStore struct {
	mu     sync.RWMutex
	states map[string]syncstate.State
}

// NewSyncStateStore creates an empty SyncStateStore
func NewSyncStateStore() *SyncStateStore {
	return &SyncStateStore{states: make(map[string]syncstate.State)}
}

func (s *SyncStateStore) Get(ctx context.Context, provider string) (*syncstate.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[provider]
	if !ok {
		return &syncstate.State{Provider: provider}, nil
	}
	if st.LastSyncCursor != nil {
		c := *st.LastSyncCursor
		st.LastSyncCursor = &c
	}
	return &st, nil
}

func (s *SyncStateStore) SaveCursor(ctx context.Context, provider string, cursor time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[provider]
	st.Provider = provider
	c := cursor.UTC()
	st.LastSyncCursor = &c
	st.UpdatedAt = time.Now().UTC()
	s.states[provider] = st
	return nil
}

func (s *SyncStateStore) SetBackfillComplete(ctx context.Context, provider string, complete bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[provider]
	st.Provider = provider
	st.BackfillComplete = complete
	st.UpdatedAt = time.Now().UTC()
	s.states[provider] = st
	return nil
}

func (s *SyncStateStore) List(ctx context.Context) ([]syncstate.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]syncstate.State, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}
