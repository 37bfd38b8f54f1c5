package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Syncer is the provider-agnostic face of an Engine.
type Syncer interface {
	ID() string
	SyncForward(ctx context.Context) (*Result, error)
	Backfill(ctx context.Context, target time.Time) (*Result, error)
	ResetBackfillComplete(ctx context.Context) error
	Status(ctx context.Context) (*Status, error)
}

// Service dispatches operations to registered syncers by provider id.
type Service struct {
	syncers map[string]Syncer
	order   []string
}

// NewService registers syncers. Later duplicates replace earlier ones.
func NewService(syncers ...Syncer) *Service {
	s := &Service{syncers: make(map[string]Syncer)}
	for _, sy := range syncers {
		if sy == nil {
			continue
		}
		if _, exists := s.syncers[sy.ID()]; !exists {
			s.order = append(s.order, sy.ID())
		}
		s.syncers[sy.ID()] = sy
	}
	sort.Strings(s.order)
	return s
}

// Providers returns the registered provider ids in sorted order.
func (s *Service) Providers() []string {
	return append([]string(nil), s.order...)
}

func (s *Service) get(provider string) (Syncer, error) {
	sy, ok := s.syncers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	return sy, nil
}

// SyncForward runs a forward sync for provider.
func (s *Service) SyncForward(ctx context.Context, provider string) (*Result, error) {
	sy, err := s.get(provider)
	if err != nil {
		return nil, err
	}
	return sy.SyncForward(ctx)
}

// Backfill runs a backfill for provider down to target.
func (s *Service) Backfill(ctx context.Context, provider string, target time.Time) (*Result, error) {
	sy, err := s.get(provider)
	if err != nil {
		return nil, err
	}
	return sy.Backfill(ctx, target)
}

// ResetBackfillComplete clears the completion flag of provider.
func (s *Service) ResetBackfillComplete(ctx context.Context, provider string) error {
	sy, err := s.get(provider)
	if err != nil {
		return err
	}
	return sy.ResetBackfillComplete(ctx)
}

// Status returns the status of every registered provider.
func (s *Service) Status(ctx context.Context) ([]*Status, error) {
	out := make([]*Status, 0, len(s.order))
	for _, id := range s.order {
		st, err := s.syncers[id].Status(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// SyncAll runs a forward sync for every provider concurrently. Each
// provider's outcome is reported in its Result; a provider failing does not
// stop the others. Results are ordered by provider id.
func (s *Service) SyncAll(ctx context.Context) []*Result {
	return s.runAll(ctx, func(ctx context.Context, sy Syncer) (*Result, error) {
		return sy.SyncForward(ctx)
	})
}

// BackfillAll runs a backfill for every provider concurrently.
func (s *Service) BackfillAll(ctx context.Context, target time.Time) []*Result {
	return s.runAll(ctx, func(ctx context.Context, sy Syncer) (*Result, error) {
		return sy.Backfill(ctx, target)
	})
}

func (s *Service) runAll(ctx context.Context, run func(context.Context, Syncer) (*Result, error)) []*Result {
	results := make([]*Result, len(s.order))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range s.order {
		i, sy := i, s.syncers[id]
		g.Go(func() error {
			res, err := run(gctx, sy)
			if res == nil {
				res = &Result{Provider: sy.ID(), Errors: []string{}}
			}
			if err != nil && len(res.Errors) == 0 {
				res.Errors = append(res.Errors, err.Error())
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
