// Package memstore holds mutex-guarded in-memory implementations of the
// storage interfaces. They apply the same dedup semantics as the postgres
// repositories and back the memory storage driver.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/janhq/usage-sync/internal/domain/usage"
)

// UsageStore is an in-memory usage.Repository.
type UsageStore struct {
	mu   sync.RWMutex
	rows map[usage.Key]usage.Record
}

// NewUsageStore creates an empty UsageStore
func NewUsageStore() *UsageStore {
	return &UsageStore{rows: make(map[usage.Key]usage.Record)}
}

func (s *UsageStore) UpsertAggregated(ctx context.Context, record *usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := *record
	rec.Date = usage.Day(rec.Date)
	s.rows[rec.Key()] = rec
	return nil
}

func (s *UsageStore) InsertEvent(ctx context.Context, record *usage.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := *record
	rec.Date = usage.Day(rec.Date)
	key := rec.Key()
	if _, exists := s.rows[key]; exists {
		return false, nil
	}
	s.rows[key] = rec
	return true, nil
}

func (s *UsageStore) PruneAggregated(ctx context.Context, tool string, dates []time.Time, keep []usage.Key) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	days := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		days[usage.Day(d).Format(time.DateOnly)] = struct{}{}
	}
	kept := make(map[usage.Key]struct{}, len(keep))
	for _, k := range keep {
		kept[k] = struct{}{}
	}

	var removed int64
	for key := range s.rows {
		if key.ProviderTool != tool {
			continue
		}
		if _, onDay := days[key.Date]; !onDay {
			continue
		}
		if _, ok := kept[key]; ok {
			continue
		}
		delete(s.rows, key)
		removed++
	}
	return removed, nil
}

func (s *UsageStore) OldestDate(ctx context.Context, tool string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var oldest *time.Time
	for _, rec := range s.rows {
		if rec.ProviderTool != tool {
			continue
		}
		if oldest == nil || rec.Date.Before(*oldest) {
			d := rec.Date
			oldest = &d
		}
	}
	return oldest, nil
}

func (s *UsageStore) LastDataDates(ctx context.Context) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time)
	for _, rec := range s.rows {
		if last, ok := out[rec.ProviderTool]; !ok || rec.Date.After(last) {
			out[rec.ProviderTool] = rec.Date
		}
	}
	return out, nil
}

func (s *UsageStore) DailyTotals(ctx context.Context, from, to time.Time) ([]usage.DailyTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to = usage.Day(from), usage.Day(to)
	type bucket struct {
		date time.Time
		tool string
	}
	sums := make(map[bucket]*usage.DailyTotal)
	for _, rec := range s.rows {
		if rec.Date.Before(from) || rec.Date.After(to) {
			continue
		}
		b := bucket{date: rec.Date, tool: rec.ProviderTool}
		t, ok := sums[b]
		if !ok {
			t = &usage.DailyTotal{Date: rec.Date, ProviderTool: rec.ProviderTool}
			sums[b] = t
		}
		t.InputTokens += rec.InputTokens
		t.CacheWriteTokens += rec.CacheWriteTokens
		t.CacheReadTokens += rec.CacheReadTokens
		t.OutputTokens += rec.OutputTokens
		t.CostUSD = t.CostUSD.Add(rec.CostUSD)
	}

	out := make([]usage.DailyTotal, 0, len(sums))
	for _, t := range sums {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ProviderTool < out[j].ProviderTool
	})
	return out, nil
}

// Records returns a copy of every stored row, ordered by key.
func (s *UsageStore) Records() []usage.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]usage.Record, 0, len(s.rows))
	for _, rec := range s.rows {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}
