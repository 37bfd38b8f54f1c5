package usage

import (
	"context"
	"time"
)

// Repository defines the interface for usage data access
type Repository interface {
	// UpsertAggregated inserts the record or replaces the numeric fields of
	// the row sharing its dedup key.
	UpsertAggregated(ctx context.Context, record *Record) error

	// InsertEvent inserts the record unless its dedup key already exists.
	// inserted is false for a re-delivered event.
	InsertEvent(ctx context.Context, record *Record) (inserted bool, err error)

	// PruneAggregated deletes rows of tool on the given dates whose key is not in keep.
	PruneAggregated(ctx context.Context, tool string, dates []time.Time, keep []Key) (int64, error)

	// OldestDate returns the earliest date stored for tool, or nil when none.
	OldestDate(ctx context.Context, tool string) (*time.Time, error)

	// LastDataDates returns the most recent date stored per tool.
	LastDataDates(ctx context.Context) (map[string]time.Time, error)

	// DailyTotals returns per-day, per-tool sums for dates in [from, to].
	DailyTotals(ctx context.Context, from, to time.Time) ([]DailyTotal, error)
}
