package ingest

import (
	"context"
	"time"

	"github.com/janhq/usage-sync/internal/domain/commit"
	"github.com/janhq/usage-sync/internal/domain/usage"
)

// UsageSink writes usage records of one provider tool.
type UsageSink struct {
	writer *usage.Writer
	repo   usage.Repository
	tool   string
	regime usage.Regime
}

// NewUsageSink creates a sink for tool under regime.
func NewUsageSink(writer *usage.Writer, repo usage.Repository, tool string, regime usage.Regime) *UsageSink {
	return &UsageSink{writer: writer, repo: repo, tool: tool, regime: regime}
}

func (s *UsageSink) Write(ctx context.Context, items []usage.Record) WriteStats {
	st := s.writer.Write(ctx, s.regime, items)
	return WriteStats{Imported: st.Imported, Skipped: st.Skipped, Errors: st.Errors}
}

func (s *UsageSink) Oldest(ctx context.Context) (*time.Time, error) {
	return s.repo.OldestDate(ctx, s.tool)
}

// Complete prunes aggregated rows on fully covered days that the upstream
// no longer reports. Partially covered days are left untouched.
func (s *UsageSink) Complete(ctx context.Context, window Window, items []usage.Record) error {
	if s.regime != usage.RegimeAggregated {
		return nil
	}
	from := Day(window.Start)
	if !from.Equal(window.Start) {
		from = from.AddDate(0, 0, 1)
	}
	to := Day(window.End)
	if !from.Before(to) {
		return nil
	}
	_, err := s.writer.Prune(ctx, s.tool, items, from, to)
	return err
}

// CommitSink writes commit records of one commit host.
type CommitSink struct {
	writer *commit.Writer
	store  commit.Store
	source string
}

// NewCommitSink creates a sink for source.
func NewCommitSink(writer *commit.Writer, store commit.Store, source string) *CommitSink {
	return &CommitSink{writer: writer, store: store, source: source}
}

func (s *CommitSink) Write(ctx context.Context, items []commit.Record) WriteStats {
	st := s.writer.Write(ctx, s.source, items)
	return WriteStats{Imported: st.Imported, Skipped: st.Skipped, Errors: st.Errors}
}

func (s *CommitSink) Oldest(ctx context.Context) (*time.Time, error) {
	return s.store.OldestCommitDate(ctx, s.source)
}

func (s *CommitSink) Complete(context.Context, Window, []commit.Record) error {
	return nil
}
