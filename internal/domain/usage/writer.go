package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/janhq/usage-sync/internal/utils/platformerrors"
	"github.com/janhq/usage-sync/internal/utils/redact"
)

// Aggregate sums records that share a dedup key. Providers that report one
// row per sub-identity (several API keys of one user) collapse into a single
// row per (date, identity, tool, raw model) here; writing them one by one
// under the aggregated regime would keep only the last sub-identity.
// Output order follows the first occurrence of each key.
func Aggregate(records []Record) []Record {
	index := make(map[Key]int, len(records))
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		key := rec.Key()
		if i, ok := index[key]; ok {
			acc := &out[i]
			acc.InputTokens += rec.InputTokens
			acc.CacheWriteTokens += rec.CacheWriteTokens
			acc.CacheReadTokens += rec.CacheReadTokens
			acc.OutputTokens += rec.OutputTokens
			acc.CostUSD = acc.CostUSD.Add(rec.CostUSD)
			if acc.ModelName == "" {
				acc.ModelName = rec.ModelName
			}
			continue
		}
		index[key] = len(out)
		rec.Date = Day(rec.Date)
		out = append(out, rec)
	}
	return out
}

// Writer is the record upsert layer. It applies the regime's write
// semantics one record at a time so a single failure never aborts a batch.
type Writer struct {
	repo      Repository
	sanitizer *redact.Sanitizer
	log       zerolog.Logger
}

// NewWriter creates a Writer over repo
func NewWriter(repo Repository, sanitizer *redact.Sanitizer, log zerolog.Logger) *Writer {
	return &Writer{
		repo:      repo,
		sanitizer: sanitizer,
		log:       log.With().Str("component", "usage-writer").Logger(),
	}
}

// Write persists records under the given regime.
func (w *Writer) Write(ctx context.Context, regime Regime, records []Record) WriteStats {
	var stats WriteStats
	if regime == RegimeAggregated {
		records = Aggregate(records)
	}

	for i := range records {
		rec := &records[i]
		if rec.Identity == "" {
			stats.Skipped++
			w.log.Debug().
				Str("error_type", string(platformerrors.ErrorTypeIdentityUnresolved)).
				Str("tool", rec.ProviderTool).
				Str("model", rec.RawModelName).
				Msg("skipping usage record without identity")
			continue
		}
		rec.Date = Day(rec.Date)
		if rec.ModelName == "" {
			rec.ModelName = NormalizeModelName(rec.RawModelName)
		}

		switch regime {
		case RegimeAggregated:
			if err := w.repo.UpsertAggregated(ctx, rec); err != nil {
				w.insertFailed(ctx, &stats, rec, err)
				continue
			}
			stats.Imported++
		case RegimePerEvent:
			inserted, err := w.repo.InsertEvent(ctx, rec)
			if err != nil {
				w.insertFailed(ctx, &stats, rec, err)
				continue
			}
			if inserted {
				stats.Imported++
			} else {
				stats.Skipped++
			}
		default:
			stats.Skipped++
			stats.Errors = append(stats.Errors, fmt.Sprintf("unknown regime %q", regime))
		}
	}
	return stats
}

// Prune removes aggregated rows for dates that were fully re-synced but whose
// key the upstream no longer reports.
func (w *Writer) Prune(ctx context.Context, tool string, records []Record, from, to time.Time) (int64, error) {
	keep := make([]Key, 0, len(records))
	for _, rec := range Aggregate(records) {
		keep = append(keep, rec.Key())
	}
	var dates []time.Time
	for d := Day(from); d.Before(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	if len(dates) == 0 {
		return 0, nil
	}
	removed, err := w.repo.PruneAggregated(ctx, tool, dates, keep)
	if err != nil {
		return 0, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "prune aggregated usage")
	}
	if removed > 0 {
		w.log.Info().Str("tool", tool).Int64("removed", removed).Msg("removed stale aggregated usage rows")
	}
	return removed, nil
}

func (w *Writer) insertFailed(ctx context.Context, stats *WriteStats, rec *Record, err error) {
	stats.Skipped++
	perr := platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInsert,
		"usage insert failed", err, "", map[string]any{
			"tool":     rec.ProviderTool,
			"date":     rec.Date.Format(dateLayout),
			"identity": w.sanitizer.Identity(rec.Identity),
			"model":    rec.RawModelName,
		})
	platformerrors.LogError(w.log, perr)
	stats.Errors = append(stats.Errors, fmt.Sprintf("insert %s/%s: %v", rec.Date.Format(dateLayout), rec.RawModelName, err))
}
