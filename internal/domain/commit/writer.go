package commit

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/janhq/usage-sync/internal/domain/attribution"
	"github.com/janhq/usage-sync/internal/utils/platformerrors"
	"github.com/janhq/usage-sync/internal/utils/redact"
)

// Record is one normalized commit as produced by a commit-host client.
type Record struct {
	RepoFullName string
	Commit       Commit
	Attributions []attribution.Attribution
}

// WriteStats summarizes one batch handed to the Writer.
type WriteStats struct {
	Imported int
	Skipped  int
	Errors   []string
}

// Writer upserts commits and their attributions.
type Writer struct {
	store     Store
	sanitizer *redact.Sanitizer
	log       zerolog.Logger

	mu    sync.Mutex
	repos map[string]int64
}

// NewWriter creates a commit Writer
func NewWriter(store Store, sanitizer *redact.Sanitizer, log zerolog.Logger) *Writer {
	return &Writer{
		store:     store,
		sanitizer: sanitizer,
		log:       log.With().Str("component", "commit-writer").Logger(),
		repos:     make(map[string]int64),
	}
}

// Write persists records for source. Single-record failures are logged and
// counted as skipped; the rest of the batch continues.
func (w *Writer) Write(ctx context.Context, source string, records []Record) WriteStats {
	var stats WriteStats
	for i := range records {
		rec := records[i]
		if rec.Commit.AuthorEmail == "" {
			stats.Skipped++
			w.log.Debug().
				Str("error_type", string(platformerrors.ErrorTypeIdentityUnresolved)).
				Str("repo", rec.RepoFullName).
				Str("commit", rec.Commit.CommitID).
				Msg("skipping commit without resolvable author email")
			continue
		}

		repoID, err := w.repoID(ctx, source, rec.RepoFullName)
		if err != nil {
			w.insertFailed(ctx, &stats, rec, err)
			continue
		}

		c := rec.Commit
		c.RepoID = repoID
		if primary, ok := attribution.Primary(rec.Attributions); ok && c.PrimaryAITool == "" {
			c.PrimaryAITool = primary.Tool
			c.PrimaryAIModel = primary.Model
		}

		rowID, err := w.store.UpsertCommit(ctx, &c)
		if err != nil {
			w.insertFailed(ctx, &stats, rec, err)
			continue
		}
		if len(rec.Attributions) > 0 {
			if err := w.store.UpsertAttributions(ctx, rowID, rec.Attributions); err != nil {
				w.insertFailed(ctx, &stats, rec, err)
				continue
			}
		}
		stats.Imported++
	}
	return stats
}

func (w *Writer) repoID(ctx context.Context, source, fullName string) (int64, error) {
	cacheKey := source + "/" + fullName
	w.mu.Lock()
	id, ok := w.repos[cacheKey]
	w.mu.Unlock()
	if ok {
		return id, nil
	}

	repo, err := w.store.EnsureRepository(ctx, source, fullName)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	w.repos[cacheKey] = repo.ID
	w.mu.Unlock()
	return repo.ID, nil
}

func (w *Writer) insertFailed(ctx context.Context, stats *WriteStats, rec Record, err error) {
	stats.Skipped++
	perr := platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInsert,
		"commit insert failed", err, "", map[string]any{
			"repo":   rec.RepoFullName,
			"commit": rec.Commit.CommitID,
			"author": w.sanitizer.Identity(rec.Commit.AuthorEmail),
		})
	platformerrors.LogError(w.log, perr)
	stats.Errors = append(stats.Errors, fmt.Sprintf("insert %s@%s: %v", rec.RepoFullName, shortSHA(rec.Commit.CommitID), err))
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
