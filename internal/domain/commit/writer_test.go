package commit_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/usage-sync/internal/domain/attribution"
	"github.com/janhq/usage-sync/internal/domain/commit"
	"github.com/janhq/usage-sync/internal/infrastructure/memstore"
	"github.com/janhq/usage-sync/internal/utils/redact"
)

func TestWriter_UpsertsCommitWithPrimaryAttribution(t *testing.T) {
	store := memstore.NewCommitStore()
	w := commit.NewWriter(store, redact.NewSanitizer(redact.LevelHashed, ""), zerolog.Nop())

	msg := "Add parser\n\nCo-Authored-By: Claude Opus 4.5 <noreply@anthropic.com>"
	rec := commit.Record{
		RepoFullName: "acme/api",
		Commit: commit.Commit{
			CommitID:    "abc1234def",
			AuthorEmail: "dev@acme.io",
			CommittedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
			Message:     msg,
			Additions:   10,
			Deletions:   2,
		},
		Attributions: attribution.DetectAll(msg, "dev", "dev@acme.io"),
	}

	stats := w.Write(context.Background(), commit.SourceGitHub, []commit.Record{rec})
	assert.Equal(t, 1, stats.Imported)

	// Re-ingesting refreshes the row instead of duplicating it.
	rec.Commit.Additions = 12
	stats = w.Write(context.Background(), commit.SourceGitHub, []commit.Record{rec})
	assert.Equal(t, 1, stats.Imported)

	commits := store.Commits()
	require.Len(t, commits, 1)
	assert.Equal(t, 12, commits[0].Additions)
	assert.Equal(t, attribution.ToolClaudeCode, commits[0].PrimaryAITool)
	assert.Equal(t, "opus-4.5", commits[0].PrimaryAIModel)

	atts := store.Attributions(commits[0].ID)
	require.Len(t, atts, 1)
	assert.Equal(t, attribution.SourceCoAuthor, atts[0].Source)

	oldest, err := store.OldestCommitDate(context.Background(), commit.SourceGitHub)
	require.NoError(t, err)
	assert.Equal(t, rec.Commit.CommittedAt, *oldest)
}

func TestWriter_SkipsUnresolvedAuthor(t *testing.T) {
	store := memstore.NewCommitStore()
	w := commit.NewWriter(store, nil, zerolog.Nop())

	stats := w.Write(context.Background(), commit.SourceGitHub, []commit.Record{{
		RepoFullName: "acme/api",
		Commit:       commit.Commit{CommitID: "f00", CommittedAt: time.Now()},
	}})

	assert.Zero(t, stats.Imported)
	assert.Equal(t, 1, stats.Skipped)
	assert.Empty(t, store.Commits())
}
