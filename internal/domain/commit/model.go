package commit

import (
	"context"
	"time"

	"github.com/janhq/usage-sync/internal/domain/attribution"
)

// Source identifies the commit host a repository lives on.
const SourceGitHub = "github"

// Repository is a tracked source repository.
type Repository struct {
	ID        int64
	Source    string
	FullName  string
	CreatedAt time.Time
}

// Commit is one non-merge commit with line stats and its primary AI tool.
type Commit struct {
	ID             int64
	RepoID         int64
	CommitID       string
	AuthorEmail    string
	AuthorID       string
	CommittedAt    time.Time
	Message        string
	Additions      int
	Deletions      int
	PrimaryAITool  string
	PrimaryAIModel string
}

// Store persists repositories, commits and attributions.
type Store interface {
	// EnsureRepository returns the repository row, creating it on first encounter.
	EnsureRepository(ctx context.Context, source, fullName string) (*Repository, error)

	// UpsertCommit inserts the commit or refreshes stats, message and primary
	// attribution of the existing (repo_id, commit_id) row. It returns the row id.
	UpsertCommit(ctx context.Context, c *Commit) (int64, error)

	// UpsertAttributions writes one row per tool for the commit.
	UpsertAttributions(ctx context.Context, commitRowID int64, attributions []attribution.Attribution) error

	// OldestCommitDate returns the earliest committed_at for the source, or nil.
	OldestCommitDate(ctx context.Context, source string) (*time.Time, error)
}
