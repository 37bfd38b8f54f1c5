package dbschema

import (
	"time"

	"github.com/janhq/usage-sync/internal/domain/attribution"
	"github.com/janhq/usage-sync/internal/domain/commit"
)

// Repository is a tracked source repository.
type Repository struct {
	ID        int64  `gorm:"primaryKey"`
	Source    string `gorm:"type:varchar(32);not null"`
	FullName  string `gorm:"type:varchar(512);not null"`
	CreatedAt time.Time
}

func (r *Repository) EtoD() *commit.Repository {
	if r == nil {
		return nil
	}
	return &commit.Repository{ID: r.ID, Source: r.Source, FullName: r.FullName, CreatedAt: r.CreatedAt}
}

// Commit is one persisted non-merge commit.
type Commit struct {
	ID             int64     `gorm:"primaryKey"`
	RepoID         int64     `gorm:"not null"`
	CommitID       string    `gorm:"type:varchar(64);not null"`
	AuthorEmail    string    `gorm:"not null"`
	AuthorID       string    `gorm:"type:varchar(64);not null;default:''"`
	CommittedAt    time.Time `gorm:"not null"`
	Message        string    `gorm:"not null;default:''"`
	Additions      int       `gorm:"not null;default:0"`
	Deletions      int       `gorm:"not null;default:0"`
	PrimaryAITool  string    `gorm:"column:primary_ai_tool;type:varchar(64);not null;default:''"`
	PrimaryAIModel string    `gorm:"column:primary_ai_model;type:varchar(128);not null;default:''"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CommitRefreshColumns are updated when a commit is ingested again.
var CommitRefreshColumns = []string{"author_email", "author_id", "message", "additions", "deletions", "primary_ai_tool", "primary_ai_model", "updated_at"}

func (c *Commit) EtoD() *commit.Commit {
	if c == nil {
		return nil
	}
	return &commit.Commit{
		ID:             c.ID,
		RepoID:         c.RepoID,
		CommitID:       c.CommitID,
		AuthorEmail:    c.AuthorEmail,
		AuthorID:       c.AuthorID,
		CommittedAt:    c.CommittedAt.UTC(),
		Message:        c.Message,
		Additions:      c.Additions,
		Deletions:      c.Deletions,
		PrimaryAITool:  c.PrimaryAITool,
		PrimaryAIModel: c.PrimaryAIModel,
	}
}

// NewCommit converts domain model to schema representation.
func NewCommit(c *commit.Commit) *Commit {
	if c == nil {
		return nil
	}
	return &Commit{
		RepoID:         c.RepoID,
		CommitID:       c.CommitID,
		AuthorEmail:    c.AuthorEmail,
		AuthorID:       c.AuthorID,
		CommittedAt:    c.CommittedAt.UTC(),
		Message:        c.Message,
		Additions:      c.Additions,
		Deletions:      c.Deletions,
		PrimaryAITool:  c.PrimaryAITool,
		PrimaryAIModel: c.PrimaryAIModel,
	}
}

// CommitAttribution links a commit to one AI tool.
type CommitAttribution struct {
	ID         int64  `gorm:"primaryKey"`
	CommitID   int64  `gorm:"not null"`
	AITool     string `gorm:"column:ai_tool;type:varchar(64);not null"`
	AIModel    string `gorm:"column:ai_model;type:varchar(128);not null;default:''"`
	Source     string `gorm:"type:varchar(32);not null"`
	Confidence string `gorm:"type:varchar(16);not null"`
	CreatedAt  time.Time
}

func NewCommitAttribution(commitRowID int64, a attribution.Attribution) CommitAttribution {
	return CommitAttribution{
		CommitID:   commitRowID,
		AITool:     a.Tool,
		AIModel:    a.Model,
		Source:     string(a.Source),
		Confidence: string(a.Confidence),
	}
}

func (a *CommitAttribution) EtoD() attribution.Attribution {
	return attribution.Attribution{
		Tool:       a.AITool,
		Model:      a.AIModel,
		Source:     attribution.Source(a.Source),
		Confidence: attribution.Confidence(a.Confidence),
	}
}
