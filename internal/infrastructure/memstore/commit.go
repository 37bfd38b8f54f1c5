package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/janhq/usage-sync/internal/domain/attribution"
	"github.com/janhq/usage-sync/internal/domain/commit"
)

type commitKey struct {
	repoID   int64
	commitID string
}

// CommitStore is an in-memory commit.Store.
type CommitStore struct {
	mu           sync.RWMutex
	nextID       int64
	repos        map[string]*commit.Repository
	repoSource   map[int64]string
	commits      map[commitKey]*commit.Commit
	attributions map[int64]map[string]attribution.Attribution
}

// NewCommitStore creates an empty CommitStore
func NewCommitStore() *CommitStore {
	return &CommitStore{
		repos:        make(map[string]*commit.Repository),
		repoSource:   make(map[int64]string),
		commits:      make(map[commitKey]*commit.Commit),
		attributions: make(map[int64]map[string]attribution.Attribution),
	}
}

func (s *CommitStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *CommitStore) EnsureRepository(ctx context.Context, source, fullName string) (*commit.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := source + "/" + fullName
	if repo, ok := s.repos[key]; ok {
		cp := *repo
		return &cp, nil
	}
	repo := &commit.Repository{ID: s.id(), Source: source, FullName: fullName, CreatedAt: time.Now().UTC()}
	s.repos[key] = repo
	s.repoSource[repo.ID] = source
	cp := *repo
	return &cp, nil
}

func (s *CommitStore) UpsertCommit(ctx context.Context, c *commit.Commit) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := commitKey{repoID: c.RepoID, commitID: c.CommitID}
	if existing, ok := s.commits[key]; ok {
		existing.Message = c.Message
		existing.Additions = c.Additions
		existing.Deletions = c.Deletions
		existing.PrimaryAITool = c.PrimaryAITool
		existing.PrimaryAIModel = c.PrimaryAIModel
		return existing.ID, nil
	}
	cp := *c
	cp.ID = s.id()
	s.commits[key] = &cp
	return cp.ID, nil
}

func (s *CommitStore) UpsertAttributions(ctx context.Context, commitRowID int64, attributions []attribution.Attribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTool, ok := s.attributions[commitRowID]
	if !ok {
		byTool = make(map[string]attribution.Attribution)
		s.attributions[commitRowID] = byTool
	}
	for _, a := range attributions {
		byTool[a.Tool] = a
	}
	return nil
}

func (s *CommitStore) OldestCommitDate(ctx context.Context, source string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var oldest *time.Time
	for key, c := range s.commits {
		if s.repoSource[key.repoID] != source {
			continue
		}
		if oldest == nil || c.CommittedAt.Before(*oldest) {
			t := c.CommittedAt
			oldest = &t
		}
	}
	return oldest, nil
}

// Commits returns copies of every stored commit.
func (s *CommitStore) Commits() []commit.Commit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]commit.Commit, 0, len(s.commits))
	for _, c := range s.commits {
		out = append(out, *c)
	}
	return out
}

// Attributions returns the attributions stored for a commit row.
func (s *CommitStore) Attributions(commitRowID int64) []attribution.Attribution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]attribution.Attribution, 0, len(s.attributions[commitRowID]))
	for _, a := range s.attributions[commitRowID] {
		out = append(out, a)
	}
	return out
}
