package syncstate

import (
	"context"
	"time"
)

// State is the persisted sync bookkeeping of one provider. The backfill
// frontier is deliberately absent: it is always derived from stored data.
type State struct {
	Provider         string
	LastSyncCursor   *time.Time
	BackfillComplete bool
	UpdatedAt        time.Time
}

// Phase is the backfill state machine position.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseInProgress Phase = "in_progress"
	PhaseComplete   Phase = "complete"
)

// BackfillPhase derives the phase from the stored flag and the derived
// oldest date (nil when no data has been stored yet).
func (s State) BackfillPhase(oldest *time.Time) Phase {
	switch {
	case s.BackfillComplete:
		return PhaseComplete
	case oldest == nil:
		return PhaseNotStarted
	default:
		return PhaseInProgress
	}
}

// Repository persists sync state keyed by provider id.
type Repository interface {
	// Get returns the stored state, or a zero state for an unknown provider.
	Get(ctx context.Context, provider string) (*State, error)
	SaveCursor(ctx context.Context, provider string, cursor time.Time) error
	SetBackfillComplete(ctx context.Context, provider string, complete bool) error
	List(ctx context.Context) ([]State, error)
}
