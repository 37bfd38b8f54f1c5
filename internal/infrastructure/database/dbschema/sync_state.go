package dbschema

import (
	"time"

	"github.com/janhq/usage-sync/internal/domain/syncstate"
)

// SyncState is the per-provider sync bookkeeping row.
type SyncState struct {
	Provider         string `gorm:"type:varchar(64);primaryKey"`
	LastSyncCursor   *time.Time
	BackfillComplete bool `gorm:"not null;default:false"`
	UpdatedAt        time.Time
}

func (s *SyncState) EtoD() *syncstate.State {
	if s == nil {
		return nil
	}
	state := &syncstate.State{
		Provider:         s.Provider,
		BackfillComplete: s.BackfillComplete,
		UpdatedAt:        s.UpdatedAt.UTC(),
	}
	if s.LastSyncCursor != nil {
		cursor := s.LastSyncCursor.UTC()
		state.LastSyncCursor = &cursor
	}
	return state
}

// IdentityMapping maps a provider identity to an email.
type IdentityMapping struct {
	Provider   string `gorm:"type:varchar(64);primaryKey"`
	ExternalID string `gorm:"type:varchar(256);primaryKey"`
	Email      string `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
