package syncstaterepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/janhq/usage-sync/internal/domain/syncstate"
	"github.com/janhq/usage-sync/internal/infrastructure/database"
	"github.com/janhq/usage-sync/internal/infrastructure/database/dbschema"
)

type SyncStateGormRepository struct {
	db *gorm.DB
}

var _ syncstate.Repository = (*SyncStateGormRepository)(nil)

func NewSyncStateGormRepository(db *gorm.DB) syncstate.Repository {
	return &SyncStateGormRepository{db: db}
}

func (r *SyncStateGormRepository) Get(ctx context.Context, provider string) (*syncstate.State, error) {
	var model dbschema.SyncState
	if err := r.db.WithContext(ctx).First(&model, "provider = ?", provider).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &syncstate.State{Provider: provider}, nil
		}
		return nil, database.AsRepositoryError(ctx, err, "failed to fetch sync state")
	}
	return model.EtoD(), nil
}

func (r *SyncStateGormRepository) SaveCursor(ctx context.Context, provider string, cursor time.Time) error {
	cursor = cursor.UTC()
	model := &dbschema.SyncState{Provider: provider, LastSyncCursor: &cursor, UpdatedAt: time.Now().UTC()}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_sync_cursor", "updated_at"}),
		}).
		Create(model).Error; err != nil {
		return database.AsRepositoryError(ctx, err, "failed to save sync cursor")
	}
	return nil
}

func (r *SyncStateGormRepository) SetBackfillComplete(ctx context.Context, provider string, complete bool) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}},
			DoUpdates: clause.Assignments(map[string]any{"backfill_complete": complete, "updated_at": now}),
		}).
		Create(&dbschema.SyncState{Provider: provider, BackfillComplete: complete, UpdatedAt: now}).Error
	if err != nil {
		return database.AsRepositoryError(ctx, err, "failed to save backfill flag")
	}
	return nil
}

func (r *SyncStateGormRepository) List(ctx context.Context) ([]syncstate.State, error) {
	var models []dbschema.SyncState
	if err := r.db.WithContext(ctx).Order("provider").Find(&models).Error; err != nil {
		return nil, database.AsRepositoryError(ctx, err, "failed to list sync state")
	}
	out := make([]syncstate.State, 0, len(models))
	for i := range models {
		out = append(out, *models[i].EtoD())
	}
	return out, nil
}
