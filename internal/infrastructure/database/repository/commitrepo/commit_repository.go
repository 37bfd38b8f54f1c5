package commitrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/janhq/usage-sync/internal/domain/attribution"
	"github.com/janhq/usage-sync/internal/domain/commit"
	"github.com/janhq/usage-sync/internal/infrastructure/database"
	"github.com/janhq/usage-sync/internal/infrastructure/database/dbschema"
)

type CommitGormRepository struct {
	db *gorm.DB
}

var _ commit.Store = (*CommitGormRepository)(nil)

func NewCommitGormRepository(db *gorm.DB) commit.Store {
	return &CommitGormRepository{db: db}
}

func (r *CommitGormRepository) EnsureRepository(ctx context.Context, source, fullName string) (*commit.Repository, error) {
	model := &dbschema.Repository{Source: source, FullName: fullName}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}, {Name: "full_name"}},
			DoNothing: true,
		}).
		Create(model).Error; err != nil {
		return nil, database.AsRepositoryError(ctx, err, "failed to create repository")
	}
	if model.ID != 0 {
		return model.EtoD(), nil
	}

	var existing dbschema.Repository
	if err := r.db.WithContext(ctx).
		Where("source = ? AND full_name = ?", source, fullName).
		First(&existing).Error; err != nil {
		return nil, database.AsRepositoryError(ctx, err, "failed to fetch repository")
	}
	return existing.EtoD(), nil
}

func (r *CommitGormRepository) UpsertCommit(ctx context.Context, c *commit.Commit) (int64, error) {
	model := dbschema.NewCommit(c)
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "repo_id"}, {Name: "commit_id"}},
			DoUpdates: clause.AssignmentColumns(dbschema.CommitRefreshColumns),
		}).
		Create(model).Error; err != nil {
		return 0, database.AsRepositoryError(ctx, err, "failed to upsert commit")
	}
	if model.ID == 0 {
		return 0, database.AsRepositoryError(ctx, errors.New("no row id returned"), "failed to upsert commit")
	}
	return model.ID, nil
}

func (r *CommitGormRepository) UpsertAttributions(ctx context.Context, commitRowID int64, attributions []attribution.Attribution) error {
	if len(attributions) == 0 {
		return nil
	}
	rows := make([]dbschema.CommitAttribution, 0, len(attributions))
	for _, a := range attributions {
		rows = append(rows, dbschema.NewCommitAttribution(commitRowID, a))
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "commit_id"}, {Name: "ai_tool"}},
			DoUpdates: clause.AssignmentColumns([]string{"ai_model", "source", "confidence"}),
		}).
		Create(&rows).Error; err != nil {
		return database.AsRepositoryError(ctx, err, "failed to upsert commit attributions")
	}
	return nil
}

func (r *CommitGormRepository) OldestCommitDate(ctx context.Context, source string) (*time.Time, error) {
	var oldest sql.NullTime
	err := r.db.WithContext(ctx).
		Model(&dbschema.Commit{}).
		Select("MIN(" + database.SchemaName + ".commits.committed_at)").
		Joins("JOIN " + database.SchemaName + ".repositories ON " + database.SchemaName + ".repositories.id = " + database.SchemaName + ".commits.repo_id").
		Where(database.SchemaName+".repositories.source = ?", source).
		Row().
		Scan(&oldest)
	if err != nil {
		return nil, database.AsRepositoryError(ctx, err, "failed to fetch oldest commit date")
	}
	if !oldest.Valid {
		return nil, nil
	}
	t := oldest.Time.UTC()
	return &t, nil
}

// ListAttributions returns the attributions stored for a commit row.
func (r *CommitGormRepository) ListAttributions(ctx context.Context, commitRowID int64) ([]attribution.Attribution, error) {
	var rows []dbschema.CommitAttribution
	if err := r.db.WithContext(ctx).
		Where("commit_id = ?", commitRowID).
		Order("ai_tool").
		Find(&rows).Error; err != nil {
		return nil, database.AsRepositoryError(ctx, err, "failed to list commit attributions")
	}
	out := make([]attribution.Attribution, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].EtoD())
	}
	return out, nil
}
