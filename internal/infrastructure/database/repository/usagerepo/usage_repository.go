package usagerepo

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/janhq/usage-sync/internal/domain/usage"
	"github.com/janhq/usage-sync/internal/infrastructure/database"
	"github.com/janhq/usage-sync/internal/infrastructure/database/dbschema"
)

type UsageGormRepository struct {
	db *gorm.DB
}

var _ usage.Repository = (*UsageGormRepository)(nil)

func NewUsageGormRepository(db *gorm.DB) usage.Repository {
	return &UsageGormRepository{db: db}
}

func dedupColumns() []clause.Column {
	cols := make([]clause.Column, 0, len(dbschema.UsageDedupColumns))
	for _, name := range dbschema.UsageDedupColumns {
		cols = append(cols, clause.Column{Name: name})
	}
	return cols
}

func (r *UsageGormRepository) UpsertAggregated(ctx context.Context, record *usage.Record) error {
	model := dbschema.NewUsageRecord(record)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   dedupColumns(),
			DoUpdates: clause.AssignmentColumns(dbschema.UsageValueColumns),
		}).
		Create(model).Error
	if err != nil {
		return database.AsRepositoryError(ctx, err, "failed to upsert usage record")
	}
	return nil
}

func (r *UsageGormRepository) InsertEvent(ctx context.Context, record *usage.Record) (bool, error) {
	model := dbschema.NewUsageRecord(record)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: dedupColumns(), DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return false, database.AsRepositoryError(ctx, result.Error, "failed to insert usage event")
	}
	return result.RowsAffected > 0, nil
}

func (r *UsageGormRepository) PruneAggregated(ctx context.Context, tool string, dates []time.Time, keep []usage.Key) (int64, error) {
	if len(dates) == 0 {
		return 0, nil
	}
	days := make([]string, 0, len(dates))
	for _, d := range dates {
		days = append(days, usage.Day(d).Format(time.DateOnly))
	}

	var rows []dbschema.UsageRecord
	if err := r.db.WithContext(ctx).
		Select(append([]string{"id"}, dbschema.UsageDedupColumns...)).
		Where("provider_tool = ? AND date IN ?", tool, days).
		Find(&rows).Error; err != nil {
		return 0, database.AsRepositoryError(ctx, err, "failed to list usage records for prune")
	}

	kept := make(map[usage.Key]struct{}, len(keep))
	for _, k := range keep {
		kept[k] = struct{}{}
	}
	var stale []int64
	for i := range rows {
		if _, ok := kept[rows[i].EtoD().Key()]; !ok {
			stale = append(stale, rows[i].ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).Where("id IN ?", stale).Delete(&dbschema.UsageRecord{})
	if result.Error != nil {
		return 0, database.AsRepositoryError(ctx, result.Error, "failed to prune usage records")
	}
	return result.RowsAffected, nil
}

func (r *UsageGormRepository) OldestDate(ctx context.Context, tool string) (*time.Time, error) {
	var oldest sql.NullTime
	err := r.db.WithContext(ctx).
		Model(&dbschema.UsageRecord{}).
		Select("MIN(date)").
		Where("provider_tool = ?", tool).
		Row().
		Scan(&oldest)
	if err != nil {
		return nil, database.AsRepositoryError(ctx, err, "failed to fetch oldest usage date")
	}
	if !oldest.Valid {
		return nil, nil
	}
	day := usage.Day(oldest.Time)
	return &day, nil
}

func (r *UsageGormRepository) LastDataDates(ctx context.Context) (map[string]time.Time, error) {
	var rows []struct {
		ProviderTool string
		LastDate     time.Time
	}
	if err := r.db.WithContext(ctx).
		Model(&dbschema.UsageRecord{}).
		Select("provider_tool, MAX(date) AS last_date").
		Group("provider_tool").
		Scan(&rows).Error; err != nil {
		return nil, database.AsRepositoryError(ctx, err, "failed to fetch last usage dates")
	}
	out := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		out[row.ProviderTool] = usage.Day(row.LastDate)
	}
	return out, nil
}

func (r *UsageGormRepository) DailyTotals(ctx context.Context, from, to time.Time) ([]usage.DailyTotal, error) {
	var rows []dbschema.UsageDailyTotal
	if err := r.db.WithContext(ctx).
		Model(&dbschema.UsageRecord{}).
		Select(`date, provider_tool,
			SUM(input_tokens)::bigint AS input_tokens,
			SUM(cache_write_tokens)::bigint AS cache_write_tokens,
			SUM(cache_read_tokens)::bigint AS cache_read_tokens,
			SUM(output_tokens)::bigint AS output_tokens,
			SUM(cost_usd) AS cost_usd`).
		Where("date BETWEEN ? AND ?", usage.Day(from).Format(time.DateOnly), usage.Day(to).Format(time.DateOnly)).
		Group("date, provider_tool").
		Order("date, provider_tool").
		Scan(&rows).Error; err != nil {
		return nil, database.AsRepositoryError(ctx, err, "failed to aggregate daily usage")
	}
	out := make([]usage.DailyTotal, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EtoD())
	}
	return out, nil
}
