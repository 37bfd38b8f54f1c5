package projection

import (
	"context"
	"time"

	"github.com/janhq/usage-sync/internal/domain/usage"
	"github.com/janhq/usage-sync/internal/utils/platformerrors"
)

// Source is the read side of the usage store needed to build a chart series.
type Source interface {
	DailyTotals(ctx context.Context, from, to time.Time) ([]usage.DailyTotal, error)
	LastDataDates(ctx context.Context) (map[string]time.Time, error)
}

// Service builds projected daily series from persisted usage.
type Service struct {
	source Source
}

// NewService creates a new projection service
func NewService(source Source) *Service {
	return &Service{source: source}
}

// Daily returns one entry per calendar day in [from, to] with per-tool token
// totals, projected where the day is incomplete.
func (s *Service) Daily(ctx context.Context, from, to, now time.Time) ([]DailyUsage, error) {
	from, to = day(from), day(to)
	if to.Before(from) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"end date is before start date", nil, "")
	}

	totals, err := s.source.DailyTotals(ctx, from, to)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "load daily totals")
	}
	lastDates, err := s.source.LastDataDates(ctx)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "load completeness markers")
	}

	return ApplyProjections(BuildSeries(totals, from, to), Completeness(lastDates), now), nil
}

// BuildSeries lays daily totals out on a contiguous day axis.
func BuildSeries(totals []usage.DailyTotal, from, to time.Time) []DailyUsage {
	from, to = day(from), day(to)
	index := make(map[time.Time]int)
	var series []DailyUsage
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		index[d] = len(series)
		series = append(series, DailyUsage{
			Date:       d,
			Totals:     map[string]float64{},
			Incomplete: map[string]bool{},
			Projected:  map[string]float64{},
		})
	}
	for _, t := range totals {
		i, ok := index[day(t.Date)]
		if !ok {
			continue
		}
		series[i].Totals[t.ProviderTool] += float64(t.TotalTokens())
		cost, _ := t.CostUSD.Float64()
		series[i].Cost += cost
	}
	return series
}
