package crontab

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"github.com/janhq/usage-sync/internal/domain/ingest"
	"github.com/janhq/usage-sync/internal/infrastructure/observability"
	"github.com/janhq/usage-sync/internal/utils/platformerrors"
)

const DefaultJobTimeout = 30 * time.Minute

// Schedule configures the recurring sync jobs.
type Schedule struct {
	ForwardCron  string
	BackfillCron string
	JobTimeout   time.Duration
	RunOnStart   bool
	// BackfillTarget returns the target date of each backfill run.
	BackfillTarget func() time.Time
}

// Crontab drives forward syncs and backfills of every registered provider.
type Crontab struct {
	ctab         *crontab.Crontab
	service      *ingest.Service
	instrumenter *observability.JobInstrumenter
	schedule     Schedule
	log          zerolog.Logger
}

func NewCrontab(service *ingest.Service, instrumenter *observability.JobInstrumenter, schedule Schedule, log zerolog.Logger) *Crontab {
	if schedule.JobTimeout <= 0 {
		schedule.JobTimeout = DefaultJobTimeout
	}
	return &Crontab{
		ctab:         crontab.New(),
		service:      service,
		instrumenter: instrumenter,
		schedule:     schedule,
		log:          log.With().Str("component", "crontab").Logger(),
	}
}

// Run schedules the jobs and blocks until ctx is done.
func (c *Crontab) Run(ctx context.Context) error {
	if c.schedule.ForwardCron != "" {
		if err := c.ctab.AddJob(c.schedule.ForwardCron, func() { c.RunForward(ctx) }); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add forward sync job")
		}
		c.log.Info().Str("cron", c.schedule.ForwardCron).Msg("forward sync scheduled")
	}
	if c.schedule.BackfillCron != "" {
		if err := c.ctab.AddJob(c.schedule.BackfillCron, func() { c.RunBackfill(ctx) }); err != nil {
			c.ctab.Shutdown()
			return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add backfill job")
		}
		c.log.Info().Str("cron", c.schedule.BackfillCron).Msg("backfill scheduled")
	}

	if c.schedule.RunOnStart {
		c.RunForward(ctx)
		c.RunBackfill(ctx)
	}

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

// RunForward runs one forward sync of every provider.
func (c *Crontab) RunForward(ctx context.Context) []*ingest.Result {
	return c.runJob(ctx, ingest.OperationForward, func(jobCtx context.Context) []*ingest.Result {
		return c.service.SyncAll(jobCtx)
	})
}

// RunBackfill runs one backfill step of every provider.
func (c *Crontab) RunBackfill(ctx context.Context) []*ingest.Result {
	target := time.Time{}
	if c.schedule.BackfillTarget != nil {
		target = c.schedule.BackfillTarget()
	}
	return c.runJob(ctx, ingest.OperationBackfill, func(jobCtx context.Context) []*ingest.Result {
		return c.service.BackfillAll(jobCtx, target)
	})
}

func (c *Crontab) runJob(ctx context.Context, op string, run func(context.Context) []*ingest.Result) []*ingest.Result {
	if ctx.Err() != nil {
		return nil
	}
	runID := uuid.NewString()
	jobCtx, cancel := context.WithTimeout(platformerrors.WithRunID(ctx, runID), c.schedule.JobTimeout)
	defer cancel()

	var results []*ingest.Result
	job := func(jobCtx context.Context) error {
		results = run(jobCtx)
		return summarize(results)
	}
	var err error
	if c.instrumenter != nil {
		err = c.instrumenter.InstrumentJob(jobCtx, op, runID, job)
	} else {
		err = job(jobCtx)
	}

	for _, res := range results {
		event := c.log.Info()
		if res.RateLimited || len(res.Errors) > 0 {
			event = c.log.Warn()
		}
		event.
			Str("run_id", runID).
			Str("operation", op).
			Str("provider", res.Provider).
			Int("imported", res.Imported).
			Int("skipped", res.Skipped).
			Int("errors", len(res.Errors)).
			Bool("rate_limited", res.RateLimited).
			Bool("backfill_complete", res.BackfillComplete).
			Msg("sync job result")
	}
	if err != nil {
		c.log.Debug().Err(err).Str("run_id", runID).Str("operation", op).Msg("sync job finished with errors")
	}
	return results
}

var errJobIncomplete = errors.New("one or more providers reported errors")

func summarize(results []*ingest.Result) error {
	for _, res := range results {
		if res.RateLimited || len(res.Errors) > 0 {
			return errJobIncomplete
		}
	}
	return nil
}
