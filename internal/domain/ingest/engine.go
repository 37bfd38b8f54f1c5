// Package ingest drives provider fetches into the store: forward syncs from
// the persisted cursor and resumable backwards backfills over UTC days.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/janhq/usage-sync/internal/domain/syncstate"
	"github.com/janhq/usage-sync/internal/utils/platformerrors"
)

const (
	OperationForward  = "forward"
	OperationBackfill = "backfill"
)

// Page is one page of provider results. An empty NextCursor ends the window.
type Page[R any] struct {
	Items      []R
	NextCursor string
}

// Provider fetches normalized records of type R from one upstream.
type Provider[R any] interface {
	ID() string
	// Validate fails with a config-missing error when credentials are absent.
	Validate() error
	FetchPage(ctx context.Context, window Window, cursor string) (Page[R], error)
}

// WriteStats is what a Sink reports for one batch.
type WriteStats struct {
	Imported int
	Skipped  int
	Errors   []string
}

// Sink persists fetched records and answers the derived backfill frontier.
type Sink[R any] interface {
	Write(ctx context.Context, items []R) WriteStats
	// Oldest returns the earliest date stored for the provider, or nil.
	Oldest(ctx context.Context) (*time.Time, error)
	// Complete runs after a window has been fully fetched and written.
	Complete(ctx context.Context, window Window, items []R) error
}

// Recorder observes finished runs.
type Recorder interface {
	RunFinished(provider, operation string, result *Result, elapsed time.Duration)
	PageFetched(provider string, items int, err error)
}

type nopRecorder struct{}

func (nopRecorder) RunFinished(string, string, *Result, time.Duration) {}
func (nopRecorder) PageFetched(string, int, error)                     {}

// Result is the structured outcome of one run. Operational failures are
// reported here instead of being returned as errors.
type Result struct {
	Provider          string     `json:"provider"`
	Operation         string     `json:"operation"`
	RunID             string     `json:"run_id"`
	Imported          int        `json:"imported"`
	Skipped           int        `json:"skipped"`
	Errors            []string   `json:"errors"`
	RateLimited       bool       `json:"rate_limited"`
	LastProcessedDate *time.Time `json:"last_processed_date,omitempty"`
	BackfillComplete  bool       `json:"backfill_complete"`
	Pages             int        `json:"pages"`
}

func (r *Result) addStats(s WriteStats) {
	r.Imported += s.Imported
	r.Skipped += s.Skipped
	r.Errors = append(r.Errors, s.Errors...)
}

func (r *Result) addError(err error) {
	r.Errors = append(r.Errors, err.Error())
}

// Options tunes an Engine.
type Options struct {
	// Lookback is the first-run window for forward syncs.
	Lookback time.Duration
	// Granularity truncates the forward sync target.
	Granularity time.Duration
	// EmptyDaysToComplete is the number of consecutive empty backfill
	// days after which backfill is marked complete.
	EmptyDaysToComplete int
	// RequestInterval paces page requests.
	RequestInterval time.Duration
	Recorder        Recorder
	Now             func() time.Time
}

// DefaultOptions returns the standard engine settings.
func DefaultOptions() Options {
	return Options{
		Lookback:            24 * time.Hour,
		Granularity:         time.Hour,
		EmptyDaysToComplete: 7,
	}
}

// Engine runs syncs for one provider. Runs for the same engine never
// overlap; a second concurrent call fails fast with ErrSyncInProgress.
type Engine[R any] struct {
	provider Provider[R]
	sink     Sink[R]
	state    syncstate.Repository
	opts     Options
	pacer    *Pacer
	tracer   trace.Tracer
	log      zerolog.Logger

	running sync.Mutex
}

// NewEngine creates an Engine
func NewEngine[R any](provider Provider[R], sink Sink[R], state syncstate.Repository, opts Options, log zerolog.Logger) *Engine[R] {
	def := DefaultOptions()
	if opts.Lookback <= 0 {
		opts.Lookback = def.Lookback
	}
	if opts.Granularity <= 0 {
		opts.Granularity = def.Granularity
	}
	if opts.EmptyDaysToComplete <= 0 {
		opts.EmptyDaysToComplete = def.EmptyDaysToComplete
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine[R]{
		provider: provider,
		sink:     sink,
		state:    state,
		opts:     opts,
		pacer:    NewPacer(opts.RequestInterval),
		tracer:   otel.Tracer("usage-sync/ingest"),
		log:      log.With().Str("component", "ingest").Str("provider", provider.ID()).Logger(),
	}
}

// ID returns the provider id.
func (e *Engine[R]) ID() string {
	return e.provider.ID()
}

// SyncForward fetches [cursor, now truncated to the hour) and advances the
// cursor when the window was fetched without error.
func (e *Engine[R]) SyncForward(ctx context.Context) (*Result, error) {
	ctx, res, finish, err := e.begin(ctx, OperationForward)
	if err != nil {
		return res, err
	}
	defer finish()

	st, err := e.state.Get(ctx, e.provider.ID())
	if err != nil {
		res.addError(err)
		return res, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "load sync state")
	}

	target := e.opts.Now().UTC().Truncate(e.opts.Granularity)
	start := target.Add(-e.opts.Lookback)
	if st.LastSyncCursor != nil {
		start = st.LastSyncCursor.UTC()
	}
	window := Window{Start: start, End: target}
	if window.Empty() {
		e.log.Debug().Time("cursor", start).Msg("cursor already at target, nothing to sync")
		return res, nil
	}

	items, err := e.fetchWindow(ctx, window, res)
	if err != nil {
		e.recordFetchError(res, window, err)
		return res, ctxErr(ctx)
	}

	res.addStats(e.sink.Write(ctx, items))
	if err := e.sink.Complete(ctx, window, items); err != nil {
		res.addError(err)
	}

	if err := e.state.SaveCursor(ctx, e.provider.ID(), target); err != nil {
		res.addError(err)
		return res, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "save sync cursor")
	}
	last := Day(target.Add(-time.Nanosecond))
	res.LastProcessedDate = &last
	return res, nil
}

// Backfill walks backwards one UTC day at a time from the oldest stored date
// towards target. The oldest stored day itself is fetched again first since
// the forward look-back may have covered only part of it. It stops on rate limiting, on reaching target, or after
// EmptyDaysToComplete consecutive empty days, which marks backfill complete.
func (e *Engine[R]) Backfill(ctx context.Context, target time.Time) (*Result, error) {
	ctx, res, finish, err := e.begin(ctx, OperationBackfill)
	if err != nil {
		return res, err
	}
	defer finish()

	st, err := e.state.Get(ctx, e.provider.ID())
	if err != nil {
		res.addError(err)
		return res, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "load sync state")
	}
	if st.BackfillComplete {
		res.BackfillComplete = true
		return res, nil
	}

	oldest, err := e.sink.Oldest(ctx)
	if err != nil {
		res.addError(err)
		return res, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "derive backfill frontier")
	}

	now := e.opts.Now().UTC()
	target = Day(target)
	first := Day(now)
	if oldest != nil {
		first = Day(*oldest)
		if !first.After(target) {
			e.log.Debug().Time("oldest", first).Time("target", target).Msg("already backfilled to target")
			return res, nil
		}
	}

	empty := 0
	for day := first; !day.Before(target); day = day.AddDate(0, 0, -1) {
		if err := ctx.Err(); err != nil {
			res.addError(err)
			return res, err
		}

		window := Window{Start: day, End: day.AddDate(0, 0, 1)}
		if window.End.After(now) {
			window.End = now
		}

		processed := day
		items, err := e.fetchWindow(ctx, window, res)
		if err != nil {
			if errors.Is(err, ErrRateLimited) || ctx.Err() != nil {
				e.recordFetchError(res, window, err)
				return res, ctxErr(ctx)
			}
			// The failed day is not counted as empty; the walk moves on.
			e.recordFetchError(res, window, err)
			res.LastProcessedDate = &processed
			continue
		}

		res.addStats(e.sink.Write(ctx, items))
		if err := e.sink.Complete(ctx, window, items); err != nil {
			res.addError(err)
		}
		res.LastProcessedDate = &processed

		if len(items) > 0 {
			empty = 0
			continue
		}
		empty++
		if empty >= e.opts.EmptyDaysToComplete {
			if err := e.state.SetBackfillComplete(ctx, e.provider.ID(), true); err != nil {
				res.addError(err)
				return res, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "mark backfill complete")
			}
			res.BackfillComplete = true
			e.log.Info().
				Int("empty_days", empty).
				Time("oldest_walked", day).
				Msg("no older data upstream, backfill complete")
			break
		}
	}
	return res, nil
}

// ResetBackfillComplete clears the completion flag so the next backfill
// walks again from the derived frontier.
func (e *Engine[R]) ResetBackfillComplete(ctx context.Context) error {
	if err := e.state.SetBackfillComplete(ctx, e.provider.ID(), false); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "reset backfill flag")
	}
	e.log.Info().Msg("backfill completion flag reset")
	return nil
}

// Status reports the persisted state with the derived backfill phase.
func (e *Engine[R]) Status(ctx context.Context) (*Status, error) {
	st, err := e.state.Get(ctx, e.provider.ID())
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "load sync state")
	}
	oldest, err := e.sink.Oldest(ctx)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "derive backfill frontier")
	}
	return &Status{
		Provider:         e.provider.ID(),
		LastSyncCursor:   st.LastSyncCursor,
		BackfillComplete: st.BackfillComplete,
		OldestDate:       oldest,
		Phase:            st.BackfillPhase(oldest),
	}, nil
}

// begin takes the per-provider guard, validates configuration and opens the
// run span. finish must be called when err is nil.
func (e *Engine[R]) begin(ctx context.Context, op string) (context.Context, *Result, func(), error) {
	runID := platformerrors.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = platformerrors.WithRunID(ctx, runID)
	}
	res := &Result{Provider: e.provider.ID(), Operation: op, RunID: runID, Errors: []string{}}

	if !e.running.TryLock() {
		res.addError(ErrSyncInProgress)
		return ctx, res, nil, ErrSyncInProgress
	}
	if err := e.provider.Validate(); err != nil {
		e.running.Unlock()
		res.addError(err)
		return ctx, res, nil, err
	}

	ctx, span := e.tracer.Start(ctx, "ingest."+op, trace.WithAttributes(
		attribute.String("provider", e.provider.ID()),
		attribute.String("run_id", runID),
	))
	started := time.Now()
	log := e.log.With().Str("run_id", runID).Str("operation", op).Logger()
	log.Info().Msg("sync started")

	finish := func() {
		elapsed := time.Since(started)
		span.SetAttributes(
			attribute.Int("imported", res.Imported),
			attribute.Int("skipped", res.Skipped),
			attribute.Bool("rate_limited", res.RateLimited),
		)
		if len(res.Errors) > 0 {
			span.SetStatus(codes.Error, res.Errors[0])
		}
		span.End()
		e.opts.Recorder.RunFinished(e.provider.ID(), op, res, elapsed)
		log.Info().
			Int("imported", res.Imported).
			Int("skipped", res.Skipped).
			Int("errors", len(res.Errors)).
			Int("pages", res.Pages).
			Bool("rate_limited", res.RateLimited).
			Bool("backfill_complete", res.BackfillComplete).
			Dur("elapsed", elapsed).
			Msg("sync finished")
		e.running.Unlock()
	}
	return ctx, res, finish, nil
}

// fetchWindow follows continuation tokens until the window is exhausted.
func (e *Engine[R]) fetchWindow(ctx context.Context, window Window, res *Result) ([]R, error) {
	ctx, span := e.tracer.Start(ctx, "ingest.fetch_window", trace.WithAttributes(
		attribute.String("window.start", window.Start.Format(time.RFC3339)),
		attribute.String("window.end", window.End.Format(time.RFC3339)),
	))
	defer span.End()

	var (
		items  []R
		cursor string
	)
	for {
		if err := e.pacer.Wait(ctx); err != nil {
			return nil, err
		}
		page, err := e.provider.FetchPage(ctx, window, cursor)
		res.Pages++
		e.opts.Recorder.PageFetched(e.provider.ID(), len(page.Items), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		items = append(items, page.Items...)
		if page.NextCursor == "" {
			return items, nil
		}
		if page.NextCursor == cursor {
			return nil, fmt.Errorf("%s: continuation token %q repeated", e.provider.ID(), cursor)
		}
		cursor = page.NextCursor
	}
}

func (e *Engine[R]) recordFetchError(res *Result, window Window, err error) {
	var (
		errType platformerrors.ErrorType
		upErr   *UpstreamError
	)
	switch {
	case errors.Is(err, ErrRateLimited):
		res.RateLimited = true
		errType = platformerrors.ErrorTypeRateLimited
	case errors.As(err, &upErr):
		errType = platformerrors.ErrorTypeUpstream
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		errType = platformerrors.ErrorTypeInternal
	default:
		errType = platformerrors.ErrorTypeExternal
	}
	res.Errors = append(res.Errors, fmt.Sprintf("%s..%s: %v",
		window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339), err))
	e.log.Warn().
		Err(err).
		Str("run_id", res.RunID).
		Str("error_type", string(errType)).
		Time("window_start", window.Start).
		Time("window_end", window.End).
		Msg("window fetch failed")
}

func ctxErr(ctx context.Context) error {
	return ctx.Err()
}

// Status is the operator view of one provider's sync state.
type Status struct {
	Provider         string          `json:"provider"`
	LastSyncCursor   *time.Time      `json:"last_sync_cursor,omitempty"`
	BackfillComplete bool            `json:"backfill_complete"`
	OldestDate       *time.Time      `json:"oldest_date,omitempty"`
	Phase            syncstate.Phase `json:"phase"`
}
