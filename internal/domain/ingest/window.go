package ingest

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Window is the half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the window covers no time.
func (w Window) Empty() bool {
	return !w.Start.Before(w.End)
}

// Days returns the UTC calendar days the window touches.
func (w Window) Days() []time.Time {
	if w.Empty() {
		return nil
	}
	var days []time.Time
	for d := Day(w.Start); d.Before(w.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Day truncates t to the start of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Pacer spaces consecutive upstream requests by a fixed interval. Wait
// blocks the calling control loop and returns early on cancellation.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a pacer allowing one request per interval. A zero
// interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next request may be sent.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}
