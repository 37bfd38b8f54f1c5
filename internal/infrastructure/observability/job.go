package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// JobInstrumenter wraps scheduled sync jobs in spans and OTEL metrics.
type JobInstrumenter struct {
	tracer      trace.Tracer
	jobsActive  metric.Int64UpDownCounter
	jobDuration metric.Float64Histogram
	jobsTotal   metric.Int64Counter
}

// NewJobInstrumenter creates a JobInstrumenter
func NewJobInstrumenter(tracer trace.Tracer, meter metric.Meter, serviceName string) (*JobInstrumenter, error) {
	jobsActive, err := meter.Int64UpDownCounter(
		fmt.Sprintf("jan_%s_jobs_active", serviceName),
		metric.WithDescription("Number of running sync jobs"),
	)
	if err != nil {
		return nil, err
	}

	jobDuration, err := meter.Float64Histogram(
		fmt.Sprintf("jan_%s_job_duration_seconds", serviceName),
		metric.WithDescription("Sync job duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	jobsTotal, err := meter.Int64Counter(
		fmt.Sprintf("jan_%s_jobs_total", serviceName),
		metric.WithDescription("Total sync jobs run"),
	)
	if err != nil {
		return nil, err
	}

	return &JobInstrumenter{
		tracer:      tracer,
		jobsActive:  jobsActive,
		jobDuration: jobDuration,
		jobsTotal:   jobsTotal,
	}, nil
}

// InstrumentJob runs fn inside a "job.<type>" span and records its outcome.
func (j *JobInstrumenter) InstrumentJob(ctx context.Context, jobType, jobID string, fn func(context.Context) error) error {
	j.jobsActive.Add(ctx, 1)
	defer j.jobsActive.Add(ctx, -1)

	ctx, span := j.tracer.Start(ctx, "job."+jobType,
		trace.WithAttributes(
			attribute.String("job.type", jobType),
			attribute.String("job.id", jobID),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	attrs := metric.WithAttributes(
		attribute.String("job.type", jobType),
		attribute.String("status", status),
	)
	j.jobDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	j.jobsTotal.Add(ctx, 1, attrs)
	return err
}
