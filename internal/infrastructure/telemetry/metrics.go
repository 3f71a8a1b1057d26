package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the meter and tracer scope for worker instruments.
const InstrumentationName = "github.com/darb-academy/lifecycle-worker"

// Metrics holds the worker's custom instruments.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	JobRuns        metric.Int64Counter
	JobDuration    metric.Float64Histogram
	RecordsWritten metric.Int64Counter
	Notifications  metric.Int64Counter
}

// InitMetrics creates the instruments on the global meter provider.
func InitMetrics() (*Metrics, error) {
	return NewMetrics(otel.Meter(InstrumentationName))
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	jobRuns, err := meter.Int64Counter(
		"lifecycle.job.runs",
		metric.WithDescription("Job executions by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	jobDuration, err := meter.Float64Histogram(
		"lifecycle.job.duration",
		metric.WithDescription("Job execution time"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	recordsWritten, err := meter.Int64Counter(
		"lifecycle.records.written",
		metric.WithDescription("Rows inserted or updated by jobs"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	notifications, err := meter.Int64Counter(
		"lifecycle.notifications",
		metric.WithDescription("Notification delivery attempts by result"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		JobRuns:        jobRuns,
		JobDuration:    jobDuration,
		RecordsWritten: recordsWritten,
		Notifications:  notifications,
	}, nil
}

// RecordJobRun records one job execution.
func (m *Metrics) RecordJobRun(ctx context.Context, job, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("outcome", outcome),
	)
	m.JobRuns.Add(ctx, 1, attrs)
	m.JobDuration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

// RecordWritten records n rows written by job.
func (m *Metrics) RecordWritten(ctx context.Context, job string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsWritten.Add(ctx, int64(n), metric.WithAttributes(attribute.String("job", job)))
}

// RecordNotification records a delivery attempt of the given type.
func (m *Metrics) RecordNotification(ctx context.Context, typ string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.Notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", typ),
		attribute.String("result", result),
	))
}
