// AngelaMos | 2026
// auth.go

package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusError   = "error"
)

// Recorder captures credential lifecycle events.
type Recorder interface {
	RecordOperation(ctx context.Context, operation, status string, duration time.Duration)
	RecordReuseDetected(ctx context.Context)
	RecordSweep(ctx context.Context, target string, deleted int64)
}

type recorder struct {
	operations metric.Int64Counter
	durations  metric.Float64Histogram
	reuse      metric.Int64Counter
	swept      metric.Int64Counter
}

func NewRecorder(mp metric.MeterProvider, namespace string) (Recorder, error) {
	meter := mp.Meter(namespace)

	operations, err := meter.Int64Counter(
		namespace+"_operations_total",
		metric.WithDescription("Credential operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create operations counter: %w", err)
	}

	durations, err := meter.Float64Histogram(
		namespace+"_operation_duration_seconds",
		metric.WithDescription("Credential operation latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	reuse, err := meter.Int64Counter(
		namespace+"_refresh_reuse_detected_total",
		metric.WithDescription("Refresh tokens presented after rotation"),
	)
	if err != nil {
		return nil, fmt.Errorf("create reuse counter: %w", err)
	}

	swept, err := meter.Int64Counter(
		namespace+"_cleanup_deleted_total",
		metric.WithDescription("Rows removed by cleanup sweeps"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sweep counter: %w", err)
	}

	return &recorder{
		operations: operations,
		durations:  durations,
		reuse:      reuse,
		swept:      swept,
	}, nil
}

func (r *recorder) RecordOperation(
	ctx context.Context,
	operation, status string,
	duration time.Duration,
) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	r.operations.Add(ctx, 1, attrs)
	r.durations.Record(ctx, duration.Seconds(), attrs)
}

func (r *recorder) RecordReuseDetected(ctx context.Context) {
	r.reuse.Add(ctx, 1)
}

func (r *recorder) RecordSweep(ctx context.Context, target string, deleted int64) {
	r.swept.Add(ctx, deleted, metric.WithAttributes(attribute.String("target", target)))
}

type noop struct{}

// NewNoop returns a Recorder that discards everything.
func NewNoop() Recorder {
	return noop{}
}

func (noop) RecordOperation(context.Context, string, string, time.Duration) {}
func (noop) RecordReuseDetected(context.Context)                            {}
func (noop) RecordSweep(context.Context, string, int64)                     {}
