package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records checkpoint operation metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordSave records a save attempt with payload size and error status.
	RecordSave(ctx context.Context, application string, sizeBytes int64, duration time.Duration, err error)

	// RecordLoad records a load attempt. hit is false when no checkpoint
	// matched the selector.
	RecordLoad(ctx context.Context, application string, hit bool, duration time.Duration, err error)

	// RecordList records a listing with the number of resolved and
	// skipped checkpoints.
	RecordList(ctx context.Context, application string, count, skipped int, duration time.Duration, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	saves         metric.Int64Counter
	saveErrors    metric.Int64Counter
	saveSize      metric.Int64Histogram
	loads         metric.Int64Counter
	loadMisses    metric.Int64Counter
	lists         metric.Int64Counter
	listSkipped   metric.Int64Counter
	opLatency     metric.Float64Histogram
	errorsByStage metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("permasave")

	saves, err := meter.Int64Counter("permasave.checkpoint.saves",
		metric.WithDescription("Number of checkpoint save attempts"),
	)
	if err != nil {
		return nil, err
	}

	saveErrors, err := meter.Int64Counter("permasave.checkpoint.save_errors",
		metric.WithDescription("Number of failed checkpoint saves"),
	)
	if err != nil {
		return nil, err
	}

	saveSize, err := meter.Int64Histogram("permasave.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint envelope size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	loads, err := meter.Int64Counter("permasave.checkpoint.loads",
		metric.WithDescription("Number of checkpoint load attempts"),
	)
	if err != nil {
		return nil, err
	}

	loadMisses, err := meter.Int64Counter("permasave.checkpoint.load_misses",
		metric.WithDescription("Number of loads that matched no checkpoint"),
	)
	if err != nil {
		return nil, err
	}

	lists, err := meter.Int64Counter("permasave.checkpoint.lists",
		metric.WithDescription("Number of checkpoint listings"),
	)
	if err != nil {
		return nil, err
	}

	listSkipped, err := meter.Int64Counter("permasave.checkpoint.list_skipped",
		metric.WithDescription("Number of checkpoints skipped during listing"),
	)
	if err != nil {
		return nil, err
	}

	opLatency, err := meter.Float64Histogram("permasave.operation.latency_ms",
		metric.WithDescription("Checkpoint operation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	errorsByStage, err := meter.Int64Counter("permasave.operation.errors",
		metric.WithDescription("Number of failed checkpoint operations"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		saves:         saves,
		saveErrors:    saveErrors,
		saveSize:      saveSize,
		loads:         loads,
		loadMisses:    loadMisses,
		lists:         lists,
		listSkipped:   listSkipped,
		opLatency:     opLatency,
		errorsByStage: errorsByStage,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordSave records a save attempt.
func (m *otelMetrics) RecordSave(ctx context.Context, application string, sizeBytes int64, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("application", application),
		attribute.String("operation", "save"),
	}

	m.saves.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.opLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.saveErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
		m.errorsByStage.Add(ctx, 1, metric.WithAttributes(attrs...))
		return
	}
	m.saveSize.Record(ctx, sizeBytes, metric.WithAttributes(attrs...))
}

// RecordLoad records a load attempt.
func (m *otelMetrics) RecordLoad(ctx context.Context, application string, hit bool, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("application", application),
		attribute.String("operation", "load"),
	}

	m.loads.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.opLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.errorsByStage.Add(ctx, 1, metric.WithAttributes(attrs...))
		return
	}
	if !hit {
		m.loadMisses.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordList records a listing.
func (m *otelMetrics) RecordList(ctx context.Context, application string, count, skipped int, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("application", application),
		attribute.String("operation", "list"),
	}

	m.lists.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.opLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.errorsByStage.Add(ctx, 1, metric.WithAttributes(attrs...))
		return
	}
	if skipped > 0 {
		m.listSkipped.Add(ctx, int64(skipped), metric.WithAttributes(attrs...))
	}
}
