// Package metrics exposes task and model-download counters through
// OpenTelemetry with a Prometheus exporter.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "ccgen"

// Metrics records pipeline activity. A nil *Metrics is a valid no-op.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler

	tasksStarted  metric.Int64Counter
	tasksFinished metric.Int64Counter
	tasksActive   metric.Int64UpDownCounter
	stageDuration metric.Float64Histogram
	downloads     metric.Int64Counter
}

// New builds a meter provider that exports into its own Prometheus registry.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	res := resource.NewSchemaless(attribute.String("service.name", meterName))
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	meter := provider.Meter(meterName)

	m := &Metrics{
		provider: provider,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	var errs []error
	m.tasksStarted, err = meter.Int64Counter("ccgen_tasks_started",
		metric.WithDescription("Tasks that began running"))
	errs = append(errs, err)
	m.tasksFinished, err = meter.Int64Counter("ccgen_tasks_finished",
		metric.WithDescription("Tasks that reached a terminal state"))
	errs = append(errs, err)
	m.tasksActive, err = meter.Int64UpDownCounter("ccgen_tasks_active",
		metric.WithDescription("Tasks currently running"))
	errs = append(errs, err)
	m.stageDuration, err = meter.Float64Histogram("ccgen_stage_duration",
		metric.WithDescription("Time spent in each pipeline stage"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800))
	errs = append(errs, err)
	m.downloads, err = meter.Int64Counter("ccgen_model_downloads",
		metric.WithDescription("Model download attempts by outcome"))
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	return m, nil
}

// Handler serves the Prometheus text exposition.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// TaskStarted counts a task entering its pipeline.
func (m *Metrics) TaskStarted(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.tasksStarted.Add(ctx, 1, attrs)
	m.tasksActive.Add(ctx, 1, attrs)
}

// TaskFinished counts a task reaching status.
func (m *Metrics) TaskFinished(ctx context.Context, kind, status string) {
	if m == nil {
		return
	}
	m.tasksFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
	m.tasksActive.Add(ctx, -1, metric.WithAttributes(attribute.String("kind", kind)))
}

// StageCompleted records how long a stage ran.
func (m *Metrics) StageCompleted(ctx context.Context, stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

// ModelDownload counts one download attempt with its result
// ("downloaded", "present" or "failed").
func (m *Metrics) ModelDownload(ctx context.Context, model, result string) {
	if m == nil {
		return
	}
	m.downloads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("result", result),
	))
}
