// Package observe provides the observability primitives for sonogram:
// OpenTelemetry metrics and tracing, plus HTTP middleware tying them to
// structured request logs.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed
// for Prometheus scraping via [InitProvider]. [DefaultMetrics] is backed by
// the global provider; tests should use [NewMetrics] with their own
// [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all sonogram metrics.
const meterName = "github.com/linuxmatters/sonogram"

// Pipeline stage names used as the "stage" attribute.
const (
	StageDecode    = "decode"
	StageTransform = "transform"
	StageRender    = "render"
	StageEncode    = "encode"
)

// Run outcomes used as the "status" attribute.
const (
	StatusOK        = "ok"
	StatusEmpty     = "empty"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Metrics holds the OpenTelemetry instruments. The OTel types handle their
// own synchronisation. A nil *Metrics records nothing.
type Metrics struct {
	// StageDuration tracks pipeline stage latency. Use with attribute:
	//   attribute.String("stage", ...)
	StageDuration metric.Float64Histogram

	// Runs counts finished pipeline runs. Use with attribute:
	//   attribute.String("status", ...)
	Runs metric.Int64Counter

	// RunsDiscarded counts results dropped because a newer selection or a
	// reset superseded them.
	RunsDiscarded metric.Int64Counter

	// ActiveSessions tracks the number of live browser sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds for one-shot analysis
// of files up to a few minutes long.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("sonogram.stage.duration",
		metric.WithDescription("Latency of one spectrogram pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Runs, err = m.Int64Counter("sonogram.runs",
		metric.WithDescription("Finished pipeline runs by status."),
	); err != nil {
		return nil, err
	}
	if met.RunsDiscarded, err = m.Int64Counter("sonogram.runs.discarded",
		metric.WithDescription("Pipeline results discarded because they were superseded."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("sonogram.active_sessions",
		metric.WithDescription("Number of live analysis sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("sonogram.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first call
// from [otel.GetMeterProvider]. Call it after [InitProvider] so the
// instruments bind to the exporting provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordRun counts a finished run with the given status.
func (m *Metrics) RecordRun(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.Runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordDiscarded counts a superseded result.
func (m *Metrics) RecordDiscarded(ctx context.Context) {
	if m == nil {
		return
	}
	m.RunsDiscarded.Add(ctx, 1)
}

// SessionOpened and SessionClosed track live sessions.
func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}
