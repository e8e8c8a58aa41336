// Package observe provides application-wide observability primitives for
// Papo: OpenTelemetry metrics, distributed tracing, structured logging and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/papo/internal/backend"
	"github.com/MrWong99/papo/internal/onboarding"
	"github.com/MrWong99/papo/internal/speech"
)

// meterName is the instrumentation scope name used for all Papo metrics.
const meterName = "github.com/MrWong99/papo"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Onboarding flow ---

	// StepTransitions counts wizard step changes. Attributes: from, to.
	StepTransitions metric.Int64Counter

	// RecognitionErrors counts failed recordings by error kind.
	RecognitionErrors metric.Int64Counter

	// Completions counts sign-ups that reached the dashboard hand-off.
	Completions metric.Int64Counter

	// --- Remote calls ---

	// BackendDuration tracks latency of calls to the Papo Social API.
	// Attributes: op, status.
	BackendDuration metric.Float64Histogram

	// ProviderErrors counts speech provider errors. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open onboarding sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// remote API round trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StepTransitions, err = m.Int64Counter("papo.onboarding.step_transitions",
		metric.WithDescription("Onboarding step transitions by origin and target step."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionErrors, err = m.Int64Counter("papo.onboarding.recognition_errors",
		metric.WithDescription("Failed voice recordings by error kind."),
	); err != nil {
		return nil, err
	}
	if met.Completions, err = m.Int64Counter("papo.onboarding.completions",
		metric.WithDescription("Onboarding sessions that completed sign-up."),
	); err != nil {
		return nil, err
	}

	if met.BackendDuration, err = m.Float64Histogram("papo.backend.duration",
		metric.WithDescription("Latency of Papo Social API calls by operation and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("papo.provider.errors",
		metric.WithDescription("Speech provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("papo.active_sessions",
		metric.WithDescription("Number of open onboarding sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("papo.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordBackendCall records the latency and outcome of one API call.
func (m *Metrics) RecordBackendCall(ctx context.Context, op string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.BackendDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// BackendObserver returns a [backend.Observer] feeding [Metrics.BackendDuration].
func (m *Metrics) BackendObserver() backend.Observer {
	return m.RecordBackendCall
}

// ─── Onboarding adapter ──────────────────────────────────────────────────────

// Flow adapts [Metrics] to [onboarding.Metrics].
type Flow struct {
	m *Metrics
}

var _ onboarding.Metrics = Flow{}

// Flow returns the onboarding adapter for m.
func (m *Metrics) Flow() Flow { return Flow{m: m} }

// StepEntered implements [onboarding.Metrics].
func (f Flow) StepEntered(from, to onboarding.StepID) {
	if from == "" {
		from = "none"
	}
	f.m.StepTransitions.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("from", string(from)),
			attribute.String("to", string(to)),
		),
	)
}

// RecognitionError implements [onboarding.Metrics].
func (f Flow) RecognitionError(kind speech.ErrorKind) {
	f.m.RecognitionErrors.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("kind", string(kind))),
	)
}

// Completed implements [onboarding.Metrics].
func (f Flow) Completed() {
	f.m.Completions.Add(context.Background(), 1)
}
