// Package observe provides application-wide observability primitives for
// Echo Forge: OpenTelemetry metrics and a [story.Observer] implementation
// that records turn telemetry.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Echo Forge metrics.
const meterName = "github.com/kodackx/echo-forge-ai"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks end-to-end story turn latency, from user input to
	// the returned beat. Use with attribute.String("status", ...).
	TurnDuration metric.Float64Histogram

	// OracleDuration tracks LLM-backed generation latency per call kind.
	// Use with attribute.String("kind", ...) — "beat", "dialogue",
	// "reflection", or "summary".
	OracleDuration metric.Float64Histogram

	// ChoiceScore tracks the similarity score of fuzzy choice matches.
	ChoiceScore metric.Float64Histogram

	// --- Counters ---

	// Turns counts completed story turns. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	Turns metric.Int64Counter

	// TurnFailures counts aborted turns by pipeline stage. Use with attribute:
	//   attribute.String("stage", ...)
	TurnFailures metric.Int64Counter

	// ChoiceMatches counts user inputs resolved to a declared branch choice.
	ChoiceMatches metric.Int64Counter

	// Compactions counts chapter compaction runs.
	Compactions metric.Int64Counter

	// --- Gauges ---

	// ActiveStories tracks the number of live story sessions.
	ActiveStories metric.Int64UpDownCounter

	// ActiveCharacters tracks the number of characters registered across all
	// live sessions.
	ActiveCharacters metric.Int64UpDownCounter
}

// turnBuckets defines histogram bucket boundaries (in seconds) sized for
// LLM-bound turn latencies.
var turnBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// scoreBuckets covers the [0, 1] similarity range of choice matching.
var scoreBuckets = []float64{
	0.5, 0.6, 0.7, 0.8, 0.86, 0.9, 0.95, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("echoforge.turn.duration",
		metric.WithDescription("End-to-end story turn latency by status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(turnBuckets...),
	); err != nil {
		return nil, err
	}
	if met.OracleDuration, err = m.Float64Histogram("echoforge.oracle.duration",
		metric.WithDescription("LLM generation latency by call kind."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(turnBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChoiceScore, err = m.Float64Histogram("echoforge.choice.score",
		metric.WithDescription("Similarity score of resolved choice matches."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("echoforge.turns",
		metric.WithDescription("Total story turns by status."),
	); err != nil {
		return nil, err
	}
	if met.TurnFailures, err = m.Int64Counter("echoforge.turn.failures",
		metric.WithDescription("Total aborted turns by pipeline stage."),
	); err != nil {
		return nil, err
	}
	if met.ChoiceMatches, err = m.Int64Counter("echoforge.choice.matches",
		metric.WithDescription("Total user inputs resolved to a declared choice."),
	); err != nil {
		return nil, err
	}
	if met.Compactions, err = m.Int64Counter("echoforge.graph.compactions",
		metric.WithDescription("Total chapter compaction runs."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStories, err = m.Int64UpDownCounter("echoforge.active_stories",
		metric.WithDescription("Number of live story sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCharacters, err = m.Int64UpDownCounter("echoforge.active_characters",
		metric.WithDescription("Number of registered characters across sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordTurn records a completed turn with its duration and status.
func (m *Metrics) RecordTurn(ctx context.Context, seconds float64, status string) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.Turns.Add(ctx, 1, attrs)
	m.TurnDuration.Record(ctx, seconds, attrs)
}

// RecordTurnFailure records an aborted turn against the stage that failed.
func (m *Metrics) RecordTurnFailure(ctx context.Context, stage string) {
	m.TurnFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordChoiceMatch records a resolved choice match and its similarity score.
func (m *Metrics) RecordChoiceMatch(ctx context.Context, score float64) {
	m.ChoiceMatches.Add(ctx, 1)
	m.ChoiceScore.Record(ctx, score)
}

// RecordCompaction records one chapter compaction run.
func (m *Metrics) RecordCompaction(ctx context.Context) {
	m.Compactions.Add(ctx, 1)
}

// RecordOracleCall records the latency of an LLM-backed generation call.
func (m *Metrics) RecordOracleCall(ctx context.Context, kind string, seconds float64) {
	m.OracleDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
