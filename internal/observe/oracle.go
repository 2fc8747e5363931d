package observe

import (
	"context"
	"time"

	"github.com/kodackx/echo-forge-ai/pkg/character"
	"github.com/kodackx/echo-forge-ai/pkg/graph"
	"github.com/kodackx/echo-forge-ai/pkg/story"
)

// GenerationBackend is the full oracle surface the engine consumes: story
// beats, character dialogue and reflections, and chapter summaries.
type GenerationBackend interface {
	story.BeatOracle
	character.Oracle
	graph.Summariser
}

// InstrumentedOracle decorates a [GenerationBackend] with per-kind latency
// recording on [Metrics.OracleDuration]. Failed calls are recorded too; the
// latency of an errored LLM call is still operator signal.
type InstrumentedOracle struct {
	inner   GenerationBackend
	metrics *Metrics
}

var _ GenerationBackend = (*InstrumentedOracle)(nil)

// NewInstrumentedOracle wraps inner. A nil metrics falls back to
// [DefaultMetrics].
func NewInstrumentedOracle(inner GenerationBackend, metrics *Metrics) *InstrumentedOracle {
	if metrics == nil {
		metrics = DefaultMetrics()
	}
	return &InstrumentedOracle{inner: inner, metrics: metrics}
}

// GenerateBeat implements story.BeatOracle.
func (o *InstrumentedOracle) GenerateBeat(ctx context.Context, asm story.AssembledContext) (story.BeatResult, error) {
	start := time.Now()
	result, err := o.inner.GenerateBeat(ctx, asm)
	o.metrics.RecordOracleCall(ctx, "beat", time.Since(start).Seconds())
	return result, err
}

// Dialogue implements character.Oracle.
func (o *InstrumentedOracle) Dialogue(ctx context.Context, req character.DialogueRequest) (string, error) {
	start := time.Now()
	line, err := o.inner.Dialogue(ctx, req)
	o.metrics.RecordOracleCall(ctx, "dialogue", time.Since(start).Seconds())
	return line, err
}

// Reflection implements character.Oracle.
func (o *InstrumentedOracle) Reflection(ctx context.Context, req character.ReflectionRequest) (string, error) {
	start := time.Now()
	line, err := o.inner.Reflection(ctx, req)
	o.metrics.RecordOracleCall(ctx, "reflection", time.Since(start).Seconds())
	return line, err
}

// Summarise implements graph.Summariser.
func (o *InstrumentedOracle) Summarise(ctx context.Context, passages []string) (string, error) {
	start := time.Now()
	summary, err := o.inner.Summarise(ctx, passages)
	o.metrics.RecordOracleCall(ctx, "summary", time.Since(start).Seconds())
	return summary, err
}
