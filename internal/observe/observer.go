package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kodackx/echo-forge-ai/pkg/story"
)

// TurnObserver implements [story.Observer] on top of a [Metrics] instance,
// recording turn outcomes, failure stages, and choice-match scores. It also
// mirrors turn lifecycle events to a structured logger at debug level.
//
// Observer callbacks carry no context, so instruments record against
// [context.Background].
type TurnObserver struct {
	metrics *Metrics
	log     *slog.Logger
}

var _ story.Observer = (*TurnObserver)(nil)

// NewTurnObserver creates a TurnObserver. A nil metrics falls back to
// [DefaultMetrics]; a nil logger falls back to [slog.Default].
func NewTurnObserver(metrics *Metrics, log *slog.Logger) *TurnObserver {
	if metrics == nil {
		metrics = DefaultMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &TurnObserver{metrics: metrics, log: log}
}

func (o *TurnObserver) TurnStarted(userInput string) {
	o.log.Debug("turn started", "input_len", len(userInput))
}

func (o *TurnObserver) ChoiceMatched(input, choice string, score float64) {
	o.metrics.RecordChoiceMatch(context.Background(), score)
	o.log.Debug("choice matched", "choice", choice, "score", score)
}

func (o *TurnObserver) TurnFailed(stage string, err error) {
	ctx := context.Background()
	o.metrics.RecordTurnFailure(ctx, stage)
	o.metrics.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
	o.log.Warn("turn failed", "stage", stage, "error", err)
}

func (o *TurnObserver) TurnCompleted(beat story.Beat, elapsed time.Duration) {
	o.metrics.RecordTurn(context.Background(), elapsed.Seconds(), "ok")
	o.log.Debug("turn completed",
		"elapsed", elapsed,
		"choices", len(beat.Choices),
	)
}

func (o *TurnObserver) CharacterJoined(name, role string) {
	o.metrics.ActiveCharacters.Add(context.Background(), 1)
	o.log.Debug("character joined", "character", name, "role", role)
}

func (o *TurnObserver) ChapterCompacted(archivedNodes int) {
	o.metrics.RecordCompaction(context.Background())
	o.log.Debug("chapter compacted", "archived_nodes", archivedNodes)
}

// StoryOpened and StoryClosed maintain the live-session gauges. They are
// not part of [story.Observer]; the command wiring calls them around story
// construction and teardown. StoryClosed takes the closing story's
// character count so the character gauge unwinds with it.
func (o *TurnObserver) StoryOpened() {
	o.metrics.ActiveStories.Add(context.Background(), 1)
}

func (o *TurnObserver) StoryClosed(characters int) {
	ctx := context.Background()
	o.metrics.ActiveStories.Add(ctx, -1)
	o.metrics.ActiveCharacters.Add(ctx, -int64(characters))
}
