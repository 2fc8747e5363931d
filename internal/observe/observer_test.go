package observe

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/kodackx/echo-forge-ai/pkg/story"
)

func TestTurnObserver_RecordsLifecycle(t *testing.T) {
	m, reader := newTestMetrics(t)
	obs := NewTurnObserver(m, slog.New(slog.DiscardHandler))

	obs.TurnStarted("open the door")
	obs.ChoiceMatched("open the door", "Open the door", 0.94)
	obs.TurnCompleted(story.Beat{Text: "It creaks open.", Choices: []string{"Enter", "Run"}}, 1500*time.Millisecond)
	obs.TurnFailed("oracle", errors.New("backend down"))

	rm := collect(t, reader)

	met := findMetric(rm, "echoforge.turns")
	if met == nil {
		t.Fatal("turns metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("turns is not a sum")
	}
	// One data point per status, one turn each.
	if len(sum.DataPoints) != 2 {
		t.Fatalf("data points = %d, want 2 (ok and error)", len(sum.DataPoints))
	}
	for _, dp := range sum.DataPoints {
		if dp.Value != 1 {
			t.Errorf("counter value = %d, want 1", dp.Value)
		}
	}

	met = findMetric(rm, "echoforge.turn.failures")
	if met == nil {
		t.Fatal("failures metric not found")
	}
	fsum := met.Data.(metricdata.Sum[int64])
	if fsum.DataPoints[0].Value != 1 {
		t.Errorf("failure count = %d, want 1", fsum.DataPoints[0].Value)
	}

	met = findMetric(rm, "echoforge.choice.score")
	if met == nil {
		t.Fatal("score metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if got := hist.DataPoints[0].Sum; got != 0.94 {
		t.Errorf("score sum = %v, want 0.94", got)
	}
}

func TestTurnObserver_GaugesAndCompactions(t *testing.T) {
	m, reader := newTestMetrics(t)
	obs := NewTurnObserver(m, slog.New(slog.DiscardHandler))

	obs.StoryOpened()
	obs.StoryOpened()
	obs.CharacterJoined("Greta", "npc")
	obs.CharacterJoined("Arden", "player")
	obs.ChapterCompacted(6)
	obs.StoryClosed(1)

	rm := collect(t, reader)

	counts := []struct {
		name string
		want int64
	}{
		{"echoforge.active_stories", 1},
		{"echoforge.active_characters", 1},
		{"echoforge.graph.compactions", 1},
	}
	for _, tc := range counts {
		met := findMetric(rm, tc.name)
		if met == nil {
			t.Fatalf("metric %q not found", tc.name)
		}
		sum, ok := met.Data.(metricdata.Sum[int64])
		if !ok {
			t.Fatalf("metric %q is not a sum", tc.name)
		}
		if got := sum.DataPoints[0].Value; got != tc.want {
			t.Errorf("%s = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestTurnObserver_Defaults(t *testing.T) {
	obs := NewTurnObserver(nil, nil)
	if obs.metrics == nil {
		t.Error("metrics not defaulted")
	}
	if obs.log == nil {
		t.Error("logger not defaulted")
	}
}
