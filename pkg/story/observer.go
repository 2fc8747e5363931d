package story

import "time"

// Observer receives callbacks at defined turn boundaries. It is injected at
// construction so telemetry stays out of the narrative engine itself; the
// OpenTelemetry-backed implementation lives in internal/observe.
//
// Callbacks run synchronously on the turn path and must be cheap.
type Observer interface {
	// TurnStarted fires at the top of every Advance call, before any work.
	TurnStarted(userInput string)

	// ChoiceMatched fires when free-form user input was resolved to one of
	// the current node's declared choices.
	ChoiceMatched(input, choice string, score float64)

	// TurnFailed fires when a turn aborts. The stage names the phase that
	// failed: "assemble", "oracle", "decode_updates", "graph",
	// "apply_updates", or "memory".
	TurnFailed(stage string, err error)

	// TurnCompleted fires after a successful turn, with the beat returned
	// to the caller and the wall-clock duration of the whole turn.
	TurnCompleted(beat Beat, elapsed time.Duration)

	// CharacterJoined fires when a character is registered on the story,
	// including characters restored from a saved state.
	CharacterJoined(name, role string)

	// ChapterCompacted fires after a turn whose commit archived old graph
	// nodes into a chapter summary.
	ChapterCompacted(archivedNodes int)
}

// NopObserver is the default Observer; it discards every callback.
type NopObserver struct{}

var _ Observer = NopObserver{}

func (NopObserver) TurnStarted(string)                    {}
func (NopObserver) ChoiceMatched(string, string, float64) {}
func (NopObserver) TurnFailed(string, error)              {}
func (NopObserver) TurnCompleted(Beat, time.Duration)     {}
func (NopObserver) CharacterJoined(string, string)        {}
func (NopObserver) ChapterCompacted(int)                  {}
