package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kodackx/echo-forge-ai/pkg/story"
)

// ErrMalformedResponse is returned when the model's reply does not satisfy
// the structured JSON contract. This is a hard failure: the turn aborts
// rather than guessing at the narrator's intent.
var ErrMalformedResponse = errors.New("oracle: malformed model response")

// beatWire mirrors the JSON object the beat prompt demands.
type beatWire struct {
	Text     string          `json:"text"`
	Choices  []string        `json:"choices"`
	Metadata json.RawMessage `json:"metadata"`
}

// parseBeat validates and converts a raw model reply into a
// [story.BeatResult]. Character updates are split out of the metadata so the
// orchestrator can decode them strictly; the remaining metadata passes
// through untouched.
func parseBeat(content string) (story.BeatResult, error) {
	cleaned := stripMarkdown(content)

	var wire beatWire
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return story.BeatResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(wire.Text) == "" {
		return story.BeatResult{}, fmt.Errorf("%w: empty text field", ErrMalformedResponse)
	}

	result := story.BeatResult{
		Text:    wire.Text,
		Choices: wire.Choices,
	}

	if len(wire.Metadata) > 0 {
		var updates struct {
			CharacterUpdates map[string]json.RawMessage `json:"character_updates"`
		}
		if err := json.Unmarshal(wire.Metadata, &updates); err != nil {
			return story.BeatResult{}, fmt.Errorf("%w: metadata: %v", ErrMalformedResponse, err)
		}
		result.CharacterUpdates = updates.CharacterUpdates

		var rest map[string]any
		if err := json.Unmarshal(wire.Metadata, &rest); err != nil {
			return story.BeatResult{}, fmt.Errorf("%w: metadata: %v", ErrMalformedResponse, err)
		}
		delete(rest, "character_updates")
		if len(rest) > 0 {
			result.Metadata = rest
		}
	}
	return result, nil
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models wrap around JSON output despite instructions.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
