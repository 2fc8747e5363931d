package character

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Update is one state-change command proposed by the generation oracle.
// Exactly three kinds exist: [RelationshipTarget], [GoalProgress], and
// [NewKnowledge]. [Character.Apply] dispatches over them exhaustively.
type Update interface {
	isUpdate()
}

// RelationshipTarget sets a character's sentiment toward Name to an absolute
// target. Application converts the target to a delta against the current
// value and clamps the result to [-1, 1].
type RelationshipTarget struct {
	// Name is the other character.
	Name string

	// Sentiment is the absolute target value.
	Sentiment float64
}

func (RelationshipTarget) isUpdate() {}

// GoalProgress moves the progress of the goal whose description exactly
// matches Description. The first matching goal wins; when no goal matches
// the command is silently dropped.
type GoalProgress struct {
	Description string
	Progress    float64
}

func (GoalProgress) isUpdate() {}

// NewKnowledge records a fact the character has just learned. Application
// stores it in the bound memory bank tagged with the character's name.
type NewKnowledge struct {
	Fact string
}

func (NewKnowledge) isUpdate() {}

// updateSetWire is the oracle's JSON shape for one character's updates.
type updateSetWire struct {
	Relationships map[string]float64 `json:"relationships"`
	GoalUpdates   []goalUpdateWire   `json:"goal_updates"`
	NewKnowledge  []string           `json:"new_knowledge"`
}

type goalUpdateWire struct {
	Description string  `json:"description"`
	Progress    float64 `json:"progress"`
}

// DecodeUpdates parses one character's update payload from oracle response
// metadata into typed commands. Unknown fields are rejected rather than
// ignored, so a drifting response contract surfaces as a hard failure instead
// of silently dropped state changes.
//
// The returned commands are deterministic: relationship targets sorted by
// name, then goal updates in payload order, then new knowledge in payload
// order.
func DecodeUpdates(raw json.RawMessage) ([]Update, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var wire updateSetWire
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("character: decode updates: %w", err)
	}

	var updates []Update

	names := make([]string, 0, len(wire.Relationships))
	for name := range wire.Relationships {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		updates = append(updates, RelationshipTarget{Name: name, Sentiment: wire.Relationships[name]})
	}

	for _, g := range wire.GoalUpdates {
		updates = append(updates, GoalProgress{Description: g.Description, Progress: g.Progress})
	}
	for _, k := range wire.NewKnowledge {
		updates = append(updates, NewKnowledge{Fact: k})
	}
	return updates, nil
}
