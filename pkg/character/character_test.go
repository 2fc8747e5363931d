package character_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kodackx/echo-forge-ai/pkg/character"
	"github.com/kodackx/echo-forge-ai/pkg/memory"
	embedmock "github.com/kodackx/echo-forge-ai/pkg/provider/embeddings/mock"
)

// fakeOracle is a minimal character.Oracle for binding tests.
type fakeOracle struct {
	dialogue    string
	dialogueErr error
	lastReq     character.DialogueRequest
}

func (f *fakeOracle) Dialogue(_ context.Context, req character.DialogueRequest) (string, error) {
	f.lastReq = req
	return f.dialogue, f.dialogueErr
}

func (f *fakeOracle) Reflection(_ context.Context, _ character.ReflectionRequest) (string, error) {
	return "a quiet thought", nil
}

func testBank() *memory.Bank {
	return memory.NewBank(&embedmock.Provider{Dim: 4}, memory.NewFlatIndex(), memory.BankConfig{MaxItems: 50})
}

func basePersonality() character.PersonalityModel {
	return character.PersonalityModel{
		Traits: map[string]character.Trait{
			"brave": {Name: "brave", Intensity: 0.8},
		},
		Goals: []character.Goal{
			{Description: "find the lost mine", Priority: 0.9},
		},
		Relationships: map[string]float64{"X": 0.9},
		Role:          character.RoleNPC,
	}
}

// TestUpdateRelationship_Clamp applies deltas of arbitrary magnitude and
// verifies the stored sentiment never leaves [-1, 1].
func TestUpdateRelationship_Clamp(t *testing.T) {
	c := character.New("Elara", basePersonality())

	deltas := []float64{0.5, 3.0, -10.0, 0.25, -0.1, 100}
	for _, d := range deltas {
		c.UpdateRelationship("X", d)
		got := c.Relationship("X")
		if got < -1 || got > 1 {
			t.Fatalf("after delta %v: sentiment = %v, out of [-1, 1]", d, got)
		}
	}
}

// TestApply_RelationshipAbsoluteTarget verifies that an absolute target from
// the oracle is converted to a delta and clamped.
func TestApply_RelationshipAbsoluteTarget(t *testing.T) {
	ctx := context.Background()
	c := character.New("Elara", basePersonality())

	updates, err := character.DecodeUpdates(json.RawMessage(`{"relationships":{"X":1.0}}`))
	if err != nil {
		t.Fatalf("DecodeUpdates() error = %v", err)
	}
	if err := c.Apply(ctx, updates); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := c.Relationship("X"); got > 1.0 {
		t.Errorf("sentiment = %v, want <= 1.0", got)
	}
	if got := c.Relationship("X"); got != 1.0 {
		t.Errorf("sentiment = %v, want exactly 1.0 (0.9 + 0.1 delta)", got)
	}
}

// TestApply_GoalProgressClamp checks stored progress stays in [0, 1]
// whatever the oracle proposes, and that unknown goal descriptions are
// silently dropped.
func TestApply_GoalProgressClamp(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		progress float64
		want     float64
	}{
		{0.4, 0.4},
		{7.5, 1.0},
		{-2.0, 0.0},
	} {
		c := character.New("Elara", basePersonality())
		raw, _ := json.Marshal(map[string]any{
			"goal_updates": []map[string]any{
				{"description": "find the lost mine", "progress": tc.progress},
				{"description": "no such goal", "progress": 0.9},
			},
		})
		updates, err := character.DecodeUpdates(raw)
		if err != nil {
			t.Fatalf("DecodeUpdates() error = %v", err)
		}
		if err := c.Apply(ctx, updates); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		got := c.ExportState().Personality.Goals[0].Progress
		if got != tc.want {
			t.Errorf("progress input %v: stored = %v, want %v", tc.progress, got, tc.want)
		}
	}
}

// TestDecodeUpdates_RejectsUnknownFields ensures a drifting oracle contract
// fails loudly instead of dropping state changes.
func TestDecodeUpdates_RejectsUnknownFields(t *testing.T) {
	_, err := character.DecodeUpdates(json.RawMessage(`{"relationshipz":{"X":0.1}}`))
	if err == nil {
		t.Fatal("DecodeUpdates() with unknown field succeeded, want error")
	}
}

// TestApply_NewKnowledgeStoresTaggedMemory verifies learned facts land in the
// bank under the character's tag.
func TestApply_NewKnowledgeStoresTaggedMemory(t *testing.T) {
	ctx := context.Background()
	bank := testBank()
	c := character.New("Elara", basePersonality())
	if err := c.BindMemory(ctx, bank); err != nil {
		t.Fatalf("BindMemory() error = %v", err)
	}

	updates, err := character.DecodeUpdates(json.RawMessage(`{"new_knowledge":["the mayor lies"]}`))
	if err != nil {
		t.Fatalf("DecodeUpdates() error = %v", err)
	}
	if err := c.Apply(ctx, updates); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	recalled, err := c.Recall(ctx, "mayor", 5)
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}
	if len(recalled) != 1 || recalled[0] != "the mayor lies" {
		t.Errorf("Recall() = %v, want the learned fact", recalled)
	}
}

// TestBindingErrors verifies learn/recall/speak fail with ErrNotBound before
// binding, and that speak additionally requires the oracle.
func TestBindingErrors(t *testing.T) {
	ctx := context.Background()
	c := character.New("Bram", basePersonality())

	if err := c.Learn(ctx, "a fact", 0.5); !errors.Is(err, character.ErrNotBound) {
		t.Errorf("Learn() error = %v, want ErrNotBound", err)
	}
	if _, err := c.Recall(ctx, "anything", 5); !errors.Is(err, character.ErrNotBound) {
		t.Errorf("Recall() error = %v, want ErrNotBound", err)
	}
	if _, err := c.Speak(ctx, "weather", nil, ""); !errors.Is(err, character.ErrNotBound) {
		t.Errorf("Speak() without bank error = %v, want ErrNotBound", err)
	}

	if err := c.BindMemory(ctx, testBank()); err != nil {
		t.Fatalf("BindMemory() error = %v", err)
	}
	if _, err := c.Speak(ctx, "weather", nil, ""); !errors.Is(err, character.ErrNotBound) {
		t.Errorf("Speak() without oracle error = %v, want ErrNotBound", err)
	}
	if c.Ready() {
		t.Error("Ready() = true with no oracle bound")
	}

	c.BindOracle(&fakeOracle{dialogue: "Well met."})
	if !c.Ready() {
		t.Error("Ready() = false with both bindings in place")
	}
}

// TestBindMemory_FlushesSeedKnowledge checks seed facts become retrievable,
// character-tagged memories at bind time.
func TestBindMemory_FlushesSeedKnowledge(t *testing.T) {
	ctx := context.Background()
	bank := testBank()
	c := character.New("Elara", basePersonality(),
		character.WithInitialKnowledge("the well is cursed", "the smith owes me"))

	if err := c.BindMemory(ctx, bank); err != nil {
		t.Fatalf("BindMemory() error = %v", err)
	}
	if got := bank.Len(); got != 2 {
		t.Fatalf("bank.Len() = %d, want 2", got)
	}

	recalled, err := c.Recall(ctx, "cursed well", 5)
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}
	if len(recalled) != 2 {
		t.Errorf("len(recalled) = %d, want 2", len(recalled))
	}
}

// TestSpeak_PassesPersonalityAndMemories checks the dialogue request carries
// the personality snapshot and the character-scoped memories.
func TestSpeak_PassesPersonalityAndMemories(t *testing.T) {
	ctx := context.Background()
	oracle := &fakeOracle{dialogue: "The mine? Follow the river."}
	c := character.New("Elara", basePersonality(),
		character.WithInitialKnowledge("the mine lies east"))
	if err := c.BindMemory(ctx, testBank()); err != nil {
		t.Fatalf("BindMemory() error = %v", err)
	}
	c.BindOracle(oracle)

	line, err := c.Speak(ctx, "the lost mine", map[string]any{"location": "tavern"}, "weary")
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if line != "The mine? Follow the river." {
		t.Errorf("Speak() = %q", line)
	}
	if oracle.lastReq.CharacterName != "Elara" {
		t.Errorf("request character = %q, want Elara", oracle.lastReq.CharacterName)
	}
	if oracle.lastReq.Style != "weary" {
		t.Errorf("request style = %q, want weary", oracle.lastReq.Style)
	}
	if len(oracle.lastReq.Memories) == 0 {
		t.Error("request carried no memories")
	}
	if _, ok := oracle.lastReq.Personality.Traits["brave"]; !ok {
		t.Error("request personality missing trait snapshot")
	}
}

// TestState_RoundTrip exports a character and rebuilds it, verifying the
// personality and seed knowledge survive.
func TestState_RoundTrip(t *testing.T) {
	c := character.New("Elara", basePersonality(),
		character.WithInitialKnowledge("the well is cursed"))
	c.UpdateRelationship("Bram", -0.4)

	st := c.ExportState()
	raw, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded character.State
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	rebuilt := character.FromState(decoded)
	if rebuilt.Name() != "Elara" {
		t.Errorf("Name() = %q, want Elara", rebuilt.Name())
	}
	if got := rebuilt.Relationship("Bram"); got != -0.4 {
		t.Errorf("Relationship(Bram) = %v, want -0.4", got)
	}
	if got := rebuilt.Relationship("X"); got != 0.9 {
		t.Errorf("Relationship(X) = %v, want 0.9", got)
	}
	again := rebuilt.ExportState()
	if len(again.InitialKnowledge) != 1 || again.InitialKnowledge[0] != "the well is cursed" {
		t.Errorf("InitialKnowledge = %v", again.InitialKnowledge)
	}
}
