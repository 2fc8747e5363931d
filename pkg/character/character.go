package character

import (
	"context"
	"errors"
	"fmt"

	"github.com/kodackx/echo-forge-ai/pkg/memory"
)

// ErrNotBound is returned when a character operation requiring the memory
// bank or the oracle runs before the corresponding binding. This is a
// programming error in the caller's wiring, never retried.
var ErrNotBound = errors.New("character not bound")

// defaultImportance is the importance tag applied by Learn when the caller
// does not care.
const defaultImportance = 0.5

// DialogueRequest carries everything the oracle needs to voice a character.
type DialogueRequest struct {
	// CharacterName is the speaker.
	CharacterName string

	// Personality is a snapshot of the speaker's state.
	Personality PersonalityModel

	// Topic is the prompt or subject of the dialogue.
	Topic string

	// Memories are the speaker's relevant memory contents.
	Memories []string

	// Context is optional scene information.
	Context map[string]any

	// Style is an optional delivery override (e.g. "angry", "formal").
	Style string
}

// ReflectionRequest asks the oracle for a character's internal monologue
// about a situation.
type ReflectionRequest struct {
	CharacterName string
	Personality   PersonalityModel
	Situation     string
	Memories      []string
}

// Oracle is the slice of the generation oracle a character needs. The
// concrete implementation lives in pkg/oracle.
type Oracle interface {
	// Dialogue generates spoken lines for a character.
	Dialogue(ctx context.Context, req DialogueRequest) (string, error)

	// Reflection generates a character's private internal monologue.
	Reflection(ctx context.Context, req ReflectionRequest) (string, error)
}

// Context is the personality snapshot handed to the context assembler each
// turn. It deliberately excludes memory contents and embeddings; retrieval
// snippets travel separately.
type Context struct {
	Name          string             `json:"name"`
	Role          Role               `json:"role"`
	Archetype     string             `json:"archetype,omitempty"`
	Background    string             `json:"background,omitempty"`
	Traits        map[string]Trait   `json:"traits"`
	Goals         []Goal             `json:"goals"`
	Relationships map[string]float64 `json:"relationships"`
}

// State is the serialisable snapshot of a character.
type State struct {
	Name             string           `json:"name"`
	Personality      PersonalityModel `json:"personality"`
	InitialKnowledge []string         `json:"initial_knowledge"`
}

// Character is a story participant with persistent personality state.
//
// A character is created standalone and becomes valid for dialogue and
// learning operations only after both BindMemory and BindOracle have run;
// the two bindings are independent readiness flags.
type Character struct {
	name             string
	personality      PersonalityModel
	initialKnowledge []string
	seedsFlushed     bool

	bank   *memory.Bank
	oracle Oracle
}

// Option is a functional option for [New].
type Option func(*Character)

// WithInitialKnowledge seeds facts that are flushed into the memory bank
// when the character is bound to one.
func WithInitialKnowledge(facts ...string) Option {
	return func(c *Character) {
		c.initialKnowledge = append(c.initialKnowledge, facts...)
	}
}

// New creates a character with the given personality. The personality is
// normalised on entry: intensities, priorities, progress, and sentiments are
// clamped to their ranges and a missing role defaults to NPC.
func New(name string, personality PersonalityModel, opts ...Option) *Character {
	personality.normalise()
	c := &Character{name: name, personality: personality}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FromState reconstructs a character from a saved snapshot. The result is
// unbound; callers rebind memory and oracle before use. Seed knowledge is
// assumed to already live in the restored memory bank, so rebinding does not
// flush it a second time.
func FromState(st State) *Character {
	c := New(st.Name, st.Personality, WithInitialKnowledge(st.InitialKnowledge...))
	c.seedsFlushed = true
	return c
}

// Name returns the character's unique name.
func (c *Character) Name() string { return c.name }

// Role returns the character's narrative role.
func (c *Character) Role() Role { return c.personality.Role }

// BindMemory attaches the shared memory bank and synchronously flushes the
// character's seed knowledge into it. The flush happens at most once; a
// character restored via [FromState] keeps the seeds already present in the
// restored bank instead of storing duplicates.
func (c *Character) BindMemory(ctx context.Context, bank *memory.Bank) error {
	c.bank = bank
	if c.seedsFlushed {
		return nil
	}
	c.seedsFlushed = true
	for _, fact := range c.initialKnowledge {
		err := bank.Store(ctx, fact, memory.Metadata{
			"character": c.name,
			"type":      "initial_knowledge",
		})
		if err != nil {
			return fmt.Errorf("character %q: seed knowledge: %w", c.name, err)
		}
	}
	return nil
}

// BindOracle attaches the generation oracle.
func (c *Character) BindOracle(o Oracle) {
	c.oracle = o
}

// Ready reports whether both bindings are in place.
func (c *Character) Ready() bool {
	return c.bank != nil && c.oracle != nil
}

// Apply executes a batch of typed update commands against the character.
// Dispatch is exhaustive over the three command kinds; an unrecognised
// command type indicates a bug and fails loudly.
func (c *Character) Apply(ctx context.Context, updates []Update) error {
	for _, u := range updates {
		switch cmd := u.(type) {
		case RelationshipTarget:
			// The oracle speaks in absolute targets; convert to a delta so the
			// additive path is the single place clamping happens.
			current := c.personality.Relationships[cmd.Name]
			c.UpdateRelationship(cmd.Name, cmd.Sentiment-current)

		case GoalProgress:
			for i := range c.personality.Goals {
				if c.personality.Goals[i].Description == cmd.Description {
					c.personality.Goals[i].Progress = clamp01(cmd.Progress)
					break
				}
			}

		case NewKnowledge:
			if err := c.Learn(ctx, cmd.Fact, defaultImportance); err != nil {
				return err
			}

		default:
			return fmt.Errorf("character %q: unknown update command %T", c.name, u)
		}
	}
	return nil
}

// UpdateRelationship adds delta to the sentiment toward other and clamps the
// result to [-1, 1].
func (c *Character) UpdateRelationship(other string, delta float64) {
	current := c.personality.Relationships[other]
	c.personality.Relationships[other] = clampSentiment(current + delta)
}

// Relationship returns the current sentiment toward other; zero when the
// characters have no recorded relationship.
func (c *Character) Relationship(other string) float64 {
	return c.personality.Relationships[other]
}

// Learn stores a fact in the bound memory bank tagged with this character.
func (c *Character) Learn(ctx context.Context, knowledge string, importance float64) error {
	if c.bank == nil {
		return fmt.Errorf("character %q: learn: %w (no memory bank)", c.name, ErrNotBound)
	}
	err := c.bank.Store(ctx, knowledge, memory.Metadata{
		"character":  c.name,
		"type":       "learned_knowledge",
		"importance": clamp01(importance),
	})
	if err != nil {
		return fmt.Errorf("character %q: learn: %w", c.name, err)
	}
	return nil
}

// Recall returns the contents of up to limit memories relevant to query,
// scoped to this character's tag.
func (c *Character) Recall(ctx context.Context, query string, limit int) ([]string, error) {
	if c.bank == nil {
		return nil, fmt.Errorf("character %q: recall: %w (no memory bank)", c.name, ErrNotBound)
	}
	mems, err := c.bank.RetrieveRelevant(ctx, query, memory.Metadata{"character": c.name}, limit)
	if err != nil {
		return nil, fmt.Errorf("character %q: recall: %w", c.name, err)
	}
	out := make([]string, len(mems))
	for i, m := range mems {
		out[i] = m.Content
	}
	return out, nil
}

// Speak generates dialogue for the character about topic. Requires both
// bindings.
func (c *Character) Speak(ctx context.Context, topic string, sceneContext map[string]any, style string) (string, error) {
	if c.bank == nil {
		return "", fmt.Errorf("character %q: speak: %w (no memory bank)", c.name, ErrNotBound)
	}
	if c.oracle == nil {
		return "", fmt.Errorf("character %q: speak: %w (no oracle)", c.name, ErrNotBound)
	}

	memories, err := c.Recall(ctx, topic, 0)
	if err != nil {
		return "", err
	}

	line, err := c.oracle.Dialogue(ctx, DialogueRequest{
		CharacterName: c.name,
		Personality:   c.personality.clone(),
		Topic:         topic,
		Memories:      memories,
		Context:       sceneContext,
		Style:         style,
	})
	if err != nil {
		return "", fmt.Errorf("character %q: speak: %w", c.name, err)
	}
	return line, nil
}

// Reflect generates the character's internal monologue about a situation.
// Requires both bindings.
func (c *Character) Reflect(ctx context.Context, situation string) (string, error) {
	if c.bank == nil {
		return "", fmt.Errorf("character %q: reflect: %w (no memory bank)", c.name, ErrNotBound)
	}
	if c.oracle == nil {
		return "", fmt.Errorf("character %q: reflect: %w (no oracle)", c.name, ErrNotBound)
	}

	memories, err := c.Recall(ctx, situation, 0)
	if err != nil {
		return "", err
	}

	thought, err := c.oracle.Reflection(ctx, ReflectionRequest{
		CharacterName: c.name,
		Personality:   c.personality.clone(),
		Situation:     situation,
		Memories:      memories,
	})
	if err != nil {
		return "", fmt.Errorf("character %q: reflect: %w", c.name, err)
	}
	return thought, nil
}

// Context returns the personality snapshot used for context assembly.
func (c *Character) Context() Context {
	snap := c.personality.clone()
	return Context{
		Name:          c.name,
		Role:          snap.Role,
		Archetype:     snap.Archetype,
		Background:    snap.Background,
		Traits:        snap.Traits,
		Goals:         snap.Goals,
		Relationships: snap.Relationships,
	}
}

// ExportState returns a deep snapshot suitable for persistence.
func (c *Character) ExportState() State {
	return State{
		Name:             c.name,
		Personality:      c.personality.clone(),
		InitialKnowledge: append([]string(nil), c.initialKnowledge...),
	}
}
