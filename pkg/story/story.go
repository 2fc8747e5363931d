// Package story implements the narrative orchestrator: the top-level control
// loop that turns player input into the next story beat. Each turn retrieves
// relevant memories, assembles a bounded context, invokes the generation
// oracle, applies the returned character deltas, advances the story graph,
// and persists the new beat as a memory.
//
// A [Story] serialises its turns internally; at most one Start or Advance
// call makes progress at a time.
package story

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kodackx/echo-forge-ai/pkg/character"
	"github.com/kodackx/echo-forge-ai/pkg/graph"
	"github.com/kodackx/echo-forge-ai/pkg/memory"
)

// ─────────────────────────────────────────────────────────────────────────────
// Errors
// ─────────────────────────────────────────────────────────────────────────────

// ErrNotStarted is returned when Advance is called before Start.
var ErrNotStarted = errors.New("story: not started, call Start first")

// ErrDuplicateCharacter is returned when a character name is registered
// twice. Names identify characters in oracle updates, so a collision is a
// configuration error rather than a silent replacement.
var ErrDuplicateCharacter = errors.New("story: duplicate character name")

// ErrDuplicatePlayer is returned when a second character with the player
// role is registered.
var ErrDuplicatePlayer = errors.New("story: player role already assigned")

// ─────────────────────────────────────────────────────────────────────────────
// Oracle contract
// ─────────────────────────────────────────────────────────────────────────────

// BeatResult is the structured outcome of a beat-generation call.
type BeatResult struct {
	// Text is the next narrative passage.
	Text string

	// Choices are the follow-up options offered to the player.
	Choices []string

	// CharacterUpdates maps character name to a raw update delta, decoded
	// and applied by the orchestrator. Unknown names are ignored.
	CharacterUpdates map[string]json.RawMessage

	// Metadata carries any further side-effect payload untouched.
	Metadata map[string]any
}

// BeatOracle generates the next story beat from an assembled context. The
// concrete implementation lives in pkg/oracle.
type BeatOracle interface {
	GenerateBeat(ctx context.Context, asm AssembledContext) (BeatResult, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Story
// ─────────────────────────────────────────────────────────────────────────────

const (
	defaultSummaryWindow = 3
	defaultPathDepth     = 10
)

// Config holds a story's tuning. The zero value is usable; every numeric
// field has a sensible default.
type Config struct {
	// Title names the story.
	Title string `json:"title"`

	// Description is an optional synopsis.
	Description string `json:"description,omitempty"`

	// RetrievalLimit caps the memories retrieved per turn. Zero means the
	// memory bank's default.
	RetrievalLimit int `json:"retrieval_limit,omitempty"`

	// SummaryWindow caps the chapter summaries included per turn. Zero
	// means 3.
	SummaryWindow int `json:"summary_window,omitempty"`

	// MatchThreshold tunes the fuzzy choice matcher. Zero means the
	// matcher default.
	MatchThreshold float64 `json:"match_threshold,omitempty"`

	// EnableMonologues adds per-NPC internal monologues to the assembled
	// context, at the cost of one reflection oracle call per NPC per
	// turn.
	EnableMonologues bool `json:"enable_monologues,omitempty"`
}

// Deps bundles the collaborators a story is built from. Bank, Graph, and
// Oracle are required. CharacterOracle is optional but characters cannot
// speak or reflect without it.
type Deps struct {
	Bank            *memory.Bank
	Graph           *graph.Graph
	Oracle          BeatOracle
	CharacterOracle character.Oracle
	Observer        Observer
	Logger          *slog.Logger
}

// Beat is one unit of narrative progression as surfaced to the caller.
type Beat struct {
	Text             string         `json:"text"`
	Choices          []string       `json:"choices"`
	GeneratedContent map[string]any `json:"generated_content,omitempty"`
}

// Story is the narrative orchestrator. It owns exactly one graph, one memory
// bank, and the character roster, and serialises all turn progression.
type Story struct {
	mu sync.Mutex

	cfg     Config
	log     *slog.Logger
	obs     Observer
	matcher *ChoiceMatcher

	bank       *memory.Bank
	graph      *graph.Graph
	oracle     BeatOracle
	charOracle character.Oracle

	characters map[string]*character.Character
	order      []string

	current *graph.StoryNode
}

// New creates a story from its configuration and collaborators.
func New(cfg Config, deps Deps) (*Story, error) {
	switch {
	case deps.Bank == nil:
		return nil, errors.New("story: nil memory bank")
	case deps.Graph == nil:
		return nil, errors.New("story: nil graph")
	case deps.Oracle == nil:
		return nil, errors.New("story: nil beat oracle")
	}
	if cfg.SummaryWindow <= 0 {
		cfg.SummaryWindow = defaultSummaryWindow
	}
	if cfg.RetrievalLimit <= 0 {
		cfg.RetrievalLimit = memory.DefaultRetrievalLimit
	}

	s := &Story{
		cfg:        cfg,
		log:        deps.Logger,
		obs:        deps.Observer,
		matcher:    NewChoiceMatcher(cfg.MatchThreshold),
		bank:       deps.Bank,
		graph:      deps.Graph,
		oracle:     deps.Oracle,
		charOracle: deps.CharacterOracle,
		characters: make(map[string]*character.Character),
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.obs == nil {
		s.obs = NopObserver{}
	}
	return s, nil
}

// AddCharacter registers a character and binds it to the story's shared
// memory bank and oracle. Seed knowledge is flushed into the bank
// synchronously. Name collisions and a second player-role character are
// configuration errors.
func (s *Story) AddCharacter(ctx context.Context, ch *character.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := ch.Name()
	if _, exists := s.characters[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateCharacter, name)
	}
	if ch.Role() == character.RolePlayer {
		if existing := s.playerName(); existing != "" {
			return fmt.Errorf("%w: %q and %q", ErrDuplicatePlayer, existing, name)
		}
	}

	if err := ch.BindMemory(ctx, s.bank); err != nil {
		return fmt.Errorf("story: add character %q: %w", name, err)
	}
	if s.charOracle != nil {
		ch.BindOracle(s.charOracle)
	}

	s.characters[name] = ch
	s.order = append(s.order, name)
	s.obs.CharacterJoined(name, string(ch.Role()))
	s.log.Info("character joined story", "character", name, "role", string(ch.Role()))
	return nil
}

// Character returns a registered character by name.
func (s *Story) Character(name string) (*character.Character, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.characters[name]
	return ch, ok
}

// Characters returns the registered character names in registration order.
func (s *Story) Characters() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Start positions the story at an entry node and returns its content and
// declared choices as the opening beat. No oracle call is made. Pass
// uuid.Nil for the default (first-registered) entry node.
func (s *Story) Start(ctx context.Context, entryID uuid.UUID) (Beat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.graph.EntryNode(entryID)
	if err != nil {
		return Beat{}, fmt.Errorf("story: start: %w", err)
	}
	s.current = entry

	initial := s.graph.InitialBeat(entry)
	s.log.Info("story started", "title", s.cfg.Title, "entry_node", entry.ID, "choices", len(initial.Choices))
	return Beat{Text: initial.Text, Choices: initial.Choices}, nil
}

// Current returns the beat for the node the story currently sits on,
// without advancing or resetting anything. Useful for re-presenting the
// scene after a state load.
func (s *Story) Current() (Beat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Beat{}, ErrNotStarted
	}
	b := s.graph.InitialBeat(s.current)
	return Beat{Text: b.Text, Choices: b.Choices}, nil
}

// Advance runs one full narrative turn for the given player input. On any
// failure the turn aborts with the graph and the current position
// untouched, so the pre-turn state remains valid for retry: assembly, the
// oracle call, update decoding, chapter summarisation, and the beat-memory
// store all happen before the staged graph nodes go live.
func (s *Story) Advance(ctx context.Context, userInput string) (Beat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Beat{}, ErrNotStarted
	}
	s.obs.TurnStarted(userInput)
	start := time.Now()

	input := userInput
	if choice, score, ok := s.matcher.Match(userInput, s.current.Choices()); ok {
		s.obs.ChoiceMatched(userInput, choice, score)
		s.log.Debug("input matched declared choice", "input", userInput, "choice", choice, "score", score)
		input = choice
	}

	asm, err := s.assemble(ctx, input)
	if err != nil {
		s.obs.TurnFailed("assemble", err)
		return Beat{}, err
	}

	result, err := s.oracle.GenerateBeat(ctx, asm)
	if err != nil {
		s.obs.TurnFailed("oracle", err)
		return Beat{}, fmt.Errorf("story: generate beat: %w", err)
	}

	// Decode every delta before applying any, so one malformed update
	// aborts the turn with no character touched.
	batch, err := s.decodeUpdates(result.CharacterUpdates)
	if err != nil {
		s.obs.TurnFailed("decode_updates", err)
		return Beat{}, err
	}

	// Stage the graph advance before applying anything: the summariser
	// call for a pending compaction happens here, and a failure leaves
	// the whole turn untouched.
	staged, err := s.graph.StageInput(ctx, s.current, input, graph.GeneratedBeat{
		Text:     result.Text,
		Choices:  result.Choices,
		Metadata: result.Metadata,
	})
	if err != nil {
		s.obs.TurnFailed("graph", err)
		return Beat{}, err
	}

	for _, p := range batch {
		if err := p.ch.Apply(ctx, p.updates); err != nil {
			s.obs.TurnFailed("apply_updates", err)
			return Beat{}, fmt.Errorf("story: apply updates for %q: %w", p.ch.Name(), err)
		}
	}

	// Store the beat memory before the staged nodes go live, so a bank
	// failure cannot leave the graph advanced to an uncommitted beat.
	content, md := staged.Beat().ToMemory()
	if err := s.bank.Store(ctx, content, md); err != nil {
		s.obs.TurnFailed("memory", err)
		return Beat{}, fmt.Errorf("story: store beat: %w", err)
	}

	beat := s.graph.CommitInput(staged)
	s.current = beat.Node
	if n := staged.CompactedNodes(); n > 0 {
		s.obs.ChapterCompacted(n)
	}

	out := Beat{Text: beat.Text, Choices: beat.Choices, GeneratedContent: beat.GeneratedContent}
	s.obs.TurnCompleted(out, time.Since(start))
	return out, nil
}

// Path returns the chain of nodes leading to the current position, oldest
// first.
func (s *Story) Path(maxDepth int) ([]*graph.StoryNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNotStarted
	}
	if maxDepth <= 0 {
		maxDepth = defaultPathDepth
	}
	return s.graph.NarrativePath(s.current.ID, maxDepth)
}

type pendingUpdate struct {
	ch      *character.Character
	updates []character.Update
}

func (s *Story) decodeUpdates(raw map[string]json.RawMessage) ([]pendingUpdate, error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	batch := make([]pendingUpdate, 0, len(names))
	for _, name := range names {
		ch, ok := s.characters[name]
		if !ok {
			s.log.Debug("update for unknown character ignored", "character", name)
			continue
		}
		updates, err := character.DecodeUpdates(raw[name])
		if err != nil {
			return nil, fmt.Errorf("story: updates for %q: %w", name, err)
		}
		batch = append(batch, pendingUpdate{ch: ch, updates: updates})
	}
	return batch, nil
}

func (s *Story) playerName() string {
	for _, name := range s.order {
		if s.characters[name].Role() == character.RolePlayer {
			return name
		}
	}
	return ""
}
