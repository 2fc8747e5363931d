// Package graph implements the branching narrative graph at the heart of the
// engine. A [Graph] owns every [StoryNode], tracks the entry points a story
// may start from, and keeps the narrative bounded through chapter
// compaction: once the live node count crosses a ceiling, the oldest half of
// the graph is folded into a rolling chapter summary and removed, so the
// per-turn prompt size stays flat no matter how long the story runs.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ─────────────────────────────────────────────────────────────────────────────
// Errors
// ─────────────────────────────────────────────────────────────────────────────

// ErrNotFound is returned when a node id does not resolve to a live node.
var ErrNotFound = errors.New("graph: node not found")

// ErrNoEntryNodes is returned when a story is started against a graph with no
// registered entry points.
var ErrNoEntryNodes = errors.New("graph: no entry nodes defined")

// ErrDuplicateBranch is returned when a choice text is registered twice on
// the same node.
var ErrDuplicateBranch = errors.New("graph: duplicate branch choice")

// ─────────────────────────────────────────────────────────────────────────────
// Summariser
// ─────────────────────────────────────────────────────────────────────────────

// Summariser folds a chapter's worth of narrative passages into one rolling
// summary string. The concrete implementation lives in pkg/oracle.
type Summariser interface {
	Summarise(ctx context.Context, passages []string) (string, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Graph
// ─────────────────────────────────────────────────────────────────────────────

const (
	// defaultMaxLiveNodes bounds the live node map before compaction kicks
	// in. Sized so a full narrative path plus eager placeholders fits in a
	// prompt comfortably.
	defaultMaxLiveNodes = 64

	titleSnippetLen = 50
)

// Config holds the graph's compaction tuning.
type Config struct {
	// MaxLiveNodes is the live-node ceiling that triggers chapter
	// compaction. Zero means the default of 64.
	MaxLiveNodes int
}

// Option is a functional option for configuring a [Graph].
type Option func(*Graph)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(g *Graph) {
		g.log = log
	}
}

// WithSummariser wires the chapter summariser used during compaction.
// Without one, compaction is skipped (with a warning) and the graph grows
// unbounded.
func WithSummariser(s Summariser) Option {
	return func(g *Graph) {
		g.summariser = s
	}
}

// Graph owns the story's node map, entry-point list, and rolling chapter
// summaries. It is not safe for concurrent use; the orchestrator serialises
// access.
type Graph struct {
	log        *slog.Logger
	cfg        Config
	summariser Summariser

	nodes     map[uuid.UUID]*StoryNode
	entries   []uuid.UUID
	summaries []string
}

// New creates an empty graph.
func New(cfg Config, opts ...Option) *Graph {
	if cfg.MaxLiveNodes <= 0 {
		cfg.MaxLiveNodes = defaultMaxLiveNodes
	}
	g := &Graph{
		log:   slog.Default(),
		cfg:   cfg,
		nodes: make(map[uuid.UUID]*StoryNode),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddNode inserts a node into the graph. Re-adding an id overwrites the
// previous node. Entry points are appended to the entry list once.
func (g *Graph) AddNode(n *StoryNode) {
	g.nodes[n.ID] = n
	if n.IsEntryPoint && !g.isEntry(n.ID) {
		g.entries = append(g.entries, n.ID)
	}
}

// Node returns the live node with the given id.
func (g *Graph) Node(id uuid.UUID) (*StoryNode, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("graph: node %s: %w", id, ErrNotFound)
	}
	return n, nil
}

// EntryNode resolves a story starting point. With uuid.Nil it returns the
// first-registered entry node; otherwise the id must exist and be registered
// as an entry point.
func (g *Graph) EntryNode(id uuid.UUID) (*StoryNode, error) {
	if len(g.entries) == 0 {
		return nil, ErrNoEntryNodes
	}
	if id == uuid.Nil {
		return g.Node(g.entries[0])
	}
	if !g.isEntry(id) {
		return nil, fmt.Errorf("graph: entry node %s: %w", id, ErrNotFound)
	}
	return g.Node(id)
}

// Len reports the live node count.
func (g *Graph) Len() int { return len(g.nodes) }

// Summaries returns a copy of the rolling chapter summaries, oldest first.
func (g *Graph) Summaries() []string {
	return append([]string(nil), g.summaries...)
}

// RecentSummaries returns at most window chapter summaries, oldest first,
// preferring the most recent chapters.
func (g *Graph) RecentSummaries(window int) []string {
	if window <= 0 || len(g.summaries) <= window {
		return g.Summaries()
	}
	return append([]string(nil), g.summaries[len(g.summaries)-window:]...)
}

// InitialBeat renders an entry node as the story's opening beat. No oracle
// call is involved; the node's authored content and declared branches are
// returned as-is.
func (g *Graph) InitialBeat(entry *StoryNode) *StoryBeat {
	return &StoryBeat{
		Text:    entry.Content,
		Choices: entry.Choices(),
		Node:    entry,
	}
}

// ProcessInput performs the core branching step for one turn: chapter
// compaction if the live node count is over the ceiling, then exactly one
// new beat node holding the generated narrative text, with one eagerly
// created placeholder child per generated choice so every branch edge
// resolves to a live node the moment it exists.
//
// A compaction failure aborts the call before any node is created, leaving
// the graph exactly as it was. Callers that need to interleave other
// fallible work between building the beat and making it live use
// [Graph.StageInput] and [Graph.CommitInput] instead.
func (g *Graph) ProcessInput(ctx context.Context, current *StoryNode, userInput string, result GeneratedBeat) (*StoryBeat, error) {
	staged, err := g.StageInput(ctx, current, userInput, result)
	if err != nil {
		return nil, err
	}
	return g.CommitInput(staged), nil
}

// StagedBeat is a fully-built turn advance that has not been applied to the
// graph yet. Everything fallible (the summariser call for a pending
// compaction) happens during staging; committing is pure map bookkeeping.
type StagedBeat struct {
	beat         *StoryBeat
	placeholders []*StoryNode
	compaction   *compactionPlan
}

// Beat returns the staged story beat. The node it references is not live
// until the stage is committed.
func (sb *StagedBeat) Beat() *StoryBeat { return sb.beat }

// CompactedNodes reports how many live nodes the commit will archive.
func (sb *StagedBeat) CompactedNodes() int {
	if sb.compaction == nil {
		return 0
	}
	return len(sb.compaction.victims)
}

// StageInput builds the branching step for one turn without mutating the
// graph. Compaction is planned against the projected node count, so the
// beat node and its eager placeholders never push the graph past the
// ceiling, and the summariser runs here: a summariser failure aborts the
// staging with the graph exactly as it was.
func (g *Graph) StageInput(ctx context.Context, current *StoryNode, userInput string, result GeneratedBeat) (*StagedBeat, error) {
	incoming := 1 + len(result.Choices)
	plan, err := g.planCompaction(ctx, current.ID, incoming)
	if err != nil {
		return nil, fmt.Errorf("graph: stage input: %w", err)
	}

	beatNode := NewNode(
		"Response to: "+snippet(userInput),
		result.Text,
		WithTags(append([]string(nil), current.Tags...)...),
		WithThread(current.StoryThread),
		WithDepth(current.Depth+1),
	)

	choices := make([]string, 0, len(result.Choices))
	placeholders := make([]*StoryNode, 0, len(result.Choices))
	for _, choice := range result.Choices {
		placeholder := NewNode(
			"Choice: "+snippet(choice),
			PlaceholderContent,
			WithTags(append([]string(nil), current.Tags...)...),
			WithThread(current.StoryThread),
			WithDepth(beatNode.Depth+1),
		)
		if err := beatNode.AddBranch(choice, placeholder.ID); err != nil {
			// Two identical choice texts in one result. Keep the
			// first edge and drop the repeat.
			g.log.Warn("duplicate choice in generated beat, keeping first",
				"choice", choice, "node_id", beatNode.ID)
			continue
		}
		placeholders = append(placeholders, placeholder)
		choices = append(choices, choice)
	}

	return &StagedBeat{
		beat: &StoryBeat{
			Text:             result.Text,
			Choices:          choices,
			GeneratedContent: result.Metadata,
			Node:             beatNode,
		},
		placeholders: placeholders,
		compaction:   plan,
	}, nil
}

// CommitInput applies a staged beat: the planned compaction runs, then the
// beat node and its placeholders go live. It cannot fail.
func (g *Graph) CommitInput(sb *StagedBeat) *StoryBeat {
	if sb.compaction != nil {
		g.applyCompaction(sb.compaction)
	}
	g.AddNode(sb.beat.Node)
	for _, p := range sb.placeholders {
		g.AddNode(p)
	}
	return sb.beat
}

// CompactIfNeeded archives the oldest half of the live nodes into one
// chapter summary when the live count exceeds the configured ceiling. Entry
// nodes and the pinned node (the story's current position) are never
// evicted. The summariser call happens before any mutation, so a failed
// call leaves the graph untouched.
func (g *Graph) CompactIfNeeded(ctx context.Context, pinned uuid.UUID) error {
	return g.compactIfOver(ctx, pinned, 0)
}

func (g *Graph) compactIfOver(ctx context.Context, pinned uuid.UUID, incoming int) error {
	plan, err := g.planCompaction(ctx, pinned, incoming)
	if err != nil {
		return err
	}
	if plan != nil {
		g.applyCompaction(plan)
	}
	return nil
}

// compactionPlan is the precomputed outcome of one compaction run: the
// victims to evict and the summary that replaces them.
type compactionPlan struct {
	victims    []*StoryNode
	summary    string
	hasSummary bool
}

// planCompaction decides whether compaction is due against the projected
// node count and, if so, runs the summariser. It never mutates the graph; a
// nil plan means nothing to do.
func (g *Graph) planCompaction(ctx context.Context, pinned uuid.UUID, incoming int) (*compactionPlan, error) {
	if len(g.nodes)+incoming <= g.cfg.MaxLiveNodes {
		return nil, nil
	}
	if g.summariser == nil {
		g.log.Warn("node ceiling exceeded but no summariser wired, skipping compaction",
			"live_nodes", len(g.nodes), "ceiling", g.cfg.MaxLiveNodes)
		return nil, nil
	}

	victims := g.compactionVictims(pinned)
	if len(victims) == 0 {
		return nil, nil
	}

	passages := make([]string, 0, len(victims))
	for _, n := range victims {
		if n.IsPlaceholder() {
			continue
		}
		passages = append(passages, n.Title+": "+n.Content)
	}

	plan := &compactionPlan{victims: victims}

	// Stale placeholders carry no narrative content; prune them without
	// polluting the summary.
	if len(passages) > 0 {
		summary, err := g.summariser.Summarise(ctx, passages)
		if err != nil {
			return nil, fmt.Errorf("summarise chapter: %w", err)
		}
		plan.summary, plan.hasSummary = summary, true
	}
	return plan, nil
}

func (g *Graph) applyCompaction(p *compactionPlan) {
	if p.hasSummary {
		g.summaries = append(g.summaries, p.summary)
	}

	removed := make(map[uuid.UUID]bool, len(p.victims))
	for _, n := range p.victims {
		removed[n.ID] = true
		delete(g.nodes, n.ID)
	}
	for _, n := range g.nodes {
		for choice, target := range n.Branches {
			if removed[target] {
				delete(n.Branches, choice)
			}
		}
	}

	g.log.Info("compacted chapter",
		"archived_nodes", len(p.victims),
		"live_nodes", len(g.nodes),
		"chapter_summaries", len(g.summaries))
}

// compactionVictims selects the oldest half of the live nodes by
// last-updated order, never including entry nodes or the pinned node.
func (g *Graph) compactionVictims(pinned uuid.UUID) []*StoryNode {
	candidates := make([]*StoryNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		if n.IsEntryPoint || n.ID == pinned {
			continue
		}
		candidates = append(candidates, n)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].LastUpdated.Equal(candidates[j].LastUpdated) {
			return candidates[i].LastUpdated.Before(candidates[j].LastUpdated)
		}
		return candidates[i].ID.String() < candidates[j].ID.String()
	})

	want := len(g.nodes) / 2
	if want > len(candidates) {
		want = len(candidates)
	}
	return candidates[:want]
}

// NarrativePath reconstructs the chain of nodes leading to current, oldest
// first, ending with current itself. The search walks branch maps backwards
// and is linear in nodes times branches per step, which is acceptable only
// because compaction bounds the node count.
func (g *Graph) NarrativePath(current uuid.UUID, maxDepth int) ([]*StoryNode, error) {
	node, err := g.Node(current)
	if err != nil {
		return nil, err
	}

	path := []*StoryNode{node}
	seen := map[uuid.UUID]bool{current: true}
	for len(path) < maxDepth {
		parent := g.parentOf(path[0].ID)
		if parent == nil || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		path = append([]*StoryNode{parent}, path...)
	}
	return path, nil
}

func (g *Graph) parentOf(id uuid.UUID) *StoryNode {
	var parent *StoryNode
	for _, n := range g.nodes {
		for _, target := range n.Branches {
			if target != id {
				continue
			}
			// Deterministic pick when multiple nodes branch to the
			// same child.
			if parent == nil || n.ID.String() < parent.ID.String() {
				parent = n
			}
		}
	}
	return parent
}

// ─────────────────────────────────────────────────────────────────────────────
// State
// ─────────────────────────────────────────────────────────────────────────────

// State is the serializable snapshot of a graph.
type State struct {
	Nodes     map[uuid.UUID]*StoryNode `json:"nodes"`
	Entries   []uuid.UUID              `json:"entry_nodes"`
	Summaries []string                 `json:"chapter_summaries,omitempty"`
}

// ExportState deep-copies the graph into a serializable snapshot.
func (g *Graph) ExportState() State {
	st := State{
		Nodes:     make(map[uuid.UUID]*StoryNode, len(g.nodes)),
		Entries:   append([]uuid.UUID(nil), g.entries...),
		Summaries: append([]string(nil), g.summaries...),
	}
	for id, n := range g.nodes {
		st.Nodes[id] = n.clone()
	}
	return st
}

// ImportState replaces the graph's contents with a previously exported
// snapshot.
func (g *Graph) ImportState(st State) error {
	nodes := make(map[uuid.UUID]*StoryNode, len(st.Nodes))
	for id, n := range st.Nodes {
		if n == nil {
			return fmt.Errorf("graph: import state: node %s is nil", id)
		}
		if n.ID != id {
			return fmt.Errorf("graph: import state: node keyed %s carries id %s", id, n.ID)
		}
		nodes[id] = n.clone()
	}
	for _, id := range st.Entries {
		if _, ok := nodes[id]; !ok {
			return fmt.Errorf("graph: import state: entry node %s: %w", id, ErrNotFound)
		}
	}

	g.nodes = nodes
	g.entries = append([]uuid.UUID(nil), st.Entries...)
	g.summaries = append([]string(nil), st.Summaries...)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (g *Graph) isEntry(id uuid.UUID) bool {
	for _, e := range g.entries {
		if e == id {
			return true
		}
	}
	return false
}

// snippet trims s to at most titleSnippetLen runes for use in generated
// node titles.
func snippet(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= titleSnippetLen {
		return s
	}
	return string(runes[:titleSnippetLen]) + "..."
}

func sortedKeys(m map[string]uuid.UUID) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
