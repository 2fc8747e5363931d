package graph

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kodackx/echo-forge-ai/pkg/memory"
)

// PlaceholderContent marks a node that was created eagerly for a branch
// choice and has not been visited yet. Placeholder nodes are filled in (or
// compacted away) as the narrative progresses.
const PlaceholderContent = "To be generated"

// StoryNode is a single point in the narrative graph. It holds generated (or
// authored) content and the outgoing choice branches. Content is fixed after
// creation; only the branch map grows.
type StoryNode struct {
	// ID uniquely identifies the node within its graph.
	ID uuid.UUID `json:"id"`

	// Title is a short human-readable label, mostly useful in logs and
	// authored scenario files.
	Title string `json:"title"`

	// Content is the narrative text presented when the node is reached.
	Content string `json:"content"`

	// Tags scope the node to narrative threads or themes. New beat nodes
	// inherit the tags of the node they were generated from.
	Tags []string `json:"tags,omitempty"`

	// Requirements is an optional condition map for gating authored
	// branches. The engine stores and round-trips it but does not yet
	// evaluate conditions.
	Requirements map[string]any `json:"requirements,omitempty"`

	// Branches maps choice text to the target node id. Keys are unique
	// per node.
	Branches map[string]uuid.UUID `json:"branches"`

	// IsEntryPoint marks nodes the story may start from.
	IsEntryPoint bool `json:"is_entry_point"`

	// Depth is the distance from the entry node this node descends from.
	Depth int `json:"depth"`

	// StoryThread names the narrative thread the node belongs to.
	StoryThread string `json:"story_thread,omitempty"`

	// LastUpdated orders nodes for chapter compaction.
	LastUpdated time.Time `json:"last_updated"`
}

// NodeOption is a functional option for configuring a new [StoryNode].
type NodeOption func(*StoryNode)

// WithTags sets the node's tag set.
func WithTags(tags ...string) NodeOption {
	return func(n *StoryNode) {
		n.Tags = tags
	}
}

// WithThread assigns the node to a named narrative thread.
func WithThread(thread string) NodeOption {
	return func(n *StoryNode) {
		n.StoryThread = thread
	}
}

// WithRequirements attaches a condition map to the node.
func WithRequirements(req map[string]any) NodeOption {
	return func(n *StoryNode) {
		n.Requirements = req
	}
}

// WithDepth sets the node's depth explicitly. Generated nodes derive depth
// from their parent instead.
func WithDepth(depth int) NodeOption {
	return func(n *StoryNode) {
		n.Depth = depth
	}
}

// AsEntryPoint marks the node as a valid story starting point.
func AsEntryPoint() NodeOption {
	return func(n *StoryNode) {
		n.IsEntryPoint = true
	}
}

// NewNode creates a story node with a fresh id.
func NewNode(title, content string, opts ...NodeOption) *StoryNode {
	n := &StoryNode{
		ID:          uuid.New(),
		Title:       title,
		Content:     content,
		Branches:    make(map[string]uuid.UUID),
		LastUpdated: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// AddBranch registers an outgoing choice edge. Registering the same choice
// text twice returns [ErrDuplicateBranch] and leaves the existing target in
// place, since silently overwriting a branch would orphan its subtree.
func (n *StoryNode) AddBranch(choice string, target uuid.UUID) error {
	if n.Branches == nil {
		n.Branches = make(map[string]uuid.UUID)
	}
	if _, exists := n.Branches[choice]; exists {
		return fmt.Errorf("graph: branch %q on node %s: %w", choice, n.ID, ErrDuplicateBranch)
	}
	n.Branches[choice] = target
	n.LastUpdated = time.Now().UTC()
	return nil
}

// IsPlaceholder reports whether the node is an unvisited branch stub.
func (n *StoryNode) IsPlaceholder() bool {
	return n.Content == PlaceholderContent
}

// Choices returns the node's branch choice texts in sorted order. Branch
// insertion order carries no meaning, so a stable presentation order is used
// instead.
func (n *StoryNode) Choices() []string {
	return sortedKeys(n.Branches)
}

func (n *StoryNode) clone() *StoryNode {
	c := *n
	c.Tags = append([]string(nil), n.Tags...)
	if n.Requirements != nil {
		c.Requirements = make(map[string]any, len(n.Requirements))
		for k, v := range n.Requirements {
			c.Requirements[k] = v
		}
	}
	c.Branches = make(map[string]uuid.UUID, len(n.Branches))
	for k, v := range n.Branches {
		c.Branches[k] = v
	}
	return &c
}

// GeneratedBeat is the structured result of a story-beat oracle call, as the
// graph consumes it: the narrative text, the follow-up choices, and any
// side-effect metadata the caller wants carried through.
type GeneratedBeat struct {
	Text     string
	Choices  []string
	Metadata map[string]any
}

// StoryBeat is one unit of narrative progression handed back to the
// orchestrator. Beats are ephemeral; only the node they reference persists.
type StoryBeat struct {
	// Text is the narrative text of the beat.
	Text string

	// Choices are the follow-up options, in presentation order.
	Choices []string

	// GeneratedContent carries the oracle's side-effect metadata, such as
	// character updates, untouched.
	GeneratedContent map[string]any

	// Node is the graph node created (or resolved) for this beat.
	Node *StoryNode
}

// ToMemory renders the beat as a storable narrative fact with metadata
// scoping it to its node and thread.
func (b *StoryBeat) ToMemory() (string, memory.Metadata) {
	md := memory.Metadata{
		"type":    "story_beat",
		"node_id": b.Node.ID.String(),
	}
	if b.Node.StoryThread != "" {
		md["thread"] = b.Node.StoryThread
	}
	return b.Text, md
}
