package graph_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kodackx/echo-forge-ai/pkg/graph"
)

// fakeSummariser is a controllable graph.Summariser.
type fakeSummariser struct {
	err   error
	calls [][]string
}

func (f *fakeSummariser) Summarise(_ context.Context, passages []string) (string, error) {
	f.calls = append(f.calls, passages)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("chapter %d summary", len(f.calls)), nil
}

func entryGraph(sum graph.Summariser, ceiling int) (*graph.Graph, *graph.StoryNode) {
	g := graph.New(graph.Config{MaxLiveNodes: ceiling}, graph.WithSummariser(sum))
	entry := graph.NewNode("The Tavern", "You stand in a smoky tavern.",
		graph.AsEntryPoint(), graph.WithTags("tavern"))
	g.AddNode(entry)
	return g, entry
}

// TestProcessInput_BranchPlaceholders verifies one beat node appears with
// exactly one branch per generated choice, and that every branch target is a
// live placeholder node.
func TestProcessInput_BranchPlaceholders(t *testing.T) {
	g, entry := entryGraph(&fakeSummariser{}, 0)

	beat, err := g.ProcessInput(context.Background(), entry, "approach the bar", graph.GeneratedBeat{
		Text:    "The barkeep eyes you warily.",
		Choices: []string{"go left", "go right"},
	})
	if err != nil {
		t.Fatalf("ProcessInput() error = %v", err)
	}

	if len(beat.Node.Branches) != 2 {
		t.Fatalf("branch count = %d, want 2", len(beat.Node.Branches))
	}
	for _, choice := range []string{"go left", "go right"} {
		target, ok := beat.Node.Branches[choice]
		if !ok {
			t.Fatalf("branch %q missing", choice)
		}
		node, err := g.Node(target)
		if err != nil {
			t.Fatalf("branch %q target: %v", choice, err)
		}
		if !node.IsPlaceholder() {
			t.Errorf("branch %q target content = %q, want placeholder", choice, node.Content)
		}
	}
	if got := len(beat.Node.Tags); got != 1 || beat.Node.Tags[0] != "tavern" {
		t.Errorf("beat node tags = %v, want inherited [tavern]", beat.Node.Tags)
	}
	if beat.Node.Depth != entry.Depth+1 {
		t.Errorf("beat depth = %d, want %d", beat.Node.Depth, entry.Depth+1)
	}
}

// TestProcessInput_DuplicateChoiceKeepsFirst verifies a repeated choice text
// does not overwrite the earlier branch target.
func TestProcessInput_DuplicateChoiceKeepsFirst(t *testing.T) {
	g, entry := entryGraph(&fakeSummariser{}, 0)

	beat, err := g.ProcessInput(context.Background(), entry, "look around", graph.GeneratedBeat{
		Text:    "Two doors, strangely alike.",
		Choices: []string{"open the door", "open the door"},
	})
	if err != nil {
		t.Fatalf("ProcessInput() error = %v", err)
	}
	if len(beat.Node.Branches) != 1 {
		t.Errorf("branch count = %d, want 1", len(beat.Node.Branches))
	}
	if len(beat.Choices) != 1 {
		t.Errorf("beat choices = %v, want one entry", beat.Choices)
	}
}

// TestStageInput_CommitDeferred verifies staging builds the full beat
// without touching the graph, and that the commit makes every staged node
// live at once.
func TestStageInput_CommitDeferred(t *testing.T) {
	g, entry := entryGraph(&fakeSummariser{}, 0)

	staged, err := g.StageInput(context.Background(), entry, "push the gate", graph.GeneratedBeat{
		Text:    "The gate swings wide.",
		Choices: []string{"Step through", "Wait"},
	})
	if err != nil {
		t.Fatalf("StageInput() error = %v", err)
	}
	if g.Len() != 1 {
		t.Fatalf("staging mutated the graph: %d nodes, want 1", g.Len())
	}
	if _, err := g.Node(staged.Beat().Node.ID); !errors.Is(err, graph.ErrNotFound) {
		t.Errorf("staged beat node already live, lookup error = %v", err)
	}

	beat := g.CommitInput(staged)
	if g.Len() != 4 {
		t.Fatalf("graph has %d nodes after commit, want 4", g.Len())
	}
	if _, err := g.Node(beat.Node.ID); err != nil {
		t.Errorf("committed beat node missing: %v", err)
	}
	for choice, target := range beat.Node.Branches {
		if _, err := g.Node(target); err != nil {
			t.Errorf("branch %q target missing after commit: %v", choice, err)
		}
	}
}

// TestProcessInput_MultibyteTitleSnippet verifies long multi-byte input is
// trimmed on a rune boundary in the generated node title.
func TestProcessInput_MultibyteTitleSnippet(t *testing.T) {
	g, entry := entryGraph(&fakeSummariser{}, 0)

	input := strings.Repeat("é", 60)
	beat, err := g.ProcessInput(context.Background(), entry, input, graph.GeneratedBeat{
		Text: "onward",
	})
	if err != nil {
		t.Fatalf("ProcessInput() error = %v", err)
	}
	if !utf8.ValidString(beat.Node.Title) {
		t.Fatalf("node title is not valid UTF-8: %q", beat.Node.Title)
	}
	if want := "Response to: " + strings.Repeat("é", 50) + "..."; beat.Node.Title != want {
		t.Errorf("node title = %q, want %q", beat.Node.Title, want)
	}
}

// TestCompaction_Bound drives many turns through a small graph and checks
// the live node count never exceeds the ceiling, while entry and current
// nodes survive every pass.
func TestCompaction_Bound(t *testing.T) {
	sum := &fakeSummariser{}
	const ceiling = 12
	g, entry := entryGraph(sum, ceiling)

	current := entry
	for turn := 0; turn < 30; turn++ {
		beat, err := g.ProcessInput(context.Background(), current, fmt.Sprintf("input %d", turn), graph.GeneratedBeat{
			Text:    fmt.Sprintf("beat %d", turn),
			Choices: []string{"press on", "turn back"},
		})
		if err != nil {
			t.Fatalf("turn %d: ProcessInput() error = %v", turn, err)
		}
		if g.Len() > ceiling {
			t.Fatalf("turn %d: live nodes = %d, exceeds ceiling %d", turn, g.Len(), ceiling)
		}
		if _, err := g.Node(entry.ID); err != nil {
			t.Fatalf("turn %d: entry node evicted: %v", turn, err)
		}
		if _, err := g.Node(beat.Node.ID); err != nil {
			t.Fatalf("turn %d: fresh beat node missing: %v", turn, err)
		}
		current = beat.Node
	}

	if len(g.Summaries()) == 0 {
		t.Error("no chapter summaries accumulated over 30 turns")
	}
	for _, passages := range sum.calls {
		if len(passages) == 0 {
			t.Error("summariser called with no passages")
		}
	}
}

// TestCompaction_FailureLeavesGraphIntact verifies a summariser failure
// aborts the turn before any node is created or removed.
func TestCompaction_FailureLeavesGraphIntact(t *testing.T) {
	boom := errors.New("model unavailable")
	g, entry := entryGraph(&fakeSummariser{}, 8)

	current := entry
	for turn := 0; turn < 2; turn++ {
		beat, err := g.ProcessInput(context.Background(), current, "onward", graph.GeneratedBeat{
			Text:    "more story",
			Choices: []string{"a", "b"},
		})
		if err != nil {
			t.Fatalf("setup turn %d: %v", turn, err)
		}
		current = beat.Node
	}

	failing := graph.New(graph.Config{MaxLiveNodes: 8}, graph.WithSummariser(&fakeSummariser{err: boom}))
	if err := failing.ImportState(g.ExportState()); err != nil {
		t.Fatalf("ImportState() error = %v", err)
	}
	before := failing.Len()

	_, err := failing.ProcessInput(context.Background(), current, "one more", graph.GeneratedBeat{
		Text:    "never committed",
		Choices: []string{"x", "y"},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("ProcessInput() error = %v, want wrapped summariser failure", err)
	}
	if failing.Len() != before {
		t.Errorf("node count changed on failed turn: %d -> %d", before, failing.Len())
	}
	if len(failing.Summaries()) != 0 {
		t.Errorf("summaries appended on failed turn: %v", failing.Summaries())
	}
}

// TestEntryNode covers default resolution and the not-found cases.
func TestEntryNode(t *testing.T) {
	g := graph.New(graph.Config{})
	if _, err := g.EntryNode(uuid.Nil); !errors.Is(err, graph.ErrNoEntryNodes) {
		t.Errorf("empty graph error = %v, want ErrNoEntryNodes", err)
	}

	first := graph.NewNode("first", "one", graph.AsEntryPoint())
	second := graph.NewNode("second", "two", graph.AsEntryPoint())
	plain := graph.NewNode("plain", "not an entry")
	g.AddNode(first)
	g.AddNode(second)
	g.AddNode(plain)

	got, err := g.EntryNode(uuid.Nil)
	if err != nil {
		t.Fatalf("EntryNode(nil) error = %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("default entry = %s, want first-registered %s", got.ID, first.ID)
	}

	if _, err := g.EntryNode(second.ID); err != nil {
		t.Errorf("EntryNode(second) error = %v", err)
	}
	if _, err := g.EntryNode(plain.ID); !errors.Is(err, graph.ErrNotFound) {
		t.Errorf("EntryNode(non-entry) error = %v, want ErrNotFound", err)
	}
	if _, err := g.EntryNode(uuid.New()); !errors.Is(err, graph.ErrNotFound) {
		t.Errorf("EntryNode(unknown) error = %v, want ErrNotFound", err)
	}
}

// TestNarrativePath rebuilds the chain leading to the current node.
func TestNarrativePath(t *testing.T) {
	g, entry := entryGraph(&fakeSummariser{}, 0)

	ctx := context.Background()
	beat1, err := g.ProcessInput(ctx, entry, "step one", graph.GeneratedBeat{Text: "b1", Choices: []string{"on"}})
	if err != nil {
		t.Fatal(err)
	}
	beat2, err := g.ProcessInput(ctx, beat1.Node, "step two", graph.GeneratedBeat{Text: "b2"})
	if err != nil {
		t.Fatal(err)
	}
	if err := entry.AddBranch("begin", beat1.Node.ID); err != nil {
		t.Fatal(err)
	}
	if err := beat1.Node.AddBranch("continue", beat2.Node.ID); err != nil {
		t.Fatal(err)
	}

	path, err := g.NarrativePath(beat2.Node.ID, 10)
	if err != nil {
		t.Fatalf("NarrativePath() error = %v", err)
	}
	want := []uuid.UUID{entry.ID, beat1.Node.ID, beat2.Node.ID}
	if len(path) != len(want) {
		t.Fatalf("path length = %d, want %d", len(path), len(want))
	}
	for i, n := range path {
		if n.ID != want[i] {
			t.Errorf("path[%d] = %s (%s), want %s", i, n.ID, n.Title, want[i])
		}
	}

	short, err := g.NarrativePath(beat2.Node.ID, 2)
	if err != nil {
		t.Fatalf("NarrativePath(maxDepth=2) error = %v", err)
	}
	if len(short) != 2 || short[0].ID != beat1.Node.ID {
		t.Errorf("bounded path = %v, want the two most recent nodes", short)
	}
}

// TestState_RoundTrip exports a populated graph through JSON and back,
// checking nodes, branches, entries, and summaries survive exactly.
func TestState_RoundTrip(t *testing.T) {
	sum := &fakeSummariser{}
	g, entry := entryGraph(sum, 6)

	current := entry
	for turn := 0; turn < 6; turn++ {
		beat, err := g.ProcessInput(context.Background(), current, fmt.Sprintf("turn %d", turn), graph.GeneratedBeat{
			Text:    fmt.Sprintf("beat %d", turn),
			Choices: []string{"a", "b"},
		})
		if err != nil {
			t.Fatal(err)
		}
		current = beat.Node
	}

	raw, err := json.Marshal(g.ExportState())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var st graph.State
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	restored := graph.New(graph.Config{MaxLiveNodes: 6})
	if err := restored.ImportState(st); err != nil {
		t.Fatalf("ImportState() error = %v", err)
	}

	if restored.Len() != g.Len() {
		t.Errorf("restored node count = %d, want %d", restored.Len(), g.Len())
	}
	for id, want := range g.ExportState().Nodes {
		got, err := restored.Node(id)
		if err != nil {
			t.Fatalf("restored missing node %s: %v", id, err)
		}
		if got.Content != want.Content || got.Title != want.Title {
			t.Errorf("node %s content mismatch", id)
		}
		if len(got.Branches) != len(want.Branches) {
			t.Errorf("node %s branch count = %d, want %d", id, len(got.Branches), len(want.Branches))
		}
		for choice, target := range want.Branches {
			if got.Branches[choice] != target {
				t.Errorf("node %s branch %q = %s, want %s", id, choice, got.Branches[choice], target)
			}
		}
		if !got.LastUpdated.Equal(want.LastUpdated) {
			t.Errorf("node %s last_updated drifted", id)
		}
	}

	restoredEntry, err := restored.EntryNode(uuid.Nil)
	if err != nil {
		t.Fatalf("restored EntryNode() error = %v", err)
	}
	if restoredEntry.ID != entry.ID {
		t.Errorf("restored entry = %s, want %s", restoredEntry.ID, entry.ID)
	}
	if got, want := restored.Summaries(), g.Summaries(); len(got) != len(want) {
		t.Errorf("restored summaries = %d, want %d", len(got), len(want))
	}
}
