// Package scenario loads authored story scenarios from YAML: the starting
// node graph, the branch wiring between authored scenes, and the cast of
// characters with their personalities and seed knowledge.
package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kodackx/echo-forge-ai/pkg/character"
	"github.com/kodackx/echo-forge-ai/pkg/graph"
)

// Scenario is the authored starting state of a story, as declared in a
// scenario YAML file. Node references between branches use the author-chosen
// string IDs; [Build] resolves them to graph node UUIDs.
type Scenario struct {
	Title       string          `yaml:"title"`
	Description string          `yaml:"description"`
	Nodes       []NodeSpec      `yaml:"nodes"`
	Characters  []CharacterSpec `yaml:"characters"`
}

// NodeSpec declares one authored scene.
type NodeSpec struct {
	// ID is the author-chosen identifier other nodes' branches refer to.
	ID string `yaml:"id"`

	Title   string `yaml:"title"`
	Content string `yaml:"content"`

	// Entry marks the node as a story entry point. At least one node in a
	// scenario must be an entry.
	Entry bool `yaml:"entry"`

	Tags   []string `yaml:"tags"`
	Thread string   `yaml:"thread"`

	// Branches maps a choice label to the ID of the target node.
	Branches map[string]string `yaml:"branches"`
}

// CharacterSpec declares one cast member.
type CharacterSpec struct {
	Name          string               `yaml:"name"`
	Role          string               `yaml:"role"`
	Archetype     string               `yaml:"archetype"`
	Background    string               `yaml:"background"`
	Traits        map[string]TraitSpec `yaml:"traits"`
	Goals         []GoalSpec           `yaml:"goals"`
	Relationships map[string]float64   `yaml:"relationships"`

	// Knowledge lists facts seeded into the memory bank when the character
	// joins the story.
	Knowledge []string `yaml:"knowledge"`
}

// TraitSpec declares one personality trait.
type TraitSpec struct {
	Intensity   float64 `yaml:"intensity"`
	Description string  `yaml:"description"`
}

// GoalSpec declares one character goal.
type GoalSpec struct {
	Description string  `yaml:"description"`
	Priority    float64 `yaml:"priority"`
	LongTerm    bool    `yaml:"long_term"`
}

// Load reads and validates the scenario file at path.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: open %q: %w", path, err)
	}
	defer f.Close()

	sc, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("scenario: parse %q: %w", path, err)
	}
	return sc, nil
}

// LoadFromReader decodes a scenario from r and validates the result.
func LoadFromReader(r io.Reader) (*Scenario, error) {
	sc := &Scenario{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(sc); err != nil {
		return nil, fmt.Errorf("scenario: decode yaml: %w", err)
	}
	if err := Validate(sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// Validate checks referential integrity of the scenario: unique node IDs,
// branch targets that exist, at least one entry node, unique character names,
// and recognised roles. Returns a joined error listing every failure.
func Validate(sc *Scenario) error {
	var errs []error

	if len(sc.Nodes) == 0 {
		errs = append(errs, errors.New("scenario declares no nodes"))
	}

	nodeIDs := make(map[string]int, len(sc.Nodes))
	hasEntry := false
	for i, n := range sc.Nodes {
		prefix := fmt.Sprintf("nodes[%d]", i)
		if n.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else if prev, ok := nodeIDs[n.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of nodes[%d]", prefix, n.ID, prev))
		} else {
			nodeIDs[n.ID] = i
		}
		if n.Title == "" {
			errs = append(errs, fmt.Errorf("%s.title is required", prefix))
		}
		if n.Entry {
			hasEntry = true
		}
	}
	if len(sc.Nodes) > 0 && !hasEntry {
		errs = append(errs, errors.New("no node is marked as an entry point"))
	}

	for i, n := range sc.Nodes {
		for choice, target := range n.Branches {
			if choice == "" {
				errs = append(errs, fmt.Errorf("nodes[%d] has a branch with an empty choice label", i))
			}
			if _, ok := nodeIDs[target]; !ok {
				errs = append(errs, fmt.Errorf("nodes[%d] branch %q targets unknown node %q", i, choice, target))
			}
		}
	}

	charNames := make(map[string]int, len(sc.Characters))
	players := 0
	for i, c := range sc.Characters {
		prefix := fmt.Sprintf("characters[%d]", i)
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := charNames[c.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of characters[%d]", prefix, c.Name, prev))
		} else {
			charNames[c.Name] = i
		}
		if c.Role != "" && !character.Role(c.Role).IsValid() {
			errs = append(errs, fmt.Errorf("%s.role %q is invalid; valid values: player, npc", prefix, c.Role))
		}
		if character.Role(c.Role) == character.RolePlayer {
			players++
		}
	}
	if players > 1 {
		errs = append(errs, fmt.Errorf("%d characters claim the player role; at most one is allowed", players))
	}

	return errors.Join(errs...)
}

// Build materialises the scenario: a populated story graph and the cast,
// still unbound to any memory bank or oracle. Node UUIDs are freshly
// generated; branch wiring is resolved from the author-chosen string IDs in
// a second pass so declaration order does not matter.
func Build(sc *Scenario, cfg graph.Config, opts ...graph.Option) (*graph.Graph, []*character.Character, error) {
	if err := Validate(sc); err != nil {
		return nil, nil, err
	}

	g := graph.New(cfg, opts...)

	nodes := make(map[string]*graph.StoryNode, len(sc.Nodes))
	for _, spec := range sc.Nodes {
		nodeOpts := []graph.NodeOption{graph.WithTags(spec.Tags...)}
		if spec.Thread != "" {
			nodeOpts = append(nodeOpts, graph.WithThread(spec.Thread))
		}
		if spec.Entry {
			nodeOpts = append(nodeOpts, graph.AsEntryPoint())
		}
		nodes[spec.ID] = graph.NewNode(spec.Title, spec.Content, nodeOpts...)
	}

	for _, spec := range sc.Nodes {
		n := nodes[spec.ID]
		for choice, target := range spec.Branches {
			if err := n.AddBranch(choice, nodes[target].ID); err != nil {
				return nil, nil, fmt.Errorf("scenario: node %q: %w", spec.ID, err)
			}
		}
		g.AddNode(n)
	}

	cast := make([]*character.Character, 0, len(sc.Characters))
	for _, spec := range sc.Characters {
		cast = append(cast, buildCharacter(spec))
	}

	return g, cast, nil
}

func buildCharacter(spec CharacterSpec) *character.Character {
	traits := make(map[string]character.Trait, len(spec.Traits))
	for name, tr := range spec.Traits {
		traits[name] = character.Trait{
			Name:        name,
			Intensity:   tr.Intensity,
			Description: tr.Description,
		}
	}

	goals := make([]character.Goal, 0, len(spec.Goals))
	for _, gl := range spec.Goals {
		goals = append(goals, character.Goal{
			Description: gl.Description,
			Priority:    gl.Priority,
			IsLongTerm:  gl.LongTerm,
		})
	}

	relationships := make(map[string]float64, len(spec.Relationships))
	for name, s := range spec.Relationships {
		relationships[name] = s
	}

	personality := character.PersonalityModel{
		Traits:        traits,
		Goals:         goals,
		Relationships: relationships,
		Role:          character.Role(spec.Role),
		Archetype:     spec.Archetype,
		Background:    spec.Background,
	}

	return character.New(spec.Name, personality,
		character.WithInitialKnowledge(spec.Knowledge...),
	)
}
