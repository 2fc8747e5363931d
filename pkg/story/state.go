package story

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/kodackx/echo-forge-ai/pkg/character"
	"github.com/kodackx/echo-forge-ai/pkg/graph"
	"github.com/kodackx/echo-forge-ai/pkg/memory"
)

// State is a full deep snapshot of a story: configuration, position, memory
// bank, graph, and every character. Export followed by import followed by
// export yields an identical snapshot.
type State struct {
	Config        Config                     `json:"config"`
	CurrentNodeID uuid.UUID                  `json:"current_node_id,omitempty"`
	Memory        memory.State               `json:"memory"`
	Graph         graph.State                `json:"graph"`
	Characters    map[string]character.State `json:"characters"`
}

// SaveState captures the story's full state. CurrentNodeID is uuid.Nil when
// the story has not started.
func (s *Story) SaveState() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Config:     s.cfg,
		Memory:     s.bank.ExportState(),
		Graph:      s.graph.ExportState(),
		Characters: make(map[string]character.State, len(s.characters)),
	}
	if s.current != nil {
		st.CurrentNodeID = s.current.ID
	}
	for name, ch := range s.characters {
		st.Characters[name] = ch.ExportState()
	}
	return st
}

// Load reconstructs a story from a saved snapshot. The caller supplies fresh
// collaborators; the saved memory and graph state are imported into them,
// and every character is rebuilt and rebound to the shared bank and oracle.
func Load(ctx context.Context, st State, deps Deps) (*Story, error) {
	s, err := New(st.Config, deps)
	if err != nil {
		return nil, err
	}

	if err := s.bank.ImportState(ctx, st.Memory); err != nil {
		return nil, fmt.Errorf("story: load: %w", err)
	}
	if err := s.graph.ImportState(st.Graph); err != nil {
		return nil, fmt.Errorf("story: load: %w", err)
	}

	names := make([]string, 0, len(st.Characters))
	for name := range st.Characters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.AddCharacter(ctx, character.FromState(st.Characters[name])); err != nil {
			return nil, fmt.Errorf("story: load: %w", err)
		}
	}

	if st.CurrentNodeID != uuid.Nil {
		node, err := s.graph.Node(st.CurrentNodeID)
		if err != nil {
			return nil, fmt.Errorf("story: load: current node: %w", err)
		}
		s.current = node
	}
	return s, nil
}
