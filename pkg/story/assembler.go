package story

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kodackx/echo-forge-ai/pkg/character"
)

// AssembledContext is the bounded prompt payload handed to the beat oracle
// each turn. It carries snippets and snapshots only, never raw embeddings:
// memory content passes through as plain strings and character state as
// personality snapshots.
type AssembledContext struct {
	// CurrentContent is the narrative text of the current node.
	CurrentContent string

	// UserInput is the (possibly choice-canonicalised) player input.
	UserInput string

	// Memories are retrieved narrative facts in relevance order.
	// Duplicates across turns are possible and acceptable.
	Memories []string

	// ChapterSummaries are the most recent chapter summaries, oldest
	// first, capped by the configured window.
	ChapterSummaries []string

	// Player is the player character's snapshot, nil when none is
	// registered.
	Player *character.Context

	// Others are the non-player character snapshots in registration
	// order.
	Others []character.Context

	// Monologues maps character name to an internal monologue about the
	// input, present only when monologues are enabled.
	Monologues map[string]string
}

// assemble composes the oracle payload for one turn. Memory retrieval and
// per-character reflections only read shared state, so they fan out
// concurrently; any failure aborts the turn before anything has mutated.
func (s *Story) assemble(ctx context.Context, input string) (AssembledContext, error) {
	asm := AssembledContext{
		CurrentContent:   s.current.Content,
		UserInput:        input,
		ChapterSummaries: s.graph.RecentSummaries(s.cfg.SummaryWindow),
	}

	for _, name := range s.order {
		cc := s.characters[name].Context()
		if cc.Role == character.RolePlayer {
			asm.Player = &cc
		} else {
			asm.Others = append(asm.Others, cc)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		mems, err := s.bank.RetrieveRelevant(gctx, input, nil, s.cfg.RetrievalLimit)
		if err != nil {
			return fmt.Errorf("retrieve memories: %w", err)
		}
		contents := make([]string, len(mems))
		for i, m := range mems {
			contents[i] = m.Content
		}
		asm.Memories = contents
		return nil
	})

	if s.cfg.EnableMonologues {
		asm.Monologues = make(map[string]string, len(s.order))
		var mu sync.Mutex
		for _, name := range s.order {
			ch := s.characters[name]
			if ch.Role() == character.RolePlayer {
				continue
			}
			g.Go(func() error {
				thought, err := ch.Reflect(gctx, input)
				if err != nil {
					return err
				}
				mu.Lock()
				asm.Monologues[ch.Name()] = thought
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return AssembledContext{}, fmt.Errorf("story: assemble context: %w", err)
	}
	return asm, nil
}
