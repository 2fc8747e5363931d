// Package mock provides a test double for the generation oracle, covering
// the beat, dialogue, reflection, and summary contracts in one type.
package mock

import (
	"context"
	"sync"

	"github.com/kodackx/echo-forge-ai/pkg/character"
	"github.com/kodackx/echo-forge-ai/pkg/graph"
	"github.com/kodackx/echo-forge-ai/pkg/story"
)

// Compile-time interface checks.
var (
	_ story.BeatOracle = (*Oracle)(nil)
	_ character.Oracle = (*Oracle)(nil)
	_ graph.Summariser = (*Oracle)(nil)
)

// Oracle is a scriptable oracle. Beats are consumed in order; when
// exhausted, the last one repeats. Errors, when set, win over results.
type Oracle struct {
	mu sync.Mutex

	// Beats is the sequence of beat results to return.
	Beats []story.BeatResult

	// BeatErr, DialogueErr, ReflectionErr, and SummariseErr are returned
	// by the corresponding operations when non-nil.
	BeatErr       error
	DialogueErr   error
	ReflectionErr error
	SummariseErr  error

	// DialogueLine and ReflectionLine are the canned replies. Empty
	// defaults are provided.
	DialogueLine   string
	ReflectionLine string

	// Summary is the canned chapter summary.
	Summary string

	// BeatCalls, DialogueCalls, ReflectionCalls, and SummariseCalls record
	// every invocation in order.
	BeatCalls       []story.AssembledContext
	DialogueCalls   []character.DialogueRequest
	ReflectionCalls []character.ReflectionRequest
	SummariseCalls  [][]string
}

// GenerateBeat implements story.BeatOracle.
func (o *Oracle) GenerateBeat(_ context.Context, asm story.AssembledContext) (story.BeatResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	idx := len(o.BeatCalls)
	o.BeatCalls = append(o.BeatCalls, asm)
	if o.BeatErr != nil {
		return story.BeatResult{}, o.BeatErr
	}
	if len(o.Beats) == 0 {
		return story.BeatResult{Text: "the story continues"}, nil
	}
	if idx >= len(o.Beats) {
		idx = len(o.Beats) - 1
	}
	return o.Beats[idx], nil
}

// Dialogue implements character.Oracle.
func (o *Oracle) Dialogue(_ context.Context, req character.DialogueRequest) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.DialogueCalls = append(o.DialogueCalls, req)
	if o.DialogueErr != nil {
		return "", o.DialogueErr
	}
	if o.DialogueLine == "" {
		return req.CharacterName + " speaks.", nil
	}
	return o.DialogueLine, nil
}

// Reflection implements character.Oracle.
func (o *Oracle) Reflection(_ context.Context, req character.ReflectionRequest) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.ReflectionCalls = append(o.ReflectionCalls, req)
	if o.ReflectionErr != nil {
		return "", o.ReflectionErr
	}
	if o.ReflectionLine == "" {
		return req.CharacterName + " considers the situation.", nil
	}
	return o.ReflectionLine, nil
}

// Summarise implements graph.Summariser.
func (o *Oracle) Summarise(_ context.Context, passages []string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.SummariseCalls = append(o.SummariseCalls, passages)
	if o.SummariseErr != nil {
		return "", o.SummariseErr
	}
	if o.Summary == "" {
		return "earlier events, condensed", nil
	}
	return o.Summary, nil
}
