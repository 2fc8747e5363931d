// Package oracle implements the generation oracle behind the narrative
// engine: story beats, character dialogue, internal reflections, and chapter
// summaries, all driven through a single [llm.Provider].
//
// The beat operation enforces a structured JSON contract on the model's
// output. A reply that does not parse is a hard failure surfaced to the
// orchestrator; retry and failover for transient backend errors belong to
// the provider wrapper, not here.
//
// Model selection follows the one-provider-per-model pattern: construct the
// [llm.Provider] with the model you want rather than overriding per request.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kodackx/echo-forge-ai/pkg/character"
	"github.com/kodackx/echo-forge-ai/pkg/graph"
	"github.com/kodackx/echo-forge-ai/pkg/provider/llm"
	"github.com/kodackx/echo-forge-ai/pkg/story"
)

const (
	defaultTemperature = 0.7

	// summaryTemperature is lower than the narrative temperature; chapter
	// summaries should compress, not embellish.
	summaryTemperature = 0.2
)

// Option is a functional option for configuring an [Oracle].
type Option func(*Oracle)

// WithTemperature sets the sampling temperature for narrative generation.
// Default: 0.7.
func WithTemperature(temp float64) Option {
	return func(o *Oracle) {
		o.temperature = temp
	}
}

// WithMaxTokens caps completion length per call. Zero means the provider
// default.
func WithMaxTokens(n int) Option {
	return func(o *Oracle) {
		o.maxTokens = n
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(o *Oracle) {
		o.log = log
	}
}

// Oracle generates narrative content through an [llm.Provider]. It is safe
// for concurrent use.
type Oracle struct {
	llm         llm.Provider
	log         *slog.Logger
	temperature float64
	maxTokens   int
}

// Compile-time interface checks against every consumer-side contract.
var (
	_ story.BeatOracle = (*Oracle)(nil)
	_ character.Oracle = (*Oracle)(nil)
	_ graph.Summariser = (*Oracle)(nil)
)

// New creates an [Oracle] backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Oracle {
	o := &Oracle{
		llm:         provider,
		log:         slog.Default(),
		temperature: defaultTemperature,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GenerateBeat produces the next story beat from an assembled context. The
// prompt is trimmed against the model's context window before the call:
// monologues go first, then the oldest retrieved facts, so the current node
// and the player input always survive.
func (o *Oracle) GenerateBeat(ctx context.Context, asm story.AssembledContext) (story.BeatResult, error) {
	asm = o.fitBudget(asm)

	resp, err := o.complete(ctx, beatSystemPrompt, buildBeatPrompt(asm), o.temperature)
	if err != nil {
		return story.BeatResult{}, fmt.Errorf("oracle: generate beat: %w", err)
	}

	result, err := parseBeat(resp.Content)
	if err != nil {
		o.log.Error("beat response failed contract", "error", err, "content_length", len(resp.Content))
		return story.BeatResult{}, err
	}

	o.log.Debug("beat generated",
		"choices", len(result.Choices),
		"character_updates", len(result.CharacterUpdates),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return result, nil
}

// Dialogue voices a character. The reply is free text.
func (o *Oracle) Dialogue(ctx context.Context, req character.DialogueRequest) (string, error) {
	resp, err := o.complete(ctx, dialogueSystemPrompt, buildDialoguePrompt(req), o.temperature)
	if err != nil {
		return "", fmt.Errorf("oracle: dialogue for %q: %w", req.CharacterName, err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// Reflection produces a character's private internal monologue.
func (o *Oracle) Reflection(ctx context.Context, req character.ReflectionRequest) (string, error) {
	resp, err := o.complete(ctx, reflectionSystemPrompt, buildReflectionPrompt(req), o.temperature)
	if err != nil {
		return "", fmt.Errorf("oracle: reflection for %q: %w", req.CharacterName, err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// Summarise folds chapter passages into one rolling summary string.
func (o *Oracle) Summarise(ctx context.Context, passages []string) (string, error) {
	resp, err := o.complete(ctx, summarySystemPrompt, buildSummaryPrompt(passages), summaryTemperature)
	if err != nil {
		return "", fmt.Errorf("oracle: summarise chapter: %w", err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", fmt.Errorf("oracle: summarise chapter: %w: empty summary", ErrMalformedResponse)
	}
	return summary, nil
}

func (o *Oracle) complete(ctx context.Context, system, user string, temperature float64) (*llm.CompletionResponse, error) {
	return o.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: "user", Content: user}},
		Temperature:  temperature,
		MaxTokens:    o.maxTokens,
	})
}

// fitBudget drops optional context until the beat prompt fits the model's
// window. Providers with an unknown window (zero) skip the check.
func (o *Oracle) fitBudget(asm story.AssembledContext) story.AssembledContext {
	window := o.llm.Capabilities().ContextWindow
	if window <= 0 {
		return asm
	}

	for {
		tokens, err := o.llm.CountTokens([]llm.Message{
			{Role: "system", Content: beatSystemPrompt},
			{Role: "user", Content: buildBeatPrompt(asm)},
		})
		if err != nil || tokens <= window {
			return asm
		}

		switch {
		case len(asm.Monologues) > 0:
			o.log.Warn("prompt over budget, dropping monologues", "tokens", tokens, "window", window)
			asm.Monologues = nil
		case len(asm.Memories) > 1:
			o.log.Warn("prompt over budget, halving retrieved facts", "tokens", tokens, "window", window)
			asm.Memories = asm.Memories[:len(asm.Memories)/2]
		case len(asm.ChapterSummaries) > 1:
			o.log.Warn("prompt over budget, dropping oldest chapter summary", "tokens", tokens, "window", window)
			asm.ChapterSummaries = asm.ChapterSummaries[1:]
		default:
			// Nothing optional left to trim; let the provider reject
			// the request if it truly cannot fit.
			return asm
		}
	}
}
