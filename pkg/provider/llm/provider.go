// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (OpenAI, Anthropic,
// Ollama, …) behind a uniform completion interface so that the narrative
// oracle can generate story beats, dialogue, and summaries without coupling
// to any specific SDK.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Message is a single message in a conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name for multi-speaker contexts.
	Name string
}

// Usage holds token accounting reported by the backend. Counts are in the
// model's native token unit and may differ between providers for identical
// text.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input.
	PromptTokens int

	// CompletionTokens is the number of tokens generated.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is a high-priority instruction injected before the
	// conversation. Providers without a native system slot should prepend it
	// as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation history driving the response.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests the
	// provider default.
	Temperature float64

	// MaxTokens caps completion length. Zero means the provider default.
	MaxTokens int
}

// CompletionResponse is the full, non-streamed model reply.
type CompletionResponse struct {
	// Content is the text of the reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Capabilities describes static properties of a provider's model.
type Capabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum completion length.
	MaxOutputTokens int
}

// Provider is the abstraction over any LLM backend.
//
// The narrative engine consumes beats whole, so only blocking completion is
// exposed; streaming belongs to interactive front-ends outside this module.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many tokens messages would consume in the
	// model's context window. Used to enforce the prompt budget before a
	// request is sent. The estimate need not be exact but should not
	// undercount.
	CountTokens(messages []Message) (int, error)

	// Capabilities returns static metadata about the underlying model,
	// constant for the lifetime of the Provider instance.
	Capabilities() Capabilities
}
