// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (OpenAI GPT-4, Anthropic
// Claude, a local Ollama instance, …) and exposes a uniform completion call to
// the exam loop without coupling it to any specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the backend answers without any choices.
var ErrEmptyResponse = errors.New("llm: empty choices in response")

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is injected before Messages as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation. The last message drives the reply.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. It is always sent,
	// so 0.0 requests greedy decoding.
	Temperature float64

	// TopP is the nucleus sampling mass. Zero leaves the provider default.
	TopP float64

	// FrequencyPenalty and PresencePenalty are sent as-is where the backend
	// supports them.
	FrequencyPenalty float64
	PresencePenalty  float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply, untrimmed.
	Content string

	// FinishReason is "stop", "length", … as reported by the backend.
	FinishReason string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// ModelCapabilities describes the limits of an LLM model.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int
}

// Provider is the abstraction over any LLM backend.
//
// Complete must return promptly when ctx is cancelled.
type Provider interface {
	// Complete sends req to the model and waits for the full response. An
	// answer without choices is reported as [ErrEmptyResponse].
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the number of tokens that messages would consume
	// in the model's context window. The result need not be exact but should
	// not undercount.
	CountTokens(messages []Message) (int, error)

	// Capabilities returns static metadata about the configured model.
	Capabilities() ModelCapabilities
}

// EstimateTokens is the fallback ~4 characters per token approximation used
// when no tokenizer is available for a model, plus a fixed per-message
// overhead for the role and formatting.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += (len(m.Content) + 3) / 4
		total += 4
	}
	return total
}
