// Package llm defines the chat-completion provider interface used by
// the extraction and linking pipelines.
package llm

import "context"

// Request is a single completion request.
type Request struct {
	// System is the optional system instruction.
	System string
	// Prompt is the user prompt.
	Prompt string
	// MaxTokens caps the completion; 0 uses the provider default.
	MaxTokens int
	// Temperature in [0,1]; linking uses 0 for stable labels.
	Temperature float64
}

// Usage reports token consumption when the provider exposes it.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add accumulates usage across calls.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Response is the completion result.
type Response struct {
	Text  string
	Usage Usage
}

// Provider is a chat completion backend.
type Provider interface {
	// Complete runs one completion. Implementations apply their own
	// request timeout.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// IsConfigured reports whether the provider can make network calls.
	IsConfigured() bool
}
