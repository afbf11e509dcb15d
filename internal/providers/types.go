// Package providers abstracts the language-model hosts behind one
// non-streaming Chat interface. Wire-format differences (native
// tool-call blocks vs. function calling) stay inside each provider.
package providers

import "context"

// Provider is the interface all LM providers implement.
type Provider interface {
	// Chat sends messages to the LM and returns the complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// DefaultModel returns the provider's default model name.
	DefaultModel() string

	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}

// ChatRequest is the input for a Chat call.
type ChatRequest struct {
	Messages  []Message        `json:"messages"`
	System    string           `json:"system,omitempty"`
	Tools     []ToolDefinition `json:"tools,omitempty"`
	Model     string           `json:"model,omitempty"`
	MaxTokens int              `json:"max_tokens,omitempty"`
}

// ChatResponse is the result of an LM call.
type ChatResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"` // "stop", "tool_calls", "length"
	Usage        *Usage     `json:"usage,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	Role        string     `json:"role"` // "user", "assistant", "tool"
	Content     string     `json:"content"`
	ToolCalls   []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID  string     `json:"tool_call_id,omitempty"` // for role="tool" responses
	ToolIsError bool       `json:"tool_is_error,omitempty"`
}

// ToolCall is a tool invocation requested by the LM.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition describes a tool available to the LM.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage record into u.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}
