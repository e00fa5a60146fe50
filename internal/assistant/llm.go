package assistant

import (
	"context"
	"encoding/json"

	"github.com/linnemanlabs/medassist/internal/tools"
)

// Provider is the interface for any LLM backend.
type Provider interface {
	Send(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
}

// LLMRequest is the input to a provider: the conversation so far and the
// tools the model may call.
type LLMRequest struct {
	MaxTokens int
	System    string
	Messages  []Message
	Tools     []tools.ToolDef
}

// LLMResponse is a single model turn.
type LLMResponse struct {
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
	Model      string
}

// StopReason indicates why the model stopped generating.
type StopReason string

const (
	StopEnd       StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	// StopBudget is set locally when the tool or token budget runs out.
	StopBudget StopReason = "budget_exhausted"
)

// Message is one conversation entry.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is text, a tool call, or a tool result.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
