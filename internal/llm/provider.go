// Package llm defines the generation-model contract shared by the
// Orchestrator's tool-calling driver and RAGQueryEngine's grounded answer
// synthesis, and an Anthropic-backed implementation of it.
package llm

import (
	"context"
	"encoding/json"
)

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	Name string
	Args json.RawMessage
	ID   string
}

// Message is one turn in a chat-style conversation with a generation model.
type Message struct {
	Role    string // "system" | "user" | "assistant" | "tool"
	Content string
	ToolID  string
	// ToolCalls are only set on assistant messages.
	ToolCalls []ToolCall
}

// ToolSchema describes one tool the model may call, in JSON-schema shape.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// StreamHandler receives incremental output from ChatStream.
type StreamHandler interface {
	OnDelta(content string)
	OnToolCall(tc ToolCall)
}

// Provider is the generation-model contract consumed by the Orchestrator's
// tool-calling loop and RAGQueryEngine's grounded synthesis step.
type Provider interface {
	Chat(ctx context.Context, msgs []Message, tools []ToolSchema, model string) (Message, error)
	ChatStream(ctx context.Context, msgs []Message, tools []ToolSchema, model string, h StreamHandler) error
}
