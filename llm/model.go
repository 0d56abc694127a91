// Package llm talks to chat models that support function calling.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable means the model backend cannot serve requests: it is not
// configured, rejected our credentials, is overloaded, or timed out.
var ErrUnavailable = errors.New("llm: backend unavailable")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Schema describes tool parameters using JSON Schema conventions.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

// ToolSpec declares one callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *Schema
}

// ToolCall is a model request to run a tool. Signature is an opaque
// provider token that must be echoed back with the call.
type ToolCall struct {
	ID        string
	Name      string
	Args      map[string]any
	Signature []byte
}

// Message is one turn of a model exchange. Assistant turns may carry tool
// calls; tool turns carry the result of one call, in call order.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
}

type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float32
}

// Model produces the next assistant turn for a request.
type Model interface {
	Generate(ctx context.Context, req *Request) (*Message, error)
}

func unavailable(err error) error {
	return errors.Join(ErrUnavailable, err)
}
