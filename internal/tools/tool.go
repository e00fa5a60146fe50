// Package tools holds the capabilities the assistant can offer to an LLM
// during a chat turn.
package tools

import (
	"context"
	"encoding/json"
	"sort"
)

// Tool is a capability the assistant can offer to the LLM.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage // JSON Schema
	Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error)
}

// ToolDef is the format for tool definitions expected by the LLM API,
// derived from the Tool interface.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Registry holds available tools and converts them to the LLM API format.
// It is populated at startup and read-only afterwards.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry holding ts.
func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// Register adds a tool to the registry, keyed by its Name. A later tool
// with the same name replaces the earlier one.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// ToToolDefs returns the tool definitions sorted by name, so prompts are
// stable across calls.
func (r *Registry) ToToolDefs() []ToolDef {
	out := make([]ToolDef, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Parameters(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
