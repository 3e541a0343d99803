// Package mcp describes the agent-callable tool surface. Each tool
// carries a JSON schema for its arguments and a handler bound to the
// service layer; how tools are serialized to an agent transport is up
// to the caller.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/kanbanhq/kanban/internal/service"
)

// Tool is one agent-callable operation.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	handler     func(ctx context.Context, args json.RawMessage) (any, error)
}

// Registry holds the tool set in registration order.
type Registry struct {
	svc   *service.Service
	tools map[string]*Tool
	order []string
}

// NewRegistry builds the full tool set bound to svc.
func NewRegistry(svc *service.Service) *Registry {
	r := &Registry{svc: svc, tools: make(map[string]*Tool)}
	r.registerBoardTools()
	r.registerTaskTools()
	r.registerDependencyTools()
	r.registerPriorityTools()
	r.registerNoteTools()
	r.registerAdminTools()
	return r
}

func (r *Registry) register(t *Tool) {
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// List returns the tools in registration order.
func (r *Registry) List() []*Tool {
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Call invokes a tool by name with raw JSON arguments.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, service.NotFoundf("unknown tool %q", name)
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return tool.handler(ctx, args)
}

// parseArgs decodes tool arguments, rejecting unknown fields.
func parseArgs(args json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return service.Validationf("invalid tool arguments: %v", err)
	}
	return nil
}

// schema helpers

func obj(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func number(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

func boolean(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

func strArray(desc string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": desc,
	}
}
