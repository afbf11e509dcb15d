package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/lunarhue/sidekick/internal/providers"
)

// Tool is one callable exposed to the model.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, args map[string]any) *Result
}

// Registry holds the registered tools and renders their provider
// definitions.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the tool schemas in stable name order.
func (r *Registry) Definitions() []providers.ToolDefinition {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		defs = append(defs, providers.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

// Execute dispatches a tool call by name. Unknown tools produce an
// error result rather than an error, so the model can correct itself.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) *Result {
	t, ok := r.tools[name]
	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool: %s", name))
	}
	return t.Execute(ctx, args)
}
