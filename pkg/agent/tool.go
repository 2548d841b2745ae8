package agent

import (
	"context"

	"github.com/quarryhq/quarry/pkg/vector"
)

// Tool is a single capability the engine can invoke while answering a
// query. Tools are pure lookups; they never mutate the store.
type Tool interface {
	Name() string
	Description() string
	Run(ctx context.Context, input Input) (Output, error)
}

// Input carries the arguments a policy passes to a tool.
type Input struct {
	Query      string
	Collection string
	TopK       int
	FileID     string
}

// Output is the evidence a tool produced. Summary is a short human-readable
// account of the result for the trace; the typed fields feed synthesis.
// Tool is filled in by the engine after the call returns.
type Output struct {
	Tool      string
	Hits      []vector.SearchHit
	Documents int64
	Chunks    int64
	FileIDs   []string
	Summary   string
}

// Registry holds the tools available to the engine, keyed by name.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates a registry with the given tools. Later registrations
// with a duplicate name replace earlier ones.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, tool := range tools {
		r.Register(tool)
	}
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Get returns the named tool, or nil when absent.
func (r *Registry) Get(name string) Tool {
	return r.tools[name]
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
