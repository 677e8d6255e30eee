package tools

import (
	"context"
	"encoding/json"
	"sort"
)

// Tool defines the interface for one browser action the agent can take.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (string, error)
}

// Input is the wire shape every tool receives: a single action-specific
// target string (URL, CSS selector, text) chosen by the planner.
type Input struct {
	Target string `json:"target"`
}

// EncodeInput builds the JSON payload passed to Tool.Execute.
func EncodeInput(target string) string {
	data, _ := json.Marshal(Input{Target: target})
	return string(data)
}

// DecodeInput parses the payload inside a tool implementation.
func DecodeInput(input string) (Input, error) {
	var in Input
	err := json.Unmarshal([]byte(input), &in)
	return in, err
}

// Registry manages the set of available tools.
type Registry struct {
	Tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{
		Tools: make(map[string]Tool),
	}
}

func (r *Registry) Register(t Tool) {
	r.Tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.Tools[name]
}

// List returns every registered tool sorted by name, so prompt construction
// and logging stay deterministic.
func (r *Registry) List() []Tool {
	names := make([]string, 0, len(r.Tools))
	for name := range r.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.Tools[name])
	}
	return out
}
