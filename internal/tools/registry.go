package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"assistant/internal/chat"
)

// Registry is the static set of tools exposed to the model.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Schema().Name] = t
}

// Definitions returns the tool schemas sorted by name.
func (r *Registry) Definitions() []chat.ToolSchema {
	out := make([]chat.ToolSchema, 0, len(r.tools))
	for _, name := range r.Names() {
		out = append(out, r.tools[name].Schema().ToolSchema())
	}
	return out
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Execute runs the named tool. Every outcome, including an unknown name,
// invalid arguments and a panicking tool, is reported as a Result.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (res Result) {
	t, ok := r.tools[name]
	if !ok {
		return Failure("Unknown function: " + name)
	}
	params, err := DecodeParams(args)
	if err != nil {
		return Failure(err.Error())
	}
	if err := t.Schema().validate(params); err != nil {
		return Failure(err.Error())
	}
	defer func() {
		if p := recover(); p != nil {
			res = Failure(fmt.Sprintf("tool %s panicked: %v", name, p))
		}
	}()
	data, err := t.Execute(ctx, params)
	if err != nil {
		return Failure(err.Error())
	}
	return Success(data)
}
