package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Registry is an immutable set of tool definitions keyed by name.
type Registry struct {
	byName map[string]Definition
	order  []Definition
}

// NewRegistry indexes defs by name. Registration order is preserved for
// listings.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{byName: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if d == nil {
			return nil, fmt.Errorf("tools: nil definition")
		}
		if _, dup := r.byName[d.Name()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name())
		}
		r.byName[d.Name()] = d
		r.order = append(r.order, d)
	}
	return r, nil
}

// Lookup returns the named definition or ErrUnknownTool.
func (r *Registry) Lookup(name string) (Definition, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return d, nil
}

// Definitions returns the definitions in registration order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.order))
	copy(out, r.order)
	return out
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	for i, d := range r.order {
		out[i] = d.Name()
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

// Call looks up, validates and executes a tool. Validation failures are
// returned as *ValidationError and execution failures as *ExecutionError.
func (r *Registry) Call(ctx context.Context, name string, raw json.RawMessage) (any, error) {
	d, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return Invoke(ctx, d, raw)
}

// Invoke validates raw against d and executes it.
func Invoke(ctx context.Context, d Definition, raw json.RawMessage) (any, error) {
	in, err := d.Validate(raw)
	if err != nil {
		return nil, err
	}
	out, err := d.Execute(ctx, in)
	if err != nil {
		return nil, &ExecutionError{Tool: d.Name(), Err: err}
	}
	return out, nil
}
