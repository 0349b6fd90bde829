package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
	invopop "github.com/invopop/jsonschema"
)

var (
	// ErrUnknownTool is returned when a call names a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrDuplicateTool is returned when two definitions share a name.
	ErrDuplicateTool = errors.New("duplicate tool name")
)

// ValidationError reports arguments that do not satisfy a tool's input schema.
type ValidationError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid arguments for tool %q: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("invalid arguments for tool %q: %s: %s", e.Tool, e.Field, e.Reason)
}

// ExecutionError wraps a failure raised by a tool while executing.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Definition is a single callable tool.
type Definition interface {
	Name() string
	Description() string
	// InputSchema describes the accepted arguments. It is always an object
	// schema.
	InputSchema() *jsonschema.Schema
	// Validate applies defaults and checks raw against the input schema,
	// returning the typed input to hand to Execute.
	Validate(raw json.RawMessage) (any, error)
	// Execute runs the tool on a value previously returned by Validate.
	Execute(ctx context.Context, input any) (any, error)
}

type typedTool[In, Out any] struct {
	name        string
	description string
	schema      *jsonschema.Schema
	resolved    *jsonschema.Resolved
	props       map[string]*jsonschema.Resolved
	order       []string
	fn          func(context.Context, In) (Out, error)
}

// New builds a Definition whose input schema is reflected from In. Arguments
// are decoded strictly: unknown fields are rejected.
//
// New panics if In does not reflect to a valid object schema. This can only
// happen through a programming error.
func New[In, Out any](name, description string, fn func(ctx context.Context, in In) (Out, error)) Definition {
	schema, order, err := reflectInputSchema[In]()
	if err != nil {
		panic(fmt.Sprintf("tools: %s: %v", name, err))
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("tools: %s: resolve schema: %v", name, err))
	}

	t := &typedTool[In, Out]{
		name:        name,
		description: description,
		schema:      schema,
		resolved:    resolved,
		props:       make(map[string]*jsonschema.Resolved, len(schema.Properties)),
		order:       order,
		fn:          fn,
	}
	for k, ps := range schema.Properties {
		r, err := ps.Resolve(nil)
		if err != nil {
			panic(fmt.Sprintf("tools: %s: resolve property %q: %v", name, k, err))
		}
		t.props[k] = r
	}
	return t
}

// reflectInputSchema reflects In with invopop and re-reads the result as a
// jsonschema-go schema, which is what the MCP SDK consumes. The property names
// are returned in declaration order.
func reflectInputSchema[In any]() (*jsonschema.Schema, []string, error) {
	r := &invopop.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		Anonymous:                 true,
		AllowAdditionalProperties: false,
	}
	s := r.Reflect(new(In))
	if s == nil || s.Type != "object" {
		return nil, nil, errors.New("input must reflect to an object schema")
	}
	s.Version = ""

	b, err := json.Marshal(s)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal schema: %w", err)
	}
	var out jsonschema.Schema
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	if out.Properties == nil {
		out.Properties = map[string]*jsonschema.Schema{}
	}
	var order []string
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			order = append(order, el.Key)
		}
	}
	return &out, order, nil
}

func (t *typedTool[In, Out]) Name() string                    { return t.name }
func (t *typedTool[In, Out]) Description() string             { return t.description }
func (t *typedTool[In, Out]) InputSchema() *jsonschema.Schema { return t.schema }

func (t *typedTool[In, Out]) invalid(field, reason string) error {
	return &ValidationError{Tool: t.name, Field: field, Reason: reason}
}

// Validate checks a float-decoded copy of raw against the schema, then
// decodes In from the caller's own bytes plus defaults so that numbers keep
// their exact text.
func (t *typedTool[In, Out]) Validate(raw json.RawMessage) (any, error) {
	args := map[string]any{}
	fields := map[string]json.RawMessage{}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if trimmed[0] != '{' {
			return nil, t.invalid("", "arguments must be a JSON object")
		}
		if err := json.Unmarshal(trimmed, &args); err != nil {
			return nil, t.invalid("", fmt.Sprintf("malformed arguments: %v", err))
		}
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, t.invalid("", fmt.Sprintf("malformed arguments: %v", err))
		}
	}

	if err := t.resolved.ApplyDefaults(&args); err != nil {
		return nil, t.invalid("", fmt.Sprintf("applying defaults: %v", err))
	}

	unknown := make([]string, 0)
	for k := range args {
		if _, ok := t.props[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return nil, t.invalid(unknown[0], "unknown field")
	}
	for _, k := range t.schema.Required {
		if _, ok := args[k]; !ok {
			return nil, t.invalid(k, "is required")
		}
	}
	for _, k := range t.order {
		v, ok := args[k]
		if !ok {
			continue
		}
		if err := t.props[k].Validate(v); err != nil {
			return nil, t.invalid(k, err.Error())
		}
	}
	if err := t.resolved.Validate(&args); err != nil {
		return nil, t.invalid("", err.Error())
	}

	for k, v := range args {
		if _, ok := fields[k]; ok {
			continue
		}
		def, err := json.Marshal(v)
		if err != nil {
			return nil, t.invalid(k, err.Error())
		}
		fields[k] = def
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, t.invalid("", err.Error())
	}
	var in In
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, t.invalid(typeErr.Field, fmt.Sprintf("must be %s", typeErr.Type))
		}
		return nil, t.invalid("", err.Error())
	}
	if v, ok := any(&in).(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				ve.Tool = t.name
				return nil, ve
			}
			return nil, t.invalid("", err.Error())
		}
	}
	return in, nil
}

func (t *typedTool[In, Out]) Execute(ctx context.Context, input any) (any, error) {
	in, ok := input.(In)
	if !ok {
		return nil, fmt.Errorf("tool %q: unexpected input type %T", t.name, input)
	}
	out, err := t.fn(ctx, in)
	if err != nil {
		return nil, err
	}
	return out, nil
}
