// Package tools defines the server's tools and the registry that dispatches
// calls to them.
//
// A tool is described by a Definition: a unique name, a human-readable
// description, a JSON schema for its input, a validation step that turns raw
// JSON arguments into a typed value, and an execution step. Most callers
// build definitions with New, which reflects the schema from a Go struct:
//
//	type EchoArgs struct {
//		Text string `json:"text" jsonschema:"description=Text to echo"`
//	}
//
//	echo := tools.New("echo", "Echo text back", func(ctx context.Context, in EchoArgs) (map[string]string, error) {
//		return map[string]string{"text": in.Text}, nil
//	})
//
// Struct fields without omitempty are required. Defaults come from the
// jsonschema "default=" tag and are applied before validation, so handlers
// always observe them.
//
// The Registry is built once from a fixed list of definitions and is
// read-only afterwards. Default returns the server's complete tool set.
//
// Errors
//
// Registry.Call distinguishes three failures:
//
//   - ErrUnknownTool when no definition has the requested name.
//   - *ValidationError when the arguments do not match the input schema. The
//     Field names the offending argument.
//   - *ExecutionError when the tool itself fails. It wraps the tool's error.
package tools
