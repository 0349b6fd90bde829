// Package mcpserver binds the tool and resource registries to an MCP protocol
// server.
//
// Every tool in the tools.Registry is exposed with its reflected input schema.
// Calls are validated and executed through tools.Invoke; validation and
// execution failures are reported to the client as tool results with isError
// set rather than as protocol errors. Each resources.Provider is exposed as a
// resource template, and misses become the protocol's resource-not-found
// error.
//
// The resulting *mcp.Server is transport agnostic. The ssehttp and stdio
// packages connect it to clients:
//
//	srv, err := mcpserver.New(toolReg, resourceReg, mcpserver.WithLogger(log))
//	if err != nil { ... }
//	h := ssehttp.New(srv, sessions.NewRegistry())
//	http.ListenAndServe(":3501", h)
package mcpserver
