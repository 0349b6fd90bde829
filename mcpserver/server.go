package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/transcripter-mcp/internal/config"
	"github.com/ggoodman/transcripter-mcp/internal/logctx"
	"github.com/ggoodman/transcripter-mcp/internal/metrics"
	"github.com/ggoodman/transcripter-mcp/resources"
	"github.com/ggoodman/transcripter-mcp/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Info is the server summary served on GET /.
type Info struct {
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Capabilities Capabilities `json:"capabilities"`
}

// Capabilities lists the registered tool names and resource schemes.
type Capabilities struct {
	Tools     []string `json:"tools"`
	Resources []string `json:"resources"`
}

// Server owns the MCP protocol server built from the registries.
type Server struct {
	mcp       *mcp.Server
	tools     *tools.Registry
	resources *resources.Registry

	name         string
	version      string
	instructions string
	log          *slog.Logger
	metrics      *metrics.Collector
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for tool and resource events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics records tool calls and resource reads on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithInfo overrides the implementation name and version.
func WithInfo(name, version string) Option {
	return func(s *Server) {
		if name != "" {
			s.name = name
		}
		if version != "" {
			s.version = version
		}
	}
}

// WithInstructions sets the instructions returned during initialization.
func WithInstructions(text string) Option {
	return func(s *Server) { s.instructions = text }
}

// New builds a Server exposing every tool in tr and every provider in rr.
func New(tr *tools.Registry, rr *resources.Registry, opts ...Option) (*Server, error) {
	if tr == nil {
		return nil, errors.New("tool registry is required")
	}
	if rr == nil {
		return nil, errors.New("resource registry is required")
	}
	s := &Server{
		tools:     tr,
		resources: rr,
		name:      config.DefaultName,
		version:   config.DefaultVersion,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logctx.New(s.log)

	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: s.name, Version: s.version},
		&mcp.ServerOptions{Logger: s.log, Instructions: s.instructions},
	)

	for _, d := range tr.Definitions() {
		schema := d.InputSchema()
		if schema == nil {
			return nil, fmt.Errorf("tool %q has no input schema", d.Name())
		}
		s.mcp.AddTool(&mcp.Tool{
			Name:        d.Name(),
			Description: d.Description(),
			InputSchema: schema,
		}, s.toolHandler(d))
	}

	for _, p := range rr.Providers() {
		s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
			Name:        p.Scheme(),
			Description: p.Description(),
			URITemplate: p.Template(),
			MIMEType:    p.MIMEType(),
		}, s.resourceHandler(p))
	}

	return s, nil
}

// MCP returns the underlying protocol server for transports to connect.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Info reports the server identity and registered capabilities.
func (s *Server) Info() Info {
	return Info{
		Name:    s.name,
		Version: s.version,
		Capabilities: Capabilities{
			Tools:     s.tools.Names(),
			Resources: s.resources.Schemes(),
		},
	}
}

func (s *Server) toolHandler(d tools.Definition) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: d.Name()})
		start := time.Now()
		s.log.InfoContext(ctx, "tool.call.start")

		out, err := tools.Invoke(ctx, d, req.Params.Arguments)
		elapsed := time.Since(start)
		if err != nil {
			var verr *tools.ValidationError
			if errors.As(err, &verr) {
				s.metrics.ObserveToolCall(d.Name(), metrics.OutcomeInvalid, elapsed)
				s.log.WarnContext(ctx, "tool.call.invalid", slog.String("field", verr.Field), slog.String("err", err.Error()))
			} else {
				s.metrics.ObserveToolCall(d.Name(), metrics.OutcomeError, elapsed)
				s.log.ErrorContext(ctx, "tool.call.fail", slog.Duration("duration", elapsed), slog.String("err", err.Error()))
			}
			return errorResult(err), nil
		}

		text, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			s.metrics.ObserveToolCall(d.Name(), metrics.OutcomeError, elapsed)
			s.log.ErrorContext(ctx, "tool.call.fail", slog.String("err", err.Error()))
			return errorResult(fmt.Errorf("encode result: %w", err)), nil
		}
		s.metrics.ObserveToolCall(d.Name(), metrics.OutcomeOK, elapsed)
		s.log.InfoContext(ctx, "tool.call.ok", slog.Duration("duration", elapsed))
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		}, nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

func (s *Server) resourceHandler(p resources.Provider) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		ctx = logctx.WithResourceData(ctx, &logctx.ResourceData{URI: uri})

		rec, err := p.Resolve(ctx, uri)
		if err != nil {
			s.metrics.ObserveResourceRead(p.Scheme(), metrics.OutcomeError)
			s.log.ErrorContext(ctx, "resource.read.fail", slog.String("err", err.Error()))
			return nil, fmt.Errorf("read %s: %w", uri, err)
		}
		if rec == nil {
			s.metrics.ObserveResourceRead(p.Scheme(), metrics.OutcomeNotFound)
			s.log.InfoContext(ctx, "resource.read.miss")
			return nil, mcp.ResourceNotFoundError(uri)
		}

		b, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			s.metrics.ObserveResourceRead(p.Scheme(), metrics.OutcomeError)
			return nil, fmt.Errorf("encode %s: %w", uri, err)
		}
		s.metrics.ObserveResourceRead(p.Scheme(), metrics.OutcomeOK)
		s.log.InfoContext(ctx, "resource.read.ok")
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: p.MIMEType(), Text: string(b)}},
		}, nil
	}
}
