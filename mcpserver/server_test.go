package mcpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ggoodman/transcripter-mcp/internal/backend"
	"github.com/ggoodman/transcripter-mcp/internal/metrics"
	"github.com/ggoodman/transcripter-mcp/mcpserver"
	"github.com/ggoodman/transcripter-mcp/resources"
	"github.com/ggoodman/transcripter-mcp/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, opts ...mcpserver.Option) *mcpserver.Server {
	t.Helper()
	tr, err := tools.NewDefaultRegistry(tools.Deps{Backend: backend.NewMock(backend.WithSeed(7))})
	require.NoError(t, err)
	rr, err := resources.NewDefaultRegistry()
	require.NoError(t, err)
	s, err := mcpserver.New(tr, rr, opts...)
	require.NoError(t, err)
	return s
}

func connect(t *testing.T, s *mcpserver.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	ct, st := mcp.NewInMemoryTransports()

	ss, err := s.MCP().Connect(ctx, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "want text content, got %T", res.Content[0])
	return tc.Text
}

func TestNew(t *testing.T) {
	t.Run("Requires both registries", func(t *testing.T) {
		rr, _ := resources.NewDefaultRegistry()
		_, err := mcpserver.New(nil, rr)
		require.Error(t, err)

		tr, _ := tools.NewRegistry()
		_, err = mcpserver.New(tr, nil)
		require.Error(t, err)
	})

	t.Run("Info lists tools and resource schemes", func(t *testing.T) {
		s := newServer(t, mcpserver.WithInfo("custom", "9.9.9"))
		info := s.Info()
		assert.Equal(t, "custom", info.Name)
		assert.Equal(t, "9.9.9", info.Version)
		assert.Equal(t, []string{
			"test-api", "transcription-search", "transcription-summary",
			"fetch-news", "analyze-news", "calibrator",
		}, info.Capabilities.Tools)
		assert.Equal(t, []string{"transcription", "analysis"}, info.Capabilities.Resources)
	})

	t.Run("Info defaults to the server identity", func(t *testing.T) {
		info := newServer(t).Info()
		assert.Equal(t, "transcripter-mcp-server", info.Name)
		assert.Equal(t, "1.0.0", info.Version)
	})
}

func TestTools(t *testing.T) {
	ctx := context.Background()
	cs := connect(t, newServer(t))

	t.Run("Lists every registered tool with an object schema", func(t *testing.T) {
		res, err := cs.ListTools(ctx, nil)
		require.NoError(t, err)
		var names []string
		for _, tool := range res.Tools {
			names = append(names, tool.Name)
			assert.NotNil(t, tool.InputSchema, tool.Name)
		}
		assert.ElementsMatch(t, []string{
			"test-api", "transcription-search", "transcription-summary",
			"fetch-news", "analyze-news", "calibrator",
		}, names)
	})

	t.Run("Returns the tool output as JSON text", func(t *testing.T) {
		res, err := cs.CallTool(ctx, &mcp.CallToolParams{
			Name:      "analyze-news",
			Arguments: map[string]any{"content": "Markets rallied today."},
		})
		require.NoError(t, err)
		require.False(t, res.IsError)

		var out tools.NewsAnalysis
		require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &out))
		assert.Equal(t, "positive", out.Sentiment)
		assert.Len(t, out.Entities, 3)
	})

	t.Run("Echoes paging for fetch-news", func(t *testing.T) {
		res, err := cs.CallTool(ctx, &mcp.CallToolParams{
			Name:      "fetch-news",
			Arguments: map[string]any{"page": 2, "pageSize": 1},
		})
		require.NoError(t, err)
		require.False(t, res.IsError)

		var out struct {
			Articles []map[string]any `json:"articles"`
			Page     int              `json:"page"`
			PageSize int              `json:"pageSize"`
		}
		require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &out))
		assert.Equal(t, 2, out.Page)
		assert.Equal(t, 1, out.PageSize)
		assert.LessOrEqual(t, len(out.Articles), 1)
	})

	t.Run("Validation failures become error results", func(t *testing.T) {
		res, err := cs.CallTool(ctx, &mcp.CallToolParams{
			Name:      "calibrator",
			Arguments: map[string]any{"action": "explode"},
		})
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, textOf(t, res), "action")
	})

	t.Run("Execution failures become error results", func(t *testing.T) {
		res, err := cs.CallTool(ctx, &mcp.CallToolParams{
			Name:      "transcription-summary",
			Arguments: map[string]any{"transcriptionId": 0},
		})
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, textOf(t, res), "failed to generate summary")
	})

	t.Run("Unknown tools are rejected", func(t *testing.T) {
		_, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "does-not-exist"})
		require.Error(t, err)
	})
}

func TestResources(t *testing.T) {
	ctx := context.Background()
	cs := connect(t, newServer(t))

	t.Run("Lists the resource templates", func(t *testing.T) {
		res, err := cs.ListResourceTemplates(ctx, nil)
		require.NoError(t, err)
		var templates []string
		for _, rt := range res.ResourceTemplates {
			templates = append(templates, rt.URITemplate)
		}
		assert.ElementsMatch(t, []string{"transcription://{id}", "analysis://{id}"}, templates)
	})

	t.Run("Reads a transcription by id", func(t *testing.T) {
		res, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: "transcription://123"})
		require.NoError(t, err)
		require.Len(t, res.Contents, 1)
		assert.Equal(t, "application/json", res.Contents[0].MIMEType)

		var rec resources.Transcription
		require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &rec))
		assert.Equal(t, 123, rec.ID)
	})

	t.Run("Reads an analysis by id", func(t *testing.T) {
		res, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: "analysis://5"})
		require.NoError(t, err)
		var rec resources.Analysis
		require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &rec))
		assert.Equal(t, 5, rec.ID)
	})

	t.Run("Malformed ids are not found", func(t *testing.T) {
		_, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: "transcription://abc"})
		require.Error(t, err)
	})

	t.Run("Unknown schemes are not found", func(t *testing.T) {
		_, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: "video://1"})
		require.Error(t, err)
	})
}

func TestObservability(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	collector := metrics.NewCollector("test")
	s := newServer(t,
		mcpserver.WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))),
		mcpserver.WithMetrics(collector),
	)
	cs := connect(t, s)

	_, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "analyze-news", Arguments: map[string]any{"content": "x"}})
	require.NoError(t, err)
	_, err = cs.CallTool(ctx, &mcp.CallToolParams{Name: "fetch-news", Arguments: map[string]any{"page": "one"}})
	require.NoError(t, err)
	_, _ = cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: "analysis://abc"})

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `test_tool_calls_total{outcome="ok",tool="analyze-news"} 1`)
	assert.Contains(t, body, `test_tool_calls_total{outcome="invalid",tool="fetch-news"} 1`)
	assert.Contains(t, body, `test_resource_reads_total{outcome="not_found",scheme="analysis"} 1`)

	out := logs.String()
	assert.Contains(t, out, `"msg":"tool.call.ok"`)
	assert.Contains(t, out, `"msg":"tool.call.invalid"`)
	assert.Contains(t, out, `"tool":{"name":"analyze-news"}`)
}
