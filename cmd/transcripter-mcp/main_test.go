package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/ggoodman/transcripter-mcp/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Name:            config.DefaultName,
		Version:         config.DefaultVersion,
		Port:            config.DefaultPort,
		APIBaseURL:      "http://localhost:3000",
		HTTPTimeout:     time.Second,
		ShutdownTimeout: time.Second,
		MessageBuffer:   100,
		Log:             config.Log{Level: "error", Format: "json"},
		Redis:           config.Redis{TTL: time.Minute},
	}
}

func TestRun(t *testing.T) {
	color.NoColor = true
	ctx := context.Background()

	t.Run("No command prints usage", func(t *testing.T) {
		var stderr bytes.Buffer
		err := run(ctx, nil, nil, io.Discard, &stderr)
		require.ErrorIs(t, err, errUsage)
		assert.Contains(t, stderr.String(), "server [port]")
	})

	t.Run("Unknown command prints usage", func(t *testing.T) {
		var stderr bytes.Buffer
		err := run(ctx, []string{"serve"}, nil, io.Discard, &stderr)
		require.ErrorIs(t, err, errUsage)
		assert.Contains(t, stderr.String(), "Unknown command: serve")
	})

	t.Run("Version prints name and version", func(t *testing.T) {
		var stdout bytes.Buffer
		require.NoError(t, run(ctx, []string{"version"}, nil, &stdout, io.Discard))
		assert.Equal(t, "transcripter-mcp-server 1.0.0\n", stdout.String())
	})

	t.Run("Rejects invalid ports", func(t *testing.T) {
		for _, p := range []string{"abc", "0", "70000", "-1"} {
			err := run(ctx, []string{"server", p}, nil, io.Discard, io.Discard)
			require.Error(t, err, p)
		}
	})

	t.Run("Server without a port speaks stdio", func(t *testing.T) {
		inR, inW := io.Pipe()
		outR, outW := io.Pipe()
		done := make(chan error, 1)
		go func() {
			done <- run(ctx, []string{"server"}, inR, outW, io.Discard)
			_ = outW.Close()
		}()

		client := mcp.NewClient(&mcp.Implementation{Name: "cli-test", Version: "v0.0.1"}, nil)
		cs, err := client.Connect(ctx, &mcp.IOTransport{Reader: outR, Writer: inW}, nil)
		require.NoError(t, err)
		res, err := cs.ListTools(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, res.Tools, 6)
		require.NoError(t, cs.Close())

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("stdio server did not exit")
		}
	})
}

func TestParsePort(t *testing.T) {
	p, err := parsePort("3500")
	require.NoError(t, err)
	assert.Equal(t, 3500, p)
}

func TestNewAuthenticator(t *testing.T) {
	ctx := context.Background()

	a, err := newAuthenticator(ctx, config.Auth{})
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = newAuthenticator(ctx, config.Auth{HMACSecret: "s3cret"})
	require.NoError(t, err)
	assert.NotNil(t, a)

	_, err = newAuthenticator(ctx, config.Auth{Issuer: "http://127.0.0.1:1", Audience: "aud"})
	require.Error(t, err)
}

func TestHandlerWithAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth = config.Auth{
		HMACSecret:     "s3cret",
		Issuer:         "https://issuer.example.com",
		Audience:       "transcripter",
		RequiredScopes: "transcripts:read",
	}
	ctx := context.Background()

	a, err := build(ctx, cfg, io.Discard)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.enableHTTP(ctx))
	h, err := a.handler()
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/sse")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), `resource_metadata="`+srv.URL+`/.well-known/oauth-protected-resource"`)

	resp, err = http.Get(srv.URL + "/.well-known/oauth-protected-resource")
	require.NoError(t, err)
	defer resp.Body.Close()
	var meta map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
	assert.Equal(t, "transcripter", meta["resource"])
	assert.Equal(t, []any{"https://issuer.example.com"}, meta["authorization_servers"])
	assert.Equal(t, []any{"transcripts:read"}, meta["scopes_supported"])

	token := func(scope string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iss":   "https://issuer.example.com",
			"aud":   "transcripter",
			"sub":   "user-1",
			"scope": scope,
			"iat":   time.Now().Unix(),
			"exp":   time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte("s3cret"))
		require.NoError(t, err)
		return s
	}
	get := func(tok string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/sse", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp = get(token("news:read"))
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), `error="insufficient_scope"`)

	resp = get(token("news:read transcripts:read"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeHTTP(t *testing.T) {
	color.NoColor = true
	cfg := testConfig(t)
	cfg.Instructions = "Search transcriptions before summarizing them."
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := build(ctx, cfg, io.Discard)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.enableHTTP(ctx))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	var banner bytes.Buffer
	printBanner(&banner, a, ln.Addr().String())
	assert.Contains(t, banner.String(), base+"/sse")
	assert.Contains(t, banner.String(), "transcription-search")

	done := make(chan error, 1)
	go func() { done <- a.serveHTTP(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	client := mcp.NewClient(&mcp.Implementation{Name: "cli-test", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, &mcp.SSEClientTransport{Endpoint: base + "/sse"}, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.Instructions, cs.InitializeResult().Instructions)
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "fetch-news", Arguments: map[string]any{"query": "polish"}})
	require.NoError(t, err)
	require.False(t, res.IsError)

	n, err := a.directory.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	resp, err := http.Get(base + "/")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()
	assert.Equal(t, "transcripter-mcp-server", info["name"])

	// Shutdown must not wait for the open SSE stream.
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
	_ = cs.Close()
}

func TestBuildWithNewsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "news.yaml")
	require.NoError(t, os.WriteFile(path, []byte("articles:\n  - title: Only one\n    url: https://example.com/1\n    summary: Single\n"), 0o644))

	cfg := testConfig(t)
	cfg.NewsFile = path
	a, err := build(context.Background(), cfg, io.Discard)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, 1, a.catalog.Len())

	cfg.NewsFile = filepath.Join(dir, "missing.yaml")
	_, err = build(context.Background(), cfg, io.Discard)
	require.Error(t, err)
}
