// Package stdio serves an MCP server to a single client over stdin/stdout.
//
// The peer is identified by the OS user running the process; there is no
// token exchange. Logs must go to stderr or a file since stdout carries the
// protocol.
//
//	h := stdio.NewHandler(srv, stdio.WithLogger(log))
//	if err := h.Serve(ctx); err != nil { ... }
package stdio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/user"

	"github.com/ggoodman/transcripter-mcp/internal/logctx"
	"github.com/ggoodman/transcripter-mcp/internal/metrics"
	"github.com/ggoodman/transcripter-mcp/mcpserver"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const transportName = "stdio"

// UserProvider names the local peer.
type UserProvider interface {
	CurrentUserID() (string, error)
}

// OSUserProvider reports the username of the process owner, falling back to
// the uid.
type OSUserProvider struct{}

func (OSUserProvider) CurrentUserID() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	if u.Username != "" {
		return u.Username, nil
	}
	return u.Uid, nil
}

// Handler runs one MCP session over a reader/writer pair.
type Handler struct {
	server       *mcpserver.Server
	r            io.Reader
	w            io.Writer
	l            *slog.Logger
	metrics      *metrics.Collector
	userProvider UserProvider
}

// Option customizes a Handler.
type Option func(*Handler)

// WithIO replaces stdin and stdout.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}

// WithMetrics records the session on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(h *Handler) { h.metrics = c }
}

// WithUserProvider overrides how the peer is identified.
func WithUserProvider(up UserProvider) Option {
	return func(h *Handler) {
		if up != nil {
			h.userProvider = up
		}
	}
}

// NewHandler constructs a Handler on os.Stdin and os.Stdout.
func NewHandler(server *mcpserver.Server, opts ...Option) *Handler {
	h := &Handler{
		server:       server,
		r:            os.Stdin,
		w:            os.Stdout,
		userProvider: OSUserProvider{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.l = logctx.New(h.l)
	return h
}

// Serve runs the session until the peer closes its input or ctx is done. A
// clean disconnect returns nil.
func (h *Handler) Serve(ctx context.Context) error {
	uid, err := h.userProvider.CurrentUserID()
	if err != nil {
		h.l.WarnContext(ctx, "stdio.user.fail", slog.String("err", err.Error()))
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID: uuid.NewString(),
		UserID:    uid,
		Transport: transportName,
	})

	h.metrics.SessionOpened(transportName)
	defer h.metrics.SessionClosed(transportName)
	h.l.InfoContext(ctx, "stdio.session.open")

	err = h.server.MCP().Run(ctx, h.transport())
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
		h.l.InfoContext(ctx, "stdio.session.close")
		return nil
	default:
		h.l.ErrorContext(ctx, "stdio.session.fail", slog.String("err", err.Error()))
		return err
	}
}

func (h *Handler) transport() mcp.Transport {
	if h.r == os.Stdin && h.w == os.Stdout {
		return &mcp.StdioTransport{}
	}
	return &mcp.IOTransport{Reader: readCloser(h.r), Writer: writeCloser(h.w)}
}

func readCloser(r io.Reader) io.ReadCloser {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc
	}
	return io.NopCloser(r)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func writeCloser(w io.Writer) io.WriteCloser {
	if wc, ok := w.(io.WriteCloser); ok {
		return wc
	}
	return nopWriteCloser{w}
}
