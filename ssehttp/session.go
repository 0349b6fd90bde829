package ssehttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ggoodman/transcripter-mcp/sessions"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const transportName = "sse"

// lockedWriteFlusher serializes writes and flushes to a hanging response and
// refuses them once ctx is done.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// writeEvent writes one SSE frame and flushes it.
func writeEvent(wf *lockedWriteFlusher, name string, data []byte) error {
	var b bytes.Buffer
	if name != "" {
		fmt.Fprintf(&b, "event: %s\n", name)
	}
	fmt.Fprintf(&b, "data: %s\n\n", data)
	if _, err := wf.Write(b.Bytes()); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	wf.Flush()
	return nil
}

// session is one open SSE stream. It is the registry entry, the transport the
// MCP server connects through, and the resulting connection.
type session struct {
	id        string
	userID    string
	createdAt time.Time
	wf        *lockedWriteFlusher
	incoming  chan jsonrpc.Message

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newSession(id, userID string, wf *lockedWriteFlusher, createdAt time.Time, buffer int) *session {
	return &session{
		id:        id,
		userID:    userID,
		createdAt: createdAt,
		wf:        wf,
		incoming:  make(chan jsonrpc.Message, buffer),
		done:      make(chan struct{}),
	}
}

func (s *session) ID() string           { return s.id }
func (s *session) Transport() string    { return transportName }
func (s *session) CreatedAt() time.Time { return s.createdAt }

// Deliver queues a client message for the server. It fails with
// sessions.ErrSessionClosed once the stream has ended.
func (s *session) Deliver(ctx context.Context, msg jsonrpc.Message) error {
	select {
	case <-s.done:
		return sessions.ErrSessionClosed
	default:
	}
	select {
	case s.incoming <- msg:
		return nil
	case <-s.done:
		return sessions.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) Connect(context.Context) (mcp.Connection, error) { return s, nil }

func (s *session) SessionID() string { return s.id }

func (s *session) Read(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-s.incoming:
		return msg, nil
	case <-s.done:
		return nil, io.EOF
	}
}

func (s *session) Write(ctx context.Context, msg jsonrpc.Message) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sessions.ErrSessionClosed
	}
	return writeEvent(s.wf, "message", data)
}

// ping writes an SSE comment line to keep intermediaries from idling out the
// stream.
func (s *session) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sessions.ErrSessionClosed
	}
	if _, err := s.wf.Write([]byte(": ping\n\n")); err != nil {
		return err
	}
	s.wf.Flush()
	return nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

var (
	_ sessions.Session = (*session)(nil)
	_ mcp.Transport    = (*session)(nil)
	_ mcp.Connection   = (*session)(nil)
)
