// Package logctx carries request-scoped logging attributes through a
// context.Context and exposes an slog.Handler that renders them as groups.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps another slog.Handler and appends the req, sess, rpc, tool
// and resource groups found in the record's context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if s, ok := ctx.Value(scopeKey{}).(scope); ok {
		for _, g := range s.groups() {
			r.AddAttrs(g)
		}
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs and WithGroup keep the wrapper in place so derived loggers still
// pick up context groups.
func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

// New wraps l's handler with Handler. A nil logger yields a discarding logger.
func New(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	if _, ok := l.Handler().(Handler); ok {
		return l
	}
	return slog.New(Handler{Handler: l.Handler()})
}

type scopeKey struct{}

// scope is stored by value; each With* call copies it so parent contexts
// are unaffected.
type scope struct {
	req      *RequestData
	sess     *SessionData
	rpc      *RPCMessage
	tool     *ToolCallData
	resource *ResourceData
}

func (s scope) groups() []slog.Attr {
	out := make([]slog.Attr, 0, 5)
	if s.req != nil {
		out = append(out, s.req.group())
	}
	if s.sess != nil {
		out = append(out, s.sess.group())
	}
	if s.rpc != nil {
		out = append(out, s.rpc.group())
	}
	if s.tool != nil {
		out = append(out, s.tool.group())
	}
	if s.resource != nil {
		out = append(out, s.resource.group())
	}
	return out
}

func update(ctx context.Context, fn func(*scope)) context.Context {
	s, _ := ctx.Value(scopeKey{}).(scope)
	fn(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// nonEmpty drops string attributes with empty values.
func nonEmpty(attrs ...slog.Attr) []any {
	out := make([]any, 0, len(attrs))
	for _, a := range attrs {
		if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// RequestData describes the inbound HTTP request.
type RequestData struct {
	RequestID  string
	Method     string
	UserAgent  string
	RemoteAddr string
	Path       string
}

func (d *RequestData) group() slog.Attr {
	return slog.Group("req", nonEmpty(
		slog.String("id", d.RequestID),
		slog.String("method", d.Method),
		slog.String("user_agent", d.UserAgent),
		slog.String("remote_addr", d.RemoteAddr),
		slog.String("path", d.Path),
	)...)
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return update(ctx, func(s *scope) { s.req = data })
}

// SessionData identifies the transport session, sse or stdio.
type SessionData struct {
	SessionID string
	UserID    string
	Transport string
}

func (d *SessionData) group() slog.Attr {
	return slog.Group("sess", nonEmpty(
		slog.String("id", d.SessionID),
		slog.String("transport", d.Transport),
		slog.String("user_id", d.UserID),
	)...)
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return update(ctx, func(s *scope) { s.sess = data })
}

// RPCMessage summarizes a JSON-RPC message posted by a client.
type RPCMessage struct {
	Method string
	ID     string
	Type   string
}

func (m *RPCMessage) group() slog.Attr {
	return slog.Group("rpc", nonEmpty(
		slog.String("type", m.Type),
		slog.String("method", m.Method),
		slog.String("id", m.ID),
	)...)
}

func WithRPCMessage(ctx context.Context, msg *RPCMessage) context.Context {
	return update(ctx, func(s *scope) { s.rpc = msg })
}

type ToolCallData struct {
	ToolName string
}

func (d *ToolCallData) group() slog.Attr {
	return slog.Group("tool", slog.String("name", d.ToolName))
}

func WithToolCallData(ctx context.Context, data *ToolCallData) context.Context {
	return update(ctx, func(s *scope) { s.tool = data })
}

type ResourceData struct {
	URI string
}

func (d *ResourceData) group() slog.Attr {
	return slog.Group("resource", slog.String("uri", d.URI))
}

func WithResourceData(ctx context.Context, data *ResourceData) context.Context {
	return update(ctx, func(s *scope) { s.resource = data })
}
