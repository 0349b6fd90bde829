package ssehttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/transcripter-mcp/auth"
	"github.com/ggoodman/transcripter-mcp/internal/logctx"
	"github.com/ggoodman/transcripter-mcp/internal/metrics"
	"github.com/ggoodman/transcripter-mcp/internal/wellknown"
	"github.com/ggoodman/transcripter-mcp/mcpserver"
	"github.com/ggoodman/transcripter-mcp/sessions"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

var _ http.Handler = (*Handler)(nil)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"

	sessionIDParam  = "sessionId"
	maxMessageBytes = 4 << 20

	errNoActiveConnection = "No active SSE connection"
	errSessionNotFound    = "Session not found"
)

// writeJSONError emits {"error": msg} with status. It must be called before
// the response status is written.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// WithMetrics records HTTP and session metrics on c and serves GET /metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(h *Handler) { h.metrics = c }
}

// WithAuthenticator requires a bearer token on the SSE and message endpoints.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(h *Handler) { h.auth = a }
}

// WithRealm sets the realm advertised in Bearer challenges.
func WithRealm(realm string) Option {
	return func(h *Handler) { h.realm = realm }
}

// WithProtectedResource serves meta at the RFC 9728 well-known path and
// references it from Bearer challenges.
func WithProtectedResource(meta wellknown.ProtectedResourceMetadata) Option {
	return func(h *Handler) { h.prm = &meta }
}

// WithDirectory records open sessions in d so other instances can see them.
func WithDirectory(d sessions.Directory) Option {
	return func(h *Handler) { h.directory = d }
}

// WithInstanceID names this process in directory entries.
func WithInstanceID(id string) Option {
	return func(h *Handler) { h.instanceID = id }
}

// WithSessionTTL sets how long a directory entry outlives its last refresh.
func WithSessionTTL(d time.Duration) Option {
	return func(h *Handler) { h.sessionTTL = d }
}

// WithKeepAlive emits an SSE comment every d on open streams. Zero disables
// keep-alives.
func WithKeepAlive(d time.Duration) Option {
	return func(h *Handler) { h.keepAlive = d }
}

// WithMessageBuffer sets how many posted messages may queue per session.
func WithMessageBuffer(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// Handler serves the MCP HTTP+SSE transport.
type Handler struct {
	mux      *http.ServeMux
	log      *slog.Logger
	server   *mcpserver.Server
	sessions *sessions.Registry

	metrics    *metrics.Collector
	auth       auth.Authenticator
	realm      string
	prm        *wellknown.ProtectedResourceMetadata
	directory  sessions.Directory
	instanceID string
	sessionTTL time.Duration
	keepAlive  time.Duration
	buffer     int
	now        func() time.Time
}

// New constructs a Handler serving server. Open streams are tracked in reg.
func New(server *mcpserver.Server, reg *sessions.Registry, opts ...Option) (*Handler, error) {
	if server == nil {
		return nil, fmt.Errorf("server is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	h := &Handler{
		mux:        http.NewServeMux(),
		server:     server,
		sessions:   reg,
		instanceID: uuid.NewString(),
		sessionTTL: time.Hour,
		buffer:     100,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = logctx.New(h.log)

	h.handle("GET /{$}", h.handleInfo)
	h.handle("GET /sse", h.handleSSE)
	h.handle("POST /message", h.handleMessage)
	h.handle("POST /messages", h.handleMessage)
	h.handle("GET /healthz", h.handleHealth)
	if h.metrics != nil {
		h.handle("GET /metrics", h.metrics.Handler().ServeHTTP)
	}
	if h.prm != nil {
		h.handle("GET "+wellknown.ProtectedResourcePath, h.handleProtectedResource)
	}
	h.mux.HandleFunc("OPTIONS /", h.handlePreflight)

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// handle registers fn under pattern and records its status and latency.
func (h *Handler) handle(pattern string, fn http.HandlerFunc) {
	route := pattern
	if _, path, ok := strings.Cut(pattern, " "); ok {
		route = strings.TrimSuffix(path, "{$}")
	}
	h.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		h.metrics.ObserveHTTPRequest(r.Method, route, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept")
}

func (h *Handler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.server.Info())
}

func (h *Handler) handleProtectedResource(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.prm)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "sessions": h.sessions.Len()}
	if h.directory != nil {
		n, err := h.directory.Count(r.Context())
		if err != nil {
			h.log.ErrorContext(r.Context(), "directory.count.fail", slog.String("err", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "sessions": h.sessions.Len()})
			return
		}
		body["directorySessions"] = n
	}
	writeJSON(w, http.StatusOK, body)
}

// handleSSE opens a stream, announces the message endpoint and serves the
// session until the client disconnects or the server closes it.
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		h.log.WarnContext(ctx, "sse.accept.unsupported")
		writeJSONError(w, http.StatusNotAcceptable, "SSE requires Accept: text/event-stream")
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var userID string
	if h.auth != nil {
		ui := h.checkAuthentication(ctx, r, w)
		if ui == nil {
			return
		}
		userID = ui.UserID()
	}

	id := uuid.NewString()
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: id, UserID: userID, Transport: transportName})
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}
	sess := newSession(id, userID, wf, h.now(), h.buffer)
	defer sess.Close()

	if err := h.sessions.Insert(sess); err != nil {
		h.log.ErrorContext(ctx, "sse.session.insert.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to register session")
		return
	}
	defer h.sessions.Remove(id)

	h.register(ctx, sess)
	defer h.unregister(ctx, id)

	h.metrics.SessionOpened(transportName)
	defer h.metrics.SessionClosed(transportName)

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	endpoint := "/message?" + sessionIDParam + "=" + id
	if err := writeEvent(wf, "endpoint", []byte(endpoint)); err != nil {
		h.log.ErrorContext(ctx, "sse.endpoint.fail", slog.String("err", err.Error()))
		return
	}

	ss, err := h.server.MCP().Connect(ctx, sess, nil)
	if err != nil {
		h.log.ErrorContext(ctx, "sse.connect.fail", slog.String("err", err.Error()))
		return
	}
	defer ss.Close()
	h.log.InfoContext(ctx, "sse.session.open")

	var tick <-chan time.Time
	if h.keepAlive > 0 {
		t := time.NewTicker(h.keepAlive)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			h.log.InfoContext(ctx, "sse.session.close", slog.String("reason", "client"), slog.Duration("dur", time.Since(start)))
			return
		case <-sess.done:
			h.log.InfoContext(ctx, "sse.session.close", slog.String("reason", "server"), slog.Duration("dur", time.Since(start)))
			return
		case <-tick:
			if err := sess.ping(); err != nil {
				h.log.InfoContext(ctx, "sse.keepalive.fail", slog.String("err", err.Error()))
				return
			}
			h.touch(ctx, id)
		}
	}
}

// handleMessage delivers one posted JSON-RPC message to its session.
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := r.URL.Query().Get(sessionIDParam)
	if id == "" {
		h.log.WarnContext(ctx, "message.session.missing")
		writeJSONError(w, http.StatusBadRequest, errNoActiveConnection)
		return
	}

	var userID string
	if h.auth != nil {
		ui := h.checkAuthentication(ctx, r, w)
		if ui == nil {
			return
		}
		userID = ui.UserID()
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: id, UserID: userID, Transport: transportName})

	found, err := h.sessions.Lookup(id)
	if err != nil {
		h.log.InfoContext(ctx, "message.session.miss")
		writeJSONError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	if s, ok := found.(*session); ok && s.userID != userID {
		h.log.WarnContext(ctx, "message.session.user_mismatch")
		writeJSONError(w, http.StatusNotFound, errSessionNotFound)
		return
	}

	mt, err := contenttype.GetMediaType(r)
	if err != nil || !mt.Matches(jsonMediaType) {
		h.log.WarnContext(ctx, "message.content_type.unsupported", slog.String("content_type", r.Header.Get("Content-Type")))
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		h.log.WarnContext(ctx, "message.body.read.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	msg, err := jsonrpc.DecodeMessage(body)
	if err != nil {
		h.log.WarnContext(ctx, "message.decode.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusBadRequest, "invalid JSON-RPC message")
		return
	}
	ctx = logctx.WithRPCMessage(ctx, describe(msg))

	if err := found.Deliver(ctx, msg); err != nil {
		if errors.Is(err, sessions.ErrSessionClosed) {
			h.log.InfoContext(ctx, "message.session.closed")
			writeJSONError(w, http.StatusNotFound, errSessionNotFound)
			return
		}
		h.log.ErrorContext(ctx, "message.deliver.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusServiceUnavailable, "failed to deliver message")
		return
	}
	h.touch(ctx, id)

	h.log.InfoContext(ctx, "message.accept")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("Accepted"))
}

func describe(msg jsonrpc.Message) *logctx.RPCMessage {
	switch m := msg.(type) {
	case *jsonrpc.Request:
		d := &logctx.RPCMessage{Method: m.Method, Type: "request"}
		if m.ID.IsValid() {
			d.ID = fmt.Sprint(m.ID.Raw())
		} else {
			d.Type = "notification"
		}
		return d
	case *jsonrpc.Response:
		return &logctx.RPCMessage{ID: fmt.Sprint(m.ID.Raw()), Type: "response"}
	}
	return &logctx.RPCMessage{Type: "unknown"}
}

func (h *Handler) register(ctx context.Context, s *session) {
	if h.directory == nil {
		return
	}
	err := h.directory.Register(ctx, sessions.Entry{
		ID:        s.id,
		Transport: transportName,
		Instance:  h.instanceID,
		UserID:    s.userID,
		CreatedAt: s.createdAt,
	}, h.sessionTTL)
	if err != nil {
		h.log.ErrorContext(ctx, "directory.register.fail", slog.String("err", err.Error()))
	}
}

func (h *Handler) touch(ctx context.Context, id string) {
	if h.directory == nil {
		return
	}
	if err := h.directory.Touch(ctx, id, h.sessionTTL); err != nil {
		h.log.WarnContext(ctx, "directory.touch.fail", slog.String("err", err.Error()))
	}
}

func (h *Handler) unregister(ctx context.Context, id string) {
	if h.directory == nil {
		return
	}
	if err := h.directory.Unregister(context.WithoutCancel(ctx), id); err != nil {
		h.log.ErrorContext(ctx, "directory.unregister.fail", slog.String("err", err.Error()))
	}
}

// buildBearerChallenge builds a Bearer challenge header value:
//
//	Bearer realm="<realm>", resource_metadata="...", error="...", error_description="..."
//
// Empty parts are omitted.
func buildBearerChallenge(realm, resourceMetadata, errCode, desc string) string {
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace
	var pieces []string
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	if resourceMetadata != "" {
		pieces = append(pieces, fmt.Sprintf(`resource_metadata="%s"`, esc(resourceMetadata)))
	}
	if errCode != "" {
		pieces = append(pieces, fmt.Sprintf(`error="%s"`, esc(errCode)))
	}
	if desc != "" {
		pieces = append(pieces, fmt.Sprintf(`error_description="%s"`, esc(desc)))
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}

// checkAuthentication validates the bearer token on r. On failure it writes
// the challenge response and returns nil.
func (h *Handler) checkAuthentication(ctx context.Context, r *http.Request, w http.ResponseWriter) auth.UserInfo {
	var metaURL string
	if h.prm != nil {
		metaURL = wellknown.MetadataURL(r)
	}
	challenge := func(errCode, desc string) string {
		return buildBearerChallenge(h.realm, metaURL, errCode, desc)
	}

	authHeader := r.Header.Get(authorizationHeader)
	if authHeader == "" {
		h.log.InfoContext(ctx, "auth.check.missing")
		w.Header().Add(wwwAuthenticateHeader, challenge("", ""))
		writeJSONError(w, http.StatusUnauthorized, "authorization required")
		return nil
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) || strings.TrimSpace(authHeader[len(bearerPrefix):]) == "" {
		h.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "malformed bearer authorization header"))
		w.Header().Add(wwwAuthenticateHeader, challenge("invalid_request", "malformed bearer authorization header"))
		writeJSONError(w, http.StatusBadRequest, "malformed bearer authorization header")
		return nil
	}
	tok := strings.TrimSpace(authHeader[len(bearerPrefix):])

	ui, err := h.auth.CheckAuthentication(ctx, tok)
	switch {
	case err == nil:
		return ui
	case errors.Is(err, auth.ErrUnauthorized):
		h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		w.Header().Add(wwwAuthenticateHeader, challenge("invalid_token", err.Error()))
		writeJSONError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrInsufficientScope):
		h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		w.Header().Add(wwwAuthenticateHeader, challenge("insufficient_scope", err.Error()))
		writeJSONError(w, http.StatusForbidden, "insufficient scope")
	default:
		h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "authentication failed")
	}
	return nil
}
