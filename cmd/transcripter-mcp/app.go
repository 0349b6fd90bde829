package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ggoodman/transcripter-mcp/auth"
	"github.com/ggoodman/transcripter-mcp/internal/backend"
	"github.com/ggoodman/transcripter-mcp/internal/catalog"
	"github.com/ggoodman/transcripter-mcp/internal/config"
	"github.com/ggoodman/transcripter-mcp/internal/logging"
	"github.com/ggoodman/transcripter-mcp/internal/metrics"
	"github.com/ggoodman/transcripter-mcp/internal/wellknown"
	"github.com/ggoodman/transcripter-mcp/mcpserver"
	"github.com/ggoodman/transcripter-mcp/resources"
	"github.com/ggoodman/transcripter-mcp/sessions"
	"github.com/ggoodman/transcripter-mcp/sessions/redisdirectory"
	"github.com/ggoodman/transcripter-mcp/ssehttp"
	"github.com/ggoodman/transcripter-mcp/stdio"
	"github.com/ggoodman/transcripter-mcp/tools"
	"golang.org/x/sync/errgroup"
)

const metricsNamespace = "transcripter"

// app holds the components shared by both transports.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	server  *mcpserver.Server
	catalog *catalog.Catalog
	metrics *metrics.Collector

	sessions  *sessions.Registry
	directory sessions.Directory
	authn     auth.Authenticator

	closers []func() error
}

// build wires every component from cfg. Console logs go to console.
func build(ctx context.Context, cfg *config.Config, console io.Writer) (_ *app, err error) {
	a := &app{cfg: cfg, sessions: sessions.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	log, closeLog, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Dir:     cfg.Log.Dir,
		Console: console,
	})
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	a.log = log
	a.closers = append(a.closers, closeLog)

	if cfg.NewsFile != "" {
		a.catalog, err = catalog.NewFromFile(cfg.NewsFile, catalog.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("news catalog: %w", err)
		}
	} else {
		a.catalog = catalog.New(catalog.WithLogger(log))
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	var be backend.Backend = backend.NewMock()
	if cfg.BackendURL != "" {
		be, err = backend.NewHTTP(cfg.BackendURL, httpClient)
		if err != nil {
			return nil, fmt.Errorf("backend: %w", err)
		}
	}

	toolReg, err := tools.NewDefaultRegistry(tools.Deps{
		APIBaseURL: cfg.APIBaseURL,
		HTTPClient: httpClient,
		Backend:    be,
		Catalog:    a.catalog,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("tools: %w", err)
	}
	resourceReg, err := resources.NewDefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("resources: %w", err)
	}

	a.metrics = metrics.NewCollector(metricsNamespace)
	a.server, err = mcpserver.New(toolReg, resourceReg,
		mcpserver.WithLogger(log),
		mcpserver.WithMetrics(a.metrics),
		mcpserver.WithInfo(cfg.Name, cfg.Version),
		mcpserver.WithInstructions(cfg.Instructions),
	)
	if err != nil {
		return nil, fmt.Errorf("mcp server: %w", err)
	}

	return a, nil
}

// enableHTTP connects the pieces only the HTTP transport needs.
func (a *app) enableHTTP(ctx context.Context) error {
	if a.cfg.Redis.Addr != "" {
		d, err := redisdirectory.New(ctx, redisdirectory.Config{
			RedisAddr: a.cfg.Redis.Addr,
			KeyPrefix: a.cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("session directory: %w", err)
		}
		a.directory = d
		a.closers = append(a.closers, d.Close)
	} else {
		a.directory = sessions.NewMemoryDirectory()
	}

	authn, err := newAuthenticator(ctx, a.cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	a.authn = authn
	return nil
}

func newAuthenticator(ctx context.Context, c config.Auth) (auth.Authenticator, error) {
	if !c.Enabled() {
		return nil, nil
	}
	var opts []auth.Option
	if scopes := c.Scopes(); len(scopes) > 0 {
		opts = append(opts, auth.WithRequiredScopes(scopes...))
	}
	switch {
	case c.HMACSecret != "":
		return auth.NewHMAC([]byte(c.HMACSecret), c.Issuer, c.Audience, opts...)
	case c.JWKSURL != "":
		return auth.NewJWKS(ctx, c.JWKSURL, c.Issuer, c.Audience, opts...)
	}
	return auth.NewFromDiscovery(ctx, c.Issuer, c.Audience, opts...)
}

func (a *app) handler() (http.Handler, error) {
	opts := []ssehttp.Option{
		ssehttp.WithLogger(a.log),
		ssehttp.WithMetrics(a.metrics),
		ssehttp.WithDirectory(a.directory),
		ssehttp.WithSessionTTL(a.cfg.Redis.TTL),
		ssehttp.WithKeepAlive(30 * time.Second),
		ssehttp.WithRealm(a.cfg.Name),
		ssehttp.WithMessageBuffer(a.cfg.MessageBuffer),
	}
	if a.authn != nil {
		meta := wellknown.ProtectedResourceMetadata{
			Resource:               a.cfg.Auth.Audience,
			ScopesSupported:        a.cfg.Auth.Scopes(),
			BearerMethodsSupported: []string{"header"},
			ResourceName:           a.cfg.Name,
		}
		if a.cfg.Auth.Issuer != "" {
			meta.AuthorizationServers = []string{a.cfg.Auth.Issuer}
		}
		opts = append(opts,
			ssehttp.WithAuthenticator(a.authn),
			ssehttp.WithProtectedResource(meta),
		)
	}
	return ssehttp.New(a.server, a.sessions, opts...)
}

// serveHTTP serves on ln until ctx is done, then drains within the shutdown
// timeout. Open SSE streams are cancelled when shutdown begins.
func (a *app) serveHTTP(ctx context.Context, ln net.Listener) error {
	h, err := a.handler()
	if err != nil {
		return err
	}

	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.InfoContext(gctx, "http.listen", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.catalog.Watch(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("http.shutdown.start")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		a.log.Info("http.shutdown.done")
		return nil
	})
	return g.Wait()
}

// serveStdio serves one client on r/w alongside the catalog watcher.
func (a *app) serveStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return stdio.NewHandler(a.server,
			stdio.WithIO(r, w),
			stdio.WithLogger(a.log),
			stdio.WithMetrics(a.metrics),
		).Serve(gctx)
	})
	g.Go(func() error {
		return a.catalog.Watch(gctx)
	})
	return g.Wait()
}

// Close releases log files and the session directory.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
