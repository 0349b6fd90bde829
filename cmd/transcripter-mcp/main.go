package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	"github.com/ggoodman/transcripter-mcp/internal/config"
)

const usage = `Usage: transcripter-mcp <command>

Commands:
  server [port]   Serve over stdio, or over HTTP+SSE when a port is given
  start           Serve over HTTP+SSE on TRANSCRIPTER_PORT (default 3501)
  version         Print the server version
`

var errUsage = errors.New("usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	switch args[0] {
	case "version":
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s %s\n", cfg.Name, cfg.Version)
		return nil
	case "server":
		if len(args) > 2 {
			fmt.Fprint(stderr, usage)
			return errUsage
		}
		if len(args) == 1 {
			return runStdio(ctx, stdin, stdout, stderr)
		}
		port, err := parsePort(args[1])
		if err != nil {
			return err
		}
		return runHTTP(ctx, port, stdout, stderr)
	case "start":
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return runHTTP(ctx, cfg.Port, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n%s", args[0], usage)
		return errUsage
	}
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

// runStdio serves on stdin/stdout. Logs go to stderr only.
func runStdio(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := build(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	a.log.InfoContext(ctx, "server.start", "transport", "stdio", "name", cfg.Name, "version", cfg.Version)
	return a.serveStdio(ctx, stdin, stdout)
}

func runHTTP(ctx context.Context, port int, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := build(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.enableHTTP(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Addr(port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	printBanner(stdout, a, ln.Addr().String())

	return a.serveHTTP(ctx, ln)
}

func printBanner(w io.Writer, a *app, addr string) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	info := a.server.Info()
	cyan.Fprintf(w, "\n    %s", info.Name)
	gray.Fprintf(w, " v%s\n\n", info.Version)

	base := "http://" + addr
	for _, ep := range []struct{ label, path string }{
		{"SSE:", "/sse"},
		{"Messages:", "/message?sessionId=<id>"},
		{"Info:", "/"},
		{"Health:", "/healthz"},
		{"Metrics:", "/metrics"},
	} {
		green.Fprint(w, "    ▶ ")
		fmt.Fprintf(w, "%-10s %s%s\n", ep.label, base, ep.path)
	}
	fmt.Fprintln(w)

	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "%-10s %v\n", "Tools:", info.Capabilities.Tools)
	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "%-10s %v\n", "Resources:", info.Capabilities.Resources)
	if a.authn != nil {
		green.Fprint(w, "    ▶ ")
		fmt.Fprintf(w, "%-10s bearer tokens required\n", "Auth:")
	}
	fmt.Fprintln(w)
}
