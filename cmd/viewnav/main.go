// Command viewnav runs the view navigator and its dev backend.
//
// Usage:
//
//	viewnav -serve                          # dev backend on server.addr
//	viewnav -open /view/lesson/3?i=0        # load a view, print the document
//	viewnav -open /view/home -browser       # same, rendered in headless Chrome
//	viewnav -open /view/home -browser -format markdown
//	viewnav -mcp                            # navigator tools over stdio MCP
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/viewnav/actionlog"
	"github.com/hazyhaar/viewnav/config"
	"github.com/hazyhaar/viewnav/connectivity"
	"github.com/hazyhaar/viewnav/dbopen"
	"github.com/hazyhaar/viewnav/devserver"
	"github.com/hazyhaar/viewnav/engine"
	"github.com/hazyhaar/viewnav/engine/browser"
	"github.com/hazyhaar/viewnav/engine/memory"
	"github.com/hazyhaar/viewnav/navigator"
	"github.com/hazyhaar/viewnav/prefetch"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to viewnav.yaml config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	serve := flag.Bool("serve", false, "run the dev backend")
	open := flag.String("open", "", "load a view path and print the rendered document")
	useBrowser := flag.Bool("browser", false, "render in headless Chrome instead of memory")
	format := flag.String("format", "html", "browser output format: html, markdown")
	mcpMode := flag.Bool("mcp", false, "serve navigator tools over stdio MCP")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("viewnav: config", "error", err)
		os.Exit(1)
	}
	if *useBrowser {
		cfg.Browser.Enabled = true
	}

	switch {
	case *serve:
		err = runServer(ctx, logger, cfg)
	case *mcpMode:
		err = runMCP(ctx, logger, cfg)
	case *open != "":
		err = runOpen(ctx, logger, cfg, *open, *format)
	default:
		fmt.Fprintln(os.Stderr, "usage: viewnav [-config file] -serve | -open <view> [-browser] | -mcp")
		os.Exit(2)
	}
	if err != nil {
		logger.Error("viewnav: fatal", "error", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	db, err := dbopen.Open(cfg.Server.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		return err
	}
	defer db.Close()

	dev, err := devserver.New(devserver.Config{DB: db, WebDir: cfg.Server.WebDir, Logger: logger})
	if err != nil {
		return err
	}

	go dev.RunRetention(ctx, cfg.Server.Retention, time.Hour)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           dev.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("viewnav: dev backend listening", "addr", cfg.Server.Addr, "web_dir", cfg.Server.WebDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// session bundles a controller with the renderer it drives.
type session struct {
	ctrl     *navigator.Controller
	renderer engine.Renderer
	close    func()
}

func newSession(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*session, error) {
	fetch := connectivity.FetchDocument(buildTransport(logger, cfg))

	warmer := prefetch.NewHTTPWarmer(cfg.BaseURL,
		prefetch.WithWarmerWorkers(cfg.Prewarm.Workers),
		prefetch.WithWarmerTimeout(cfg.Prewarm.Timeout),
		prefetch.WithWarmerLogger(logger),
	)
	cache := prefetch.New(fetch,
		prefetch.WithCapacity(cfg.CacheSize),
		prefetch.WithWarmer(warmer),
		prefetch.WithLogger(logger),
	)

	var sink actionlog.Sink = actionlog.Discard
	if u := cfg.LogURL(); u != "" {
		sink = actionlog.NewWebhook(u, actionlog.WithWebhookLogger(logger))
	}

	s := &session{close: func() {}}
	if cfg.Browser.Enabled {
		br := browser.New(browser.Config{
			RemoteURL: cfg.Browser.Remote,
			ShellURL:  cfg.ShellURL(),
			Stealth:   browser.ParseStealth(cfg.Browser.Stealth),
			Logger:    logger,
		})
		if err := br.Start(ctx); err != nil {
			return nil, err
		}
		s.renderer = br
		s.close = func() { br.Close() }
	} else {
		s.renderer = memory.New(logger)
	}

	s.ctrl = navigator.New(s.renderer, cache,
		navigator.WithLogger(logger),
		navigator.WithSink(sink),
		navigator.WithStaticHome(cfg.StaticHome),
	)
	return s, nil
}

// buildTransport wraps the HTTP transport with the resilience stack. A local
// pages directory, when configured, answers once retries are exhausted or the
// breaker is open.
func buildTransport(logger *slog.Logger, cfg *config.Config) connectivity.Handler {
	mws := []connectivity.HandlerMiddleware{
		connectivity.Logging(logger),
		connectivity.Recovery(logger),
	}
	if cfg.FallbackDir != "" {
		mws = append(mws, connectivity.WithFallback(connectivity.DirHandler(cfg.FallbackDir), logger))
	}
	mws = append(mws,
		connectivity.Timeout(cfg.Fetch.Timeout),
		connectivity.WithRetry(cfg.Fetch.Retries, cfg.Fetch.Backoff, logger),
		connectivity.WithCircuitBreaker(connectivity.NewCircuitBreaker(
			connectivity.WithBreakerThreshold(cfg.Fetch.BreakerThreshold),
			connectivity.WithBreakerResetTimeout(cfg.Fetch.BreakerReset),
		), "backend"),
	)
	remote := connectivity.HTTPTransport(cfg.BaseURL, connectivity.WithHTTPLogger(logger))
	return connectivity.Chain(mws...)(remote)
}

func runOpen(ctx context.Context, logger *slog.Logger, cfg *config.Config, view, format string) error {
	s, err := newSession(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.ctrl.Start(ctx, view); err != nil {
		return fmt.Errorf("open %s: %w", view, err)
	}
	s.ctrl.Wait()

	if br, ok := s.renderer.(*browser.Renderer); ok {
		var out string
		if format == "markdown" {
			out, err = br.Markdown(ctx)
		} else {
			out, err = br.HTML(ctx)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, out)
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(s.ctrl.Current())
}

func runMCP(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	s, err := newSession(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer s.close()
	defer s.ctrl.Wait()

	srv := mcp.NewServer(&mcp.Implementation{Name: "viewnav", Version: version}, nil)
	s.ctrl.RegisterMCP(srv)
	logger.Info("viewnav: mcp server on stdio")
	return srv.Run(ctx, &mcp.StdioTransport{})
}
