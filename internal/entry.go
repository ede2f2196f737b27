// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/kukula/lattice/internal/api"
	"github.com/kukula/lattice/internal/engine"
	"github.com/kukula/lattice/internal/index"
	"github.com/kukula/lattice/internal/mcpserver"
	"github.com/kukula/lattice/internal/modelservice"
	"github.com/kukula/lattice/internal/sse"
	"github.com/kukula/lattice/internal/storage"
)

// workspace bundles the components shared by the HTTP and MCP servers.
type workspace struct {
	logger *slog.Logger
	eng    *engine.Engine
	store  storage.Provider
	db     *index.DB
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// openWorkspace sets up logging, the rule engine, storage and the run index.
// The caller must close the returned workspace's db.
func (app *application) openWorkspace() (*workspace, error) {
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace_path", cfg.Workspace.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Int("rule_parallelism", cfg.Rules.Parallel),
		slog.Any("disabled_rules", cfg.Rules.Disabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	eng := engine.New(
		engine.WithParallel(cfg.Rules.Parallel),
		engine.WithDisabled(cfg.Rules.DisabledCodes()...),
		engine.WithLogger(logger),
	)

	// Ensure workspace directory exists.
	if err := os.MkdirAll(cfg.Workspace.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Workspace.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	return &workspace{logger: logger, eng: eng, store: store, db: db}, nil
}

// publisher adapts index events to SSE model events.
func publisher(broker *sse.Broker) index.EventCallback {
	return func(kind, path string, run *index.RunRow) {
		if run == nil {
			broker.PublishModelEvent(kind, path, nil)
			return
		}
		broker.PublishModelEvent(kind, path, modelservice.NewListItem(*run))
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	ws, err := app.openWorkspace()
	if err != nil {
		return err
	}
	defer ws.db.Close()
	logger := ws.logger

	// SSE broker.
	broker := sse.NewBroker(cfg.Events.Throttle)
	defer broker.Close()
	publish := publisher(broker)

	// Run initial sync.
	if err := index.Sync(ws.db, ws.store, ws.eng, logger, publish); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	// Writes made through the API are published by the service itself;
	// the watcher skips them because their checksum is already recorded.
	svc := modelservice.NewService(ws.store, ws.db, ws.eng, modelservice.WithEvents(publish))
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Revalidate model files as they change on disk.
	g.Go(func() error {
		if err := index.Watch(gCtx, ws.db, ws.store, ws.eng, cfg.Workspace.Path, logger, publish); err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		timeout := cfg.App.HTTP.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Returning an error cancels gCtx, which stops the watcher.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdio. Logs go to the configured log
// output, which must not be stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	cfg := app.config

	ws, err := app.openWorkspace()
	if err != nil {
		return err
	}
	defer ws.db.Close()
	logger := ws.logger

	if err := index.Sync(ws.db, ws.store, ws.eng, logger, nil); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	svc := modelservice.NewService(ws.store, ws.db, ws.eng)
	srv := mcpserver.New(svc, app.version)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := index.Watch(gCtx, ws.db, ws.store, ws.eng, cfg.Workspace.Path, logger, nil); err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer cancel()
		logger.Info("MCP server starting on stdio")
		if err := srv.ServeStdio(); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	})

	return g.Wait()
}
