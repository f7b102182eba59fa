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

	"github.com/starford/dirstore/internal/api"
	"github.com/starford/dirstore/internal/catalog"
	"github.com/starford/dirstore/internal/metrics"
	"github.com/starford/dirstore/internal/session"
	"github.com/starford/dirstore/internal/sse"
	"github.com/starford/dirstore/internal/storage"
	"github.com/starford/dirstore/internal/tenant"
)

// NewLogger builds the structured JSON logger used by every command.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

// Backend is an opened catalog together with the provisioning server
// connected to it.
type Backend struct {
	DB      *catalog.DB
	Tenants *tenant.Server
}

// Close releases the admin connection and the catalog.
func (b *Backend) Close() error {
	return errors.Join(b.Tenants.Close(), b.DB.Close())
}

// NewProvider builds the payload provider selected by cfg. The sqlite
// driver returns nil so the catalog keeps payloads in its chunks table.
func NewProvider(ctx context.Context, cfg PayloadConfig) (storage.Provider, error) {
	switch cfg.Driver {
	case PayloadFS:
		if err := os.MkdirAll(cfg.FS.Root, 0o755); err != nil {
			return nil, fmt.Errorf("create payload dir: %w", err)
		}
		return storage.NewFS(cfg.FS.Root, cfg.FS.Compression)
	case PayloadS3:
		return storage.NewS3(ctx, cfg.S3.Storage())
	default:
		return nil, nil
	}
}

// OpenBackend opens the catalog at cfg.Store.Host, bootstraps the admin
// user and connects the provisioning server.
func OpenBackend(ctx context.Context, cfg *Config, logger *slog.Logger, opts ...tenant.Option) (*Backend, error) {
	provider, err := NewProvider(ctx, cfg.Payload)
	if err != nil {
		return nil, fmt.Errorf("init payload provider: %w", err)
	}

	catOpts := []catalog.Option{
		catalog.WithChunkSize(cfg.Store.ChunkSize),
		catalog.WithLogger(logger),
	}
	if provider != nil {
		catOpts = append(catOpts, catalog.WithProvider(provider))
	}
	db, err := catalog.Open(cfg.Store.Host, catOpts...)
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}

	if err := db.Bootstrap(ctx, cfg.Store.StorageDB, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap catalog: %w", err)
	}

	opts = append([]tenant.Option{tenant.WithLogger(logger)}, opts...)
	srv, err := tenant.NewServer(ctx, cfg.Tenant(), db, cfg.Admin.Credentials(), opts...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect tenant server: %w", err)
	}
	return &Backend{DB: db, Tenants: srv}, nil
}

func writeStatus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = NewLogger(cfg.App.LogLevel)
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_host", cfg.Store.Host),
		slog.String("storage_db", cfg.Store.StorageDB),
		slog.String("payload_driver", cfg.Payload.Driver),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	m := metrics.New()

	// SSE broker.
	broker := sse.NewBroker(cfg.Events.TreeThrottle)
	defer broker.Close()

	backend, err := OpenBackend(ctx, cfg, logger,
		tenant.WithRecorder(m),
		tenant.WithSessionOptions(
			session.WithLogger(logger),
			session.WithRecorder(m),
			session.WithNotifier(broker.Notify),
		),
	)
	if err != nil {
		return err
	}
	defer backend.Close()

	apiRouter := api.NewRouter(backend.Tenants, cfg.Auth.API(), broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) { writeStatus(w) })
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) { writeStatus(w) })
	r.Handle("/metrics", m.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

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

		// SSE streams end when the broker closes; Shutdown waits for them.
		broker.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
