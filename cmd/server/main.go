// Aran Respon - conversation engine of the Salut Aran chat widget
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/aran-respon/internal/api"
	"github.com/ashureev/aran-respon/internal/config"
	"github.com/ashureev/aran-respon/internal/conversation"
	"github.com/ashureev/aran-respon/internal/dispatch"
	"github.com/ashureev/aran-respon/internal/identity"
	"github.com/ashureev/aran-respon/internal/middleware"
	"github.com/ashureev/aran-respon/internal/store"
	"github.com/ashureev/aran-respon/internal/topics"
	"github.com/ashureev/aran-respon/internal/widget"
	"github.com/ashureev/aran-respon/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "backend", cfg.PersistBackend)

	backend, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	// os.Exit skips defers, so every exit after this point closes the store first.
	closeStore := closeOnce(backend, "store")
	defer closeStore()
	fail := func(msg string, err error) {
		slog.Error(msg, "error", err)
		closeStore()
		os.Exit(1)
	}

	if err := backend.Ping(context.Background()); err != nil {
		fail("Store health check failed", err)
	}
	slog.Info("Store connected")

	catalog, err := loadCatalog(cfg)
	if err != nil {
		fail("Failed to load topic catalog", err)
	}
	slog.Info("Topic catalog loaded", "locales", len(catalog.Locales()))

	dispatcher := dispatch.New(dispatch.Config{
		URL:        cfg.Webhook.URL,
		Route:      cfg.Webhook.Route,
		Timeout:    cfg.Webhook.Timeout,
		MaxRetries: cfg.Webhook.MaxRetries,
	}, dispatch.WithLogger(logger))

	widgets := widget.NewManager(widget.Options{
		Catalog:    catalog,
		Store:      backend,
		Dispatcher: dispatcher,
		Conversation: conversation.Config{
			MaxMessageLength: cfg.Widget.MaxMessageLength,
			NoticeTTL:        cfg.Widget.NoticeTTL,
			SessionMaxAge:    cfg.Widget.SessionMaxAge,
		},
		PersistHistory: cfg.Widget.PersistHistory,
		MaxHistory:     cfg.Widget.MaxHistoryMessages,
		SendDebounce:   cfg.Widget.SendDebounce,
		Logger:         logger,
	})

	// Initialize handlers.
	baseHandler := api.NewHandler(widgets, catalog, api.Limits{
		MaxMessageLength: cfg.Widget.MaxMessageLength,
		SendDebounceMs:   cfg.Widget.SendDebounce.Milliseconds(),
		NoticeTTLMs:      cfg.Widget.NoticeTTL.Milliseconds(),
	})
	healthHandler := api.NewHealthHandler(backend, widgets)
	chatHandler := api.NewChatHandler(baseHandler)
	wsHandler := api.NewWebSocketHandler(baseHandler, cfg.AllowedOrigins, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r)
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve embedded widget bundle (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Websocket connections are long lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	sweeperDone := widget.StartSweeper(gctx, widgets, backend, widget.SweepConfig{
		IdleTTL:   cfg.Widget.IdleTTL,
		Retention: cfg.Widget.StoreRetention,
	})
	slog.Info("Sweeper started", "idle_ttl", cfg.Widget.IdleTTL, "retention", cfg.Widget.StoreRetention)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-sweeperDone
		return nil
	})

	if err := g.Wait(); err != nil {
		fail("Server stopped with error", err)
	}

	slog.Info("Server stopped successfully")
}

// closeOnce returns a func closing c on its first call only.
func closeOnce(c io.Closer, name string) func() {
	return sync.OnceFunc(func() {
		if err := c.Close(); err != nil {
			slog.Error("Failed to close "+name, "error", err)
		}
	})
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.PersistBackend == config.BackendMemory {
		return store.NewMemory(), nil
	}
	s, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func loadCatalog(cfg *config.Config) (*topics.Catalog, error) {
	if cfg.TopicsPath != "" {
		return topics.LoadFile(cfg.TopicsPath)
	}
	return topics.Default()
}
