// ABOUTME: Gateway orchestrator wiring the registry, poller, dispatcher, and HTTP server
// ABOUTME: Manages component lifecycle from startup through graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chatforge/pulse/internal/auth"
	"github.com/chatforge/pulse/internal/callback"
	"github.com/chatforge/pulse/internal/config"
	"github.com/chatforge/pulse/internal/poller"
	"github.com/chatforge/pulse/internal/store"
	"github.com/chatforge/pulse/internal/stream"
	"github.com/chatforge/pulse/internal/webhook"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Gateway orchestrates the pulse-gateway server components: the live-push
// registry and broadcaster, the per-user change poller, the webhook
// dispatcher, the callback verifier, and the HTTP server exposing them.
type Gateway struct {
	config      *config.Config
	store       store.Store
	registry    *stream.Registry
	broadcaster *stream.Broadcaster
	poller      *poller.Supervisor
	dispatcher  *webhook.Dispatcher
	callbacks   *callback.Verifier
	verifier    auth.TokenVerifier
	httpServer  *http.Server
	logger      *slog.Logger
}

// initStore creates a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("PULSE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a gateway with all components wired but not yet serving.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	registry := stream.NewRegistry(cfg.Events.HeartbeatInterval, cfg.Events.MaxConnectionAge, logger)
	broadcaster := stream.NewBroadcaster(registry, logger)

	var client *http.Client
	if cfg.Webhooks.Timeout > 0 {
		client = &http.Client{Timeout: cfg.Webhooks.Timeout}
	}
	dispatcher := webhook.NewDispatcher(st, client, cfg.Webhooks.UserAgent, logger)

	// The poller feeds both delivery paths: every event reaches the live
	// connections, and the types with a webhook equivalent fan out to
	// subscribers independently.
	fanout := newEventFanout(broadcaster, dispatcher, logger)
	pollers := poller.NewSupervisor(st, fanout, cfg.Events.PollInterval, logger)
	registry.SetOwnerHooks(pollers.Start, pollers.Stop)

	callbacks := callback.NewVerifier(cfg.Webhooks.CallbackSecret, broadcaster, logger)

	g := &Gateway{
		config:      cfg,
		store:       st,
		registry:    registry,
		broadcaster: broadcaster,
		poller:      pollers,
		dispatcher:  dispatcher,
		callbacks:   callbacks,
		verifier:    verifier,
		logger:      logger.With("component", "gateway"),
	}

	g.httpServer = &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: g.routes(),
	}

	return g, nil
}

// routes builds the HTTP handler tree.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()
	authed := auth.Middleware(g.verifier)

	mux.Handle("/api/events/stream", authed(http.HandlerFunc(g.handleEventStream)))
	mux.Handle("/api/webhooks", authed(http.HandlerFunc(g.handleWebhooks)))
	mux.Handle("/api/webhooks/", authed(http.HandlerFunc(g.handleWebhookByID)))
	mux.HandleFunc("/api/callbacks/automation", g.handleAutomationCallback)
	mux.HandleFunc("/health", g.handleHealth)

	return mux
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.logger.Info("http server listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		return g.Shutdown()
	})

	return eg.Wait()
}

// Shutdown stops all components. Open stream connections are cancelled
// first so their handlers can return before the HTTP server drains.
func (g *Gateway) Shutdown() error {
	g.logger.Info("shutting down")

	g.registry.Close()
	g.poller.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	return errors.Join(errs...)
}

// handleHealth handles GET /health requests.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","connections":%d}`, g.registry.Count())
}
