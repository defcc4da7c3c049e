// Command server is the C2NG service binary. It loads a YAML configuration
// file, fetches the identity provider's signing keys, connects the session
// and telemetry stores, and serves the REST API together with the WebSocket
// notification channel until SIGTERM or SIGINT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flyvercity/c2ng/internal/auth"
	"github.com/flyvercity/c2ng/internal/config"
	"github.com/flyvercity/c2ng/internal/did"
	"github.com/flyvercity/c2ng/internal/security"
	"github.com/flyvercity/c2ng/internal/server/rest"
	"github.com/flyvercity/c2ng/internal/server/storage"
	"github.com/flyvercity/c2ng/internal/server/websocket"
	"github.com/flyvercity/c2ng/internal/session"
	signalstore "github.com/flyvercity/c2ng/internal/signal"
	"github.com/flyvercity/c2ng/internal/slice"
	"github.com/flyvercity/c2ng/internal/stats"
	"github.com/flyvercity/c2ng/internal/uss"
)

// registryBufferSize is the per-subscriber notification buffer. Notifications
// beyond it are dropped, never queued.
const registryBufferSize = 16

func main() {
	configPath := flag.String("config", defaultConfigFile(), "path to the C2NG YAML configuration file")
	flag.Parse()

	// Load and validate configuration.
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "c2ng: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging.Verbose)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("config_path", *configPath),
		slog.Int("port", cfg.Service.Port),
		slog.String("slice_provider", cfg.Slice.Provider),
	)

	// Secrets come from the environment, never from the config file.
	uasSecret := requireEnv(logger, "C2NG_UAS_CLIENT_SECRET")
	ussSecret := requireEnv(logger, "C2NG_USS_CLIENT_SECRET")
	wsSecret := requireEnv(logger, "C2NG_WS_AUTH_SECRET")
	influxToken := requireEnv(logger, "DOCKER_INFLUXDB_INIT_ADMIN_TOKEN")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Authenticator ─────────────────────────────────────────────────────────
	// Blocks until the identity provider publishes its signing keys; nothing
	// can be authenticated without them.
	keys, err := auth.FetchKeys(ctx, cfg.OAuth.Keycloak, logger)
	if err != nil {
		logger.Error("failed to fetch signing keys", slog.Any("error", err))
		os.Exit(1)
	}
	verifier := auth.NewVerifier(keys, logger)

	// ── Session store (MongoDB) ───────────────────────────────────────────────
	store, err := storage.New(ctx, cfg.Mongo.URI)
	if err != nil {
		logger.Error("failed to open session store", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close(context.Background())
	logger.Info("session store connected")

	// ── External collaborators ────────────────────────────────────────────────
	ussClient := uss.NewClient(cfg.USS, ussSecret)

	provider, err := slice.New(cfg.Slice)
	if err != nil {
		logger.Error("failed to select slice provider", slog.Any("error", err))
		os.Exit(1)
	}
	if err := provider.Establish(ctx); err != nil {
		logger.Error("failed to establish slice", slog.Any("error", err))
		os.Exit(1)
	}

	issuer, err := security.NewIssuer(
		cfg.Security.Certificate,
		cfg.Security.Private,
		uasSecret,
		time.Duration(cfg.Security.DefaultTTL)*time.Second,
	)
	if err != nil {
		logger.Error("failed to load root credentials", slog.Any("error", err))
		os.Exit(1)
	}

	// ── Telemetry store (InfluxDB) ────────────────────────────────────────────
	signals := signalstore.New(cfg.Influx, influxToken, logger)
	defer signals.Close()

	// ── Session management and notifications ─────────────────────────────────
	registry := session.NewRegistry(logger, registryBufferSize)
	sessions := session.NewManager(store, ussClient, provider, issuer, registry, logger)
	statsman := stats.NewManager(signals, store, logger)
	didProvider := did.NewProvider(cfg.DID)

	tickets, err := websocket.NewTicketManager(wsSecret)
	if err != nil {
		logger.Error("failed to create ticket manager", slog.Any("error", err))
		os.Exit(1)
	}
	notifications := websocket.NewHandler(tickets, registry, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := rest.NewServer(sessions, store, signals, statsman, tickets, didProvider, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:      rest.NewRouter(srv, verifier, notifications),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
		close(errCh)
	}()

	// ── Wait for shutdown signal or fatal error ────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server error", slog.Any("error", err))
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", slog.Any("error", err))
	}

	logger.Info("c2ng service exited cleanly")
}

// defaultConfigFile resolves the configuration path from C2NG_CONFIG_FILE,
// falling back to the standard deployment location.
func defaultConfigFile() string {
	if path := os.Getenv("C2NG_CONFIG_FILE"); path != "" {
		return path
	}
	return "/c2ng/config/c2ng/config.yaml"
}

// requireEnv returns the named environment variable, exiting when it is
// unset. Every secret the service uses is mandatory.
func requireEnv(logger *slog.Logger, name string) string {
	value := os.Getenv(name)
	if value == "" {
		logger.Error("required environment variable is not set", slog.String("name", name))
		os.Exit(1)
	}
	return value
}

// newLogger constructs a *slog.Logger that writes JSON-structured log records
// to stderr. Verbose logging lowers the minimum level to debug.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
