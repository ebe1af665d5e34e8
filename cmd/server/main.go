package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pokemonrocks9/thinking-of-you-backend/internal/domain"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/metrics"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/notify"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/platform/config"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/platform/logging"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/relay"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/server"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/store/memorystore"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/store/redisstore"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/version"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupStore picks the session store: Redis when REDIS_URL is set, otherwise
// in-memory. Returns a cleanup func for the Redis connection.
func setupStore(cfg *config.Config) (domain.SessionRepository, func()) {
	if cfg.RedisURL == "" {
		slog.Info("Using in-memory session store, sessions will not survive restarts")
		return memorystore.New(), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redisstore.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("Using Redis session store")
	return redisstore.New(client), func() { _ = client.Close() }
}

func runGracefulShutdown(srv *server.Server, janitor *relay.Janitor, dispatcher *notify.Dispatcher) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		janitor.Stop()
		// Pending failsafe timers are dropped, not fired early. The polling
		// path already delivered or will after restart.
		dispatcher.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	info := version.Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.GoVersion).Set(1)

	store, closeStore := setupStore(cfg)
	defer closeStore()

	sender := notify.NewChannelSender(cfg.TimelineAPIURL, cfg.OutboundTimeout)
	dispatcher := notify.NewDispatcher(sender, cfg.FailsafeDelay, cfg.OutboundTimeout, clock)

	svc := relay.NewService(store, dispatcher, clock, relay.Options{
		CancelFailsafeOnDrain: cfg.FailsafeCancelOnDrain,
	})

	janitor := relay.NewJanitor(svc, cfg.JanitorInterval, cfg.NotificationRetention, cfg.SessionTTL, clock)
	go janitor.Start(context.Background())

	srv := server.NewServer(cfg, svc, clock)

	done := runGracefulShutdown(srv, janitor, dispatcher)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
