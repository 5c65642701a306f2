package main

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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roster/internal/idp"
	"roster/internal/onboarding/events"
	"roster/internal/onboarding/handler"
	"roster/internal/onboarding/metrics"
	"roster/internal/onboarding/service"
	"roster/internal/onboarding/store"
	"roster/internal/platform/config"
	"roster/internal/platform/httpserver"
	"roster/internal/platform/logger"
	"roster/internal/platform/middleware"
	platformredis "roster/internal/platform/redis"
	"roster/pkg/platform/retry"
)

// main wires the dependencies and keeps the server lifecycle small. Business
// logic lives in the internal packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profiles, cleanup, err := buildStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer cleanup()

	publisher, closePublisher, err := buildPublisher(cfg.Events, log)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	defer closePublisher()

	resolver := idp.New(cfg.IdP.BaseURL, cfg.IdP.APIToken,
		idp.WithLogger(log),
		idp.WithTimeout(cfg.IdP.Timeout),
		idp.WithEntitlements(idp.StaticEntitlements(cfg.StaticApplications)),
	)

	retryCfg := retry.Default()
	retryCfg.MaxAttempts = cfg.IdP.MaxAttempts
	retryCfg.BaseDelay = cfg.IdP.RetryBase

	lookupKey := service.LookupByEmail
	if cfg.IdP.LookupKey == config.LookupKeyEmployeeID {
		lookupKey = service.LookupByEmployeeID
	}

	svc := service.New(profiles, resolver,
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
		service.WithPublisher(publisher),
		service.WithRetry(retryCfg),
		service.WithLookupKey(lookupKey),
	)

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	handler.New(svc, handler.WithLogger(log)).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting roster", "addr", cfg.Addr, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// buildStore selects the enriched profile backend. The returned cleanup is
// safe to call even when the backend holds no external connection.
func buildStore(ctx context.Context, cfg config.Store) (service.ProfileStore, func(), error) {
	switch cfg.Backend {
	case "", "memory":
		return store.NewInMemory(), func() {}, nil

	case "redis":
		client, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		if client == nil {
			return nil, nil, fmt.Errorf("redis backend selected but REDIS_URL is empty")
		}
		return store.NewRedis(client.Client), func() { client.Close() }, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// buildPublisher keeps events in-process unless Kafka brokers are configured.
func buildPublisher(cfg config.Events, log *slog.Logger) (*events.Publisher, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		p := events.NewPublisher(events.NewInMemoryStore())
		return p, p.Close, nil
	}

	sink, err := events.NewKafkaStore(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	if err != nil {
		return nil, nil, err
	}
	p := events.NewPublisher(sink, events.WithAsyncBuffer(256))
	return p, func() {
		p.Close()
		sink.Close()
	}, nil
}
