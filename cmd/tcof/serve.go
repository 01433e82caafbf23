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
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/tcof/internal/adapter/catalogfile"
	cfhttp "github.com/Strob0t/tcof/internal/adapter/http"
	cfnats "github.com/Strob0t/tcof/internal/adapter/nats"
	"github.com/Strob0t/tcof/internal/adapter/natskv"
	cfotel "github.com/Strob0t/tcof/internal/adapter/otel"
	"github.com/Strob0t/tcof/internal/adapter/postgres"
	"github.com/Strob0t/tcof/internal/adapter/redis"
	"github.com/Strob0t/tcof/internal/adapter/ristretto"
	"github.com/Strob0t/tcof/internal/adapter/sqlite"
	"github.com/Strob0t/tcof/internal/adapter/tiered"
	"github.com/Strob0t/tcof/internal/adapter/ws"
	"github.com/Strob0t/tcof/internal/config"
	"github.com/Strob0t/tcof/internal/logger"
	"github.com/Strob0t/tcof/internal/middleware"
	"github.com/Strob0t/tcof/internal/port/cache"
	"github.com/Strob0t/tcof/internal/port/database"
	"github.com/Strob0t/tcof/internal/port/messagequeue"
	"github.com/Strob0t/tcof/internal/resilience"
	"github.com/Strob0t/tcof/internal/service"
)

const version = "0.1.0"

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFrom(configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// storeBackend is a database.Store that can report its health.
type storeBackend interface {
	database.Store
	cfhttp.Pinger
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"db_driver", cfg.Database.Driver,
		"cache_l2", cfg.Cache.L2,
		"log_level", cfg.Logging.Level,
	)

	// --- Telemetry ---
	shutdownOtel, err := cfotel.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Error("otel shutdown", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Store ---
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// --- Messaging ---
	var queue messagequeue.Queue = messagequeue.Discard{}
	var natsQueue *cfnats.Queue
	if cfg.NATS.URL != "" {
		natsQueue, err = cfnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = natsQueue.Close() }()
		queue = natsQueue
		slog.Info("nats connected", "stream", cfg.NATS.Stream)
	}

	// --- Cache ---
	c, closeCache, err := openCache(ctx, cfg, natsQueue)
	if err != nil {
		return err
	}
	defer closeCache()

	// --- Services ---
	hub := ws.NewHub(cfg.Server.CORSOrigin)
	defer hub.Close()

	catalogSvc := service.NewCatalogService(catalogfile.New(cfg.Catalog.Path), c, cfg.Catalog.TTL, queue, hub)
	catalogSvc.SetMetrics(metrics)
	taskSvc := service.NewTaskService(store, cfg.Resolver, catalogSvc, queue, hub)
	taskSvc.SetMetrics(metrics)
	projectSvc := service.NewProjectService(store)

	stopListener, err := catalogSvc.StartInvalidationListener(ctx)
	if err != nil {
		return fmt.Errorf("catalog invalidation listener: %w", err)
	}
	defer stopListener()

	// --- HTTP ---
	handlers := &cfhttp.Handlers{
		Projects: projectSvc,
		Tasks:    taskSvc,
		Catalog:  catalogSvc,
		Store:    store,
		Version:  version,
	}
	if natsQueue != nil {
		handlers.Queue = natsQueue
	}

	r := chi.NewRouter()
	r.Use(cfotel.HTTPMiddleware(cfg.Telemetry.ServiceName))
	r.Use(middleware.RequestID)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.Logger)
	if cfg.Server.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)

	var limiter *middleware.RateLimiter
	rateLimit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimit.Rate > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit)
		rateLimit = limiter.Handler
	}

	r.Get("/ws", hub.HandleWS)
	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
		cfhttp.MountRoutes(r, handlers, rateLimit, middleware.Idempotency(c, cfg.Idempotency.TTL))
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if limiter != nil {
		g.Go(func() error {
			limiter.Run(gctx, cfg.RateLimit.CleanupInterval, cfg.RateLimit.MaxIdle)
			return nil
		})
	}
	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		if natsQueue != nil {
			return natsQueue.Drain()
		}
		return nil
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (storeBackend, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		slog.Info("postgres connected")
		return postgres.NewStore(pool), pool.Close, nil
	default:
		db, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		if err := sqlite.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("sqlite migrations: %w", err)
		}
		slog.Info("sqlite opened", "path", cfg.Database.SQLitePath)
		return sqlite.NewStore(db), func() { _ = db.Close() }, nil
	}
}

// openCache builds the ristretto L1 and, when configured, a NATS KV or Redis
// L2 behind a circuit breaker.
func openCache(ctx context.Context, cfg *config.Config, q *cfnats.Queue) (cache.Cache, func(), error) {
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return nil, nil, fmt.Errorf("l1 cache: %w", err)
	}

	var l2 cache.Cache
	closeL2 := func() {}
	switch cfg.Cache.L2 {
	case "nats":
		if q == nil {
			l1.Close()
			return nil, nil, errors.New("cache.l2 nats requires nats.url")
		}
		kv, err := natskv.Open(ctx, q.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			l1.Close()
			return nil, nil, fmt.Errorf("nats kv cache: %w", err)
		}
		l2 = kv
	case "redis":
		rc, err := redis.Dial(ctx, cfg.Redis.URL, cfg.Redis.Prefix)
		if err != nil {
			l1.Close()
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		l2 = rc
		closeL2 = func() { _ = rc.Close() }
	default:
		return l1, l1.Close, nil
	}

	breaker := resilience.NewBreaker("cache-l2", uint32(cfg.Breaker.MaxFailures), cfg.Breaker.Timeout)
	slog.Info("tiered cache enabled", "l2", cfg.Cache.L2)
	return tiered.New(l1, l2, cfg.Catalog.TTL, breaker), func() {
		closeL2()
		l1.Close()
	}, nil
}
