package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/atmx/outcome-engine/internal/config"
	"github.com/atmx/outcome-engine/internal/events"
	"github.com/atmx/outcome-engine/internal/lifecycle"
	"github.com/atmx/outcome-engine/internal/limits"
	"github.com/atmx/outcome-engine/internal/metrics"
	"github.com/atmx/outcome-engine/internal/store"
	"github.com/atmx/outcome-engine/internal/trade"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var rdb *redis.Client
	var cleanup []func()

	if cfg.Storage.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
	}

	if cfg.Storage.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("database migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if rdb != nil {
			st = store.NewCachedStore(st, rdb, cfg.Storage.CacheTTL.Duration)
			slog.Info("Redis cache enabled", "ttl", cfg.Storage.CacheTTL.Duration.String())
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Position limits ---
	limiter := limits.NewPositionLimiter(cfg.Limits.MaxPerOutcome, cfg.Limits.MaxPerMarket)
	if limiter.Enabled() {
		slog.Info("position limits enabled",
			"max_per_outcome", cfg.Limits.MaxPerOutcome,
			"max_per_market", cfg.Limits.MaxPerMarket,
		)
	}

	// --- Event sinks ---
	wsHub := trade.NewWSHub()
	go wsHub.Run(ctx)

	sinks := events.Multi{wsHub}
	if rdb != nil && cfg.Events.Stream != "" {
		sinks = append(sinks, events.NewRedisStream(rdb, cfg.Events.Stream, cfg.Events.StreamMaxLen))
		slog.Info("publishing events to Redis stream", "stream", cfg.Events.Stream)
	}

	// --- Trading engine ---
	engine := trade.NewEngine(st, lifecycle.SystemClock{}, limiter, sinks)
	tradeSvc := trade.NewService(engine)
	seedGauges(ctx, st)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"outcome-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	rateLimiter := trade.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time events. It stays outside the
		// request timeout.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			tradeSvc.Routes(r, rateLimiter.Middleware, trade.RequireAdmin(cfg.Server.AdminToken))
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("outcome-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down outcome-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("outcome-engine stopped")
}

// seedGauges initializes gauges that the engine otherwise only moves by
// deltas.
func seedGauges(ctx context.Context, st store.Store) {
	markets, err := st.ListMarkets(ctx)
	if err != nil {
		slog.Warn("could not count markets", "err", err)
		return
	}
	open := 0
	for _, m := range markets {
		if !m.Resolved {
			open++
		}
	}
	metrics.ActiveMarkets.Set(float64(open))
}
