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
	"github.com/redis/go-redis/v9"

	"github.com/suipaper/paper-engine/internal/ledger"
	"github.com/suipaper/paper-engine/internal/metrics"
	"github.com/suipaper/paper-engine/internal/oracle"
	"github.com/suipaper/paper-engine/internal/service"
	"github.com/suipaper/paper-engine/internal/store"
	"github.com/suipaper/paper-engine/internal/token"
	"github.com/suipaper/paper-engine/internal/valuation"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Token set ---
	tokens := token.DefaultRegistry()
	if path := os.Getenv("TOKENS_FILE"); path != "" {
		loaded, err := token.LoadFile(path)
		if err != nil {
			slog.Error("failed to load token set", "path", path, "err", err)
			os.Exit(1)
		}
		tokens = loaded
		slog.Info("token set loaded", "path", path, "tradable", len(tokens.Tradable()))
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
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

	// --- Core: oracle, ledger, reporter ---
	prices := oracle.New(tokens, nil)
	ldg := ledger.New(tokens, prices)
	reporter := valuation.NewReporter(ldg, prices)

	// Restore accounts persisted by a previous run.
	if accounts, err := st.ListAccounts(context.Background()); err != nil {
		slog.Warn("account restore failed", "err", err)
	} else if len(accounts) > 0 {
		ldg.Restore(accounts)
		metrics.ActiveAccounts.Set(float64(ldg.Len()))
		slog.Info("accounts restored", "count", len(accounts))
	}

	// --- WebSocket hub + price ticker ---
	wsHub := service.NewWSHub()
	go wsHub.Run()

	tickInterval := 5 * time.Second
	if v := os.Getenv("TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			tickInterval = d
		}
	}
	go runPriceTicker(prices, tokens, wsHub, tickInterval)

	// --- Service ---
	svc := service.New(ldg, reporter, prices, st, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"paper-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", svc.Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("paper-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down paper-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("paper-engine stopped")
}

// runPriceTicker broadcasts a fresh price snapshot for every tradable
// token at a fixed interval.
func runPriceTicker(prices *oracle.Oracle, tokens *token.Registry, hub *service.WSHub, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tradable := tokens.Tradable()
	symbols := make([]string, 0, len(tradable))
	for _, t := range tradable {
		symbols = append(symbols, t.Symbol)
	}

	for range ticker.C {
		snapshot, err := prices.Snapshot(symbols)
		if err != nil {
			continue
		}
		tick := make(map[string]string, len(snapshot))
		for sym, p := range snapshot {
			tick[sym] = p.String()
		}
		hub.Broadcast(service.WSMessage{Type: "price_tick", Prices: tick})
	}
}
