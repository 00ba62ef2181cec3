package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"agentvault/internal/admin"
	"agentvault/internal/audit"
	"agentvault/internal/crypto"
	"agentvault/internal/platform/clock"
	"agentvault/internal/platform/config"
	"agentvault/internal/platform/httpserver"
	"agentvault/internal/platform/logger"
	"agentvault/internal/platform/metrics"
	platformredis "agentvault/internal/platform/redis"
	"agentvault/internal/ratelimit"
	"agentvault/internal/resolve"
	"agentvault/internal/storage"
	transport "agentvault/internal/transport/http"
)

// main wires high-level dependencies and keeps the server lifecycle
// small. Business logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	clk := clock.Real{}

	// A missing or malformed master key does not stop the process: the
	// vault runs fail-closed and every route reports "setup required"
	// until a valid key is configured.
	masterKey, err := crypto.ParseMasterKey(cfg.MasterKeyB64)
	if err != nil {
		log.Warn("vault is not configured", "error", err)
	}
	engine := crypto.NewEngine(masterKey)

	var (
		itemStore  storage.ItemStore
		tokenStore storage.TokenStore
		auditStore storage.AuditStore
	)
	if cfg.PostgresURL != "" {
		db, err := storage.OpenPostgres(cfg.PostgresURL)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		itemStore = storage.NewPostgresItemStore(db)
		tokenStore = storage.NewPostgresTokenStore(db)
		auditStore = storage.NewPostgresAuditStore(db)
		log.Info("using postgres stores")
	} else {
		itemStore = storage.NewInMemoryItemStore()
		tokenStore = storage.NewInMemoryTokenStore()
		auditStore = storage.NewInMemoryAuditStore()
		log.Warn("using in-memory stores; data does not survive restarts")
	}

	var limiterStore ratelimit.Store = ratelimit.NewMemoryStore(clk)
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		limiterStore = ratelimit.NewRedisStore(redisClient)
		log.Info("using redis rate-limit counters")
	}
	limiter := ratelimit.New(limiterStore, cfg.RateLimitWindow, clk)

	registry := prometheus.NewRegistry()
	vaultMetrics := metrics.New(registry)

	auditSvc := audit.NewService(auditStore, clk, log)
	resolver := resolve.New(itemStore, tokenStore, auditSvc, engine, limiter, clk,
		resolve.WithLogger(log),
		resolve.WithMetrics(vaultMetrics),
		resolve.WithLimits(cfg.ResolveLimit, cfg.ResolveBatchLimit),
	)
	adminSvc := admin.NewService(itemStore, tokenStore, auditSvc, engine, clk, log)

	handler := transport.NewHandler(resolver, adminSvc, log)
	router := transport.NewRouter(handler, cfg.AdminJWTSecret, registry)

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting agentvault", "addr", cfg.Addr, "configured", engine.Configured())

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
