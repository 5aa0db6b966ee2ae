package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callgate/internal/auth"
	"callgate/internal/callback"
	"callgate/internal/calls"
	"callgate/internal/config"
	"callgate/internal/diag"
	"callgate/internal/httpapi"
	"callgate/internal/lifecycle"
	"callgate/internal/metrics"
	"callgate/internal/routing"
	"callgate/internal/telephony"
	"callgate/pkg/logger"
	"callgate/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	var store calls.Store
	switch cfg.Store.Backend {
	case "postgres":
		db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		store = calls.NewPostgresStore(db)
	default:
		log.Warn("using in-memory call store; records do not survive restarts")
		store = calls.NewMemoryStore()
	}

	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	var authManager *auth.Manager
	if cfg.Auth.JWTSecret != "" {
		authManager, err = auth.NewManager(cfg.Auth)
		if err != nil {
			log.Error("auth init failed", "err", err)
			os.Exit(1)
		}
	}

	gateway, err := telephony.NewFreeswitchGateway(telephony.FreeswitchConfig{
		BaseURL:  cfg.Switch.BaseURL,
		Username: cfg.Switch.Username,
		Password: cfg.Switch.Password,
		Timeout:  cfg.Switch.DialTimeout,
	})
	if err != nil {
		log.Error("switch gateway init failed", "err", err)
		os.Exit(1)
	}

	dispatcher := callback.NewDispatcher(callback.Config{
		MaxAttempts:    cfg.Callback.MaxAttempts,
		BaseDelay:      cfg.Callback.BaseDelay,
		MaxDelay:       cfg.Callback.MaxDelay,
		RequestTimeout: cfg.Callback.RequestTimeout,
	}, log, m)

	diagSvc := diag.NewService(diag.NewMemoryRepo())

	opts := lifecycle.Options{
		Diag:    diagSvc,
		Metrics: m,
	}
	if rdb != nil {
		opts.Dedup = lifecycle.NewRedisDeduper(rdb, 0)
		if cfg.Limits.MaxActiveCallsPerAccount > 0 {
			opts.Limiter = lifecycle.NewRedisLimiter(rdb, cfg.Limits.MaxActiveCallsPerAccount, cfg.Limits.CallCapTTL, log)
		}
	}

	coordinator := lifecycle.NewCoordinator(lifecycle.Config{
		EventQueueSize: cfg.App.EventQueueSize,
		DialTimeout:    cfg.Switch.DialTimeout,
	}, store, gateway, routing.NewResolver(cfg.Routing.Trunks), dispatcher, log, opts)

	runCtx, stopRun := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		coordinator.Run(runCtx)
		close(runDone)
	}()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, httpapi.Handlers{Coordinator: coordinator, Diag: diagSvc},
		auth.RequireClient(cfg.Auth, authManager),
		auth.RequireHookSecret(cfg.Switch.HookSecret),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Stop accepting requests first, then drain the event loop and any
	// in-flight dials, then let pending callbacks finish.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	stopRun()
	select {
	case <-runDone:
	case <-shutdownCtx.Done():
		log.Warn("event loop did not drain in time")
	}

	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Warn("callback dispatcher did not drain in time", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
