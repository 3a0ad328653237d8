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

	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/audit"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/auth"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/billing"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/calls"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/config"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/httpapi"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/ledger"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/notify"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/reporting"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/rtc"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/pkg/logger"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
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

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Domain wiring. The ledger and call store are durable (Postgres); the
	// billing sessions, notifications and presence live in Redis.
	ledgerSvc := ledger.NewService(db)
	callRepo := calls.NewPostgresRepo(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	notifier := notify.NewRedisNotifier(rdb)
	presence := notify.NewRedisPresence(rdb)

	billingMgr := billing.NewManager(
		billing.NewRedisSessionStore(rdb),
		ledgerSvc,
		callRepo,
		notifier,
		auditSvc,
		cfg.Billing,
		log,
	)
	defer billingMgr.Shutdown()

	// Room tokens come from the media provider SDK; static wiring until one
	// is configured.
	callSvc := calls.NewService(callRepo, ledgerSvc, billingMgr, notifier,
		rtc.StaticTokenProvider{}, cfg.Billing.EarnRatePerSecond, cfg.Billing.MinBalanceToStart)

	reaper := billing.NewReaper(callRepo, callSvc, billingMgr, presence,
		cfg.Billing.ReaperInterval, cfg.Billing.RingingTimeout, log)
	go reaper.Run(rootCtx)

	reportSvc := reporting.NewService(reporting.NewPostgresRepo(db))

	h := httpapi.Handlers{
		Auth:    authManager,
		Calls:   callSvc,
		Ledger:  ledgerSvc,
		Reports: reportSvc,
		Audit:   auditSvc,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
