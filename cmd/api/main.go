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

	"leadmarket-platform/internal/audit"
	"leadmarket-platform/internal/auth"
	"leadmarket-platform/internal/claim"
	"leadmarket-platform/internal/config"
	"leadmarket-platform/internal/directory"
	"leadmarket-platform/internal/httpapi"
	"leadmarket-platform/internal/intake"
	"leadmarket-platform/internal/leads"
	"leadmarket-platform/internal/notify"
	"leadmarket-platform/internal/payments"
	"leadmarket-platform/internal/reporting"
	"leadmarket-platform/internal/routing"
	"leadmarket-platform/pkg/logger"
	"leadmarket-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local development convenience; absent .env is fine.
	_ = godotenv.Load()

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

	// Notification transports: queue preferred, SMTP fallback, both optional.
	var dispatchers notify.Multi
	if cfg.AMQPEnabled() {
		conn, err := amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			log.Error("amqp dial failed", "err", err)
			os.Exit(1)
		}
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			log.Error("amqp channel failed", "err", err)
			os.Exit(1)
		}
		defer ch.Close()
		qd, err := notify.NewQueueDispatcher(ch, cfg.AMQP.Exchange)
		if err != nil {
			log.Error("queue dispatcher init failed", "err", err)
			os.Exit(1)
		}
		dispatchers = append(dispatchers, qd)
	}
	if cfg.SMTPEnabled() {
		dispatchers = append(dispatchers, notify.NewEmailDispatcher(
			cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password,
			cfg.SMTP.From, cfg.Notify.AdminEmail,
		))
	}
	var dispatcher notify.Dispatcher = notify.Nop{}
	if len(dispatchers) > 0 {
		dispatcher = dispatchers
	}

	// Persistence.
	leadRepo := leads.NewRepository(db)
	providerRepo := directory.NewRepository(db)
	auditor := audit.NewService(audit.NewSQLRepo(db))

	// Engines.
	router := routing.NewEngine(routing.NewSQLStore(db), dispatcher)
	intakeSvc := intake.NewService(leadRepo, router)

	gateway := payments.NewStripeClient(cfg.Stripe.APIKey, cfg.Stripe.BaseURL, cfg.Stripe.Timeout)
	claimSvc := claim.NewService(claim.NewSQLStore(db), providerRepo, gateway, auditor, dispatcher)
	claimSvc.SetGuard(claim.NewRedisGuard(rdb))

	reportingSvc := reporting.NewService(reporting.NewSQLRepo(db))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	handlers := httpapi.Handlers{
		Auth:            authManager,
		TokenServiceKey: cfg.Auth.TokenServiceKey,
		Intake:          intakeSvc,
		Claims:          claimSvc,
		Leads:           leadRepo,
		Providers:       providerRepo,
		Reporting:       reportingSvc,
		Audit:           auditor,
		Cache:           httpapi.NewLeadCache(rdb),
		Metrics:         httpapi.NewMetrics(registry),
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(handlers.Metrics.Middleware())

	registerRoutes(r, handlers, auth.RequireAccessToken(authManager), registry)

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
