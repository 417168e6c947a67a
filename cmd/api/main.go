package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/splax/statuspage/internal/app/migrate"
	httpx "github.com/splax/statuspage/internal/http"
	"github.com/splax/statuspage/internal/notify"
	"github.com/splax/statuspage/internal/repository"
	"github.com/splax/statuspage/internal/repository/memory"
	"github.com/splax/statuspage/internal/repository/postgres"
	"github.com/splax/statuspage/internal/service/auth"
	"github.com/splax/statuspage/internal/service/healthcheck"
	"github.com/splax/statuspage/internal/service/incident"
	"github.com/splax/statuspage/internal/service/organization"
	"github.com/splax/statuspage/internal/service/registry"
	"github.com/splax/statuspage/internal/service/status"
	"github.com/splax/statuspage/internal/ws"
	"github.com/splax/statuspage/pkg/config"
	"github.com/splax/statuspage/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store    repository.Store
		dbHealth func(context.Context) error
	)
	if cfg.UseMemoryStore() {
		log.Warn("using in-memory store; data is lost on restart")
		store = memory.New()
	} else {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		runner, err := migrate.New(pool, cfg.MigrationsDir, log)
		if err != nil {
			log.Error("failed to configure migrations", "error", err)
			os.Exit(1)
		}
		if err := runner.Ping(ctx); err != nil {
			log.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		if err := runner.Ensure(ctx); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		store = postgres.New(pool)
		dbHealth = pool.Ping
	}

	hub := ws.NewHub()
	defer hub.Stop()

	var limiter httpx.RateLimiter
	var publishers []notify.Publisher
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RedisPass, DB: cfg.RedisDB})
		defer rdb.Close()
		redisLimiter, err := httpx.NewRedisRateLimiter(ctx, rdb, log)
		if err != nil {
			log.Warn("redis unavailable, falling back to local fan-out", "error", err)
			publishers = append(publishers, notify.NewHubPublisher(hub))
		} else {
			limiter = redisLimiter
			publishers = append(publishers, notify.NewRedisPublisher(rdb, cfg.RedisChannelPrefix))
			go notify.NewRedisRelay(rdb, cfg.RedisChannelPrefix, hub, log).Run(ctx)
		}
	} else {
		publishers = append(publishers, notify.NewHubPublisher(hub))
	}
	if broker := strings.TrimSpace(cfg.MQTTBroker); broker != "" {
		mq, err := notify.NewMQTTPublisher(notify.MQTTConfig{
			Broker:      broker,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
		})
		if err != nil {
			log.Warn("mqtt publisher disabled", "error", err)
		} else {
			defer mq.Close()
			publishers = append(publishers, mq)
		}
	}
	if strings.TrimSpace(cfg.ResendAPIKey) != "" {
		publishers = append(publishers, notify.NewMailPublisher(notify.MailConfig{
			APIKey:  cfg.ResendAPIKey,
			From:    cfg.ResendFrom,
			BaseURL: cfg.ResendBaseURL,
		}, store, log))
	}
	events := notify.NewFanout(log, cfg.NotifyTimeout, publishers...)
	log.Info("notification fan-out ready", "publishers", events.Publishers())

	var templates []organization.Template
	if path := strings.TrimSpace(cfg.DefaultServicesFile); path != "" {
		loaded, err := organization.LoadTemplates(path)
		if err != nil {
			log.Error("failed to load default services", "path", path, "error", err)
			os.Exit(1)
		}
		templates = loaded
	}

	authSvc := auth.New(store, store, log, cfg)
	orgSvc := organization.New(store, store, templates, log)
	registrySvc := registry.New(store, store, events, log, cfg)
	incidentSvc := incident.New(store, store, events, log, cfg)
	statusSvc := status.New(store, store, store, store, log, cfg)

	sweeper := healthcheck.NewSweeper(store, registrySvc, healthcheck.NewHTTPProber(cfg.HealthCheckTimeout), log, healthcheck.Options{
		Timeout:     cfg.HealthCheckTimeout,
		Concurrency: cfg.HealthCheckConcurrency,
	})
	if cfg.HealthCheckEnabled {
		go sweeper.Run(ctx, cfg.HealthCheckInterval)
	}

	router := httpx.NewRouter(httpx.Dependencies{
		Logger:        log,
		Auth:          authSvc,
		Organizations: orgSvc,
		Registry:      registrySvc,
		Incidents:     incidentSvc,
		Status:        statusSvc,
		Sweeper:       sweeper,
		Hub:           hub,
		Limiter:       limiter,
		StatusAPIKey:  cfg.StatusAPIKey,
		CronToken:     cfg.CronToken,
		DBHealth:      dbHealth,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "store", cfg.StoreBackend)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
