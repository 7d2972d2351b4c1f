// The analytics server records and serves view analytics for BulletDrop
// uploads and profiles, enforces per-class rate limits, and publishes
// security events. Postgres, redis, and kafka are all optional: missing
// ones degrade to in-memory equivalents so local development needs no
// infrastructure.
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

	"golang.org/x/sync/errgroup"

	"github.com/bulletdrop/analytics/internal/analytics/counter"
	analyticshandler "github.com/bulletdrop/analytics/internal/analytics/handler"
	analyticsmetrics "github.com/bulletdrop/analytics/internal/analytics/metrics"
	analyticsservice "github.com/bulletdrop/analytics/internal/analytics/service"
	"github.com/bulletdrop/analytics/internal/analytics/store"
	"github.com/bulletdrop/analytics/internal/analytics/store/memory"
	"github.com/bulletdrop/analytics/internal/analytics/store/postgres"
	viewsync "github.com/bulletdrop/analytics/internal/analytics/sync"
	"github.com/bulletdrop/analytics/internal/httpapi"
	"github.com/bulletdrop/analytics/internal/platform/config"
	"github.com/bulletdrop/analytics/internal/platform/httpserver"
	"github.com/bulletdrop/analytics/internal/platform/logger"
	platformmw "github.com/bulletdrop/analytics/internal/platform/middleware"
	platformredis "github.com/bulletdrop/analytics/internal/platform/redis"
	ratelimitadmin "github.com/bulletdrop/analytics/internal/ratelimit/admin"
	ratelimitmetrics "github.com/bulletdrop/analytics/internal/ratelimit/metrics"
	ratelimitmw "github.com/bulletdrop/analytics/internal/ratelimit/middleware"
	ratelimitservice "github.com/bulletdrop/analytics/internal/ratelimit/service"
	"github.com/bulletdrop/analytics/internal/ratelimit/store/blocklist"
	"github.com/bulletdrop/analytics/internal/ratelimit/store/bucket"
	"github.com/bulletdrop/analytics/internal/security"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthChecks := map[string]httpapi.HealthCheck{}

	// Storage. Postgres when configured, in-memory otherwise.
	var views store.ViewStore
	var directory store.ContentDirectory
	if cfg.PostgresDSN != "" {
		pg, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		views, directory = pg, pg
		healthChecks["postgres"] = pg.Health
		log.Info("using postgres view store")
	} else {
		mem := memory.New()
		views, directory = mem, mem
		log.Warn("no database configured, using in-memory view store")
	}

	// Redis backs the view counter and the rate limiter when available.
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	var viewCounter counter.Counter
	var buckets bucket.Store
	var blocks blocklist.Store
	if redisClient != nil {
		defer redisClient.Close()
		viewCounter = counter.NewRedis(redisClient.Client)
		buckets = bucket.NewRedis(redisClient.Client)
		blocks = blocklist.NewRedis(redisClient.Client)
		healthChecks["redis"] = redisClient.Health
		log.Info("using redis for counters and rate limits")
	} else {
		viewCounter = counter.NewMemory()
		buckets = bucket.NewMemory()
		blocks = blocklist.NewMemory()
		log.Warn("no redis configured, using in-memory counters and rate limits")
	}

	// Security events flow through the monitor into kafka when brokers
	// are configured.
	var sink security.Sink = security.NewMemorySink()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := security.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.SecurityTopic, log)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := kafkaSink.Close(closeCtx); err != nil {
				log.Warn("failed to close kafka sink", "error", err)
			}
		}()
		sink = kafkaSink
		log.Info("publishing security events to kafka", "topic", cfg.SecurityTopic)
	}
	monitor := security.NewMonitor(sink, security.WithMonitorLogger(log))

	analyticsMx := analyticsmetrics.New()
	analyticsSvc, err := analyticsservice.New(views, directory, viewCounter,
		analyticsservice.WithLogger(log),
		analyticsservice.WithMetrics(analyticsMx),
	)
	if err != nil {
		return err
	}

	rlMx := ratelimitmetrics.New()
	rlSvc := ratelimitservice.New(buckets, blocks, cfg.RateLimit,
		ratelimitservice.WithLogger(log),
		ratelimitservice.WithMetrics(rlMx),
		ratelimitservice.WithEventSink(monitor),
	)

	verifier := platformmw.NewHMACVerifier(cfg.JWTSigningKey)
	router := httpapi.NewRouter(httpapi.Deps{
		Logger:         log,
		Verifier:       verifier,
		Analytics:      analyticshandler.New(analyticsSvc, directory, log),
		RateLimitAdmin: ratelimitadmin.New(rlSvc, log),
		RateLimit: ratelimitmw.New(rlSvc, log,
			ratelimitmw.WithDisabled(!cfg.RateLimit.Enabled),
			ratelimitmw.WithMetrics(rlMx),
			ratelimitmw.WithSkipPaths("/health", "/metrics"),
		),
		HealthChecks: healthChecks,
	})

	srv := httpserver.New(cfg.Addr, router)
	syncWorker := viewsync.New(viewCounter, views,
		viewsync.WithInterval(cfg.ViewSyncInterval),
		viewsync.WithLogger(log),
		viewsync.WithMetrics(analyticsMx),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting analytics server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		syncWorker.Run(ctx)
		return nil
	})
	g.Go(func() error {
		monitor.Run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
