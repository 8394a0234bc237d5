// Command collector runs the Redis-Streams transcription collector (C6)
// and the immutability promoter (C7) in one process: it merges partial
// segments into per-session buffers, promotes stable finals into
// Postgres, and announces changes over pub/sub.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/lokutor-ai/meeting-intel/internal/collector"
	"github.com/lokutor-ai/meeting-intel/internal/config"
	"github.com/lokutor-ai/meeting-intel/internal/logging"
	"github.com/lokutor-ai/meeting-intel/internal/metrics"
	"github.com/lokutor-ai/meeting-intel/internal/promoter"
)

func main() {
	_ = godotenv.Load()
	logger := logging.New("collector")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)

	pool, err := pgxpool.New(ctx, cfg.Collector.DatabaseURL)
	if err != nil {
		logger.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sessions := collector.NewSessionMap()
	store := promoter.NewPostgresStore(pool)

	consumerCfg := collector.DefaultConfig(cfg.Redis.StreamName, cfg.Redis.ConsumerGroup, "collector-1")
	consumerCfg.PendingTimeout = cfg.Collector.PendingMsgTimeout
	consumer := collector.NewConsumer(redisClient, consumerCfg, sessions, logger)

	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Error("ensure consumer group failed", "error", err)
		os.Exit(1)
	}

	promoterCfg := promoter.Config{
		Interval:              cfg.Collector.BackgroundTaskInterval,
		ImmutabilityThreshold: cfg.Collector.ImmutabilityThreshold,
		PubSubMaxSegments:     200,
	}
	prom := promoter.New(promoterCfg, sessions, store, redisClient, logger)

	go prom.Run(ctx)

	metricsErrs := metrics.Serve(":9100")
	go func() {
		if err := <-metricsErrs; err != nil {
			logger.Warn("collector: metrics listener exited", "error", err)
		}
	}()

	logger.Info("collector running", "stream", cfg.Redis.StreamName, "group", cfg.Redis.ConsumerGroup)
	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("consumer exited", "error", err)
		os.Exit(1)
	}
}
