// Command worker consumes ingest jobs from the queue and runs the
// extraction, chunking and indexing pipeline.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	ai "github.com/fairyhunter13/resume-rag/internal/adapter/ai"
	rediscache "github.com/fairyhunter13/resume-rag/internal/adapter/cache"
	"github.com/fairyhunter13/resume-rag/internal/adapter/observability"
	"github.com/fairyhunter13/resume-rag/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/resume-rag/internal/adapter/repo/postgres"
	qdrantcli "github.com/fairyhunter13/resume-rag/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/resume-rag/internal/app"
	"github.com/fairyhunter13/resume-rag/internal/config"
	"github.com/fairyhunter13/resume-rag/internal/ingest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	// Dedicated metrics endpoint so Prometheus can scrape pipeline metrics.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}

	resumeRepo := postgres.NewResumeRepo(pool)
	jobRepo := postgres.NewJobRepo(pool)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer func() { _ = rdb.Close() }()
	rankCache := rediscache.New(rdb, cfg.RankCacheTTL)

	if cfg.QdrantURL == "" {
		slog.Error("QDRANT_URL must be set")
		os.Exit(1)
	}
	qcli := qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.QdrantCollection)
	app.EnsureCollections(ctx, cfg, qcli)

	aicl := ai.NewEmbedCache(ai.New(cfg), cfg.EmbedCacheSize)

	pipeline := ingest.NewPipeline(cfg, resumeRepo, jobRepo, aicl, qcli, rankCache)

	// Transactional ID distinct from the HTTP server's producer so the two
	// processes never conflict.
	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, pipeline, jobRepo, cfg.ConsumerMaxConcurrency)
	if err != nil {
		slog.Error("redpanda consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			slog.Error("failed to close consumer", slog.Any("error", err))
		}
	}()

	slog.Info("starting ingest consumer",
		slog.String("group", cfg.ConsumerGroup),
		slog.Int("concurrency", cfg.ConsumerMaxConcurrency))
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("consumer error", slog.Any("error", err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
}
