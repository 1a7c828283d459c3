// Command server starts the resume ingestion and query HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	ai "github.com/fairyhunter13/resume-rag/internal/adapter/ai"
	rediscache "github.com/fairyhunter13/resume-rag/internal/adapter/cache"
	httpserver "github.com/fairyhunter13/resume-rag/internal/adapter/httpserver"
	"github.com/fairyhunter13/resume-rag/internal/adapter/observability"
	"github.com/fairyhunter13/resume-rag/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/resume-rag/internal/adapter/repo/postgres"
	tikaext "github.com/fairyhunter13/resume-rag/internal/adapter/textextractor/tika"
	qdrantcli "github.com/fairyhunter13/resume-rag/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/resume-rag/internal/app"
	"github.com/fairyhunter13/resume-rag/internal/config"
	"github.com/fairyhunter13/resume-rag/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
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

	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("redpanda producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close queue producer", slog.Any("error", err))
		}
	}()

	// Embedding cache wrapper; caches embeddings only, never chat output.
	aicl := ai.NewEmbedCache(ai.New(cfg), cfg.EmbedCacheSize)

	if cfg.QdrantURL == "" {
		slog.Error("QDRANT_URL must be set")
		os.Exit(1)
	}
	qcli := qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.QdrantCollection)
	app.EnsureCollections(ctx, cfg, qcli)

	ext := tikaext.New(cfg.TikaURL)

	ingestSvc := usecase.NewIngestService(resumeRepo, jobRepo, producer, ext, rankCache, qcli)
	jobSvc := usecase.NewJobService(jobRepo)
	querySvc := usecase.NewQueryService(aicl, qcli, cfg.QueryTopK)
	rankSvc := usecase.NewRankService(aicl, qcli, rankCache, cfg.RankRetrievalK)
	statsSvc := usecase.NewStatsService(resumeRepo)

	dbCheck, redisCheck, qdrantCheck, tikaCheck := app.BuildReadinessChecks(cfg, pool, rankCache)
	srv := httpserver.NewServer(cfg, ingestSvc, jobSvc, querySvc, rankSvc, statsSvc, dbCheck, redisCheck, qdrantCheck, tikaCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
