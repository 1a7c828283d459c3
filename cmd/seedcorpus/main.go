// Command seedcorpus loads demo resumes from YAML files and indexes them
// through the full ingest pipeline.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	ai "github.com/fairyhunter13/resume-rag/internal/adapter/ai"
	rediscache "github.com/fairyhunter13/resume-rag/internal/adapter/cache"
	"github.com/fairyhunter13/resume-rag/internal/adapter/observability"
	"github.com/fairyhunter13/resume-rag/internal/adapter/repo/postgres"
	qdrantcli "github.com/fairyhunter13/resume-rag/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/resume-rag/internal/app"
	"github.com/fairyhunter13/resume-rag/internal/config"
	"github.com/fairyhunter13/resume-rag/internal/ingest"
	"github.com/fairyhunter13/resume-rag/internal/seedcorpus"
)

func main() {
	var (
		file = flag.String("file", "", "single YAML seed file")
		dir  = flag.String("dir", "seeds", "directory of YAML seed files")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		log.Fatal(err)
	}

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

	resumeRepo := postgres.NewResumeRepo(pool)
	jobRepo := postgres.NewJobRepo(pool)
	deps := seedcorpus.Deps{
		Resumes:  resumeRepo,
		Jobs:     jobRepo,
		Pipeline: ingest.NewPipeline(cfg, resumeRepo, jobRepo, aicl, qcli, rankCache),
	}

	var n int
	if *file != "" {
		n, err = seedcorpus.SeedFile(ctx, deps, *file)
	} else {
		n, err = seedcorpus.SeedDir(ctx, deps, *dir)
	}
	if err != nil {
		slog.Error("seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("corpus seeded", slog.Int("resumes", n))
}
