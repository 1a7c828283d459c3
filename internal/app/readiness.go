package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fairyhunter13/resume-rag/internal/config"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// CachePinger is the minimal interface the readiness probe needs from the
// ranking cache.
type CachePinger interface{ Ping(ctx context.Context) error }

// BuildReadinessChecks returns the four readiness checks: db, redis, qdrant
// and tika.
func BuildReadinessChecks(cfg config.Config, pool Pinger, cache CachePinger) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	dbCheck := func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
	redisCheck := func(ctx context.Context) error {
		if cache == nil {
			return fmt.Errorf("redis not configured")
		}
		return cache.Ping(ctx)
	}
	qdrantCheck := func(ctx context.Context) error {
		client := &http.Client{Timeout: 2 * time.Second}
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, cfg.QdrantURL+"/collections", nil)
		if cfg.QdrantAPIKey != "" {
			req.Header.Set("api-key", cfg.QdrantAPIKey)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return fmt.Errorf("qdrant status %d", resp.StatusCode)
	}
	tikaCheck := func(ctx context.Context) error {
		if cfg.TikaURL == "" {
			return fmt.Errorf("tika url not configured")
		}
		client := &http.Client{Timeout: 2 * time.Second}
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, cfg.TikaURL+"/version", nil)
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return fmt.Errorf("tika status %d", resp.StatusCode)
	}
	return dbCheck, redisCheck, qdrantCheck, tikaCheck
}
