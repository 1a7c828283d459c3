// Package cache implements the ranking cache on Redis.
//
// Rank results are cached per query so an unchanged corpus returns identical
// output for repeated queries. A corpus version token is mixed into cache
// keys by callers and bumped on every ingest or delete, which invalidates
// all prior entries without scanning them.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/resume-rag/internal/domain"
)

const (
	rankKeyPrefix    = "rank:"
	corpusVersionKey = "corpus:version"
)

// RankingCache implements domain.RankingCache on a Redis client.
type RankingCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New constructs a RankingCache. ttl bounds how long entries live even
// without a version bump.
func New(rdb *redis.Client, ttl time.Duration) *RankingCache {
	return &RankingCache{rdb: rdb, ttl: ttl}
}

// GetRank returns a cached rank result and whether it was present.
func (c *RankingCache) GetRank(ctx domain.Context, key string) (domain.RankResult, bool, error) {
	raw, err := c.rdb.Get(ctx, rankKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RankResult{}, false, nil
	}
	if err != nil {
		return domain.RankResult{}, false, fmt.Errorf("op=cache.get_rank: %w", err)
	}
	var r domain.RankResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.RankResult{}, false, fmt.Errorf("op=cache.get_rank: %w", err)
	}
	return r, true, nil
}

// SetRank stores a rank result under key.
func (c *RankingCache) SetRank(ctx domain.Context, key string, r domain.RankResult) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("op=cache.set_rank: %w", err)
	}
	if err := c.rdb.Set(ctx, rankKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("op=cache.set_rank: %w", err)
	}
	return nil
}

// CorpusVersion returns the current corpus version token, "0" if never bumped.
func (c *RankingCache) CorpusVersion(ctx domain.Context) (string, error) {
	v, err := c.rdb.Get(ctx, corpusVersionKey).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("op=cache.corpus_version: %w", err)
	}
	return v, nil
}

// BumpCorpusVersion advances the corpus version, invalidating cached ranks.
func (c *RankingCache) BumpCorpusVersion(ctx domain.Context) error {
	if err := c.rdb.Incr(ctx, corpusVersionKey).Err(); err != nil {
		return fmt.Errorf("op=cache.bump_corpus_version: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity for readiness probes.
func (c *RankingCache) Ping(ctx domain.Context) error {
	return c.rdb.Ping(ctx).Err()
}
