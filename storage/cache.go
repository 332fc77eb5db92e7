package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/toky-team/toky-back-sub001/pagination"
)

const rankingVersionKey = "ranking:version"

type rankingBackend interface {
	IncrementTickets(ctx context.Context, userID string, amount int, reason string) error
	ListRanking(ctx context.Context, req pagination.Request) (pagination.Page[RankEntry], error)
}

// RankingCache wraps a ticket store with Redis-backed caching of ranking
// pages. Every grant bumps a version counter which is part of each page key,
// so pages cached before the grant are never served again.
type RankingCache struct {
	base   rankingBackend
	redis  *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewRankingCache creates a caching wrapper using the provided Redis client and TTL.
func NewRankingCache(base rankingBackend, client *redis.Client, ttl time.Duration, logger *log.Logger) *RankingCache {
	if base == nil {
		panic("storage.NewRankingCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RankingCache{base: base, redis: client, ttl: ttl, logger: logger}
}

func (c *RankingCache) IncrementTickets(ctx context.Context, userID string, amount int, reason string) error {
	if err := c.base.IncrementTickets(ctx, userID, amount, reason); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

func (c *RankingCache) ListRanking(ctx context.Context, req pagination.Request) (pagination.Page[RankEntry], error) {
	version, ok := c.version(ctx)
	if ok {
		if page, hit := c.load(ctx, rankingPageKey(version, req)); hit {
			return page, nil
		}
	}
	page, err := c.base.ListRanking(ctx, req)
	if err != nil {
		return pagination.Page[RankEntry]{}, err
	}
	if ok {
		c.store(ctx, rankingPageKey(version, req), page)
	}
	return page, nil
}

// Invalidate makes every cached page unreachable.
func (c *RankingCache) Invalidate(ctx context.Context) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Incr(ctx, rankingVersionKey).Err(); err != nil {
		c.logger.WithError(err).Warn("ranking cache invalidation failed")
	}
}

func (c *RankingCache) version(ctx context.Context) (int64, bool) {
	if c.redis == nil || c.ttl == 0 {
		return 0, false
	}
	v, err := c.redis.Get(ctx, rankingVersionKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, true
		}
		// On redis errors fall back to the backing storage without failing.
		return 0, false
	}
	return v, true
}

func (c *RankingCache) load(ctx context.Context, key string) (pagination.Page[RankEntry], bool) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return pagination.Page[RankEntry]{}, false
	}
	var page pagination.Page[RankEntry]
	if err := sonic.Unmarshal(data, &page); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return pagination.Page[RankEntry]{}, false
	}
	if page.Items == nil {
		page.Items = []RankEntry{}
	}
	return page, true
}

func (c *RankingCache) store(ctx context.Context, key string, page pagination.Page[RankEntry]) {
	data, err := sonic.Marshal(page)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func rankingPageKey(version int64, req pagination.Request) string {
	return fmt.Sprintf("ranking:v%d:%s:%d:%s", version, req.Order, req.Limit, req.Cursor)
}
