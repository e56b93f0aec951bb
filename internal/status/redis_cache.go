package status

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/designer-bridge/internal/logging"
)

// RedisCache shares entries between server instances.  Each target is one
// hash whose fields are script ids, so a target can be dropped with a
// single DEL.  Redis failures are logged and read as misses.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	retain time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// NewRedisCache returns nil when rdb is nil.
func NewRedisCache(rdb *redis.Client, prefix string, retain time.Duration, logger *zap.Logger) *RedisCache {
	if rdb == nil {
		return nil
	}
	if prefix == "" {
		prefix = "status"
	}
	return &RedisCache{
		rdb:    rdb,
		prefix: prefix,
		retain: retain,
		now:    time.Now,
		log:    logging.OrNop(logger).With(logging.Component("status_cache")),
	}
}

func (c *RedisCache) key(targetID string) string { return c.prefix + ":t:" + targetID }

func (c *RedisCache) Get(ctx context.Context, scriptID, targetID string) (Entry, bool) {
	raw, err := c.rdb.HGet(ctx, c.key(targetID), scriptID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis get failed", logging.TargetID(targetID), zap.Error(err))
		}
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.Warn("corrupt status entry", logging.TargetID(targetID), logging.ScriptID(scriptID), zap.Error(err))
		return Entry{}, false
	}
	if c.retain > 0 && c.now().Sub(e.FetchedAt) > c.retain {
		return Entry{}, false
	}
	return e, true
}

func (c *RedisCache) Set(ctx context.Context, scriptID, targetID string, e Entry) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	key := c.key(targetID)
	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, scriptID, raw)
		if c.retain > 0 {
			p.Expire(ctx, key, c.retain)
		}
		return nil
	})
	if err != nil {
		c.log.Warn("redis set failed", logging.TargetID(targetID), zap.Error(err))
	}
}

func (c *RedisCache) Delete(ctx context.Context, scriptID, targetID string) {
	if err := c.rdb.HDel(ctx, c.key(targetID), scriptID).Err(); err != nil {
		c.log.Warn("redis delete failed", logging.TargetID(targetID), zap.Error(err))
	}
}

func (c *RedisCache) DeleteTarget(ctx context.Context, targetID string) {
	if err := c.rdb.Del(ctx, c.key(targetID)).Err(); err != nil {
		c.log.Warn("redis delete failed", logging.TargetID(targetID), zap.Error(err))
	}
}
