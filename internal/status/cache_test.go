package status

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/designer-bridge/internal/model"
)

func TestMemoryCacheRetention(t *testing.T) {
	clk := &testClock{t: time.Now()}
	c := NewMemoryCache(time.Minute)
	c.now = clk.now
	ctx := context.Background()

	c.Set(ctx, "scr", "p1", Entry{Status: model.StatusEntry{IsApplied: true}, FetchedAt: clk.now()})
	_, ok := c.Get(ctx, "scr", "p1")
	assert.True(t, ok)

	clk.advance(2 * time.Minute)
	_, ok = c.Get(ctx, "scr", "p1")
	assert.False(t, ok)

	c.Set(ctx, "other", "p1", Entry{FetchedAt: clk.now()})
	assert.Equal(t, 1, c.Len(), "expired entries of the target are pruned on write")
}

func TestMemoryCacheExplicitFalseIsAnEntry(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "scr", "p1")
	assert.False(t, ok)

	c.Set(ctx, "scr", "p1", Entry{Status: model.NotApplied, FetchedAt: time.Now()})
	e, ok := c.Get(ctx, "scr", "p1")
	assert.True(t, ok)
	assert.False(t, e.Status.IsApplied)
}

func TestLayeredWarmsLocalFromShared(t *testing.T) {
	ctx := context.Background()
	shared := NewMemoryCache(time.Minute)
	l := NewLayered(NewMemoryCache(time.Minute), shared)

	entry := Entry{Status: model.StatusEntry{IsApplied: true, Location: model.LocationHeader}, FetchedAt: time.Now()}
	shared.Set(ctx, "scr", "s1", entry)

	got, ok := l.Get(ctx, "scr", "s1")
	assert.True(t, ok)
	assert.Equal(t, entry.Status, got.Status)
	_, ok = l.Local().Get(ctx, "scr", "s1")
	assert.True(t, ok)

	l.DeleteTarget(ctx, "s1")
	_, ok = l.Get(ctx, "scr", "s1")
	assert.False(t, ok)
}

func TestLayeredWithoutShared(t *testing.T) {
	ctx := context.Background()
	l := NewLayered(NewMemoryCache(time.Minute), nil)
	l.Set(ctx, "scr", "s1", Entry{FetchedAt: time.Now()})
	_, ok := l.Get(ctx, "scr", "s1")
	assert.True(t, ok)
	l.Delete(ctx, "scr", "s1")
	_, ok = l.Get(ctx, "scr", "s1")
	assert.False(t, ok)
}

func TestRedisCacheUnreachableReadsAsMiss(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	c := NewRedisCache(rdb, "test", time.Minute, nil)
	ctx := context.Background()

	c.Set(ctx, "scr", "s1", Entry{FetchedAt: time.Now()})
	_, ok := c.Get(ctx, "scr", "s1")
	assert.False(t, ok)
	c.Delete(ctx, "scr", "s1")
	c.DeleteTarget(ctx, "s1")
}

func TestNewRedisCacheNilClient(t *testing.T) {
	assert.Nil(t, NewRedisCache(nil, "", time.Minute, nil))
}
