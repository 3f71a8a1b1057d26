package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darb-academy/lifecycle-worker/internal/domain/shared"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()

	cache, err := NewCache(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func TestRulesCache_MissIsNotFound(t *testing.T) {
	cache, _ := newTestCache(t)
	rc := NewRulesCache(cache)

	doc, err := rc.GetRulesDocument(context.Background())
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRulesCache_RoundTripWithTTL(t *testing.T) {
	cache, mr := newTestCache(t)
	rc := NewRulesCache(cache)
	ctx := context.Background()
	doc := []byte(`{"autoAbsent":{"enabled":true}}`)

	require.NoError(t, rc.SetRulesDocument(ctx, doc))

	got, err := rc.GetRulesDocument(ctx)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	assert.True(t, mr.Exists("darb:"+KeyRules))
	assert.Equal(t, TTLRules, mr.TTL("darb:"+KeyRules))

	mr.FastForward(TTLRules + time.Second)
	_, err = rc.GetRulesDocument(ctx)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRulesCache_Invalidate(t *testing.T) {
	cache, mr := newTestCache(t)
	rc := NewRulesCache(cache)
	ctx := context.Background()

	require.NoError(t, rc.SetRulesDocument(ctx, []byte(`{}`)))
	require.NoError(t, rc.Invalidate(ctx))

	assert.False(t, mr.Exists("darb:"+KeyRules))
	_, err := rc.GetRulesDocument(ctx)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	// dropping an absent key is not an error
	assert.NoError(t, rc.Invalidate(ctx))
}

func TestCache_EmptyKeyAndUnreachable(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	assert.ErrorIs(t, cache.SetBytes(ctx, "", []byte("x"), time.Minute), ErrCacheKeyEmpty)
	_, err := cache.GetBytes(ctx, "")
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)
	assert.NoError(t, cache.Delete(ctx))
	assert.NoError(t, cache.Ping(ctx))

	mr.Close()
	_, err = NewRulesCache(cache).GetRulesDocument(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrNotFound)
}

func TestNewCache_ConnectionFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.DialTimeout = 200 * time.Millisecond
	cfg.MaxRetries = -1
	mr.Close()

	_, err := NewCache(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrCacheConnection)
}
