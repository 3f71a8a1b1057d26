package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/darb-academy/lifecycle-worker/internal/domain/shared"
)

// RulesCache implements rules.Cache.
type RulesCache struct {
	cache *Cache
}

// NewRulesCache creates a new RulesCache.
func NewRulesCache(cache *Cache) *RulesCache {
	return &RulesCache{cache: cache}
}

// GetRulesDocument returns the cached document. A miss is reported as shared.ErrNotFound.
func (r *RulesCache) GetRulesDocument(ctx context.Context) ([]byte, error) {
	doc, err := r.cache.GetBytes(ctx, KeyRules)
	if errors.Is(err, ErrCacheMiss) {
		return nil, fmt.Errorf("rules cache: %w", shared.ErrNotFound)
	}
	return doc, err
}

// SetRulesDocument caches the document for TTLRules.
func (r *RulesCache) SetRulesDocument(ctx context.Context, doc []byte) error {
	return r.cache.SetBytes(ctx, KeyRules, doc, TTLRules)
}

// Invalidate drops the cached document.
func (r *RulesCache) Invalidate(ctx context.Context) error {
	return r.cache.Delete(ctx, KeyRules)
}
