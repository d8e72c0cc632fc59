package cache

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/customer"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

// Cache is the subset of RedisCache used by the decorators.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// CachedCustomerLookup is a read-through cache in front of a customer.Lookup.
// Only found customers are cached; cache failures fall back to the source.
type CachedCustomerLookup struct {
	next  customer.Lookup
	cache Cache
	log   observability.Logger
}

func NewCachedCustomerLookup(next customer.Lookup, c Cache, logger observability.Logger) *CachedCustomerLookup {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &CachedCustomerLookup{
		next:  next,
		cache: c,
		log:   logger.With(observability.F("component", "customer_cache")),
	}
}

func customerKey(id string) string { return "customer:" + id }

func (l *CachedCustomerLookup) FindByID(ctx context.Context, id string) (*customer.Customer, error) {
	logger := logctx.FromOr(ctx, l.log).With(observability.F("customer_id", id))

	var cached customer.Customer
	err := l.cache.Get(ctx, customerKey(id), &cached)
	if err == nil {
		logger.Debug("cache_hit")
		return &cached, nil
	}
	if !errors.Is(err, ErrMiss) {
		logger.Warn("cache_get_failed", observability.F("error", err))
	}

	c, err := l.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.cache.Set(ctx, customerKey(id), c); err != nil {
		logger.Warn("cache_set_failed", observability.F("error", err))
	}
	return c, nil
}

// Invalidate drops the cached entry for id.
func (l *CachedCustomerLookup) Invalidate(ctx context.Context, id string) error {
	return l.cache.Delete(ctx, customerKey(id))
}
