package datafeed

import (
	"context"
	"time"

	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/pkg/redis"
)

// CachedFeed decorates a MarketData with short-TTL Redis caching. With
// Redis disabled every call passes straight through.
type CachedFeed struct {
	next  MarketData
	cache *redis.Cache
}

// NewCachedFeed wraps a feed with the shared cache.
func NewCachedFeed(next MarketData, cache *redis.Cache) *CachedFeed {
	return &CachedFeed{next: next, cache: cache}
}

func (f *CachedFeed) PriceHistory(ctx context.Context, code string) ([]contracts.PriceBar, error) {
	key := redis.KlineKey(code, time.Now().Format("2006-01-02"))

	var bars []contracts.PriceBar
	if found, err := f.cache.Get(ctx, key, &bars); err == nil && found {
		return bars, nil
	}

	bars, err := f.next.PriceHistory(ctx, code)
	if err != nil {
		return nil, err
	}
	_ = f.cache.Set(ctx, key, bars, redis.TTLMarket)
	return bars, nil
}

func (f *CachedFeed) IndexHistory(ctx context.Context, indexCode string) ([]contracts.PriceBar, error) {
	key := redis.KlineKey("idx:"+indexCode, time.Now().Format("2006-01-02"))

	var bars []contracts.PriceBar
	if found, err := f.cache.Get(ctx, key, &bars); err == nil && found {
		return bars, nil
	}

	bars, err := f.next.IndexHistory(ctx, indexCode)
	if err != nil {
		return nil, err
	}
	_ = f.cache.Set(ctx, key, bars, redis.TTLMarket)
	return bars, nil
}

func (f *CachedFeed) Snapshot(ctx context.Context, code string) (*contracts.StockSnapshot, error) {
	var snap contracts.StockSnapshot
	if found, err := f.cache.Get(ctx, redis.QuoteKey(code), &snap); err == nil && found {
		return &snap, nil
	}

	fresh, err := f.next.Snapshot(ctx, code)
	if err != nil || fresh == nil {
		return fresh, err
	}
	_ = f.cache.Set(ctx, redis.QuoteKey(code), fresh, redis.TTLQuote)
	return fresh, nil
}

func (f *CachedFeed) Fundamentals(ctx context.Context, code string) (*contracts.Fundamentals, error) {
	var fn contracts.Fundamentals
	if found, err := f.cache.Get(ctx, "fundamentals:"+code, &fn); err == nil && found {
		return &fn, nil
	}

	fresh, err := f.next.Fundamentals(ctx, code)
	if err != nil || fresh == nil {
		return fresh, err
	}
	_ = f.cache.Set(ctx, "fundamentals:"+code, fresh, redis.TTLLong)
	return fresh, nil
}

func (f *CachedFeed) Unlocks(ctx context.Context, code string) ([]contracts.UnlockEvent, error) {
	var events []contracts.UnlockEvent
	if found, err := f.cache.Get(ctx, redis.UnlockKey(code), &events); err == nil && found {
		return events, nil
	}

	events, err := f.next.Unlocks(ctx, code)
	if err != nil {
		return nil, err
	}
	_ = f.cache.Set(ctx, redis.UnlockKey(code), events, redis.TTLLong)
	return events, nil
}
