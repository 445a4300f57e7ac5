package datafeed

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/techstock/internal/contracts"
)

// Memory cache TTLs mirror the Redis tiers: quotes move intraday, daily
// series and fundamentals do not.
const (
	memTTLQuote  = 1 * time.Minute
	memTTLSeries = 5 * time.Minute
	memTTLSlow   = 1 * time.Hour
)

type memEntry struct {
	value   interface{}
	expires time.Time
}

// MemCachedFeed decorates a MarketData with an in-process TTL cache. It
// is the fallback tier when Redis is disabled; entries are never shared
// across processes.
type MemCachedFeed struct {
	mu      sync.RWMutex
	next    MarketData
	entries map[string]memEntry
}

// NewMemCachedFeed wraps a feed with in-memory caching.
func NewMemCachedFeed(next MarketData) *MemCachedFeed {
	return &MemCachedFeed{
		next:    next,
		entries: make(map[string]memEntry),
	}
}

func (f *MemCachedFeed) get(key string) (interface{}, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	e, ok := f.entries[key]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.value, true
}

func (f *MemCachedFeed) set(key string, value interface{}, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries[key] = memEntry{value: value, expires: time.Now().Add(ttl)}
}

// CleanStale removes expired entries and returns how many were dropped.
func (f *MemCachedFeed) CleanStale() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	count := 0
	for key, e := range f.entries {
		if now.After(e.expires) {
			delete(f.entries, key)
			count++
		}
	}
	return count
}

// Len returns the number of cached entries, expired or not.
func (f *MemCachedFeed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.entries)
}

func (f *MemCachedFeed) PriceHistory(ctx context.Context, code string) ([]contracts.PriceBar, error) {
	if v, ok := f.get("kline:" + code); ok {
		return v.([]contracts.PriceBar), nil
	}

	bars, err := f.next.PriceHistory(ctx, code)
	if err != nil {
		return nil, err
	}
	f.set("kline:"+code, bars, memTTLSeries)
	return bars, nil
}

func (f *MemCachedFeed) IndexHistory(ctx context.Context, indexCode string) ([]contracts.PriceBar, error) {
	if v, ok := f.get("idx:" + indexCode); ok {
		return v.([]contracts.PriceBar), nil
	}

	bars, err := f.next.IndexHistory(ctx, indexCode)
	if err != nil {
		return nil, err
	}
	f.set("idx:"+indexCode, bars, memTTLSeries)
	return bars, nil
}

func (f *MemCachedFeed) Snapshot(ctx context.Context, code string) (*contracts.StockSnapshot, error) {
	if v, ok := f.get("quote:" + code); ok {
		return v.(*contracts.StockSnapshot), nil
	}

	snap, err := f.next.Snapshot(ctx, code)
	if err != nil || snap == nil {
		return snap, err
	}
	f.set("quote:"+code, snap, memTTLQuote)
	return snap, nil
}

func (f *MemCachedFeed) Fundamentals(ctx context.Context, code string) (*contracts.Fundamentals, error) {
	if v, ok := f.get("growth:" + code); ok {
		return v.(*contracts.Fundamentals), nil
	}

	fn, err := f.next.Fundamentals(ctx, code)
	if err != nil || fn == nil {
		return fn, err
	}
	f.set("growth:"+code, fn, memTTLSlow)
	return fn, nil
}

func (f *MemCachedFeed) Unlocks(ctx context.Context, code string) ([]contracts.UnlockEvent, error) {
	if v, ok := f.get("unlock:" + code); ok {
		return v.([]contracts.UnlockEvent), nil
	}

	events, err := f.next.Unlocks(ctx, code)
	if err != nil {
		return nil, err
	}
	f.set("unlock:"+code, events, memTTLSlow)
	return events, nil
}
