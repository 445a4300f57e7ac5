package datafeed

import (
	"context"
	"sort"

	"github.com/wonny/techstock/internal/contracts"
)

// The pipeline consumes market data through narrow read-only interfaces.
// "No data" is an empty slice or nil pointer, never an error: errors are
// reserved for transport/storage failures.

// PriceSource serves daily bars for a stock, ascending by date.
type PriceSource interface {
	PriceHistory(ctx context.Context, code string) ([]contracts.PriceBar, error)
}

// IndexSource serves daily bars for an index, ascending by date.
type IndexSource interface {
	IndexHistory(ctx context.Context, indexCode string) ([]contracts.PriceBar, error)
}

// SnapshotSource serves point-in-time stock snapshots.
type SnapshotSource interface {
	Snapshot(ctx context.Context, code string) (*contracts.StockSnapshot, error)
}

// FundamentalsSource serves growth flags per stock.
type FundamentalsSource interface {
	Fundamentals(ctx context.Context, code string) (*contracts.Fundamentals, error)
}

// UnlockSource serves scheduled float-share unlocks per stock.
type UnlockSource interface {
	Unlocks(ctx context.Context, code string) ([]contracts.UnlockEvent, error)
}

// MarketData is the full feed surface.
type MarketData interface {
	PriceSource
	IndexSource
	SnapshotSource
	FundamentalsSource
	UnlockSource
}

// =============================================================================
// Static feed (tests, backtests over preloaded data)
// =============================================================================

// StaticFeed serves preloaded series from memory. The zero value is usable.
type StaticFeed struct {
	Prices       map[string][]contracts.PriceBar
	Indexes      map[string][]contracts.PriceBar
	Snapshots    map[string]*contracts.StockSnapshot
	Growth       map[string]*contracts.Fundamentals
	UnlockEvents map[string][]contracts.UnlockEvent
}

// NewStaticFeed returns an empty feed ready to be populated.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{
		Prices:       make(map[string][]contracts.PriceBar),
		Indexes:      make(map[string][]contracts.PriceBar),
		Snapshots:    make(map[string]*contracts.StockSnapshot),
		Growth:       make(map[string]*contracts.Fundamentals),
		UnlockEvents: make(map[string][]contracts.UnlockEvent),
	}
}

// SetPrices stores a stock series, sorting it ascending by date.
func (f *StaticFeed) SetPrices(code string, bars []contracts.PriceBar) {
	sorted := append([]contracts.PriceBar(nil), bars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	f.Prices[code] = sorted
}

// SetIndex stores an index series, sorting it ascending by date.
func (f *StaticFeed) SetIndex(code string, bars []contracts.PriceBar) {
	sorted := append([]contracts.PriceBar(nil), bars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	f.Indexes[code] = sorted
}

func (f *StaticFeed) PriceHistory(ctx context.Context, code string) ([]contracts.PriceBar, error) {
	return f.Prices[code], nil
}

func (f *StaticFeed) IndexHistory(ctx context.Context, indexCode string) ([]contracts.PriceBar, error) {
	return f.Indexes[indexCode], nil
}

func (f *StaticFeed) Snapshot(ctx context.Context, code string) (*contracts.StockSnapshot, error) {
	return f.Snapshots[code], nil
}

func (f *StaticFeed) Fundamentals(ctx context.Context, code string) (*contracts.Fundamentals, error) {
	return f.Growth[code], nil
}

func (f *StaticFeed) Unlocks(ctx context.Context, code string) ([]contracts.UnlockEvent, error) {
	return f.UnlockEvents[code], nil
}
