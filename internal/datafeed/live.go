package datafeed

import (
	"context"
	"time"

	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/internal/external/eastmoney"
	"github.com/wonny/techstock/internal/external/unlocks"
)

// historyBars covers the longest lookback any consumer needs (MA60 plus
// warm-up) with headroom for suspensions.
const historyBars = 120

// unlockLookahead matches the entry-side unlock screening window.
const unlockLookahead = 30 * 24 * time.Hour

// LiveFeed implements MarketData on top of the Eastmoney quote endpoints
// and the unlock calendar scraper.
type LiveFeed struct {
	quotes  *eastmoney.Client
	unlocks *unlocks.Scraper
	bars    int
	now     func() time.Time
}

// NewLiveFeed wires the live market data feed.
func NewLiveFeed(quotes *eastmoney.Client, scraper *unlocks.Scraper) *LiveFeed {
	return &LiveFeed{
		quotes:  quotes,
		unlocks: scraper,
		bars:    historyBars,
		now:     time.Now,
	}
}

// WithHistoryBars raises the kline depth per fetch. Backtests need
// multi-year series where the pipeline default is indicator-sized.
func (f *LiveFeed) WithHistoryBars(n int) *LiveFeed {
	f.bars = n
	return f
}

func (f *LiveFeed) PriceHistory(ctx context.Context, code string) ([]contracts.PriceBar, error) {
	return f.quotes.KlineHistory(ctx, code, f.bars)
}

func (f *LiveFeed) IndexHistory(ctx context.Context, indexCode string) ([]contracts.PriceBar, error) {
	return f.quotes.IndexKlineHistory(ctx, indexCode, f.bars)
}

func (f *LiveFeed) Snapshot(ctx context.Context, code string) (*contracts.StockSnapshot, error) {
	return f.quotes.Snapshot(ctx, code)
}

func (f *LiveFeed) Fundamentals(ctx context.Context, code string) (*contracts.Fundamentals, error) {
	return f.quotes.Fundamentals(ctx, code)
}

func (f *LiveFeed) Unlocks(ctx context.Context, code string) ([]contracts.UnlockEvent, error) {
	if f.unlocks == nil {
		return nil, nil
	}
	now := f.now()
	return f.unlocks.Upcoming(ctx, []string{code}, now, now.Add(unlockLookahead))
}
