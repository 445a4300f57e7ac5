package sector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/internal/datafeed"
	"github.com/wonny/techstock/internal/strategy"
	"github.com/wonny/techstock/pkg/logger"
)

// series builds 21 daily bars moving linearly from start to end.
func series(start, end float64) []contracts.PriceBar {
	const n = 21
	bars := make([]contracts.PriceBar, n)
	step := (end - start) / float64(n-1)
	for i := range bars {
		c := start + step*float64(i)
		bars[i] = contracts.PriceBar{
			Date:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Close: c,
		}
	}
	return bars
}

func TestRefreshRanksByReturn(t *testing.T) {
	cfg := strategy.Default()
	require.Len(t, cfg.Sectors, 4)

	feed := datafeed.NewStaticFeed()
	// returns: +20%, +10%, -5%, +2%
	feed.SetIndex(cfg.Sectors[0].IndexCode, series(100, 120))
	feed.SetIndex(cfg.Sectors[1].IndexCode, series(100, 110))
	feed.SetIndex(cfg.Sectors[2].IndexCode, series(100, 95))
	feed.SetIndex(cfg.Sectors[3].IndexCode, series(100, 102))

	ranker := New(feed, feed, cfg, logger.NewNop())

	ranks, err := ranker.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, ranks, 4)

	// contiguous ranks 1..4
	for i, r := range ranks {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, contracts.DataSourceIndex, r.DataSource)
	}

	assert.Equal(t, cfg.Sectors[0].Name, ranks[0].SectorName)
	assert.InDelta(t, 0.20, ranks[0].Return20D, 0.001)
	assert.Equal(t, cfg.Sectors[1].Name, ranks[1].SectorName)
	assert.Equal(t, cfg.Sectors[3].Name, ranks[2].SectorName)
	assert.Equal(t, cfg.Sectors[2].Name, ranks[3].SectorName)

	// exactly the top two are tradable
	assert.True(t, ranks[0].IsTradable)
	assert.True(t, ranks[1].IsTradable)
	assert.False(t, ranks[2].IsTradable)
	assert.False(t, ranks[3].IsTradable)
}

func TestProxyFallbackWhenIndexMissing(t *testing.T) {
	cfg := strategy.Default()
	feed := datafeed.NewStaticFeed()

	// sector 0 has no index series; its bellwethers return +10% and +30%
	proxies := cfg.Sectors[0].ProxyStocks
	require.GreaterOrEqual(t, len(proxies), 2)
	feed.SetPrices(proxies[0], series(100, 110))
	feed.SetPrices(proxies[1], series(100, 130))

	for _, s := range cfg.Sectors[1:] {
		feed.SetIndex(s.IndexCode, series(100, 101))
	}

	ranker := New(feed, feed, cfg, logger.NewNop())

	ranks, err := ranker.Refresh(context.Background())
	require.NoError(t, err)

	var got *contracts.SectorRank
	for i := range ranks {
		if ranks[i].SectorName == cfg.Sectors[0].Name {
			got = &ranks[i]
		}
	}
	require.NotNil(t, got)

	assert.Equal(t, contracts.DataSourceProxy, got.DataSource)
	assert.InDelta(t, 0.20, got.Return20D, 0.001) // mean of +10% and +30%
	assert.Equal(t, 1, got.Rank)
}

func TestNoDataSectorStillRanked(t *testing.T) {
	cfg := strategy.Default()
	feed := datafeed.NewStaticFeed()
	// only one sector has data
	feed.SetIndex(cfg.Sectors[1].IndexCode, series(100, 108))

	ranker := New(feed, feed, cfg, logger.NewNop())

	ranks, err := ranker.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, ranks, 4)

	seen := make(map[int]bool)
	for _, r := range ranks {
		seen[r.Rank] = true
	}
	for i := 1; i <= 4; i++ {
		assert.True(t, seen[i], "missing rank %d", i)
	}

	assert.Equal(t, cfg.Sectors[1].Name, ranks[0].SectorName)
}

func TestRankingsServedFromCache(t *testing.T) {
	cfg := strategy.Default()
	feed := datafeed.NewStaticFeed()
	for _, s := range cfg.Sectors {
		feed.SetIndex(s.IndexCode, series(100, 105))
	}

	ranker := New(feed, feed, cfg, logger.NewNop())
	ctx := context.Background()

	first, err := ranker.Rankings(ctx)
	require.NoError(t, err)

	// mutate the feed; cached rankings must not change until Refresh
	for _, s := range cfg.Sectors {
		feed.SetIndex(s.IndexCode, series(100, 200))
	}

	second, err := ranker.Rankings(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	refreshed, err := ranker.Refresh(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, refreshed[0].Return20D, 0.001)
}

func TestTradable(t *testing.T) {
	cfg := strategy.Default()
	feed := datafeed.NewStaticFeed()
	feed.SetIndex(cfg.Sectors[0].IndexCode, series(100, 130))
	feed.SetIndex(cfg.Sectors[1].IndexCode, series(100, 120))
	feed.SetIndex(cfg.Sectors[2].IndexCode, series(100, 110))
	feed.SetIndex(cfg.Sectors[3].IndexCode, series(100, 105))

	ranker := New(feed, feed, cfg, logger.NewNop())
	ctx := context.Background()

	ok, err := ranker.Tradable(ctx, cfg.Sectors[0].Name)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ranker.Tradable(ctx, cfg.Sectors[3].Name)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ranker.Tradable(ctx, "no_such_sector")
	require.NoError(t, err)
	assert.False(t, ok)
}
