package datafeed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/pkg/config"
	"github.com/wonny/techstock/pkg/redis"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStaticFeedSortsSeries(t *testing.T) {
	feed := NewStaticFeed()
	feed.SetPrices("300308", []contracts.PriceBar{
		{Date: day(2024, 1, 3), Close: 102},
		{Date: day(2024, 1, 2), Close: 100},
		{Date: day(2024, 1, 4), Close: 104},
	})

	bars, err := feed.PriceHistory(context.Background(), "300308")
	require.NoError(t, err)
	require.Len(t, bars, 3)

	assert.Equal(t, 100.0, bars[0].Close)
	assert.Equal(t, 104.0, bars[2].Close)
	for i := 1; i < len(bars); i++ {
		assert.True(t, bars[i].Date.After(bars[i-1].Date))
	}
}

func TestStaticFeedMissingData(t *testing.T) {
	feed := NewStaticFeed()
	ctx := context.Background()

	bars, err := feed.PriceHistory(ctx, "999999")
	require.NoError(t, err)
	assert.Empty(t, bars)

	snap, err := feed.Snapshot(ctx, "999999")
	require.NoError(t, err)
	assert.Nil(t, snap)

	fn, err := feed.Fundamentals(ctx, "999999")
	require.NoError(t, err)
	assert.Nil(t, fn)

	events, err := feed.Unlocks(ctx, "999999")
	require.NoError(t, err)
	assert.Empty(t, events)
}

// With Redis disabled the cached decorator must be a transparent
// pass-through.
func TestCachedFeedPassThroughWhenDisabled(t *testing.T) {
	inner := NewStaticFeed()
	inner.SetPrices("300308", []contracts.PriceBar{{Date: day(2024, 1, 2), Close: 132.5}})
	inner.SetIndex("399006", []contracts.PriceBar{{Date: day(2024, 1, 2), Close: 1850.0}})
	inner.Snapshots["300308"] = &contracts.StockSnapshot{Code: "300308", Price: 132.5}
	inner.Growth["300308"] = &contracts.Fundamentals{Code: "300308", RevenueGrowth: true}
	inner.UnlockEvents["300308"] = []contracts.UnlockEvent{{Code: "300308", Date: day(2024, 3, 15), Amount: 25.6}}

	client, err := redis.New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	require.False(t, client.Enabled())

	feed := NewCachedFeed(inner, redis.NewCache(client, "test"))
	ctx := context.Background()

	bars, err := feed.PriceHistory(ctx, "300308")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 132.5, bars[0].Close)

	idx, err := feed.IndexHistory(ctx, "399006")
	require.NoError(t, err)
	require.Len(t, idx, 1)

	snap, err := feed.Snapshot(ctx, "300308")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 132.5, snap.Price)

	fn, err := feed.Fundamentals(ctx, "300308")
	require.NoError(t, err)
	require.NotNil(t, fn)
	assert.True(t, fn.RevenueGrowth)

	events, err := feed.Unlocks(ctx, "300308")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.InDelta(t, 25.6, events[0].Amount, 0.001)
}
