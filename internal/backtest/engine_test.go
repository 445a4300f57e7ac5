package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/internal/datafeed"
	"github.com/wonny/techstock/internal/strategy"
	"github.com/wonny/techstock/pkg/logger"
)

// testConfig shrinks the lookbacks so scenarios stay small.
func testConfig() *strategy.Config {
	cfg := strategy.Default()
	cfg.Indicators.MALong = 30
	cfg.Backtest.WarmupSessions = 30
	cfg.Backtest.DefaultStart = "2022-01-01"
	cfg.Backtest.DefaultEnd = "2022-06-30"
	cfg.Backtest.StressStart = "2022-01-01"
	cfg.Backtest.StressEnd = "2022-06-30"
	return cfg
}

func newEngine(cfg *strategy.Config, feed datafeed.MarketData) *Engine {
	return NewEngine(feed, cfg, logger.NewNop(), nil)
}

func dailyDates(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

func barsAt(dates []time.Time, closes []float64, volumes []float64) []contracts.PriceBar {
	bars := make([]contracts.PriceBar, len(dates))
	for i, d := range dates {
		var v float64 = 100000
		if volumes != nil {
			v = volumes[i]
		}
		bars[i] = contracts.PriceBar{Date: d, Close: closes[i], Volume: v}
	}
	return bars
}

func rising(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func zigzagUp(n int, start float64) []float64 {
	out := make([]float64, n)
	price := start
	for i := range out {
		if i%2 == 0 {
			price += 2
		} else {
			price -= 1
		}
		out[i] = price
	}
	return out
}

// tradingScenario sets up a green market where the first pool stock of
// the strongest sector keeps qualifying for entry.
func tradingScenario(cfg *strategy.Config) (*datafeed.StaticFeed, string) {
	const n = 120
	dates := dailyDates(time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC), n)
	feed := datafeed.NewStaticFeed()

	feed.SetIndex(cfg.Benchmark.IndexCode, barsAt(dates, rising(n, 2000, 5), nil))
	feed.SetIndex(cfg.Sectors[0].IndexCode, barsAt(dates, rising(n, 1000, 4), nil))

	code := cfg.Sectors[0].Pool[0].Code
	volumes := make([]float64, n)
	for i := range volumes {
		volumes[i] = 100000
		if i >= 28 {
			volumes[i] = 250000 // sustained surge keeps the ratio above 1.5
		}
	}
	feed.SetPrices(code, barsAt(dates, zigzagUp(n, 30), volumes))

	return feed, code
}

func TestRunZeroData(t *testing.T) {
	cfg := testConfig()
	eng := newEngine(cfg, datafeed.NewStaticFeed())

	result, err := eng.Run(context.Background(), Request{})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 0.0, result.TotalReturn)
	assert.Equal(t, 0, result.TotalTrades)
	assert.NotNil(t, result.TradesByPeriod)
	assert.Empty(t, result.EquityCurve)
	assert.NotEmpty(t, result.DataWarnings)
	assert.False(t, result.BearMarketValidated)
}

// A healthy benchmark must not turn an empty pool into a validated
// stress run: no symbol simulated means no validation claimed.
func TestRunBenchmarkOnlyNoStocks(t *testing.T) {
	cfg := testConfig()
	feed := datafeed.NewStaticFeed()
	dates := dailyDates(time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC), 120)
	feed.SetIndex(cfg.Benchmark.IndexCode, barsAt(dates, rising(120, 2000, 5), nil))

	result, err := newEngine(cfg, feed).Run(context.Background(), Request{})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 0, result.TotalTrades)
	assert.Empty(t, result.EquityCurve)
	assert.False(t, result.BearMarketValidated)
	assert.False(t, result.MarketFilterEffective)
	assert.NotEmpty(t, result.DataWarnings)
}

func TestRunInvalidDates(t *testing.T) {
	eng := newEngine(testConfig(), datafeed.NewStaticFeed())

	_, err := eng.Run(context.Background(), Request{Start: "01/02/2022"})
	assert.Error(t, err)

	_, err = eng.Run(context.Background(), Request{End: "soon"})
	assert.Error(t, err)
}

func TestResolveRange(t *testing.T) {
	cfg := testConfig()
	cfg.Backtest.StressStart = "2022-01-01"
	cfg.Backtest.StressEnd = "2023-12-31"
	eng := newEngine(cfg, datafeed.NewStaticFeed())

	t.Run("swaps inverted range", func(t *testing.T) {
		start, end, warnings, err := eng.resolveRange(Request{Start: "2023-06-01", End: "2022-06-01"})
		require.NoError(t, err)
		assert.True(t, start.Before(end))
		assert.NotEmpty(t, warnings)
	})

	t.Run("expands to cover stress window", func(t *testing.T) {
		start, end, warnings, err := eng.resolveRange(Request{Start: "2023-01-01", End: "2023-06-01"})
		require.NoError(t, err)
		assert.Equal(t, "2022-01-01", start.Format("2006-01-02"))
		assert.Equal(t, "2023-12-31", end.Format("2006-01-02"))
		assert.Len(t, warnings, 2)
	})
}

func TestRunTradesAndEquityIdentity(t *testing.T) {
	cfg := testConfig()
	feed, code := tradingScenario(cfg)
	eng := newEngine(cfg, feed)

	result, err := eng.Run(context.Background(), Request{})
	require.NoError(t, err)
	require.NotEmpty(t, result.EquityCurve)
	require.NotEmpty(t, result.Trades)

	// first mark happens before any trade can settle
	assert.InDelta(t, cfg.Backtest.InitialCapital, result.EquityCurve[0].Equity, 0.001)

	for _, p := range result.EquityCurve {
		assert.InDelta(t, p.Equity, p.Cash+p.HoldingsValue, 1e-6)
	}

	var buys, sells int
	for _, tr := range result.Trades {
		assert.Equal(t, code, tr.Code)
		assert.Equal(t, 0, tr.Shares%100, "fills must be full lots")
		switch tr.Action {
		case contracts.TradeBuy:
			buys++
		case contracts.TradeSell:
			sells++
			assert.False(t, math.IsNaN(tr.PnLPct))
		}
	}
	assert.Greater(t, buys, 0)
	assert.Greater(t, sells, 0)
	assert.Equal(t, buys+sells, result.TotalTrades)

	assert.True(t, result.BearMarketValidated)
	assert.NotEmpty(t, result.BearMarketReport)
	assert.Contains(t, result.TradesByPeriod, "2022")
	assert.Equal(t, result.TotalTrades, result.TradesByPeriod["2022"])
}

func TestRunRedMarketBlocksEntries(t *testing.T) {
	cfg := testConfig()
	feed, code := tradingScenario(cfg)
	// falling benchmark keeps the gate shut the whole time
	const n = 120
	dates := dailyDates(time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC), n)
	feed.SetIndex(cfg.Benchmark.IndexCode, barsAt(dates, rising(n, 3000, -5), nil))

	eng := newEngine(cfg, feed)
	result, err := eng.Run(context.Background(), Request{})
	require.NoError(t, err)

	assert.Empty(t, result.Trades, "no entries expected with market red, stock %s", code)
	assert.Equal(t, 0.0, result.TotalReturn)
	assert.False(t, result.MarketFilterEffective)
}

func TestRunPartialSymbolWarned(t *testing.T) {
	cfg := testConfig()
	feed, _ := tradingScenario(cfg)

	// second pool stock only has data for the tail of the range
	short := cfg.Sectors[0].Pool[1].Code
	dates := dailyDates(time.Date(2022, 5, 2, 0, 0, 0, 0, time.UTC), 20)
	feed.SetPrices(short, barsAt(dates, rising(20, 50, 0.5), nil))

	eng := newEngine(cfg, feed)
	result, err := eng.Run(context.Background(), Request{})
	require.NoError(t, err)

	var warned bool
	for _, w := range result.DataWarnings {
		if len(w) >= len("partial data for ") && w[:len("partial data for ")] == "partial data for " {
			warned = true
		}
	}
	assert.True(t, warned, "expected a partial data warning, got %v", result.DataWarnings)
}

func TestMaxDrawdown(t *testing.T) {
	d := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	curve := []contracts.EquityPoint{
		{Date: d, Equity: 100},
		{Date: d.AddDate(0, 0, 1), Equity: 120},
		{Date: d.AddDate(0, 0, 2), Equity: 90},
		{Date: d.AddDate(0, 0, 3), Equity: 110},
	}
	assert.InDelta(t, -0.25, maxDrawdown(curve), 1e-9)
	assert.Equal(t, 0.0, maxDrawdown(nil))
}

func TestWinRate(t *testing.T) {
	trades := []contracts.Trade{
		{Action: contracts.TradeBuy},
		{Action: contracts.TradeSell, PnL: 50},
		{Action: contracts.TradeSell, PnL: -20},
		{Action: contracts.TradeSell, PnL: 10},
	}
	assert.InDelta(t, 2.0/3.0, winRate(trades), 1e-9)
	assert.Equal(t, 0.0, winRate(nil))
}

func TestSimulatorBook(t *testing.T) {
	sim := NewSimulator(100000)
	d := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)

	sim.Buy("300308", d, 10, 50.0, 300, 45.0, "entry signal")
	assert.InDelta(t, 85000, sim.Cash(), 1e-9)
	assert.Equal(t, 1, sim.OpenCount())

	point := sim.MarkToMarket(d, map[string]float64{"300308": 52.0})
	assert.InDelta(t, 15600, point.HoldingsValue, 1e-9)
	assert.InDelta(t, point.Equity, point.Cash+point.HoldingsValue, 1e-9)

	sim.Sell("300308", d.AddDate(0, 0, 1), 55.0, 100, "take profit: rsi overbought")
	require.Equal(t, 200, sim.Position("300308").Shares)

	sim.Sell("300308", d.AddDate(0, 0, 2), 40.0, 500, "stop loss") // clamped to 200
	assert.Nil(t, sim.Position("300308"))
	assert.Equal(t, 0, sim.OpenCount())

	trades := sim.Trades()
	require.Len(t, trades, 3)
	assert.InDelta(t, 500.0, trades[1].PnL, 1e-9)  // (55-50)*100
	assert.InDelta(t, -2000.0, trades[2].PnL, 1e-9) // (40-50)*200
}
