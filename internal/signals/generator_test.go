package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/internal/datafeed"
	"github.com/wonny/techstock/internal/hardfilter"
	"github.com/wonny/techstock/internal/sector"
	"github.com/wonny/techstock/internal/strategy"
	"github.com/wonny/techstock/pkg/logger"
)

// zigzag builds an uptrend that alternates +2/-1 so the rolling-mean RSI
// lands near 67, inside the entry band.
func zigzag(n int) []contracts.PriceBar {
	bars := make([]contracts.PriceBar, n)
	price := 30.0
	for i := range bars {
		if i%2 == 0 {
			price += 2
		} else {
			price -= 1
		}
		bars[i] = contracts.PriceBar{
			Date:  time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Close: price,
		}
	}
	return bars
}

func flatIndex(n int, level float64) []contracts.PriceBar {
	bars := make([]contracts.PriceBar, n)
	for i := range bars {
		bars[i] = contracts.PriceBar{
			Date:  time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Close: level,
		}
	}
	return bars
}

func risingIndex(n int, start, end float64) []contracts.PriceBar {
	bars := make([]contracts.PriceBar, n)
	step := (end - start) / float64(n-1)
	for i := range bars {
		bars[i] = contracts.PriceBar{
			Date:  time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Close: start + step*float64(i),
		}
	}
	return bars
}

type scenario struct {
	cfg  *strategy.Config
	feed *datafeed.StaticFeed
	gen  *Generator
	code string
}

// lateClock is inside the execution window (14:50).
func lateClock() time.Time {
	return time.Date(2024, 1, 10, 14, 50, 0, 0, time.UTC)
}

// earlyClock is before confirmation (11:00).
func earlyClock() time.Time {
	return time.Date(2024, 1, 10, 11, 0, 0, 0, time.UTC)
}

// newScenario wires a generator where sector 0 is tradable and its first
// pool stock passes every entry condition at the late clock.
func newScenario(t *testing.T, now func() time.Time) *scenario {
	t.Helper()
	cfg := strategy.Default()
	feed := datafeed.NewStaticFeed()

	// sector 0 strongest, others flat
	feed.SetIndex(cfg.Sectors[0].IndexCode, risingIndex(25, 100, 120))
	for _, s := range cfg.Sectors[1:] {
		feed.SetIndex(s.IndexCode, flatIndex(25, 100))
	}

	code := cfg.Sectors[0].Pool[0].Code
	bars := zigzag(80)
	feed.SetPrices(code, bars)
	lastClose := bars[len(bars)-1].Close

	feed.Snapshots[code] = &contracts.StockSnapshot{
		Code:             code,
		Name:             cfg.Sectors[0].Pool[0].Name,
		Price:            lastClose,
		MarketCap:        200.0,
		AvgTurnover:      5.0,
		CumulativeVolume: 200000,
		AvgVolume5D:      100000,
	}
	feed.Growth[code] = &contracts.Fundamentals{Code: code, RevenueGrowth: true, ProfitGrowth: true}

	ranker := sector.New(feed, feed, cfg, logger.NewNop())
	hard := hardfilter.New(feed, cfg, logger.NewNop(), nil)
	gen := New(feed, ranker, hard, cfg, time.UTC, logger.NewNop(), nil).WithClock(now)

	return &scenario{cfg: cfg, feed: feed, gen: gen, code: code}
}

func greenMarket() contracts.MarketStatus {
	return contracts.MarketStatus{IsGreen: true}
}

func TestGenerateConfirmedSignal(t *testing.T) {
	sc := newScenario(t, lateClock)

	sigs, err := sc.gen.Generate(context.Background(), greenMarket())
	require.NoError(t, err)
	require.Len(t, sigs, 1)

	sig := sigs[0]
	assert.Equal(t, sc.code, sig.Code)
	assert.Equal(t, sc.cfg.Sectors[0].Name, sig.Sector)
	assert.True(t, sig.IsConfirmed)
	require.NotNil(t, sig.ConfirmationTime)
	assert.GreaterOrEqual(t, sig.RSI, 55.0)
	assert.LessOrEqual(t, sig.RSI, 80.0)
	assert.GreaterOrEqual(t, sig.VolumeRatio, 1.5)
	assert.True(t, sig.RevenueGrowth)
	assert.False(t, sig.HasUnlock)
	assert.Len(t, sig.ConditionsMet, 4)

	// rsi ~67 -> 30, ratio ~2.09 -> 25, both growth -> 40
	assert.InDelta(t, 95.0, sig.SignalStrength, 0.001)
}

func TestGeneratePendingBeforeConfirmation(t *testing.T) {
	sc := newScenario(t, earlyClock)

	sigs, err := sc.gen.Generate(context.Background(), greenMarket())
	require.NoError(t, err)
	require.Len(t, sigs, 1)

	assert.False(t, sigs[0].IsConfirmed)
	assert.Nil(t, sigs[0].ConfirmationTime)
}

func TestRedMarketVeto(t *testing.T) {
	sc := newScenario(t, lateClock)

	sigs, err := sc.gen.Generate(context.Background(), contracts.MarketStatus{
		IsGreen: false,
		Reason:  "macd death cross",
	})
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestNonTradableSectorSkipped(t *testing.T) {
	sc := newScenario(t, lateClock)

	// push sector 0 to the bottom of the ranking
	sc.feed.SetIndex(sc.cfg.Sectors[0].IndexCode, risingIndex(25, 100, 80))
	for _, s := range sc.cfg.Sectors[1:] {
		sc.feed.SetIndex(s.IndexCode, risingIndex(25, 100, 110))
	}

	sigs, err := sc.gen.Generate(context.Background(), greenMarket())
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

// flakyFeed errors the snapshot for one code and delegates the rest.
type flakyFeed struct {
	*datafeed.StaticFeed
	failCode string
}

func (f *flakyFeed) Snapshot(ctx context.Context, code string) (*contracts.StockSnapshot, error) {
	if code == f.failCode {
		return nil, errors.New("transient fetch failure")
	}
	return f.StaticFeed.Snapshot(ctx, code)
}

// One symbol's feed trouble must not sink the batch: the healthy pool
// stock still signals.
func TestGenerateSkipsFailingSymbol(t *testing.T) {
	sc := newScenario(t, lateClock)
	feed := &flakyFeed{StaticFeed: sc.feed, failCode: sc.cfg.Sectors[0].Pool[1].Code}

	ranker := sector.New(feed, feed, sc.cfg, logger.NewNop())
	hard := hardfilter.New(feed, sc.cfg, logger.NewNop(), nil)
	gen := New(feed, ranker, hard, sc.cfg, time.UTC, logger.NewNop(), nil).WithClock(lateClock)

	sigs, err := gen.Generate(context.Background(), greenMarket())
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, sc.code, sigs[0].Code)
}

func TestWeakVolumeRejected(t *testing.T) {
	sc := newScenario(t, lateClock)
	sc.feed.Snapshots[sc.code].CumulativeVolume = 50000 // ratio ~0.52

	sigs, err := sc.gen.Generate(context.Background(), greenMarket())
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestNoFundamentalsRejected(t *testing.T) {
	sc := newScenario(t, lateClock)
	sc.feed.Growth[sc.code] = &contracts.Fundamentals{Code: sc.code}

	sigs, err := sc.gen.Generate(context.Background(), greenMarket())
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestMaterialUnlockRejected(t *testing.T) {
	sc := newScenario(t, lateClock)
	sc.feed.UnlockEvents[sc.code] = []contracts.UnlockEvent{
		{Code: sc.code, Date: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), Amount: 15.0},
	}

	sigs, err := sc.gen.Generate(context.Background(), greenMarket())
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestSmallOrDistantUnlockAllowed(t *testing.T) {
	sc := newScenario(t, lateClock)
	sc.feed.UnlockEvents[sc.code] = []contracts.UnlockEvent{
		// below the materiality threshold
		{Code: sc.code, Date: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), Amount: 5.0},
		// outside the 30-day window
		{Code: sc.code, Date: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), Amount: 50.0},
	}

	sigs, err := sc.gen.Generate(context.Background(), greenMarket())
	require.NoError(t, err)
	assert.Len(t, sigs, 1)
}

func TestStrengthTiers(t *testing.T) {
	tests := []struct {
		name    string
		rsi     float64
		ratio   float64
		revenue bool
		profit  bool
		want    float64
	}{
		{"max score capped", 65, 3.0, true, true, 100},
		{"sweet rsi strong volume one growth", 65, 2.6, true, false, 85},
		{"edge rsi moderate volume both growth", 57, 2.1, true, true, 85},
		{"upper edge rsi base volume no growth", 78, 1.6, false, false, 50},
		{"everything weak", 40, 1.0, false, false, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Strength(tt.rsi, tt.ratio, tt.revenue, tt.profit))
		})
	}
}

func TestElapsedSessionMinutes(t *testing.T) {
	tests := []struct {
		hhmm string
		want int
	}{
		{"09:00", 0},
		{"09:30", 0},
		{"10:30", 60},
		{"11:30", 120},
		{"12:00", 120}, // lunch break
		{"13:30", 150},
		{"14:45", 225},
		{"15:00", 240},
		{"16:00", 240},
	}

	for _, tt := range tests {
		t.Run(tt.hhmm, func(t *testing.T) {
			ts, err := time.Parse("15:04", tt.hhmm)
			require.NoError(t, err)
			now := time.Date(2024, 1, 10, ts.Hour(), ts.Minute(), 0, 0, time.UTC)
			assert.Equal(t, tt.want, elapsedSessionMinutes(now))
		})
	}
}

func TestWindowStatus(t *testing.T) {
	sc := newScenario(t, earlyClock)
	status := sc.gen.WindowStatus()
	assert.Equal(t, contracts.WindowPre, status.State)

	sc.gen.WithClock(lateClock)
	status = sc.gen.WindowStatus()
	assert.Equal(t, contracts.WindowOpen, status.State)
	assert.Equal(t, 10, status.MinutesRemaining)

	sc.gen.WithClock(func() time.Time {
		return time.Date(2024, 1, 10, 15, 30, 0, 0, time.UTC)
	})
	status = sc.gen.WindowStatus()
	assert.Equal(t, contracts.WindowClosed, status.State)
}

func TestSummarize(t *testing.T) {
	now := time.Now()
	sigs := []contracts.TechBuySignal{
		{Sector: "semiconductor", SignalStrength: 90, IsConfirmed: true, ConfirmationTime: &now},
		{Sector: "semiconductor", SignalStrength: 70},
		{Sector: "ai_application", SignalStrength: 80, IsConfirmed: true, ConfirmationTime: &now},
	}

	s := Summarize(sigs)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Confirmed)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 2, s.BySector["semiconductor"])
	assert.InDelta(t, 80.0, s.AvgStrength, 0.001)

	empty := Summarize(nil)
	assert.Equal(t, 0, empty.Total)
	assert.Equal(t, 0.0, empty.AvgStrength)
}
