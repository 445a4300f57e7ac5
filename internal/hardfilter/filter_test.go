package hardfilter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/internal/datafeed"
	"github.com/wonny/techstock/internal/strategy"
	"github.com/wonny/techstock/pkg/logger"
)

func newFilter(feed datafeed.SnapshotSource) *Filter {
	return New(feed, strategy.Default(), logger.NewNop(), nil)
}

func snap(price, cap, turnover float64) *contracts.StockSnapshot {
	return &contracts.StockSnapshot{
		Code:        "300308",
		Name:        "Zhongji Innolight",
		Price:       price,
		MarketCap:   cap,
		AvgTurnover: turnover,
	}
}

func TestCheckSnapshotBoundaries(t *testing.T) {
	f := newFilter(nil)

	tests := []struct {
		name     string
		price    float64
		cap      float64
		turnover float64
		passed   bool
	}{
		{"all inside", 45.0, 200.0, 5.0, true},
		{"price at limit passes", 80.0, 200.0, 5.0, true},
		{"price just above fails", 80.01, 200.0, 5.0, false},
		{"cap at lower bound passes", 45.0, 50.0, 5.0, true},
		{"cap at upper bound passes", 45.0, 500.0, 5.0, true},
		{"cap below band fails", 45.0, 49.9, 5.0, false},
		{"cap above band fails", 45.0, 500.1, 5.0, false},
		{"turnover at floor passes", 45.0, 200.0, 1.0, true},
		{"turnover below floor fails", 45.0, 200.0, 0.99, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.CheckSnapshot(snap(tt.price, tt.cap, tt.turnover))
			assert.Equal(t, tt.passed, res.Passed)
			if tt.passed {
				assert.Empty(t, res.RejectReasons)
			} else {
				assert.NotEmpty(t, res.RejectReasons)
			}
		})
	}
}

func TestRejectReasonsStack(t *testing.T) {
	f := newFilter(nil)

	// violates all three bounds at once
	res := f.CheckSnapshot(snap(150.0, 800.0, 0.5))

	require.False(t, res.Passed)
	require.Len(t, res.RejectReasons, 3)
	assert.Contains(t, res.RejectReasons[0], "price")
	assert.Contains(t, res.RejectReasons[1], "market cap")
	assert.Contains(t, res.RejectReasons[2], "avg turnover")
}

func TestCheckAll(t *testing.T) {
	feed := datafeed.NewStaticFeed()
	feed.Snapshots["300308"] = snap(45.0, 200.0, 5.0)
	feed.Snapshots["002371"] = &contracts.StockSnapshot{
		Code: "002371", Name: "NAURA", Price: 320.0, MarketCap: 1700.0, AvgTurnover: 15.0,
	}

	f := newFilter(feed)

	results, err := f.CheckAll(context.Background(), []string{"300308", "002371", "999999"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Passed)
	assert.False(t, results[1].Passed) // price and cap both out
	assert.False(t, results[2].Passed)
	assert.Contains(t, results[2].RejectReasons, "no snapshot data")
}

// failingSnapshots errors for one code and delegates the rest.
type failingSnapshots struct {
	*datafeed.StaticFeed
	failCode string
}

func (f *failingSnapshots) Snapshot(ctx context.Context, code string) (*contracts.StockSnapshot, error) {
	if code == f.failCode {
		return nil, errors.New("transient fetch failure")
	}
	return f.StaticFeed.Snapshot(ctx, code)
}

func TestCheckAllSurvivesFetchFailure(t *testing.T) {
	inner := datafeed.NewStaticFeed()
	inner.Snapshots["300308"] = snap(45.0, 200.0, 5.0)
	f := newFilter(&failingSnapshots{StaticFeed: inner, failCode: "688981"})

	results, err := f.CheckAll(context.Background(), []string{"688981", "300308"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].RejectReasons, "snapshot fetch failed")
	assert.True(t, results[1].Passed)
}

func TestSummarize(t *testing.T) {
	feed := datafeed.NewStaticFeed()
	feed.Snapshots["a"] = snap(45.0, 200.0, 5.0)   // passes
	feed.Snapshots["b"] = snap(90.0, 200.0, 5.0)   // price
	feed.Snapshots["c"] = snap(45.0, 600.0, 0.5)   // cap + turnover
	feed.Snapshots["d"] = snap(45.0, 200.0, 5.0)   // passes

	f := newFilter(feed)
	results, err := f.CheckAll(context.Background(), []string{"a", "b", "c", "d"})
	require.NoError(t, err)

	s := Summarize(results)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Passed)
	assert.Equal(t, 1, s.RejectPrice)
	assert.Equal(t, 1, s.RejectCap)
	assert.Equal(t, 1, s.RejectTurnover)
	assert.InDelta(t, 0.5, s.PassRate, 0.001)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.Total)
	assert.Equal(t, 0.0, s.PassRate)
}
