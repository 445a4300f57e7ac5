package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the decision pipeline.
type Registry struct {
	reg *prometheus.Registry

	// Stage duration metrics
	StageDuration *prometheus.HistogramVec

	// Pipeline counters
	BuySignals   *prometheus.CounterVec
	ExitSignals  *prometheus.CounterVec
	FilterReject *prometheus.CounterVec

	// External data source health
	FetchFailures *prometheus.CounterVec

	// Market regime: 1 = green, 0 = red
	MarketGreen prometheus.Gauge

	// Backtest
	BacktestRuns   prometheus.Counter
	BacktestTrades prometheus.Counter
}

// NewRegistry creates a metrics registry backed by its own Prometheus
// registry so repeated construction never collides.
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "techstock_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage", "result"},
	)

	r.BuySignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "techstock_buy_signals_total",
			Help: "Buy signals generated by sector and status",
		},
		[]string{"sector", "status"},
	)

	r.ExitSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "techstock_exit_signals_total",
			Help: "Exit signals generated by exit type",
		},
		[]string{"exit_type"},
	)

	r.FilterReject = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "techstock_filter_rejects_total",
			Help: "Hard filter rejections by reason category",
		},
		[]string{"reason"},
	)

	r.FetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "techstock_fetch_failures_total",
			Help: "External data fetch failures by source",
		},
		[]string{"source"},
	)

	r.MarketGreen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "techstock_market_green",
			Help: "Market regime gate (1=green, 0=red)",
		},
	)

	r.BacktestRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "techstock_backtest_runs_total",
			Help: "Backtest runs started",
		},
	)

	r.BacktestTrades = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "techstock_backtest_trades_total",
			Help: "Trades executed across backtest runs",
		},
	)

	r.reg.MustRegister(
		r.StageDuration,
		r.BuySignals,
		r.ExitSignals,
		r.FilterReject,
		r.FetchFailures,
		r.MarketGreen,
		r.BacktestRuns,
		r.BacktestTrades,
	)

	return r
}

// Handler returns an http.Handler serving the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// StageTimer tracks execution time of one pipeline stage.
type StageTimer struct {
	registry *Registry
	stage    string
	start    time.Time
}

// StartStage begins timing a pipeline stage.
func (r *Registry) StartStage(stage string) *StageTimer {
	return &StageTimer{registry: r, stage: stage, start: time.Now()}
}

// Stop completes the timing and records the observation.
func (t *StageTimer) Stop(result string) {
	t.registry.StageDuration.
		WithLabelValues(t.stage, result).
		Observe(time.Since(t.start).Seconds())
}

// SetMarketGreen records the current regime gate state.
func (r *Registry) SetMarketGreen(green bool) {
	if green {
		r.MarketGreen.Set(1)
	} else {
		r.MarketGreen.Set(0)
	}
}
