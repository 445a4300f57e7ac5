package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/wonny/techstock/internal/backtest"
	"github.com/wonny/techstock/internal/datafeed"
	"github.com/wonny/techstock/internal/exits"
	"github.com/wonny/techstock/internal/external/eastmoney"
	"github.com/wonny/techstock/internal/external/unlocks"
	"github.com/wonny/techstock/internal/hardfilter"
	"github.com/wonny/techstock/internal/marketfilter"
	"github.com/wonny/techstock/internal/sector"
	"github.com/wonny/techstock/internal/signals"
	"github.com/wonny/techstock/internal/strategy"
	"github.com/wonny/techstock/pkg/config"
	"github.com/wonny/techstock/pkg/logger"
	"github.com/wonny/techstock/pkg/metrics"
	"github.com/wonny/techstock/pkg/redis"
)

// pipelineDeps is the shared wiring for every command that runs a piece
// of the decision pipeline.
type pipelineDeps struct {
	cfg   *config.Config
	strat *strategy.Config
	log   *logger.Logger
	reg   *metrics.Registry

	quotes *eastmoney.Client
	feed   datafeed.MarketData

	market  *marketfilter.Filter
	sectors *sector.Ranker
	hard    *hardfilter.Filter
	signals *signals.Generator
	exits   *exits.Manager
	engine  *backtest.Engine
}

// initPipeline loads config and strategy and wires the pipeline around a
// live Eastmoney feed, cached through Redis when enabled.
func initPipeline() (*pipelineDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	strat, err := loadStrategy(cfg, log)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", cfg.Timezone, err)
	}

	reg := metrics.NewRegistry()

	quotes := eastmoney.New(cfg, log)

	rdb, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, running without cache")
		disabled := *cfg
		disabled.Redis.Enabled = false
		rdb, _ = redis.New(&disabled)
	}

	var limiter *redis.RateLimiter
	if rdb.Enabled() {
		limiter = redis.NewRateLimiter(rdb, "techstock")
	}
	scraper := unlocks.New(cfg, log, limiter)

	var feed datafeed.MarketData = datafeed.NewLiveFeed(quotes, scraper)
	if rdb.Enabled() {
		feed = datafeed.NewCachedFeed(feed, redis.NewCache(rdb, "techstock"))
	} else {
		feed = datafeed.NewMemCachedFeed(feed)
	}

	// The simulator walks multi-year series; give it its own deep feed
	// instead of the indicator-sized live one.
	deepFeed := datafeed.NewLiveFeed(quotes, scraper).WithHistoryBars(deepHistoryBars)

	market := marketfilter.New(feed, strat, log, reg)
	sectors := sector.New(feed, feed, strat, log)
	hard := hardfilter.New(feed, strat, log, reg)
	gen := signals.New(feed, sectors, hard, strat, loc, log, reg)
	exitMgr := exits.New(feed, feed, strat, log, reg)
	engine := backtest.NewEngine(deepFeed, strat, log, reg)

	return &pipelineDeps{
		cfg:     cfg,
		strat:   strat,
		log:     log,
		reg:     reg,
		quotes:  quotes,
		feed:    feed,
		market:  market,
		sectors: sectors,
		hard:    hard,
		signals: gen,
		exits:   exitMgr,
		engine:  engine,
	}, nil
}

// loadStrategy reads the YAML strategy file, falling back to the built-in
// defaults when no file is configured.
func loadStrategy(cfg *config.Config, log *logger.Logger) (*strategy.Config, error) {
	path := strategyFile
	if path == "" {
		path = cfg.StrategyFile
	}

	if path == "" {
		return strategy.Default(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.WithField("path", path).Warn("Strategy file not found, using built-in defaults")
		return strategy.Default(), nil
	}

	strat, _, err := strategy.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load strategy %s: %w", path, err)
	}

	hash, err := strategy.Hash(strat)
	if err == nil {
		log.WithFields(map[string]interface{}{
			"path":        path,
			"strategy_id": strat.Meta.StrategyID,
			"hash":        hash[:12],
		}).Info("Strategy loaded")
	}

	return strat, nil
}
