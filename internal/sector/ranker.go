package sector

import (
	"context"
	"sort"
	"sync"

	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/internal/datafeed"
	"github.com/wonny/techstock/internal/strategy"
	"github.com/wonny/techstock/pkg/logger"
)

// returnWindow is the lookback for sector strength, in completed sessions.
const returnWindow = 20

// tradableTop is how many top-ranked sectors accept new entries.
const tradableTop = 2

// Ranker orders the configured sectors by 20-day return. Rankings are
// computed on explicit Refresh calls and served from memory in between;
// a sector with no usable data at all still gets a rank, with zero return.
type Ranker struct {
	indexes datafeed.IndexSource
	prices  datafeed.PriceSource
	cfg     *strategy.Config
	logger  *logger.Logger

	mu    sync.RWMutex
	ranks []contracts.SectorRank
}

// New creates a sector ranker.
func New(indexes datafeed.IndexSource, prices datafeed.PriceSource, cfg *strategy.Config, log *logger.Logger) *Ranker {
	return &Ranker{
		indexes: indexes,
		prices:  prices,
		cfg:     cfg,
		logger:  log,
	}
}

// Refresh recomputes the ranking and replaces the cached copy.
func (r *Ranker) Refresh(ctx context.Context) ([]contracts.SectorRank, error) {
	ranks := make([]contracts.SectorRank, 0, len(r.cfg.Sectors))

	for _, s := range r.cfg.Sectors {
		ret, source := r.sectorReturn(ctx, s)
		ranks = append(ranks, contracts.SectorRank{
			SectorName: s.Name,
			IndexCode:  s.IndexCode,
			Return20D:  ret,
			DataSource: source,
		})
	}

	// strongest first; ties keep config order
	sort.SliceStable(ranks, func(i, j int) bool {
		return ranks[i].Return20D > ranks[j].Return20D
	})
	for i := range ranks {
		ranks[i].Rank = i + 1
		ranks[i].IsTradable = i < tradableTop
	}

	r.mu.Lock()
	r.ranks = ranks
	r.mu.Unlock()

	for _, rank := range ranks {
		r.logger.WithFields(map[string]interface{}{
			"sector":      rank.SectorName,
			"rank":        rank.Rank,
			"return_20d":  rank.Return20D,
			"tradable":    rank.IsTradable,
			"data_source": string(rank.DataSource),
		}).Debug("Sector ranked")
	}

	return r.cloneRanks(), nil
}

// Rankings returns the cached ranking, refreshing first if none exists.
func (r *Ranker) Rankings(ctx context.Context) ([]contracts.SectorRank, error) {
	r.mu.RLock()
	cached := len(r.ranks) > 0
	r.mu.RUnlock()

	if !cached {
		return r.Refresh(ctx)
	}
	return r.cloneRanks(), nil
}

// Tradable reports whether a sector currently accepts new entries.
// Unknown sector names are not tradable.
func (r *Ranker) Tradable(ctx context.Context, sectorName string) (bool, error) {
	ranks, err := r.Rankings(ctx)
	if err != nil {
		return false, err
	}
	for _, rank := range ranks {
		if rank.SectorName == sectorName {
			return rank.IsTradable, nil
		}
	}
	return false, nil
}

func (r *Ranker) cloneRanks() []contracts.SectorRank {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]contracts.SectorRank, len(r.ranks))
	copy(out, r.ranks)
	return out
}

// sectorReturn computes the sector's 20-day return from its index,
// falling back to the mean return of its bellwether stocks when the
// index series is missing or too short.
func (r *Ranker) sectorReturn(ctx context.Context, s strategy.Sector) (float64, contracts.DataSource) {
	bars, err := r.indexes.IndexHistory(ctx, s.IndexCode)
	if err == nil {
		if ret, ok := windowReturn(bars); ok {
			return ret, contracts.DataSourceIndex
		}
	} else {
		r.logger.WithError(err).WithField("index", s.IndexCode).Warn("Sector index fetch failed")
	}

	var sum float64
	var n int
	for _, code := range s.ProxyStocks {
		pb, err := r.prices.PriceHistory(ctx, code)
		if err != nil {
			r.logger.WithError(err).WithField("stock_code", code).Warn("Proxy stock fetch failed")
			continue
		}
		if ret, ok := windowReturn(pb); ok {
			sum += ret
			n++
		}
	}
	if n > 0 {
		return sum / float64(n), contracts.DataSourceProxy
	}

	return 0, contracts.DataSourceProxy
}

// windowReturn is (last close / close 20 sessions earlier) - 1. Needs
// returnWindow+1 bars so the base close is a completed session.
func windowReturn(bars []contracts.PriceBar) (float64, bool) {
	if len(bars) < returnWindow+1 {
		return 0, false
	}
	base := bars[len(bars)-1-returnWindow].Close
	if base == 0 {
		return 0, false
	}
	return bars[len(bars)-1].Close/base - 1, true
}
