package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/internal/datafeed"
	"github.com/wonny/techstock/internal/indicators"
	"github.com/wonny/techstock/internal/strategy"
	"github.com/wonny/techstock/pkg/logger"
	"github.com/wonny/techstock/pkg/metrics"
)

const dateLayout = "2006-01-02"

// loadWorkers bounds the concurrent history fetches so a live feed is
// not hammered with the whole pool at once.
const loadWorkers = 4

// Request selects the simulation range. Empty dates fall back to the
// strategy defaults; the bear-market stress window is always covered.
type Request struct {
	Start string
	End   string
}

// Engine replays the daily pipeline over historical bars: exit chain
// first, then strength-ranked entries under the position and cash caps.
// Data problems never abort a run, they surface as data warnings on a
// well-formed result.
type Engine struct {
	feed    datafeed.MarketData
	cfg     *strategy.Config
	logger  *logger.Logger
	metrics *metrics.Registry
}

// NewEngine creates a backtest engine.
func NewEngine(feed datafeed.MarketData, cfg *strategy.Config, log *logger.Logger, m *metrics.Registry) *Engine {
	return &Engine{
		feed:    feed,
		cfg:     cfg,
		logger:  log,
		metrics: m,
	}
}

// series is one symbol's bars inside the simulated range, with a date
// index for O(1) session lookup.
type series struct {
	bars   []contracts.PriceBar
	byDate map[string]int
}

func (s *series) at(date time.Time) (contracts.PriceBar, bool) {
	i, ok := s.byDate[date.Format(dateLayout)]
	if !ok {
		return contracts.PriceBar{}, false
	}
	return s.bars[i], true
}

// upTo returns the bar prefix ending at date, nil when the symbol has no
// bar that session.
func (s *series) upTo(date time.Time) []contracts.PriceBar {
	i, ok := s.byDate[date.Format(dateLayout)]
	if !ok {
		return nil
	}
	return s.bars[:i+1]
}

// Run executes the simulation. The only error is a malformed request;
// everything else degrades to warnings.
func (e *Engine) Run(ctx context.Context, req Request) (*contracts.BacktestResult, error) {
	start, end, warnings, err := e.resolveRange(req)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(map[string]interface{}{
		"start":           start.Format(dateLayout),
		"end":             end.Format(dateLayout),
		"initial_capital": e.cfg.Backtest.InitialCapital,
	}).Info("Starting backtest")

	if e.metrics != nil {
		e.metrics.BacktestRuns.Inc()
	}

	result := &contracts.BacktestResult{
		TradesByPeriod: make(map[string]int),
		DataWarnings:   warnings,
	}

	stocks, index, sectorIdx, calendar := e.loadData(ctx, start, end, result)
	if len(stocks) == 0 {
		// Nothing to simulate, so no stress validation can be claimed
		// even when the benchmark calendar is intact.
		result.DataWarnings = append(result.DataWarnings, "no usable pool data in range, nothing simulated")
		return result, nil
	}
	if len(calendar) == 0 {
		result.DataWarnings = append(result.DataWarnings, "no market data in range, nothing simulated")
		return result, nil
	}

	sim := NewSimulator(e.cfg.Backtest.InitialCapital)

	for session, date := range calendar {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		green := e.marketGreen(index, date)

		if session >= e.cfg.Backtest.WarmupSessions {
			e.exitPhase(sim, stocks, date, session, green)
			if green {
				e.entryPhase(sim, stocks, sectorIdx, date, session)
			}
		}

		closes := make(map[string]float64, len(stocks))
		for code, s := range stocks {
			if bar, ok := s.at(date); ok {
				closes[code] = bar.Close
			}
		}
		result.EquityCurve = append(result.EquityCurve, sim.MarkToMarket(date, closes))
	}

	result.Trades = sim.Trades()
	result.TotalTrades = len(result.Trades)
	e.finalize(result, calendar)

	if e.metrics != nil {
		e.metrics.BacktestTrades.Add(float64(result.TotalTrades))
	}
	e.logger.WithFields(map[string]interface{}{
		"sessions":     len(calendar),
		"trades":       result.TotalTrades,
		"total_return": result.TotalReturn,
		"max_drawdown": result.MaxDrawdown,
	}).Info("Backtest completed")

	return result, nil
}

// resolveRange applies defaults, fixes an inverted request, and expands
// the range so the stress window is always simulated.
func (e *Engine) resolveRange(req Request) (time.Time, time.Time, []string, error) {
	var warnings []string

	startStr := req.Start
	if startStr == "" {
		startStr = e.cfg.Backtest.DefaultStart
	}
	endStr := req.End
	if endStr == "" {
		endStr = e.cfg.Backtest.DefaultEnd
	}

	start, err := time.Parse(dateLayout, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, nil, fmt.Errorf("invalid start date %q: %w", startStr, err)
	}
	end, err := time.Parse(dateLayout, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, nil, fmt.Errorf("invalid end date %q: %w", endStr, err)
	}

	if end.Before(start) {
		start, end = end, start
		warnings = append(warnings, "start and end were inverted, range swapped")
	}

	stressStart, _ := time.Parse(dateLayout, e.cfg.Backtest.StressStart)
	stressEnd, _ := time.Parse(dateLayout, e.cfg.Backtest.StressEnd)
	if start.After(stressStart) {
		warnings = append(warnings, fmt.Sprintf("start moved to %s to cover the bear market window", e.cfg.Backtest.StressStart))
		start = stressStart
	}
	if end.Before(stressEnd) {
		warnings = append(warnings, fmt.Sprintf("end moved to %s to cover the bear market window", e.cfg.Backtest.StressEnd))
		end = stressEnd
	}

	return start, end, warnings, nil
}

// loadData pulls every pool symbol, the benchmark, and the sector
// indexes into memory. The calendar is the benchmark's session list
// inside the range.
func (e *Engine) loadData(ctx context.Context, start, end time.Time, result *contracts.BacktestResult) (map[string]*series, *series, map[string]*series, []time.Time) {
	index := e.loadIndex(ctx, e.cfg.Benchmark.IndexCode, end)

	sectorIdx := make(map[string]*series, len(e.cfg.Sectors))
	for _, sec := range e.cfg.Sectors {
		if s := e.loadIndex(ctx, sec.IndexCode, end); s != nil {
			sectorIdx[sec.IndexCode] = s
		}
	}

	// Histories are independent per symbol, so fetch them in parallel.
	// Results are walked in pool order afterwards to keep warnings
	// deterministic.
	codes := e.cfg.AllCodes()
	fetched := make([]struct {
		bars []contracts.PriceBar
		err  error
	}, len(codes))

	var wg sync.WaitGroup
	sem := make(chan struct{}, loadWorkers)
	for i, code := range codes {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, code string) {
			defer wg.Done()
			defer func() { <-sem }()
			fetched[i].bars, fetched[i].err = e.feed.PriceHistory(ctx, code)
		}(i, code)
	}
	wg.Wait()

	stocks := make(map[string]*series)
	for i, code := range codes {
		if fetched[i].err != nil {
			result.DataWarnings = append(result.DataWarnings, fmt.Sprintf("fetch failed for %s: %v", code, fetched[i].err))
			continue
		}
		bars := clip(fetched[i].bars, end)
		if len(bars) == 0 {
			result.DataWarnings = append(result.DataWarnings, fmt.Sprintf("no data for %s", code))
			continue
		}
		if bars[0].Date.After(start) || bars[len(bars)-1].Date.Before(end) {
			result.DataWarnings = append(result.DataWarnings, fmt.Sprintf("partial data for %s: %s to %s",
				code, bars[0].Date.Format(dateLayout), bars[len(bars)-1].Date.Format(dateLayout)))
		}
		stocks[code] = newSeries(bars)
	}

	var calendar []time.Time
	if index != nil {
		for _, b := range index.bars {
			if !b.Date.Before(start) && !b.Date.After(end) {
				calendar = append(calendar, b.Date)
			}
		}
	}
	if len(calendar) == 0 {
		// no benchmark: fall back to the union of stock sessions
		seen := make(map[string]time.Time)
		for _, s := range stocks {
			for _, b := range s.bars {
				if !b.Date.Before(start) && !b.Date.After(end) {
					seen[b.Date.Format(dateLayout)] = b.Date
				}
			}
		}
		for _, d := range seen {
			calendar = append(calendar, d)
		}
		sort.Slice(calendar, func(i, j int) bool { return calendar[i].Before(calendar[j]) })
		if index == nil && len(calendar) > 0 {
			result.DataWarnings = append(result.DataWarnings, "benchmark index missing, market filter stays red")
		}
	}

	return stocks, index, sectorIdx, calendar
}

func (e *Engine) loadIndex(ctx context.Context, code string, end time.Time) *series {
	bars, err := e.feed.IndexHistory(ctx, code)
	if err != nil {
		e.logger.WithError(err).WithField("index", code).Warn("Index fetch failed")
		return nil
	}
	bars = clip(bars, end)
	if len(bars) == 0 {
		return nil
	}
	return newSeries(bars)
}

func newSeries(bars []contracts.PriceBar) *series {
	s := &series{bars: bars, byDate: make(map[string]int, len(bars))}
	for i, b := range bars {
		s.byDate[b.Date.Format(dateLayout)] = i
	}
	return s
}

func clip(bars []contracts.PriceBar, end time.Time) []contracts.PriceBar {
	out := bars[:0:0]
	for _, b := range bars {
		if !b.Date.After(end) {
			out = append(out, b)
		}
	}
	return out
}

// marketGreen evaluates the regime gate at one session. Any missing
// piece means red.
func (e *Engine) marketGreen(index *series, date time.Time) bool {
	if index == nil {
		return false
	}
	prefix := index.upTo(date)
	if len(prefix) < e.cfg.Indicators.MAMid {
		return false
	}

	closes := closesOf(prefix)
	ma20, ok := indicators.Last(indicators.SMA(closes, e.cfg.Indicators.MAMid))
	if !ok {
		return false
	}
	if closes[len(closes)-1] <= ma20 {
		return false
	}

	dif, dea, _ := indicators.MACD(closes)
	curDif, ok1 := indicators.Last(dif)
	curDea, ok2 := indicators.Last(dea)
	if ok1 && ok2 && curDif <= curDea {
		return false
	}
	return true
}

// exitPhase runs the priority chain over the open book. Positions opened
// today are skipped: sells settle T+1.
func (e *Engine) exitPhase(sim *Simulator, stocks map[string]*series, date time.Time, session int, green bool) {
	codes := make([]string, 0, sim.OpenCount())
	for code := range sim.Positions() {
		codes = append(codes, code)
	}
	sort.Strings(codes) // deterministic order

	for _, code := range codes {
		pos := sim.Position(code)
		if pos.BuySession == session {
			continue
		}

		s, ok := stocks[code]
		if !ok {
			continue
		}
		prefix := s.upTo(date)
		if prefix == nil {
			continue // suspended today
		}

		closes := closesOf(prefix)
		price := closes[len(closes)-1]
		pnlPct := (price - pos.CostPrice) / pos.CostPrice

		ma5, _ := indicators.Last(indicators.SMA(closes, e.cfg.Indicators.MAShort))
		rsi, _ := indicators.Last(indicators.RSI(closes, e.cfg.Indicators.RSIPeriod))

		switch {
		case !green && pnlPct < 0:
			sim.Sell(code, date, price, pos.Shares, "emergency: market red with open loss")

		case pnlPct <= e.cfg.Exit.HardStopLoss:
			sim.Sell(code, date, price, pos.Shares, "stop loss")

		case price < pos.Stop:
			sim.Sell(code, date, price, pos.Shares, "trailing stop")

		case rsi > e.cfg.Exit.RSIOverbought:
			if pos.Shares >= 2*e.cfg.Exit.MinPositionShares {
				sell := pos.Shares / 2
				sell -= sell % e.cfg.Exit.MinPositionShares
				if sell < e.cfg.Exit.MinPositionShares {
					sell = e.cfg.Exit.MinPositionShares
				}
				sim.Sell(code, date, price, sell, "take profit: rsi overbought")
			} else if ma5 > pos.Stop {
				pos.Stop = ma5
			}

		case e.trendBroken(closes):
			sim.Sell(code, date, price, pos.Shares, "trend break: below ma20")

		case session-pos.BuySession >= e.cfg.Backtest.MaxHoldingDays:
			sim.Sell(code, date, price, pos.Shares, "max holding days")

		case e.cfg.Backtest.MACDWeakExit && macdWeak(closes):
			sim.Sell(code, date, price, pos.Shares, "macd weakening")
		}

		// ratchet the stop on whatever is still open
		if pos := sim.Position(code); pos != nil {
			e.ratchetStop(pos, pnlPct, ma5)
		}
	}
}

func (e *Engine) trendBroken(closes []float64) bool {
	ma20 := indicators.SMA(closes, e.cfg.Indicators.MAMid)
	return indicators.ConsecutiveBelow(closes, ma20) >= e.cfg.Exit.MA20BreakDays
}

func macdWeak(closes []float64) bool {
	dif, dea, _ := indicators.MACD(closes)
	curDif, ok1 := indicators.Last(dif)
	curDea, ok2 := indicators.Last(dea)
	return ok1 && ok2 && curDif < curDea
}

// ratchetStop tightens the protective stop, never loosening it.
func (e *Engine) ratchetStop(pos *Position, pnlPct, ma5 float64) {
	level := pos.CostPrice * (1 + e.cfg.Exit.HardStopLoss)
	switch {
	case pnlPct > e.cfg.Exit.ProfitThreshold2:
		level = ma5
		if level < pos.CostPrice {
			level = pos.CostPrice
		}
	case pnlPct >= e.cfg.Exit.ProfitThreshold1:
		level = pos.CostPrice
	}
	if level > pos.Stop {
		pos.Stop = level
	}
}

// entryCandidate is one qualified symbol waiting for capital.
type entryCandidate struct {
	code     string
	price    float64
	strength float64
}

// entryPhase fills strength-ranked candidates into the free position
// slots, one lot-rounded fraction of initial capital each, never
// spending cash it does not have.
func (e *Engine) entryPhase(sim *Simulator, stocks map[string]*series, sectorIdx map[string]*series, date time.Time, session int) {
	free := e.cfg.Backtest.MaxPositions - sim.OpenCount()
	if free <= 0 {
		return
	}

	tradable := e.tradableSectors(sectorIdx, date)

	var candidates []entryCandidate
	for _, sec := range e.cfg.Sectors {
		if !tradable[sec.Name] {
			continue
		}
		for _, m := range sec.Pool {
			if sim.Position(m.Code) != nil {
				continue
			}
			s, ok := stocks[m.Code]
			if !ok {
				continue
			}
			if c, ok := e.qualify(m.Code, s, date); ok {
				candidates = append(candidates, c)
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].strength > candidates[j].strength
	})

	sliceSize := e.cfg.Backtest.InitialCapital * e.cfg.Backtest.PositionFraction
	lot := e.cfg.Exit.MinPositionShares

	for _, c := range candidates {
		if free == 0 {
			break
		}
		budget := sliceSize
		if cash := sim.Cash(); cash < budget {
			budget = cash
		}
		shares := int(budget/c.price) / lot * lot
		if shares < lot {
			continue
		}
		stop := c.price * (1 + e.cfg.Exit.HardStopLoss)
		sim.Buy(c.code, date, session, c.price, shares, stop, "entry signal")
		free--
	}
}

// qualify applies the entry conditions at one session. Volume ratio uses
// the completed day against the prior 5-session mean since there is no
// intraday data to extrapolate.
func (e *Engine) qualify(code string, s *series, date time.Time) (entryCandidate, bool) {
	prefix := s.upTo(date)
	if len(prefix) < e.cfg.Indicators.MALong {
		return entryCandidate{}, false
	}

	closes := closesOf(prefix)
	price := closes[len(closes)-1]

	ma5, ok1 := indicators.Last(indicators.SMA(closes, e.cfg.Indicators.MAShort))
	ma20, ok2 := indicators.Last(indicators.SMA(closes, e.cfg.Indicators.MAMid))
	ma60, ok3 := indicators.Last(indicators.SMA(closes, e.cfg.Indicators.MALong))
	rsi, ok4 := indicators.Last(indicators.RSI(closes, e.cfg.Indicators.RSIPeriod))
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return entryCandidate{}, false
	}

	if !(ma5 >= ma20 && price > ma60) {
		return entryCandidate{}, false
	}
	if rsi < e.cfg.Entry.RSIMin || rsi > e.cfg.Entry.RSIMax {
		return entryCandidate{}, false
	}

	ratio := volumeRatio(prefix)
	if ratio < e.cfg.Entry.VolumeRatioMin {
		return entryCandidate{}, false
	}

	return entryCandidate{
		code:     code,
		price:    price,
		strength: strengthScore(rsi, ratio),
	}, true
}

// tradableSectors ranks the sector indexes by 20-day return at one
// session and marks the top two tradable. Sectors without enough index
// history rank at the bottom.
func (e *Engine) tradableSectors(sectorIdx map[string]*series, date time.Time) map[string]bool {
	type ranked struct {
		name string
		ret  float64
	}
	rankings := make([]ranked, 0, len(e.cfg.Sectors))

	for _, sec := range e.cfg.Sectors {
		r := ranked{name: sec.Name}
		if s := sectorIdx[sec.IndexCode]; s != nil {
			prefix := s.upTo(date)
			if len(prefix) >= 21 {
				base := prefix[len(prefix)-21].Close
				if base > 0 {
					r.ret = prefix[len(prefix)-1].Close/base - 1
				}
			}
		}
		rankings = append(rankings, r)
	}

	sort.SliceStable(rankings, func(i, j int) bool { return rankings[i].ret > rankings[j].ret })

	out := make(map[string]bool, 2)
	for i, r := range rankings {
		if i < 2 {
			out[r.name] = true
		}
	}
	return out
}

func closesOf(bars []contracts.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// volumeRatio is the last session's volume over the mean of the prior
// five.
func volumeRatio(bars []contracts.PriceBar) float64 {
	if len(bars) < 6 {
		return 0
	}
	var sum float64
	for _, b := range bars[len(bars)-6 : len(bars)-1] {
		sum += b.Volume
	}
	if sum == 0 {
		return 0
	}
	return bars[len(bars)-1].Volume / (sum / 5)
}

// strengthScore mirrors the live composite without the fundamentals
// component, which is not historical data.
func strengthScore(rsi, ratio float64) float64 {
	var score float64
	switch {
	case rsi >= 60 && rsi <= 75:
		score += 30
	case rsi >= 55 && rsi <= 80:
		score += 20
	default:
		score += 10
	}
	switch {
	case ratio >= 2.5:
		score += 30
	case ratio >= 2.0:
		score += 25
	case ratio >= 1.5:
		score += 20
	default:
		score += 10
	}
	return score
}
