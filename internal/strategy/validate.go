package strategy

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ValidationError aborts startup; malformed thresholds must never reach
// the pipeline.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks all required constraints.
func Validate(cfg *Config) error {
	// === Meta / Benchmark ===
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}
	if cfg.Benchmark.IndexCode == "" {
		return ValidationError{"benchmark.index_code", "required"}
	}

	// === Hard filter ===
	hf := cfg.HardFilter
	if hf.MaxPrice <= 0 {
		return ValidationError{"hard_filter.max_price", "must be > 0"}
	}
	if hf.MinMarketCap <= 0 || hf.MaxMarketCap <= hf.MinMarketCap {
		return ValidationError{"hard_filter", "must satisfy 0 < min_market_cap < max_market_cap"}
	}
	if hf.MinAvgTurnover <= 0 {
		return ValidationError{"hard_filter.min_avg_turnover", "must be > 0"}
	}

	// === Indicators ===
	ind := cfg.Indicators
	if ind.RSIPeriod < 2 {
		return ValidationError{"indicators.rsi_period", "must be >= 2"}
	}
	if !(ind.MAShort < ind.MAMid && ind.MAMid < ind.MALong) {
		return ValidationError{"indicators", "must satisfy ma_short < ma_mid < ma_long"}
	}
	if !(ind.MACDFast < ind.MACDSlow) {
		return ValidationError{"indicators", "macd_fast must be < macd_slow"}
	}
	if ind.MACDSignal < 1 {
		return ValidationError{"indicators.macd_signal", "must be >= 1"}
	}

	// === Entry ===
	if cfg.Entry.RSIMin >= cfg.Entry.RSIMax {
		return ValidationError{"entry", "rsi_min must be < rsi_max"}
	}
	if cfg.Entry.VolumeRatioMin <= 0 {
		return ValidationError{"entry.volume_ratio_min", "must be > 0"}
	}
	if cfg.Entry.UnlockWindow < 0 {
		return ValidationError{"entry.unlock_window_days", "must be >= 0"}
	}

	// === Exit ===
	if cfg.Exit.HardStopLoss >= 0 {
		return ValidationError{"exit.hard_stop_loss", "must be negative"}
	}
	if !(cfg.Exit.ProfitThreshold1 > 0 && cfg.Exit.ProfitThreshold1 < cfg.Exit.ProfitThreshold2) {
		return ValidationError{"exit", "must satisfy 0 < profit_threshold_1 < profit_threshold_2"}
	}
	if cfg.Exit.RSIOverbought <= cfg.Entry.RSIMax {
		return ValidationError{"exit.rsi_overbought", "must exceed entry.rsi_max"}
	}
	if cfg.Exit.MA20BreakDays < 1 {
		return ValidationError{"exit.ma20_break_days", "must be >= 1"}
	}
	if cfg.Exit.MinPositionShares < 100 || cfg.Exit.MinPositionShares%100 != 0 {
		return ValidationError{"exit.min_position_shares", "must be a positive multiple of 100"}
	}

	// === Trading window ===
	if err := validateHHMM(cfg.Window.ConfirmationTime); err != nil {
		return ValidationError{"trading_window.confirmation_time", err.Error()}
	}
	if err := validateHHMM(cfg.Window.CloseTime); err != nil {
		return ValidationError{"trading_window.close_time", err.Error()}
	}
	start, _ := time.Parse("15:04", cfg.Window.ConfirmationTime)
	end, _ := time.Parse("15:04", cfg.Window.CloseTime)
	if !start.Before(end) {
		return ValidationError{"trading_window", "confirmation_time must be before close_time"}
	}

	// === Backtest ===
	bt := cfg.Backtest
	for field, v := range map[string]string{
		"backtest.default_start": bt.DefaultStart,
		"backtest.default_end":   bt.DefaultEnd,
		"backtest.stress_start":  bt.StressStart,
		"backtest.stress_end":    bt.StressEnd,
	} {
		if _, err := time.Parse("2006-01-02", v); err != nil {
			return ValidationError{field, "must be YYYY-MM-DD"}
		}
	}
	if bt.InitialCapital <= 0 {
		return ValidationError{"backtest.initial_capital", "must be > 0"}
	}
	if bt.MaxPositions < 1 {
		return ValidationError{"backtest.max_positions", "must be >= 1"}
	}
	if bt.PositionFraction <= 0 || bt.PositionFraction > 1 {
		return ValidationError{"backtest.position_fraction", "must be in (0, 1]"}
	}
	if bt.WarmupSessions < cfg.Indicators.MALong {
		return ValidationError{"backtest.warmup_sessions", "must cover the longest indicator lookback"}
	}
	if bt.MaxHoldingDays < 1 {
		return ValidationError{"backtest.max_holding_days", "must be >= 1"}
	}
	if bt.MaxDrawdownThreshold >= 0 {
		return ValidationError{"backtest.max_drawdown_threshold", "must be negative"}
	}

	// === Sectors ===
	if len(cfg.Sectors) < 2 {
		return ValidationError{"sectors", "need at least 2 sectors to rank"}
	}
	seen := make(map[string]bool)
	for i, s := range cfg.Sectors {
		if s.Name == "" {
			return ValidationError{fmt.Sprintf("sectors[%d].name", i), "required"}
		}
		if seen[s.Name] {
			return ValidationError{fmt.Sprintf("sectors[%d].name", i), "duplicate sector"}
		}
		seen[s.Name] = true
		if s.IndexCode == "" {
			return ValidationError{fmt.Sprintf("sectors[%d].index_code", i), "required"}
		}
		if len(s.ProxyStocks) < 2 {
			return ValidationError{fmt.Sprintf("sectors[%d].proxy_stocks", i), "need at least 2 bellwethers for the fallback"}
		}
	}

	return nil
}

func validateHHMM(s string) error {
	re := regexp.MustCompile(`^\d{2}:\d{2}$`)
	if !re.MatchString(s) {
		return errors.New("must be HH:MM format")
	}
	_, err := time.Parse("15:04", s)
	return err
}
