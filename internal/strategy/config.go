package strategy

// Config is the full strategy parameter set for the tech-stock pipeline.
// The core components receive it injected at construction; nothing reads
// files or environment variables past that point.
type Config struct {
	Meta       Meta       `yaml:"meta" json:"meta"`
	Benchmark  Benchmark  `yaml:"benchmark" json:"benchmark"`
	HardFilter HardFilter `yaml:"hard_filter" json:"hard_filter"`
	Indicators Indicators `yaml:"indicators" json:"indicators"`
	Entry      Entry      `yaml:"entry" json:"entry"`
	Exit       Exit       `yaml:"exit" json:"exit"`
	Window     Window     `yaml:"trading_window" json:"trading_window"`
	Backtest   Backtest   `yaml:"backtest" json:"backtest"`
	Sectors    []Sector   `yaml:"sectors" json:"sectors"`
}

// Meta identifies the strategy revision.
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id"`
	Version    string `yaml:"version" json:"version"`
}

// Benchmark names the regime-gate index.
type Benchmark struct {
	IndexCode string `yaml:"index_code" json:"index_code"`
	IndexName string `yaml:"index_name" json:"index_name"`
}

// HardFilter holds the small-capital survival bounds. Caps and turnover
// are in 100M CNY.
type HardFilter struct {
	MaxPrice       float64 `yaml:"max_price" json:"max_price"`
	MinMarketCap   float64 `yaml:"min_market_cap" json:"min_market_cap"`
	MaxMarketCap   float64 `yaml:"max_market_cap" json:"max_market_cap"`
	MinAvgTurnover float64 `yaml:"min_avg_turnover" json:"min_avg_turnover"`
}

// Indicators holds the lookback periods.
type Indicators struct {
	RSIPeriod  int `yaml:"rsi_period" json:"rsi_period"`
	MAShort    int `yaml:"ma_short" json:"ma_short"`
	MAMid      int `yaml:"ma_mid" json:"ma_mid"`
	MALong     int `yaml:"ma_long" json:"ma_long"`
	MACDFast   int `yaml:"macd_fast" json:"macd_fast"`
	MACDSlow   int `yaml:"macd_slow" json:"macd_slow"`
	MACDSignal int `yaml:"macd_signal" json:"macd_signal"`
}

// Entry holds the buy-side thresholds.
type Entry struct {
	RSIMin         float64 `yaml:"rsi_min" json:"rsi_min"`
	RSIMax         float64 `yaml:"rsi_max" json:"rsi_max"`
	VolumeRatioMin float64 `yaml:"volume_ratio_min" json:"volume_ratio_min"`
	UnlockWindow   int     `yaml:"unlock_window_days" json:"unlock_window_days"`
}

// Exit holds the sell-side thresholds.
type Exit struct {
	HardStopLoss      float64 `yaml:"hard_stop_loss" json:"hard_stop_loss"`           // -0.10
	ProfitThreshold1  float64 `yaml:"profit_threshold_1" json:"profit_threshold_1"`   // stop to cost
	ProfitThreshold2  float64 `yaml:"profit_threshold_2" json:"profit_threshold_2"`   // stop to MA5
	RSIOverbought     float64 `yaml:"rsi_overbought" json:"rsi_overbought"`
	MA20BreakDays     int     `yaml:"ma20_break_days" json:"ma20_break_days"`
	MinPositionShares int     `yaml:"min_position_shares" json:"min_position_shares"`
}

// Window configures the EOD confirmation gate under T+1 settlement.
type Window struct {
	ConfirmationTime string `yaml:"confirmation_time" json:"confirmation_time"` // HH:MM
	CloseTime        string `yaml:"close_time" json:"close_time"`               // HH:MM
}

// Backtest configures the simulation defaults. The stress window is always
// simulated regardless of the requested range.
type Backtest struct {
	DefaultStart string `yaml:"default_start" json:"default_start"`
	DefaultEnd   string `yaml:"default_end" json:"default_end"`
	StressStart  string `yaml:"stress_start" json:"stress_start"`
	StressEnd    string `yaml:"stress_end" json:"stress_end"`

	InitialCapital   float64 `yaml:"initial_capital" json:"initial_capital"`
	MaxPositions     int     `yaml:"max_positions" json:"max_positions"`
	PositionFraction float64 `yaml:"position_fraction" json:"position_fraction"`
	WarmupSessions   int     `yaml:"warmup_sessions" json:"warmup_sessions"`
	MaxHoldingDays   int     `yaml:"max_holding_days" json:"max_holding_days"`
	MACDWeakExit     bool    `yaml:"macd_weak_exit" json:"macd_weak_exit"`

	MaxDrawdownThreshold float64 `yaml:"max_drawdown_threshold" json:"max_drawdown_threshold"`
}

// Sector maps one sector to its index and bellwether fallbacks.
type Sector struct {
	Name        string       `yaml:"name" json:"name"`
	IndexCode   string       `yaml:"index_code" json:"index_code"`
	IndexName   string       `yaml:"index_name" json:"index_name"`
	ProxyStocks []string     `yaml:"proxy_stocks" json:"proxy_stocks"`
	Pool        []PoolMember `yaml:"pool" json:"pool"`
}

// PoolMember is one tradable symbol inside a sector pool.
type PoolMember struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

// AllCodes returns every pool symbol across sectors.
func (c *Config) AllCodes() []string {
	var codes []string
	for _, s := range c.Sectors {
		for _, m := range s.Pool {
			codes = append(codes, m.Code)
		}
	}
	return codes
}

// SectorOf returns the sector name for a pool symbol, or "" when the
// symbol is outside the pool.
func (c *Config) SectorOf(code string) string {
	for _, s := range c.Sectors {
		for _, m := range s.Pool {
			if m.Code == code {
				return s.Name
			}
		}
	}
	return ""
}

// NameOf returns the display name for a pool symbol, falling back to the
// code itself.
func (c *Config) NameOf(code string) string {
	for _, s := range c.Sectors {
		for _, m := range s.Pool {
			if m.Code == code {
				return m.Name
			}
		}
	}
	return code
}

// Default returns the reference parameter set for the CN tech-stock
// strategy. Callers that load a YAML file get the same shape.
func Default() *Config {
	return &Config{
		Meta: Meta{
			StrategyID: "cn_tech_eod_v1",
			Version:    "1.0.0",
		},
		Benchmark: Benchmark{
			IndexCode: "399006",
			IndexName: "ChiNext Index",
		},
		HardFilter: HardFilter{
			MaxPrice:       80.0,
			MinMarketCap:   50.0,
			MaxMarketCap:   500.0,
			MinAvgTurnover: 1.0,
		},
		Indicators: Indicators{
			RSIPeriod:  14,
			MAShort:    5,
			MAMid:      20,
			MALong:     60,
			MACDFast:   12,
			MACDSlow:   26,
			MACDSignal: 9,
		},
		Entry: Entry{
			RSIMin:         55,
			RSIMax:         80,
			VolumeRatioMin: 1.5,
			UnlockWindow:   30,
		},
		Exit: Exit{
			HardStopLoss:      -0.10,
			ProfitThreshold1:  0.05,
			ProfitThreshold2:  0.15,
			RSIOverbought:     85,
			MA20BreakDays:     2,
			MinPositionShares: 100,
		},
		Window: Window{
			ConfirmationTime: "14:45",
			CloseTime:        "15:00",
		},
		Backtest: Backtest{
			DefaultStart:         "2022-01-01",
			DefaultEnd:           "2024-12-01",
			StressStart:          "2022-01-01",
			StressEnd:            "2023-12-31",
			InitialCapital:       100000.0,
			MaxPositions:         5,
			PositionFraction:     0.2,
			WarmupSessions:       60,
			MaxHoldingDays:       10,
			MACDWeakExit:         false,
			MaxDrawdownThreshold: -0.15,
		},
		Sectors: []Sector{
			{
				Name:        "semiconductor",
				IndexCode:   "399678",
				IndexName:   "SZSE Semiconductor Index",
				ProxyStocks: []string{"002371", "688981", "002049"},
				Pool: []PoolMember{
					{Code: "002371", Name: "NAURA"},
					{Code: "688981", Name: "SMIC"},
					{Code: "002049", Name: "Unigroup Guoxin"},
				},
			},
			{
				Name:        "ai_application",
				IndexCode:   "930713",
				IndexName:   "CSI Artificial Intelligence Index",
				ProxyStocks: []string{"300308", "002415", "300496"},
				Pool: []PoolMember{
					{Code: "300308", Name: "Zhongji Innolight"},
					{Code: "002415", Name: "Hikvision"},
					{Code: "300496", Name: "Thundersoft"},
				},
			},
			{
				Name:        "computing_power",
				IndexCode:   "931071",
				IndexName:   "CSI Computing Power Index",
				ProxyStocks: []string{"000977", "603019", "688256"},
				Pool: []PoolMember{
					{Code: "000977", Name: "Inspur"},
					{Code: "603019", Name: "Sugon"},
					{Code: "688256", Name: "Cambricon"},
				},
			},
			{
				Name:        "consumer_electronics",
				IndexCode:   "931139",
				IndexName:   "CSI Consumer Electronics Index",
				ProxyStocks: []string{"002475", "002600", "601138"},
				Pool: []PoolMember{
					{Code: "002600", Name: "Everwin Precision"},
					{Code: "002475", Name: "Luxshare"},
					{Code: "601138", Name: "Foxconn Industrial Internet"},
				},
			},
		},
	}
}
