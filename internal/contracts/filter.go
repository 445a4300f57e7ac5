package contracts

// HardFilterResult is the eligibility verdict for one symbol. The three
// checks are independent, so RejectReasons can stack.
type HardFilterResult struct {
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	Passed        bool     `json:"passed"`
	Price         float64  `json:"price"`
	MarketCap     float64  `json:"market_cap"`
	AvgTurnover   float64  `json:"avg_turnover"`
	RejectReasons []string `json:"reject_reasons"`
}

// FilterSummary aggregates one hard-filter batch for observability.
type FilterSummary struct {
	Total          int     `json:"total"`
	Passed         int     `json:"passed"`
	RejectPrice    int     `json:"reject_price"`
	RejectCap      int     `json:"reject_cap"`
	RejectTurnover int     `json:"reject_turnover"`
	PassRate       float64 `json:"pass_rate"`
}
