package eastmoney

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/pkg/config"
	"github.com/wonny/techstock/pkg/httputil"
	"github.com/wonny/techstock/pkg/logger"
)

// =============================================================================
// Eastmoney quote / kline client
// =============================================================================

const (
	klinePath = "/api/qt/stock/kline/get"
	ulistPath = "/api/qt/ulist.np/get"

	// fields1/fields2 select the kline response columns:
	// f51 date, f52 open, f53 close, f54 high, f55 low, f56 volume, f57 amount
	klineFields1 = "f1,f2,f3,f4,f5,f6"
	klineFields2 = "f51,f52,f53,f54,f55,f56,f57"

	// quote columns: price, code, name, volume, amount, total market cap
	quoteFields = "f2,f5,f6,f12,f14,f20"

	// growth columns: revenue YoY (f41), net profit YoY (f46)
	growthFields = "f12,f14,f41,f46"

	// max bars a single kline request returns
	maxKlineBars = 1000

	yi = 1e8 // 100M CNY
)

// Client talks to the Eastmoney public quote endpoints. All requests go
// through the shared httputil client, which handles retries and pacing.
type Client struct {
	http     *httputil.Client
	quoteURL string
	dataURL  string
	logger   *logger.Logger
}

// New creates an Eastmoney client from config.
func New(cfg *config.Config, log *logger.Logger) *Client {
	hc := httputil.NewWithTimeout(cfg, log, cfg.Eastmoney.Timeout).
		WithRetry(3, 500*time.Millisecond).
		WithLocalRateLimit(cfg.Eastmoney.RatePerSec)

	return &Client{
		http:     hc,
		quoteURL: strings.TrimRight(cfg.Eastmoney.QuoteBaseURL, "/"),
		dataURL:  strings.TrimRight(cfg.Eastmoney.DataBaseURL, "/"),
		logger:   log,
	}
}

// StockSecID converts a 6-digit code to an Eastmoney secid.
// Shanghai (6/5/9 prefix) is market 1, Shenzhen is market 0.
func StockSecID(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "0.000000"
	}
	switch code[0] {
	case '6', '5', '9':
		return "1." + code
	}
	return "0." + code
}

// IndexSecID converts an index code to an Eastmoney secid.
// CSI indexes (93x prefix) live under market 2, SZSE indexes (399) under
// market 0, everything else under market 1.
func IndexSecID(code string) string {
	code = strings.TrimSpace(code)
	switch {
	case code == "":
		return "1.000001"
	case strings.HasPrefix(code, "93"):
		return "2." + code
	case strings.HasPrefix(code, "399"):
		return "0." + code
	}
	return "1." + code
}

// KlineHistory returns up to limit daily bars for a stock, ascending by date.
// Prices are forward-adjusted (fqt=1). An empty slice means no data.
func (c *Client) KlineHistory(ctx context.Context, code string, limit int) ([]contracts.PriceBar, error) {
	return c.klines(ctx, StockSecID(code), code, limit)
}

// IndexKlineHistory returns up to limit daily bars for an index.
func (c *Client) IndexKlineHistory(ctx context.Context, code string, limit int) ([]contracts.PriceBar, error) {
	return c.klines(ctx, IndexSecID(code), code, limit)
}

func (c *Client) klines(ctx context.Context, secID, code string, limit int) ([]contracts.PriceBar, error) {
	if limit <= 0 || limit > maxKlineBars {
		limit = maxKlineBars
	}

	url := fmt.Sprintf("%s%s?secid=%s&fields1=%s&fields2=%s&klt=101&fqt=1&lmt=%d",
		c.dataURL, klinePath, secID, klineFields1, klineFields2, limit)

	body, err := c.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("kline %s: %w", code, err)
	}

	return parseKlines(body)
}

// parseKlines decodes the data.klines array. Each entry is a comma-joined
// row: date,open,close,high,low,volume,amount.
func parseKlines(body []byte) ([]contracts.PriceBar, error) {
	klines := gjson.GetBytes(body, "data.klines")
	if !klines.Exists() || !klines.IsArray() {
		// no data is not an error: delisted, suspended, or bad code
		return nil, nil
	}

	arr := klines.Array()
	out := make([]contracts.PriceBar, 0, len(arr))
	for _, v := range arr {
		parts := strings.Split(strings.TrimSpace(v.String()), ",")
		if len(parts) < 6 {
			continue
		}
		date, err := time.Parse("2006-01-02", parts[0])
		if err != nil {
			continue
		}
		open, _ := strconv.ParseFloat(parts[1], 64)
		closeVal, _ := strconv.ParseFloat(parts[2], 64)
		high, _ := strconv.ParseFloat(parts[3], 64)
		low, _ := strconv.ParseFloat(parts[4], 64)
		vol, _ := strconv.ParseFloat(parts[5], 64)

		out = append(out, contracts.PriceBar{
			Date:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closeVal,
			Volume: vol,
		})
	}
	return out, nil
}

// parseAmounts returns the per-bar turnover column (CNY) aligned with
// parseKlines output.
func parseAmounts(body []byte) []float64 {
	klines := gjson.GetBytes(body, "data.klines")
	if !klines.Exists() || !klines.IsArray() {
		return nil
	}

	arr := klines.Array()
	out := make([]float64, 0, len(arr))
	for _, v := range arr {
		parts := strings.Split(strings.TrimSpace(v.String()), ",")
		if len(parts) < 7 {
			continue
		}
		if _, err := time.Parse("2006-01-02", parts[0]); err != nil {
			continue
		}
		amount, _ := strconv.ParseFloat(parts[6], 64)
		out = append(out, amount)
	}
	return out
}

// Snapshot builds a point-in-time view of a symbol: live quote plus 5-day
// volume and turnover averages derived from recent daily bars.
func (c *Client) Snapshot(ctx context.Context, code string) (*contracts.StockSnapshot, error) {
	url := fmt.Sprintf("%s%s?secids=%s&fields=%s", c.quoteURL, ulistPath, StockSecID(code), quoteFields)
	body, err := c.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", code, err)
	}

	diff := gjson.GetBytes(body, "data.diff")
	if !diff.Exists() || !diff.IsArray() || len(diff.Array()) == 0 {
		return nil, nil
	}
	row := diff.Array()[0]

	snap := &contracts.StockSnapshot{
		Code:             strings.TrimSpace(row.Get("f12").String()),
		Name:             strings.TrimSpace(row.Get("f14").String()),
		Price:            row.Get("f2").Float(),
		MarketCap:        row.Get("f20").Float() / yi,
		CumulativeVolume: row.Get("f5").Float(),
	}

	// 5 completed sessions; request one extra in case today is included
	histURL := fmt.Sprintf("%s%s?secid=%s&fields1=%s&fields2=%s&klt=101&fqt=1&lmt=6",
		c.dataURL, klinePath, StockSecID(code), klineFields1, klineFields2)
	histBody, err := c.fetch(ctx, histURL)
	if err != nil {
		return nil, fmt.Errorf("quote history %s: %w", code, err)
	}

	bars, err := parseKlines(histBody)
	if err != nil {
		return nil, err
	}
	amounts := parseAmounts(histBody)

	// drop today's partial bar before averaging
	today := time.Now().Format("2006-01-02")
	if n := len(bars); n > 0 && bars[n-1].Date.Format("2006-01-02") == today {
		bars = bars[:n-1]
		if len(amounts) == n {
			amounts = amounts[:n-1]
		}
	}
	if len(bars) > 5 {
		bars = bars[len(bars)-5:]
	}
	if len(amounts) > 5 {
		amounts = amounts[len(amounts)-5:]
	}

	if len(bars) > 0 {
		var volSum float64
		for _, b := range bars {
			volSum += b.Volume
		}
		snap.AvgVolume5D = volSum / float64(len(bars))
	}
	if len(amounts) > 0 {
		var amtSum float64
		for _, a := range amounts {
			amtSum += a
		}
		snap.AvgTurnover = amtSum / float64(len(amounts)) / yi
	}

	return snap, nil
}

// Fundamentals returns the YoY growth flags for a symbol. Missing data
// (new listings, suspended reporting) yields both flags false.
func (c *Client) Fundamentals(ctx context.Context, code string) (*contracts.Fundamentals, error) {
	url := fmt.Sprintf("%s%s?secids=%s&fields=%s", c.quoteURL, ulistPath, StockSecID(code), growthFields)
	body, err := c.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fundamentals %s: %w", code, err)
	}

	diff := gjson.GetBytes(body, "data.diff")
	if !diff.Exists() || !diff.IsArray() || len(diff.Array()) == 0 {
		return nil, nil
	}
	row := diff.Array()[0]

	return &contracts.Fundamentals{
		Code:          strings.TrimSpace(row.Get("f12").String()),
		RevenueGrowth: row.Get("f41").Exists() && row.Get("f41").Float() > 0,
		ProfitGrowth:  row.Get("f46").Exists() && row.Get("f46").Float() > 0,
	}, nil
}

// fetch performs a GET with the browser headers the quote endpoints expect
// and returns the raw body.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Referer", "https://quote.eastmoney.com/")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
