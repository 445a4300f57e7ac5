package unlocks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/pkg/config"
	"github.com/wonny/techstock/pkg/httputil"
	"github.com/wonny/techstock/pkg/logger"
	"github.com/wonny/techstock/pkg/redis"
)

// defaultBaseURL points at the public restricted-share unlock calendar.
const defaultBaseURL = "https://data.eastmoney.com/dxf"

// Scraper pulls the upcoming share-unlock schedule from the public
// calendar page. Amounts are normalized to 100M CNY.
type Scraper struct {
	httpClient *httputil.Client
	baseURL    string
	logger     *logger.Logger
}

// New creates an unlock calendar scraper from config.
func New(cfg *config.Config, log *logger.Logger, limiter *redis.RateLimiter) *Scraper {
	hc := httputil.NewWithTimeout(cfg, log, cfg.Eastmoney.Timeout)
	if limiter != nil {
		hc = hc.WithRateLimiter(limiter, redis.UnlockScrapeRateLimit)
	}
	return &Scraper{
		httpClient: hc,
		baseURL:    defaultBaseURL,
		logger:     log,
	}
}

// WithBaseURL overrides the calendar URL. Used in tests.
func (s *Scraper) WithBaseURL(url string) *Scraper {
	s.baseURL = strings.TrimRight(url, "/")
	return s
}

// Upcoming returns unlock events for the given codes with unlock dates in
// [from, to]. Codes absent from the calendar simply produce no events.
func (s *Scraper) Upcoming(ctx context.Context, codes []string, from, to time.Time) ([]contracts.UnlockEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Referer", "https://data.eastmoney.com/")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body failed: %w", err)
	}

	wanted := make(map[string]bool, len(codes))
	for _, c := range codes {
		wanted[c] = true
	}

	events := parseUnlockHTML(string(body), wanted, from, to)

	s.logger.WithFields(map[string]interface{}{
		"codes": len(codes),
		"count": len(events),
	}).Debug("Fetched unlock schedule")
	return events, nil
}

var (
	dateRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	amountRe = regexp.MustCompile(`[\d,.]+`)
)

// parseUnlockHTML walks the calendar table. Expected columns:
// code | name | unlock date | unlock amount (100M CNY).
func parseUnlockHTML(html string, wanted map[string]bool, from, to time.Time) []contracts.UnlockEvent {
	var events []contracts.UnlockEvent

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return events
	}

	doc.Find("table tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}

		code := strings.TrimSpace(cells.Eq(0).Text())
		if len(wanted) > 0 && !wanted[code] {
			return
		}

		dateText := strings.TrimSpace(cells.Eq(2).Text())
		dateText = strings.ReplaceAll(dateText, ".", "-")
		dateText = strings.ReplaceAll(dateText, "/", "-")
		if !dateRe.MatchString(dateText) {
			return
		}
		unlockDate, err := time.Parse("2006-01-02", dateText)
		if err != nil {
			return
		}

		if unlockDate.Before(from) || unlockDate.After(to) {
			return
		}

		events = append(events, contracts.UnlockEvent{
			Code:   code,
			Date:   unlockDate,
			Amount: parseAmount(cells.Eq(3).Text()),
		})
	})

	return events
}

// parseAmount extracts a numeric amount, tolerating thousands separators
// and a trailing unit suffix.
func parseAmount(s string) float64 {
	m := amountRe.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	m = strings.ReplaceAll(m, ",", "")
	v, _ := strconv.ParseFloat(m, 64)
	return v
}
