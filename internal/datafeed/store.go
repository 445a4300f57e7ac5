package datafeed

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/techstock/internal/contracts"
)

// Store persists daily bars in PostgreSQL and serves them back as a
// PriceSource/IndexSource. Index series live in the same table with an
// is_index marker since they share the bar shape.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new price store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// PriceHistory returns the full ascending series for a stock. A symbol
// with no rows yields an empty slice.
func (s *Store) PriceHistory(ctx context.Context, code string) ([]contracts.PriceBar, error) {
	return s.history(ctx, code, false)
}

// IndexHistory returns the full ascending series for an index.
func (s *Store) IndexHistory(ctx context.Context, indexCode string) ([]contracts.PriceBar, error) {
	return s.history(ctx, indexCode, true)
}

func (s *Store) history(ctx context.Context, code string, isIndex bool) ([]contracts.PriceBar, error) {
	query := `
		SELECT trade_date, open_price, high_price, low_price, close_price, volume
		FROM data.daily_bars
		WHERE symbol = $1 AND is_index = $2
		ORDER BY trade_date ASC
	`

	rows, err := s.pool.Query(ctx, query, code, isIndex)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []contracts.PriceBar
	for rows.Next() {
		var b contracts.PriceBar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// HistoryRange returns the series clipped to [from, to].
func (s *Store) HistoryRange(ctx context.Context, code string, from, to time.Time) ([]contracts.PriceBar, error) {
	query := `
		SELECT trade_date, open_price, high_price, low_price, close_price, volume
		FROM data.daily_bars
		WHERE symbol = $1 AND is_index = false AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC
	`

	rows, err := s.pool.Query(ctx, query, code, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []contracts.PriceBar
	for rows.Next() {
		var b contracts.PriceBar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// SaveBars upserts a batch of bars for one symbol.
func (s *Store) SaveBars(ctx context.Context, code string, isIndex bool, bars []contracts.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	query := `
		INSERT INTO data.daily_bars (symbol, is_index, trade_date, open_price, high_price, low_price, close_price, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, trade_date) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume
	`

	for _, b := range bars {
		if _, err := s.pool.Exec(ctx, query,
			code, isIndex, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume,
		); err != nil {
			return err
		}
	}
	return nil
}

// LatestDate returns the most recent stored session for a symbol, or the
// zero time when none exists.
func (s *Store) LatestDate(ctx context.Context, code string) (time.Time, error) {
	query := `
		SELECT COALESCE(MAX(trade_date), 'epoch'::timestamptz)
		FROM data.daily_bars
		WHERE symbol = $1
	`

	var latest time.Time
	if err := s.pool.QueryRow(ctx, query, code).Scan(&latest); err != nil {
		return time.Time{}, err
	}
	if latest.Unix() <= 0 {
		return time.Time{}, nil
	}
	return latest, nil
}
