package holdings

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/techstock/internal/contracts"
)

// expected CSV header, in order
var header = []string{"code", "name", "buy_price", "buy_date", "quantity", "strategy", "note"}

// Load reads the holdings registry from a CSV file. A missing path is
// not an error: exit checks simply run over an empty book.
func Load(path string) ([]contracts.Holding, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open holdings file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read holdings file: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	if err := checkHeader(rows[0]); err != nil {
		return nil, err
	}

	out := make([]contracts.Holding, 0, len(rows)-1)
	for i, row := range rows[1:] {
		h, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("holdings row %d: %w", i+2, err)
		}
		out = append(out, h)
	}
	return out, nil
}

func checkHeader(row []string) error {
	if len(row) != len(header) {
		return fmt.Errorf("holdings header has %d columns, want %d", len(row), len(header))
	}
	for i, want := range header {
		if strings.TrimSpace(strings.ToLower(row[i])) != want {
			return fmt.Errorf("holdings header column %d is %q, want %q", i+1, row[i], want)
		}
	}
	return nil
}

func parseRow(row []string) (contracts.Holding, error) {
	var h contracts.Holding
	if len(row) != len(header) {
		return h, fmt.Errorf("has %d columns, want %d", len(row), len(header))
	}

	h.Code = strings.TrimSpace(row[0])
	if h.Code == "" {
		return h, fmt.Errorf("empty code")
	}
	h.Name = strings.TrimSpace(row[1])

	price, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil || price <= 0 {
		return h, fmt.Errorf("invalid buy_price %q", row[2])
	}
	h.BuyPrice = price

	date, err := time.Parse("2006-01-02", strings.TrimSpace(row[3]))
	if err != nil {
		return h, fmt.Errorf("invalid buy_date %q", row[3])
	}
	h.BuyDate = date

	qty, err := strconv.Atoi(strings.TrimSpace(row[4]))
	if err != nil || qty <= 0 {
		return h, fmt.Errorf("invalid quantity %q", row[4])
	}
	h.Quantity = qty

	h.Strategy = strings.TrimSpace(row[5])
	h.Note = strings.TrimSpace(row[6])
	return h, nil
}
