package contracts

// DataSource tells whether a sector return came from its index or from the
// bellwether-stock fallback.
type DataSource string

const (
	DataSourceIndex DataSource = "index"
	DataSourceProxy DataSource = "proxy"
)

// SectorRank is one sector's position in the 20-day strength ranking.
// Ranks form a contiguous permutation of 1..N; IsTradable holds exactly
// for ranks 1 and 2.
type SectorRank struct {
	SectorName string     `json:"sector_name"`
	IndexCode  string     `json:"index_code"`
	Return20D  float64    `json:"return_20d"`
	Rank       int        `json:"rank"`
	IsTradable bool       `json:"is_tradable"`
	DataSource DataSource `json:"data_source"`
}
