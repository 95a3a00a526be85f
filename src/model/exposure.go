package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExposureRow is one option contract's processed greeks for a single strike.
// Rows are produced upstream by the greeks pipeline and are read-only here;
// a fresh table arrives every analysis cycle.
type ExposureRow struct {
	Strike        decimal.Decimal `json:"strike"`
	GammaExposure decimal.Decimal `json:"gamma_exposure"`
	DeltaExposure decimal.Decimal `json:"delta_exposure"`
	VannaExposure decimal.Decimal `json:"vanna_exposure"`
	CharmExposure decimal.Decimal `json:"charm_exposure"`
	OpenInterest  decimal.Decimal `json:"open_interest"`
}

// VWAPBands is the session reference mean with its first and second
// standard-deviation bands, computed by the data collaborator.
type VWAPBands struct {
	VWAP      decimal.Decimal `json:"vwap"`
	Std1Upper decimal.Decimal `json:"std1_upper"`
	Std1Lower decimal.Decimal `json:"std1_lower"`
	Std2Upper decimal.Decimal `json:"std2_upper"`
	Std2Lower decimal.Decimal `json:"std2_lower"`
}

// ExposureSnapshot is one cycle's view of the option chain: per-strike
// exposure tables for calls and puts plus the underlying price and VWAP
// bands, tied to the nearest-expiry selection made upstream.
type ExposureSnapshot struct {
	Symbol    string          `json:"symbol"`
	Expiry    string          `json:"expiry"`
	Price     decimal.Decimal `json:"price"`
	Calls     []ExposureRow   `json:"calls"`
	Puts      []ExposureRow   `json:"puts"`
	VWAP      VWAPBands       `json:"vwap"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Rows returns calls and puts as a single table.
func (s *ExposureSnapshot) Rows() []ExposureRow {
	rows := make([]ExposureRow, 0, len(s.Calls)+len(s.Puts))
	rows = append(rows, s.Calls...)
	rows = append(rows, s.Puts...)
	return rows
}
