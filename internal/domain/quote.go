package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/ledgercore/internal/money"
)

// Quote is a single OHLCV price observation for an asset.
// Invariants: at most one quote per (asset id, civil day, data source);
// Currency must equal the asset's currency.
type Quote struct {
	AssetID    string
	Timestamp  time.Time
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	AdjClose   *decimal.Decimal
	Volume     *decimal.Decimal
	Currency   money.Currency
	DataSource string
	Notes      *string
}

// CivilDay truncates Timestamp to a UTC calendar day, the granularity quotes
// are keyed and deduplicated by.
func (q Quote) CivilDay() time.Time {
	return time.Date(q.Timestamp.Year(), q.Timestamp.Month(), q.Timestamp.Day(), 0, 0, 0, 0, time.UTC)
}

// Validate checks the per-quote validation rules:
// positive finite numbers, low <= open,close <= high, non-negative volume,
// non-empty currency. windowStart/windowEnd bound the request window with a
// +/-1 day tolerance; pass zero values to skip the timestamp check.
func (q Quote) Validate(windowStart, windowEnd time.Time) error {
	if q.Currency == "" {
		return quoteValidationErr{"currency must not be empty"}
	}
	for _, v := range []decimal.Decimal{q.Open, q.High, q.Low, q.Close} {
		if v.IsNegative() || v.IsZero() {
			return quoteValidationErr{"price fields must be positive"}
		}
	}
	if q.Low.GreaterThan(q.Open) || q.Low.GreaterThan(q.Close) || q.Open.GreaterThan(q.High) || q.Close.GreaterThan(q.High) {
		return quoteValidationErr{"must have low <= open,close <= high"}
	}
	if q.Volume != nil && q.Volume.IsNegative() {
		return quoteValidationErr{"volume must be non-negative"}
	}
	if !windowStart.IsZero() && !windowEnd.IsZero() {
		tolerance := 24 * time.Hour
		if q.Timestamp.Before(windowStart.Add(-tolerance)) || q.Timestamp.After(windowEnd.Add(tolerance)) {
			return quoteValidationErr{"timestamp outside request window"}
		}
	}
	return nil
}

type quoteValidationErr struct{ msg string }

func (e quoteValidationErr) Error() string { return e.msg }
