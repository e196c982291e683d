package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValuationPoint is a snapshot projected into a reporting currency using
// quotes and FX. AccountID is either a real account id or the
// configured TOTAL account id.
type ValuationPoint struct {
	AccountID             string
	Date                  time.Time
	MarketValue           decimal.Decimal
	CostBasis             decimal.Decimal
	UnrealizedGain        decimal.Decimal
	RealizedGain          decimal.Decimal
	CumulativeNetDeposits decimal.Decimal
	DayGainValue          decimal.Decimal
	DayGainPct            decimal.Decimal
	BaseExchangeRateUsed  *decimal.Decimal // nil when no rate could be resolved
}
