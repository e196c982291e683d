package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot is an opened position tranche with its own cost basis.
// Lots are never split across assets. SELL reduces lots FIFO by opening date
// then opening activity id; SPLIT multiplies quantities by the ratio and
// divides unit cost by the same ratio.
type Lot struct {
	AccountID         string
	AssetID           string
	OpenDate          time.Time
	OpenActivityID    string
	OriginalQuantity  decimal.Decimal
	RemainingQuantity decimal.Decimal
	UnitCost          decimal.Decimal // in asset currency
}

// Clone returns a value copy of the lot (decimal.Decimal is itself a value type).
func (l Lot) Clone() Lot { return l }
