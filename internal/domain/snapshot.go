package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/ledgercore/internal/money"
)

// PositionState is one asset's state within an AccountSnapshot.
type PositionState struct {
	Quantity       decimal.Decimal
	CostBasisAsset decimal.Decimal // cost basis in asset currency
	CostBasisAcct  decimal.Decimal // cost basis in account/reporting currency
	Lots           []Lot
}

// AccountSnapshot is the per-account, per-date ledger keyframe.
// Invariants: at most one snapshot per (account, civil date); a snapshot on
// date D reflects all Posted activities with activity date <= D; an asset
// with residual quantity below money.QuantityEpsilon is removed from
// Positions.
type AccountSnapshot struct {
	AccountID         string
	Date              time.Time // civil date, UTC midnight
	ReportingCurrency money.Currency
	Positions         map[string]PositionState // asset id -> state
	Cash              map[money.Currency]decimal.Decimal
	NetContribution   decimal.Decimal // in account currency
	RealizedGain      decimal.Decimal // cumulative, in account currency
	CalculatedAt      time.Time
}

// Clone returns a deep copy suitable for mutation during replay without
// aliasing the source snapshot's maps/slices.
func (s AccountSnapshot) Clone() AccountSnapshot {
	out := s
	out.Positions = make(map[string]PositionState, len(s.Positions))
	for k, v := range s.Positions {
		lots := make([]Lot, len(v.Lots))
		copy(lots, v.Lots)
		v.Lots = lots
		out.Positions[k] = v
	}
	out.Cash = make(map[money.Currency]decimal.Decimal, len(s.Cash))
	for k, v := range s.Cash {
		out.Cash[k] = v
	}
	return out
}

// PrunePositions removes assets whose remaining quantity has fallen below
// money.QuantityEpsilon.
func (s *AccountSnapshot) PrunePositions() {
	for assetID, pos := range s.Positions {
		if money.IsNegligible(pos.Quantity) {
			delete(s.Positions, assetID)
		}
	}
}
