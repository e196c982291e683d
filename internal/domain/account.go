// Package domain holds the core data model shared by every component:
// accounts, assets, activities, lots, snapshots, valuation points, and
// quotes.
package domain

import "github.com/aristath/ledgercore/internal/money"

// Account is a holdable account: an id, its reporting currency, and its
// lifecycle flags. Alternative-asset kinds (see AssetKind) never create an
// account of their own; they live as positions inside whichever account holds
// them.
type Account struct {
	ID         string
	Name       string
	Currency   money.Currency
	Active     bool
	Archived   bool
	PlatformID *string
}

// IsHoldable reports whether this account can carry positions. All Account
// values are holdable by construction; the distinction exists so callers that
// accept either an Account or a synthetic TOTAL identifier can share a type.
func (a Account) IsHoldable() bool { return true }
