package domain

import (
	"encoding/json"

	"github.com/aristath/ledgercore/internal/money"
)

// AssetKind is the kind of instrument an Asset represents.
type AssetKind string

const (
	AssetKindSecurity        AssetKind = "SECURITY"
	AssetKindCrypto          AssetKind = "CRYPTO"
	AssetKindCash            AssetKind = "CASH"
	AssetKindFxRate          AssetKind = "FX_RATE"
	AssetKindOption          AssetKind = "OPTION"
	AssetKindCommodity       AssetKind = "COMMODITY"
	AssetKindPrivateEquity   AssetKind = "PRIVATE_EQUITY"
	AssetKindProperty        AssetKind = "PROPERTY"
	AssetKindVehicle         AssetKind = "VEHICLE"
	AssetKindCollectible     AssetKind = "COLLECTIBLE"
	AssetKindPhysicalPrecious AssetKind = "PHYSICAL_PRECIOUS"
	AssetKindLiability       AssetKind = "LIABILITY"
	AssetKindOther           AssetKind = "OTHER"
)

// alternativeAssetKinds never price from a market provider: they are always
// user-entered (pricing_mode=Manual).
var alternativeAssetKinds = map[AssetKind]bool{
	AssetKindPrivateEquity:    true,
	AssetKindProperty:         true,
	AssetKindVehicle:          true,
	AssetKindCollectible:      true,
	AssetKindPhysicalPrecious: true,
	AssetKindLiability:        true,
	AssetKindOther:            true,
}

// IsAlternative reports whether k is an alternative-asset kind: these
// never create an account and are always Manual-priced.
func (k AssetKind) IsAlternative() bool { return alternativeAssetKinds[k] }

// IsHoldable reports whether an asset of this kind can appear in a position.
// FxRate assets exist only to carry conversion quotes; they are never held.
func (k AssetKind) IsHoldable() bool { return k != AssetKindFxRate }

// PricingMode determines where an asset's price comes from.
type PricingMode string

const (
	PricingModeMarket  PricingMode = "MARKET"
	PricingModeManual  PricingMode = "MANUAL"
	PricingModeDerived PricingMode = "DERIVED"
	PricingModeNone    PricingMode = "NONE"
)

// Asset is a priceable or nominally-priced instrument.
type Asset struct {
	ID          string
	Symbol      string
	Name        string
	Currency    money.Currency
	Kind        AssetKind
	PricingMode PricingMode
	ExchangeMIC *string
	ISOClass    *string
	Metadata    json.RawMessage
	Profile     json.RawMessage
}

// NewCashAsset builds the synthetic cash asset for a currency: id
// "$CASH-<CCY>", pricing_mode=None.
func NewCashAsset(currency money.Currency) Asset {
	return Asset{
		ID:          money.CashAssetID(currency),
		Symbol:      string(currency),
		Name:        "Cash " + string(currency),
		Currency:    currency,
		Kind:        AssetKindCash,
		PricingMode: PricingModeNone,
	}
}

// NewFxAsset builds the synthetic FX asset for a base/quote currency pair:
// symbol=base currency, currency=quote currency, pricing_mode=Market.
func NewFxAsset(base, quote money.Currency) Asset {
	return Asset{
		ID:          "FX-" + string(base) + "/" + string(quote),
		Symbol:      string(base),
		Name:        string(base) + "/" + string(quote),
		Currency:    quote,
		Kind:        AssetKindFxRate,
		PricingMode: PricingModeMarket,
	}
}

// Validate checks the invariants that are cheap to check locally
// (it cannot check global uniqueness, which is a repository concern).
func (a Asset) Validate() error {
	if ccy, ok := money.IsCashAssetID(a.ID); ok {
		if a.Kind != AssetKindCash || a.PricingMode != PricingModeNone {
			return assetInvariantError("cash asset must have kind=Cash and pricing_mode=None")
		}
		if a.Currency != ccy {
			return assetInvariantError("cash asset currency must match its id suffix")
		}
	}
	if a.Kind == AssetKindFxRate && a.PricingMode != PricingModeMarket {
		return assetInvariantError("fx asset must have pricing_mode=Market")
	}
	if a.Kind.IsAlternative() && a.PricingMode != PricingModeManual {
		return assetInvariantError("alternative asset kinds must have pricing_mode=Manual")
	}
	return nil
}

type assetInvariantErr struct{ msg string }

func (e assetInvariantErr) Error() string { return e.msg }

func assetInvariantError(msg string) error { return assetInvariantErr{msg} }
