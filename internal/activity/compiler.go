// Package activity implements the activity compiler: deterministic
// expansion of stored activities into the canonical postings the ledger
// (package ledger) understands.
package activity

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/ledgercore/internal/domain"
)

// Compiler expands a single stored Activity into 1..N canonical postings.
// Compile must be deterministic: identical input yields identical output
// byte-for-byte.
type Compiler struct{}

// New returns the default compiler.
func New() Compiler { return Compiler{} }

// Compile expands a into its canonical postings. Non-Posted activities
// produce no output; compound (type, subtype) pairs expand to multiple
// legs; everything else passes through unchanged.
func (Compiler) Compile(a domain.Activity) []domain.Activity {
	if a.Status != domain.StatusPosted {
		return nil
	}

	effectiveType := a.EffectiveType()
	var subtype domain.ActivitySubtype
	if a.Subtype != nil {
		subtype = *a.Subtype
	}

	switch {
	case effectiveType == domain.ActivityDividend && subtype == domain.SubtypeDRIP:
		return compileDRIP(a)
	case effectiveType == domain.ActivityInterest && subtype == domain.SubtypeStakingReward:
		return compileStakingReward(a)
	case effectiveType == domain.ActivityDividend && subtype == domain.SubtypeDividendInKind:
		return compileDividendInKind(a)
	default:
		return []domain.Activity{a.Clone()}
	}
}

// CompileAll compiles a batch of activities, preserving order: each
// activity's legs are contiguous and ordered as produced by Compile.
func (c Compiler) CompileAll(activities []domain.Activity) []domain.Activity {
	out := make([]domain.Activity, 0, len(activities))
	for _, a := range activities {
		out = append(out, c.Compile(a)...)
	}
	return out
}

func zeroFee() *decimal.Decimal {
	z := decimal.Zero
	return &z
}

// compileDRIP expands DIVIDEND+DRIP into "<id>:dividend" (DIVIDEND,
// original amount, cleared quantity/unit_price/subtype) then "<id>:buy" (BUY,
// original quantity/unit_price, cleared amount, fee=0, cleared override/subtype).
func compileDRIP(a domain.Activity) []domain.Activity {
	dividend := a.Clone()
	dividend.ID = a.ID + ":dividend"
	dividend.Subtype = nil
	dividend.Quantity = nil
	dividend.UnitPrice = nil

	buy := a.Clone()
	buy.ID = a.ID + ":buy"
	buy.Type = domain.ActivityBuy
	buy.UserOverrideType = nil
	buy.Subtype = nil
	buy.Amount = nil
	buy.Fee = zeroFee()

	return []domain.Activity{dividend, buy}
}

// compileStakingReward expands INTEREST+STAKING_REWARD into
// "<id>:interest" + "<id>:buy", analogous to compileDRIP.
func compileStakingReward(a domain.Activity) []domain.Activity {
	interest := a.Clone()
	interest.ID = a.ID + ":interest"
	interest.Subtype = nil
	interest.Quantity = nil
	interest.UnitPrice = nil

	buy := a.Clone()
	buy.ID = a.ID + ":buy"
	buy.Type = domain.ActivityBuy
	buy.UserOverrideType = nil
	buy.Subtype = nil
	buy.Amount = nil
	buy.Fee = zeroFee()

	return []domain.Activity{interest, buy}
}

// receivedAssetMetaKey is the metadata field dividend-in-kind activities carry
// the received asset's id under.
const receivedAssetMetaKey = "received_asset_id"

// compileDividendInKind expands DIVIDEND+DIVIDEND_IN_KIND into
// "<id>:dividend" on the paying asset + "<id>:transfer_in" on
// metadata.received_asset_id (falling back to the original asset id), with
// metadata stripped and fee=0 on the transfer leg.
func compileDividendInKind(a domain.Activity) []domain.Activity {
	dividend := a.Clone()
	dividend.ID = a.ID + ":dividend"
	dividend.Subtype = nil
	dividend.Quantity = nil
	dividend.UnitPrice = nil

	receivedAssetID := a.AssetID
	if v, ok := a.MetaString(receivedAssetMetaKey); ok {
		receivedAssetID = &v
	}

	transferIn := a.Clone()
	transferIn.ID = a.ID + ":transfer_in"
	transferIn.Type = domain.ActivityTransferIn
	transferIn.UserOverrideType = nil
	transferIn.Subtype = nil
	transferIn.AssetID = receivedAssetID
	transferIn.Amount = nil
	transferIn.Fee = zeroFee()
	transferIn.Metadata = nil

	return []domain.Activity{dividend, transferIn}
}
