// Package ledger implements the position/lot ledger: per-(account,
// asset) quantity, cost basis, and cash balances, mutated by applying
// canonical postings produced by package activity.
package ledger

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/aristath/ledgercore/internal/domain"
	"github.com/aristath/ledgercore/internal/errs"
	"github.com/aristath/ledgercore/internal/money"
)

// Ledger holds one account's in-flight replay state: open lots per asset and
// cash balances per currency. It is mutated in place by Apply; callers that
// need a point-in-time copy (e.g. the snapshot engine, package snapshot) use
// domain.AccountSnapshot.Clone semantics instead of copying a Ledger directly.
type Ledger struct {
	AccountID       string
	Positions       map[string][]domain.Lot // asset id -> open lots, oldest first
	Cash            map[money.Currency]decimal.Decimal
	NetContribution decimal.Decimal // in account currency
	RealizedGain    decimal.Decimal // cumulative, in account currency
}

// New returns an empty ledger for accountID.
func New(accountID string) *Ledger {
	return &Ledger{
		AccountID: accountID,
		Positions: make(map[string][]domain.Lot),
		Cash:      make(map[money.Currency]decimal.Decimal),
	}
}

// FromSnapshot seeds a ledger from a prior snapshot, the starting point for
// an incremental recalculation.
func FromSnapshot(s domain.AccountSnapshot) *Ledger {
	l := New(s.AccountID)
	for assetID, pos := range s.Positions {
		lots := make([]domain.Lot, len(pos.Lots))
		copy(lots, pos.Lots)
		l.Positions[assetID] = lots
	}
	for ccy, amt := range s.Cash {
		l.Cash[ccy] = amt
	}
	l.NetContribution = s.NetContribution
	l.RealizedGain = s.RealizedGain
	return l
}

func (l *Ledger) cashAdd(ccy money.Currency, delta decimal.Decimal) {
	l.Cash[ccy] = l.Cash[ccy].Add(delta)
}

func (l *Ledger) contributionAdd(delta decimal.Decimal) {
	l.NetContribution = l.NetContribution.Add(delta)
}

// Posting is a single canonical ledger mutation. It is produced
// by compiling an Activity (package activity) into 1..N postings, one per
// Posting value, carried 1:1 from the compiled Activity's fields.
type Posting struct {
	Type      domain.ActivityType
	Date      time.Time
	ID        string // opening activity id, for lot tracking
	AssetID   string // empty for pure-cash postings
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Amount    decimal.Decimal
	Fee       decimal.Decimal
	Currency  money.Currency
	Ratio     decimal.Decimal // SPLIT only
}

// Apply mutates the ledger according to the posting's type.
func (l *Ledger) Apply(p Posting) error {
	switch p.Type {
	case domain.ActivityBuy:
		return l.applyBuy(p)
	case domain.ActivitySell:
		return l.applySell(p)
	case domain.ActivityDeposit:
		l.cashCredit(p)
		return nil
	case domain.ActivityInterest, domain.ActivityDividend:
		l.cashCreditIncome(p)
		return nil
	case domain.ActivityWithdrawal:
		l.cashDebit(p)
		return nil
	case domain.ActivityConversionIn:
		l.cashCredit(p)
		return nil
	case domain.ActivityConversionOut:
		l.cashDebit(p)
		return nil
	case domain.ActivityTransferIn:
		if p.AssetID == "" || isCashAsset(p.AssetID) {
			l.cashCredit(p)
			return nil
		}
		return l.addHolding(p)
	case domain.ActivityTransferOut:
		if p.AssetID == "" || isCashAsset(p.AssetID) {
			l.cashDebit(p)
			return nil
		}
		return l.removeHolding(p, false)
	case domain.ActivityAddHolding:
		return l.addHolding(p)
	case domain.ActivityRemoveHolding:
		return l.removeHolding(p, true)
	case domain.ActivityFee, domain.ActivityTax:
		l.applyFeeOrTax(p)
		return nil
	case domain.ActivitySplit:
		return l.applySplit(p)
	default:
		return errs.New(errs.KindValidation, "unsupported posting type "+string(p.Type))
	}
}

func isCashAsset(assetID string) bool {
	_, ok := money.IsCashAssetID(assetID)
	return ok
}

// applyBuy: adjust cash by -(qty*price+fee); append a lot.
func (l *Ledger) applyBuy(p Posting) error {
	if isCashAsset(p.AssetID) {
		return errs.New(errs.KindValidation, "cash assets cannot be BUY targets")
	}
	cost := p.Quantity.Mul(p.UnitPrice).Add(p.Fee)
	l.cashAdd(p.Currency, cost.Neg())
	l.Positions[p.AssetID] = append(l.Positions[p.AssetID], domain.Lot{
		AccountID:         l.AccountID,
		AssetID:           p.AssetID,
		OpenDate:          p.Date,
		OpenActivityID:    p.ID,
		OriginalQuantity:  p.Quantity,
		RemainingQuantity: p.Quantity,
		UnitCost:          p.UnitPrice,
	})
	return nil
}

// applySell: adjust cash by +(qty*price-fee); reduce lots FIFO; accumulate
// realized gain as qty*price - cost basis consumed (fee-exclusive). Fails
// with InsufficientQuantity if requested qty exceeds
// available by more than money.QuantityEpsilon.
func (l *Ledger) applySell(p Posting) error {
	if isCashAsset(p.AssetID) {
		return errs.New(errs.KindValidation, "cash assets cannot be SELL targets")
	}
	costConsumed, err := l.reduceFIFO(p.AssetID, p.Quantity, false)
	if err != nil {
		return err
	}
	gross := p.Quantity.Mul(p.UnitPrice)
	l.RealizedGain = l.RealizedGain.Add(gross.Sub(costConsumed))
	l.cashAdd(p.Currency, gross.Sub(p.Fee))
	return nil
}

// reduceFIFO reduces lots for assetID by qty, oldest (opening date then
// opening activity id) first, and returns the cost basis consumed. When
// clamp is true (REMOVE_HOLDING) the reduction is clamped to what's
// available instead of failing, and a warning is logged.
func (l *Ledger) reduceFIFO(assetID string, qty decimal.Decimal, clamp bool) (decimal.Decimal, error) {
	lots := l.Positions[assetID]
	sort.SliceStable(lots, func(i, j int) bool {
		if !lots[i].OpenDate.Equal(lots[j].OpenDate) {
			return lots[i].OpenDate.Before(lots[j].OpenDate)
		}
		return lots[i].OpenActivityID < lots[j].OpenActivityID
	})

	available := decimal.Zero
	for _, lot := range lots {
		available = available.Add(lot.RemainingQuantity)
	}

	remaining := qty
	if remaining.Sub(available).GreaterThan(money.QuantityEpsilon) {
		if !clamp {
			return decimal.Zero, errs.New(errs.KindInsufficientQuantity, "requested quantity exceeds available position for "+assetID)
		}
		log.Warn().Str("asset_id", assetID).Str("requested", qty.String()).Str("available", available.String()).
			Msg("removal exceeds held quantity, clamped to available")
		remaining = available
	}

	costConsumed := decimal.Zero
	kept := lots[:0]
	for i := range lots {
		if remaining.LessThanOrEqual(decimal.Zero) {
			kept = append(kept, lots[i])
			continue
		}
		take := decimal.Min(remaining, lots[i].RemainingQuantity)
		costConsumed = costConsumed.Add(take.Mul(lots[i].UnitCost))
		lots[i].RemainingQuantity = lots[i].RemainingQuantity.Sub(take)
		remaining = remaining.Sub(take)
		if money.IsNegligible(lots[i].RemainingQuantity) {
			continue // lot fully consumed, drop it
		}
		kept = append(kept, lots[i])
	}

	if len(kept) == 0 {
		delete(l.Positions, assetID)
	} else {
		l.Positions[assetID] = kept
	}
	return costConsumed, nil
}

func (l *Ledger) addHolding(p Posting) error {
	if isCashAsset(p.AssetID) {
		return errs.New(errs.KindValidation, "cash assets cannot be holding targets")
	}
	l.Positions[p.AssetID] = append(l.Positions[p.AssetID], domain.Lot{
		AccountID:         l.AccountID,
		AssetID:           p.AssetID,
		OpenDate:          p.Date,
		OpenActivityID:    p.ID,
		OriginalQuantity:  p.Quantity,
		RemainingQuantity: p.Quantity,
		UnitCost:          p.UnitPrice,
	})
	return nil
}

func (l *Ledger) removeHolding(p Posting, clamp bool) error {
	_, err := l.reduceFIFO(p.AssetID, p.Quantity, clamp)
	return err
}

// cashCredit handles external cash-credit postings (DEPOSIT, CONVERSION_IN,
// cash TRANSFER_IN): these are contributions, so they also accumulate into
// NetContribution. Dividends and interest are earnings, not contributions,
// so they credit cash without touching NetContribution.
func (l *Ledger) cashCredit(p Posting) {
	l.cashAdd(p.Currency, p.Amount.Sub(p.Fee))
	l.contributionAdd(p.Amount.Sub(p.Fee))
}

// cashCreditIncome handles INTEREST/DIVIDEND: investment income credits cash
// but is never an external contribution, so NetContribution is untouched.
func (l *Ledger) cashCreditIncome(p Posting) {
	l.cashAdd(p.Currency, p.Amount.Sub(p.Fee))
}

func (l *Ledger) cashDebit(p Posting) {
	l.cashAdd(p.Currency, p.Amount.Add(p.Fee).Neg())
	l.contributionAdd(p.Amount.Add(p.Fee).Neg())
}

// applyFeeOrTax: cash -= fee, falling back to amount if fee is zero.
func (l *Ledger) applyFeeOrTax(p Posting) {
	charge := p.Fee
	if charge.IsZero() {
		charge = p.Amount
	}
	l.cashAdd(p.Currency, charge.Neg())
}

// applySplit: multiply every remaining lot's quantity by ratio, divide unit
// cost by ratio; no cash effect.
func (l *Ledger) applySplit(p Posting) error {
	if isCashAsset(p.AssetID) {
		return errs.New(errs.KindValidation, "cash assets cannot be SPLIT targets")
	}
	if p.Ratio.IsZero() {
		return errs.New(errs.KindValidation, "split ratio must be non-zero")
	}
	lots := l.Positions[p.AssetID]
	for i := range lots {
		lots[i].OriginalQuantity = lots[i].OriginalQuantity.Mul(p.Ratio)
		lots[i].RemainingQuantity = lots[i].RemainingQuantity.Mul(p.Ratio)
		lots[i].UnitCost = lots[i].UnitCost.Div(p.Ratio)
	}
	return nil
}

// TotalQuantity returns the summed remaining quantity across all lots for an
// asset.
func (l *Ledger) TotalQuantity(assetID string) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range l.Positions[assetID] {
		total = total.Add(lot.RemainingQuantity)
	}
	return total
}

// CostConverter converts an amount recorded for assetID (in the asset's own
// currency) on date into the snapshot's reporting currency. A nil converter
// carries the amount over unconverted.
type CostConverter func(assetID string, amount decimal.Decimal, date time.Time) decimal.Decimal

// Snapshot builds a domain.AccountSnapshot from the ledger's current state,
// tagged with date and reportingCurrency. convert supplies each position's
// cost basis in the reporting currency, lot by lot at the lot's open date.
func (l *Ledger) Snapshot(date time.Time, reportingCurrency money.Currency, calculatedAt time.Time, convert CostConverter) domain.AccountSnapshot {
	positions := make(map[string]domain.PositionState, len(l.Positions))
	for assetID, lots := range l.Positions {
		qty := decimal.Zero
		costBasis := decimal.Zero
		costBasisAcct := decimal.Zero
		lotsCopy := make([]domain.Lot, len(lots))
		for i, lot := range lots {
			qty = qty.Add(lot.RemainingQuantity)
			lotCost := lot.RemainingQuantity.Mul(lot.UnitCost)
			costBasis = costBasis.Add(lotCost)
			if convert != nil {
				costBasisAcct = costBasisAcct.Add(convert(assetID, lotCost, lot.OpenDate))
			} else {
				costBasisAcct = costBasisAcct.Add(lotCost)
			}
			lotsCopy[i] = lot
		}
		positions[assetID] = domain.PositionState{
			Quantity:       qty,
			CostBasisAsset: costBasis,
			CostBasisAcct:  costBasisAcct,
			Lots:           lotsCopy,
		}
	}
	cash := make(map[money.Currency]decimal.Decimal, len(l.Cash))
	for ccy, amt := range l.Cash {
		cash[ccy] = amt
	}
	snap := domain.AccountSnapshot{
		AccountID:         l.AccountID,
		Date:              date,
		ReportingCurrency: reportingCurrency,
		Positions:         positions,
		Cash:              cash,
		NetContribution:   l.NetContribution,
		RealizedGain:      l.RealizedGain,
		CalculatedAt:      calculatedAt,
	}
	snap.PrunePositions()
	return snap
}
