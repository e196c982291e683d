// Package money provides fixed-scale decimal arithmetic for currency-tagged amounts.
//
// Every monetary quantity in the core is a Money value: a shopspring/decimal.Decimal
// tagged with an ISO 4217 currency code. Arithmetic between two Money values of
// different currencies panics; callers must convert through the FX
// service (package fx) before combining amounts, so a silent cross-currency
// addition can never slip into a snapshot or valuation.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DisplayScale is the number of fractional digits used when rounding a Decimal
// for display or persistence. Internal arithmetic stays exact.
const DisplayScale = 10

// QuantityEpsilon is the significance threshold below which a remaining lot or
// position quantity is treated as closed out.
var QuantityEpsilon = decimal.New(1, -8) // 10^-8

// Currency is an ISO 4217 currency code, upper-cased.
type Currency string

// Money is a decimal amount tagged with its currency.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

// New builds a Money value from a decimal amount.
func New(amount decimal.Decimal, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// Zero returns a zero amount in the given currency.
func Zero(currency Currency) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// FromString parses a decimal string into a Money value.
func FromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("money: invalid amount %q: %w", amount, err)
	}
	return Money{Amount: d, Currency: currency}, nil
}

// FromFloat builds a Money value from a float64. Prefer FromString/New for values
// that originate as decimal literals; FromFloat exists for provider payloads that
// only hand back float64 quotes.
func FromFloat(amount float64, currency Currency) Money {
	return Money{Amount: decimal.NewFromFloat(amount), Currency: currency}
}

func (m Money) mustSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: mismatched currencies %s and %s", m.Currency, other.Currency))
	}
}

// Add returns m+other. Panics if the currencies differ.
func (m Money) Add(other Money) Money {
	m.mustSameCurrency(other)
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}
}

// Sub returns m-other. Panics if the currencies differ.
func (m Money) Sub(other Money) Money {
	m.mustSameCurrency(other)
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

// MulDec returns m scaled by a unitless decimal factor (e.g. a quantity or an FX rate).
func (m Money) MulDec(factor decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(factor), Currency: m.Currency}
}

// DivDec returns m divided by a unitless decimal divisor.
func (m Money) DivDec(divisor decimal.Decimal) Money {
	return Money{Amount: m.Amount.Div(divisor), Currency: m.Currency}
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// LessThanEpsilon reports whether the absolute amount is below QuantityEpsilon,
// the significance threshold used to decide when a lot or position is closed out.
func (m Money) LessThanEpsilon() bool {
	return IsNegligible(m.Amount)
}

// IsNegligible reports whether the absolute value of d is below
// QuantityEpsilon, the significance threshold used to decide when a lot or
// position is closed out.
func IsNegligible(d decimal.Decimal) bool {
	return d.Abs().LessThan(QuantityEpsilon)
}

// Round rounds the amount to DisplayScale fractional digits for display/persistence.
func (m Money) Round() Money {
	return Money{Amount: m.Amount.Round(DisplayScale), Currency: m.Currency}
}

// String renders "amount CCY", rounded to DisplayScale.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Round().Amount.String(), m.Currency)
}

// CashAssetID returns the synthetic asset id for a cash position in the given
// currency: cash assets have id "$CASH-<CCY>".
func CashAssetID(currency Currency) string {
	return fmt.Sprintf("$CASH-%s", currency)
}

// IsCashAssetID reports whether id is a synthetic cash-asset id, and if so
// returns the currency it denotes.
func IsCashAssetID(id string) (Currency, bool) {
	const prefix = "$CASH-"
	if len(id) <= len(prefix) || id[:len(prefix)] != prefix {
		return "", false
	}
	return Currency(id[len(prefix):]), true
}
