// Package valuation implements the valuation engine: per-date market
// value, cost basis, and gain computation over a snapshot series, plus the
// return-series calculations (TWR, annualized return, volatility, max
// drawdown).
package valuation

import (
	"context"
	"math"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/ledgercore/internal/domain"
	"github.com/aristath/ledgercore/internal/money"
)

// rateCache remembers the last rate actually resolved for a currency pair
// within one Compute call, used as the last-known-rate fallback when a
// date's fx lookup comes back MissingFxRate.
type rateCache map[string]decimal.Decimal

func cacheKey(from, to money.Currency) string {
	return string(from) + "/" + string(to)
}

// QuoteLookup is the read surface the engine needs from the quote store.
type QuoteLookup interface {
	LatestQuoteOnOrBefore(ctx context.Context, assetID string, date time.Time) (decimal.Decimal, bool, error)
}

// Converter is the read surface the engine needs from the FX service.
type Converter interface {
	Rate(ctx context.Context, from, to money.Currency, date time.Time) (decimal.Decimal, error)
	Convert(ctx context.Context, amount decimal.Decimal, from, to money.Currency, date time.Time) (decimal.Decimal, error)
}

// Repository is the persistence surface the engine needs (package
// store provides the concrete implementation).
type Repository interface {
	// ReplaceRange range-deletes existing valuations for accountID within
	// [start, end] and inserts points in one transaction.
	ReplaceRange(ctx context.Context, accountID string, start, end time.Time, points []domain.ValuationPoint) error
}

// Engine implements the valuation engine.
type Engine struct {
	quotes       QuoteLookup
	fx           Converter
	store        Repository
	baseCurrency money.Currency
	log          zerolog.Logger
}

// New builds a valuation engine. baseCurrency is the reporting currency for
// the TOTAL account; it is used only to populate each
// point's BaseExchangeRateUsed, independent of the reportingCurrency argument
// a given Compute call converts into.
func New(quotes QuoteLookup, fx Converter, store Repository, baseCurrency money.Currency, log zerolog.Logger) *Engine {
	return &Engine{quotes: quotes, fx: fx, store: store, baseCurrency: baseCurrency, log: log.With().Str("component", "valuation").Logger()}
}

// AssetCurrencyLookup resolves the currency a given asset's quotes are
// denominated in. In practice this is supplied by the asset repository;
// tests and small callers may pass a constant-currency lookup.
type AssetCurrencyLookup func(assetID string) money.Currency

// Compute derives one ValuationPoint per snapshot date for one account,
// walking the series in date order. assetCurrency resolves the
// quote currency for an asset id (quotes are stored in the asset's native
// currency; FX converts to reportingCurrency).
func (e *Engine) Compute(ctx context.Context, snapshots []domain.AccountSnapshot, reportingCurrency money.Currency, assetCurrency AssetCurrencyLookup) ([]domain.ValuationPoint, error) {
	points := make([]domain.ValuationPoint, 0, len(snapshots))
	var prevMarketValue decimal.Decimal
	var prevClose map[string]decimal.Decimal
	cache := make(rateCache)

	for i, snap := range snapshots {
		marketValue := decimal.Zero
		costBasis := decimal.Zero
		dayGainValue := decimal.Zero
		currentClose := make(map[string]decimal.Decimal, len(snap.Positions))

		for assetID, pos := range snap.Positions {
			quote, found, err := e.quotes.LatestQuoteOnOrBefore(ctx, assetID, snap.Date)
			if err != nil {
				return nil, err
			}
			if !found {
				continue
			}
			currentClose[assetID] = quote

			assetCcy := assetCurrency(assetID)
			rate, ok := e.resolveRate(ctx, cache, assetCcy, reportingCurrency, snap.Date)
			if !ok {
				continue
			}
			positionValueAcct := pos.Quantity.Mul(quote).Mul(rate)
			marketValue = marketValue.Add(positionValueAcct)

			for _, lot := range pos.Lots {
				lotRate, ok := e.resolveRate(ctx, cache, assetCcy, reportingCurrency, lot.OpenDate)
				if !ok {
					continue
				}
				costBasis = costBasis.Add(lot.RemainingQuantity.Mul(lot.UnitCost).Mul(lotRate))
			}

			if prevClose != nil {
				if prev, ok := prevClose[assetID]; ok {
					dayGainValue = dayGainValue.Add(pos.Quantity.Mul(quote.Sub(prev)).Mul(rate))
				}
			}
		}

		cashValue := decimal.Zero
		for ccy, amt := range snap.Cash {
			rate, ok := e.resolveRate(ctx, cache, ccy, reportingCurrency, snap.Date)
			if !ok {
				continue
			}
			cashValue = cashValue.Add(amt.Mul(rate))
		}
		marketValue = marketValue.Add(cashValue)

		unrealizedGain := marketValue.Sub(costBasis).Sub(cashValue)

		dayGainPct := decimal.Zero
		if i > 0 && !prevMarketValue.IsZero() {
			dayGainPct = dayGainValue.Div(prevMarketValue)
		}

		netDeposits, ok := e.resolveConvert(ctx, cache, snap.NetContribution, snap.ReportingCurrency, reportingCurrency, snap.Date)
		if !ok {
			netDeposits = decimal.Zero
		}

		realizedGain, ok := e.resolveConvert(ctx, cache, snap.RealizedGain, snap.ReportingCurrency, reportingCurrency, snap.Date)
		if !ok {
			realizedGain = decimal.Zero
		}

		var baseRateUsed *decimal.Decimal
		if rate, ok := e.resolveRate(ctx, cache, reportingCurrency, e.baseCurrency, snap.Date); ok {
			r := rate
			baseRateUsed = &r
		}

		points = append(points, domain.ValuationPoint{
			AccountID:             snap.AccountID,
			Date:                  snap.Date,
			MarketValue:           marketValue,
			CostBasis:             costBasis,
			UnrealizedGain:        unrealizedGain,
			RealizedGain:          realizedGain,
			CumulativeNetDeposits: netDeposits,
			DayGainValue:          dayGainValue,
			DayGainPct:            dayGainPct,
			BaseExchangeRateUsed:  baseRateUsed,
		})

		prevMarketValue = marketValue
		prevClose = currentClose
	}
	return points, nil
}

// resolveRate resolves from->to on date, falling back to the most recently
// resolved rate for the same pair when the fx service fails: the affected
// point uses the last known rate if available, otherwise it is emitted with
// a nil exchange rate and the error logged. ok is false only when no rate,
// current or cached, is available at all, in which case the caller skips
// that contribution instead of aborting the whole series.
func (e *Engine) resolveRate(ctx context.Context, cache rateCache, from, to money.Currency, date time.Time) (decimal.Decimal, bool) {
	if from == to {
		return decimal.NewFromInt(1), true
	}
	key := cacheKey(from, to)
	rate, err := e.fx.Rate(ctx, from, to, date)
	if err == nil {
		cache[key] = rate
		return rate, true
	}
	e.log.Warn().Err(err).Str("from", string(from)).Str("to", string(to)).
		Time("date", date).Msg("fx rate unavailable, falling back to last known rate")
	if cached, ok := cache[key]; ok {
		return cached, true
	}
	return decimal.Zero, false
}

func (e *Engine) resolveConvert(ctx context.Context, cache rateCache, amount decimal.Decimal, from, to money.Currency, date time.Time) (decimal.Decimal, bool) {
	rate, ok := e.resolveRate(ctx, cache, from, to, date)
	if !ok {
		return decimal.Zero, false
	}
	return amount.Mul(rate), true
}

// Persist range-deletes and re-inserts points for accountID within
// [start, end].
func (e *Engine) Persist(ctx context.Context, accountID string, start, end time.Time, points []domain.ValuationPoint) error {
	return e.store.ReplaceRange(ctx, accountID, start, end, points)
}

// dailyHistory is one day's (market value, net-deposit delta) pair, the
// minimal input the return calculations need.
type dailyHistory struct {
	Date            time.Time
	TotalValue      decimal.Decimal
	NetDepositDelta decimal.Decimal
}

// TimeWeightedReturn computes the compounded TWR series using the mid-day
// cash-flow convention: when a cash flow occurs on day i, the
// daily return is (Vi - CFi/2)/(Vi-1 + CFi/2) - 1; otherwise it is the plain
// Vi/Vi-1 - 1 return. The mid-day convention is the single public form;
// the simple adjusted-denominator variant stays internal (see
// simpleDailyReturn).
func TimeWeightedReturn(points []domain.ValuationPoint) (cumulative []decimal.Decimal, dailyReturns []decimal.Decimal) {
	history := toDailyHistory(points)
	if len(history) == 0 {
		return nil, nil
	}

	one := decimal.NewFromInt(1)
	two := decimal.NewFromInt(2)
	cumulativeValue := one
	prevTotalValue := history[0].TotalValue

	for i, h := range history {
		if i == 0 {
			continue
		}
		var dailyReturn decimal.Decimal
		switch {
		case prevTotalValue.IsZero():
			dailyReturn = decimal.Zero
		case !h.NetDepositDelta.IsZero():
			denominator := prevTotalValue.Add(h.NetDepositDelta.Div(two))
			if denominator.IsZero() {
				dailyReturn = decimal.Zero
			} else {
				dailyReturn = h.TotalValue.Sub(prevTotalValue).Sub(h.NetDepositDelta).Div(denominator)
			}
		default:
			dailyReturn = h.TotalValue.Div(prevTotalValue).Sub(one)
		}

		dailyReturns = append(dailyReturns, dailyReturn)
		cumulativeValue = cumulativeValue.Mul(one.Add(dailyReturn))
		cumulative = append(cumulative, cumulativeValue.Sub(one).Round(6))
		prevTotalValue = h.TotalValue
	}
	return cumulative, dailyReturns
}

// simpleDailyReturn is the non-public daily-return variant:
// Vi/(Vi-1 + deposit_change) - 1, ignoring the mid-day convention. Kept as
// an internal option only; TimeWeightedReturn is the public form.
func simpleDailyReturn(prevTotalValue, currentTotalValue, depositChange decimal.Decimal) decimal.Decimal {
	if prevTotalValue.IsZero() {
		return decimal.Zero
	}
	adjustedPrev := prevTotalValue.Add(depositChange)
	if adjustedPrev.IsZero() {
		return decimal.Zero
	}
	return currentTotalValue.Div(adjustedPrev).Sub(decimal.NewFromInt(1))
}

func toDailyHistory(points []domain.ValuationPoint) []dailyHistory {
	history := make([]dailyHistory, len(points))
	var prevDeposits decimal.Decimal
	for i, p := range points {
		delta := p.CumulativeNetDeposits.Sub(prevDeposits)
		history[i] = dailyHistory{Date: p.Date, TotalValue: p.MarketValue, NetDepositDelta: delta}
		prevDeposits = p.CumulativeNetDeposits
	}
	return history
}

// AnnualizedReturn computes (1+total)^(365.25/days) - 1, returning total
// unchanged when the period is shorter than ~4 days (years < 0.01), where
// compounding would only amplify noise.
func AnnualizedReturn(start, end time.Time, total decimal.Decimal) decimal.Decimal {
	if total.LessThanOrEqual(decimal.NewFromInt(-1)) {
		return decimal.Zero
	}
	days := int(end.Sub(start).Hours() / 24)
	if days <= 0 {
		return total
	}
	years := float64(days) / 365.25
	if years < 0.01 {
		return total
	}

	totalF, _ := total.Float64()
	result := math.Pow(1+totalF, 1/years) - 1
	return decimal.NewFromFloat(result).Round(6)
}

// Volatility returns the annualized sample standard deviation of daily
// returns: sample std-dev x sqrt(252) trading days. The sample variance is
// computed via gonum/stat; go-talib's StdDev is used as a population-stddev
// cross-check, logged at debug level when the two disagree by more than 1%
// of the gonum value (they differ by construction: sample vs population
// variance).
func Volatility(dailyReturns []decimal.Decimal, log zerolog.Logger) decimal.Decimal {
	if len(dailyReturns) == 0 {
		return decimal.Zero
	}
	floats := make([]float64, len(dailyReturns))
	for i, r := range dailyReturns {
		f, _ := r.Float64()
		floats[i] = f
	}

	_, sampleVariance := stat.MeanVariance(floats, nil)
	dailyVol := math.Sqrt(sampleVariance)

	if crossCheck := talib.StdDev(floats, len(floats), 1); len(crossCheck) > 0 {
		population := crossCheck[len(crossCheck)-1]
		if dailyVol != 0 && math.Abs(population-dailyVol)/dailyVol > 0.01 {
			log.Debug().Float64("sample_stddev", dailyVol).Float64("population_stddev", population).
				Msg("volatility cross-check diverged beyond expected sample/population gap")
		}
	}

	tradingDaysSqrt := math.Sqrt(252)
	return decimal.NewFromFloat(dailyVol * tradingDaysSqrt).Round(6)
}

// MaxDrawdown returns the maximum peak-to-trough decline over the cumulative
// return curve.
func MaxDrawdown(cumulative []decimal.Decimal) decimal.Decimal {
	if len(cumulative) == 0 {
		return decimal.Zero
	}
	one := decimal.NewFromInt(1)
	maxDrawdown := decimal.Zero
	peak := one.Add(cumulative[0])

	for _, c := range cumulative {
		current := one.Add(c)
		switch {
		case current.GreaterThan(peak):
			peak = current
		case !peak.IsZero():
			drawdown := peak.Sub(current).Div(peak)
			if drawdown.GreaterThan(maxDrawdown) {
				maxDrawdown = drawdown
			}
		}
	}
	return maxDrawdown.Round(6)
}
