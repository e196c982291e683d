// Package fx implements the FX service: a directed multigraph over
// currencies, resolving a conversion rate between any two currencies on a
// given date from the quote store, with inverse-edge fallback.
package fx

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/ledgercore/internal/domain"
	"github.com/aristath/ledgercore/internal/errs"
	"github.com/aristath/ledgercore/internal/money"
)

// QuoteLookup is the read surface the FX service needs from the quote store
// (package quote). It is satisfied by quote.Store.
type QuoteLookup interface {
	// LatestQuoteOnOrBefore returns the most recent close price for assetID
	// on or before date, or found=false if no quote exists.
	LatestQuoteOnOrBefore(ctx context.Context, assetID string, date time.Time) (close decimal.Decimal, found bool, err error)
}

// AssetRegistrar is the write surface the FX service needs to ensure an
// FxRate asset exists. It is satisfied by an asset repository
// (package store).
type AssetRegistrar interface {
	EnsureAsset(ctx context.Context, asset domain.Asset) error
}

// Service implements the FX service.
type Service struct {
	quotes QuoteLookup
	assets AssetRegistrar
	log    zerolog.Logger
}

// New builds an FX service.
func New(quotes QuoteLookup, assets AssetRegistrar, log zerolog.Logger) *Service {
	return &Service{quotes: quotes, assets: assets, log: log.With().Str("component", "fx").Logger()}
}

// pairAssetID returns the canonical FX asset id for a base/quote currency
// pair, matching domain.NewFxAsset's id scheme.
func pairAssetID(base, quote money.Currency) string {
	return "FX-" + string(base) + "/" + string(quote)
}

// RegisterPair ensures an FxRate asset exists for base/quote and is eligible
// for market sync.
func (s *Service) RegisterPair(ctx context.Context, base, quote money.Currency) error {
	if base == quote {
		return nil
	}
	return s.assets.EnsureAsset(ctx, domain.NewFxAsset(base, quote))
}

// Rate returns the conversion rate from currency from to currency to as of
// date. Returns 1 when from == to. Otherwise looks up the direct
// pair quote, falling back to the inverse pair's reciprocal; fails with
// errs.KindMissingFxRate if neither resolves.
func (s *Service) Rate(ctx context.Context, from, to money.Currency, date time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	if rate, found, err := s.quotes.LatestQuoteOnOrBefore(ctx, pairAssetID(from, to), date); err != nil {
		return decimal.Zero, err
	} else if found {
		return rate, nil
	}

	if rate, found, err := s.quotes.LatestQuoteOnOrBefore(ctx, pairAssetID(to, from), date); err != nil {
		return decimal.Zero, err
	} else if found {
		if rate.IsZero() {
			return decimal.Zero, errs.New(errs.KindMissingFxRate, "inverse fx rate "+string(to)+"/"+string(from)+" is zero, cannot invert")
		}
		return decimal.NewFromInt(1).Div(rate), nil
	}

	return decimal.Zero, errs.New(errs.KindMissingFxRate, "no fx rate for "+string(from)+"/"+string(to)+" on or before "+date.Format("2006-01-02"))
}

// Convert returns amount denominated in from, converted to currency to as of
// date.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to money.Currency, date time.Time) (decimal.Decimal, error) {
	rate, err := s.Rate(ctx, from, to, date)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}
