// Package provider implements the provider registry: ordered
// market-data provider selection with circuit breaking, rate limiting, and
// quote validation.
package provider

import (
	"context"
	"time"

	"github.com/aristath/ledgercore/internal/domain"
	"github.com/aristath/ledgercore/internal/money"
)

// InstrumentId is the tagged union a provider resolves a symbol for.
// Exactly one of the kind-specific fields is populated, selected by
// Kind.
type InstrumentId struct {
	Kind   domain.AssetKind
	Ticker string
	MIC    string // optional, Equity only
	Base   string // Fx/Crypto/Metal
	Quote  string // Fx/Crypto/Metal
	Code   string // Metal
}

// QuoteContext carries everything a provider or resolver needs to fetch a
// quote for one instrument.
type QuoteContext struct {
	Instrument        InstrumentId
	PreferredProvider string // empty means no preference
	CurrencyHint      money.Currency
	Overrides         map[string]any
}

// RetryClass classifies a provider error for the registry's fallback loop.
type RetryClass string

const (
	RetryNever        RetryClass = "NEVER"
	RetryWithBackoff  RetryClass = "WITH_BACKOFF"
	RetryCircuitOpen  RetryClass = "CIRCUIT_OPEN"
	RetryNextProvider RetryClass = "NEXT_PROVIDER"
)

// ProviderError wraps a provider failure with its retry classification.
type ProviderError struct {
	ProviderID string
	Message    string
	Retry      RetryClass
}

func (e *ProviderError) Error() string {
	return e.ProviderID + ": " + e.Message
}

func (e *ProviderError) RetryClass() RetryClass { return e.Retry }

// Sentinel errors returned by Registry when no provider could satisfy a
// request.
type registryError string

func (e registryError) Error() string { return string(e) }

const (
	ErrNoProvidersAvailable registryError = "no providers available for instrument"
	ErrAllProvidersFailed   registryError = "all providers failed"
)

// ProviderCapabilities declares what a provider can serve.
type ProviderCapabilities struct {
	AssetKinds         []domain.AssetKind
	SupportsHistorical bool
	SupportsSearch     bool
}

func (c ProviderCapabilities) supports(kind domain.AssetKind) bool {
	for _, k := range c.AssetKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// RateLimit declares a provider's throughput budget.
type RateLimit struct {
	RequestsPerMinute int
	MaxConcurrency    int
	MinDelay          time.Duration
}

// MarketDataProvider is the contract every concrete market-data integration
// implements. id() is a stable tag used as the circuit-breaker and
// rate-limiter key.
type MarketDataProvider interface {
	ID() string
	Priority() uint8
	Capabilities() ProviderCapabilities
	RateLimitPolicy() RateLimit
	GetLatestQuote(ctx context.Context, qctx QuoteContext, instrument ProviderInstrument) (domain.Quote, error)
	GetHistoricalQuotes(ctx context.Context, qctx QuoteContext, instrument ProviderInstrument, start, end time.Time) ([]domain.Quote, error)
}

// ProviderInstrument is the provider-specific symbol a SymbolResolver
// produces for a given InstrumentId. It is opaque to the
// registry; only the provider that produced it (via its resolver) knows how
// to interpret it.
type ProviderInstrument struct {
	Symbol string
}
