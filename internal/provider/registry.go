package provider

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgercore/internal/domain"
)

// defaultCallTimeout bounds a single provider call when no timeout is
// configured; exceeding it counts as a WithBackoff failure.
const defaultCallTimeout = 10 * time.Second

// Registry orchestrates market-data providers: ordered selection, circuit
// breaking, rate limiting, per-call timeouts, and per-quote validation.
type Registry struct {
	providers []MarketDataProvider
	resolver  SymbolResolver
	limiter   *RateLimiter
	breaker   *CircuitBreaker
	timeout   time.Duration
	log       zerolog.Logger
}

// New builds a registry with the default circuit breaker, rate limiter, and
// per-call timeout.
func New(providers []MarketDataProvider, resolver SymbolResolver, log zerolog.Logger) *Registry {
	return &Registry{
		providers: providers,
		resolver:  resolver,
		limiter:   NewRateLimiter(),
		breaker:   NewCircuitBreaker(),
		timeout:   defaultCallTimeout,
		log:       log.With().Str("component", "provider_registry").Logger(),
	}
}

// WithConfig builds a registry with caller-supplied breaker/limiter, e.g. for
// tests that need a faster cooldown or a lower failure threshold.
func WithConfig(providers []MarketDataProvider, resolver SymbolResolver, limiter *RateLimiter, breaker *CircuitBreaker, log zerolog.Logger) *Registry {
	return &Registry{providers: providers, resolver: resolver, limiter: limiter, breaker: breaker, timeout: defaultCallTimeout, log: log.With().Str("component", "provider_registry").Logger()}
}

// WithTimeout overrides the per-call timeout; non-positive values keep the
// default.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// FetchHistoricalQuotes walks the capability-filtered, priority-ordered
// provider list for a historical quote request, falling through on
// per-provider failure according to the error's retry class.
func (r *Registry) FetchHistoricalQuotes(ctx context.Context, qctx QuoteContext, start, end time.Time) ([]domain.Quote, error) {
	providers := r.orderedProviders(qctx, true)
	if len(providers) == 0 {
		return nil, ErrNoProvidersAvailable
	}

	var lastErr error
	for _, p := range providers {
		if !r.breaker.IsAllowed(p.ID()) {
			r.log.Debug().Str("provider", p.ID()).Msg("circuit breaker open, skipping")
			continue
		}

		resolved, err := r.resolver.Resolve(p.ID(), qctx)
		if err != nil {
			r.log.Debug().Str("provider", p.ID()).Err(err).Msg("resolution failed, trying next provider")
			continue
		}

		release, err := r.limiter.Acquire(ctx, p.ID(), p.RateLimitPolicy())
		if err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		quotes, err := p.GetHistoricalQuotes(callCtx, qctx, resolved.Instrument, start, end)
		cancel()
		release()

		if err == nil {
			r.breaker.RecordSuccess(p.ID())
			valid := validateQuotes(quotes, start, end)
			if len(valid) == 0 && len(quotes) > 0 {
				r.log.Warn().Str("provider", p.ID()).Int("count", len(quotes)).Msg("all quotes failed validation")
				lastErr = &ProviderError{ProviderID: p.ID(), Message: "all quotes failed validation", Retry: RetryNextProvider}
				continue
			}
			r.log.Info().Str("provider", p.ID()).Int("count", len(valid)).Msg("fetched valid quotes")
			return valid, nil
		}

		lastErr = r.handleProviderError(p.ID(), err)
		var pe *ProviderError
		if errors.As(err, &pe) && pe.Retry == RetryNever {
			return nil, err
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrAllProvidersFailed
}

// FetchLatestQuote walks the same ordered provider list as
// FetchHistoricalQuotes for a single latest-quote request.
func (r *Registry) FetchLatestQuote(ctx context.Context, qctx QuoteContext) (domain.Quote, error) {
	providers := r.orderedProviders(qctx, false)
	if len(providers) == 0 {
		return domain.Quote{}, ErrNoProvidersAvailable
	}

	now := time.Now()
	var lastErr error
	for _, p := range providers {
		if !r.breaker.IsAllowed(p.ID()) {
			continue
		}

		resolved, err := r.resolver.Resolve(p.ID(), qctx)
		if err != nil {
			continue
		}

		release, err := r.limiter.Acquire(ctx, p.ID(), p.RateLimitPolicy())
		if err != nil {
			return domain.Quote{}, err
		}
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		quote, err := p.GetLatestQuote(callCtx, qctx, resolved.Instrument)
		cancel()
		release()

		if err == nil {
			r.breaker.RecordSuccess(p.ID())
			if verr := quote.Validate(now, now); verr != nil {
				r.log.Warn().Str("provider", p.ID()).Err(verr).Msg("latest quote failed validation")
				lastErr = &ProviderError{ProviderID: p.ID(), Message: verr.Error(), Retry: RetryNextProvider}
				continue
			}
			return quote, nil
		}

		lastErr = r.handleProviderError(p.ID(), err)
		var pe *ProviderError
		if errors.As(err, &pe) && pe.Retry == RetryNever {
			return domain.Quote{}, err
		}
	}

	if lastErr != nil {
		return domain.Quote{}, lastErr
	}
	return domain.Quote{}, ErrAllProvidersFailed
}

// handleProviderError classifies err's retry class and
// updates the circuit breaker accordingly, returning the error to record as
// the fallback's last-seen error. A call that exceeded its per-call timeout
// counts as WithBackoff.
func (r *Registry) handleProviderError(providerID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		r.breaker.RecordFailure(providerID)
		r.log.Warn().Str("provider", providerID).Dur("timeout", r.timeout).Msg("provider call timed out, recorded circuit breaker failure")
		return err
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		// An unclassified error is treated conservatively as WithBackoff.
		r.breaker.RecordFailure(providerID)
		return err
	}

	switch pe.Retry {
	case RetryNever:
		r.log.Info().Str("provider", providerID).Msg("terminal provider error, not retrying")
	case RetryWithBackoff, RetryCircuitOpen:
		r.breaker.RecordFailure(providerID)
		r.log.Warn().Str("provider", providerID).Err(err).Msg("provider failed, recorded circuit breaker failure")
	case RetryNextProvider:
		r.log.Info().Str("provider", providerID).Err(err).Msg("provider failed, trying next provider")
	}
	return err
}

// orderedProviders filters providers by capability (asset kind, and
// historical support when the request needs it) then sorts by preferred
// provider first, then ascending priority.
func (r *Registry) orderedProviders(qctx QuoteContext, needHistorical bool) []MarketDataProvider {
	kind := qctx.Instrument.Kind
	filtered := make([]MarketDataProvider, 0, len(r.providers))
	for _, p := range r.providers {
		caps := p.Capabilities()
		if !caps.supports(kind) {
			continue
		}
		if needHistorical && !caps.SupportsHistorical {
			continue
		}
		filtered = append(filtered, p)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return rank(filtered[i], qctx.PreferredProvider) < rank(filtered[j], qctx.PreferredProvider)
	})
	return filtered
}

func rank(p MarketDataProvider, preferred string) int {
	if preferred != "" && p.ID() == preferred {
		return 0
	}
	return int(p.Priority()) + 1
}

// validateQuotes keeps only quotes that pass domain.Quote.Validate against
// the request window.
func validateQuotes(quotes []domain.Quote, start, end time.Time) []domain.Quote {
	valid := make([]domain.Quote, 0, len(quotes))
	for _, q := range quotes {
		if err := q.Validate(start, end); err == nil {
			valid = append(valid, q)
		}
	}
	return valid
}

// IsCircuitOpen reports whether providerID's circuit is currently open.
func (r *Registry) IsCircuitOpen(providerID string) bool { return r.breaker.IsOpen(providerID) }

// ResetCircuit force-closes a provider's circuit breaker.
func (r *Registry) ResetCircuit(providerID string) { r.breaker.Reset(providerID) }

// Providers returns the registered provider list.
func (r *Registry) Providers() []MarketDataProvider { return r.providers }
