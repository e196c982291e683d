package provider

import "fmt"

// ResolvedInstrument is the provider-specific symbol a SymbolResolver
// produced, plus where it came from.
type ResolvedInstrument struct {
	Instrument ProviderInstrument
	Source     ResolutionSource
}

// ResolutionSource records whether a resolution came from an explicit
// override or the default rules table, useful for diagnostics.
type ResolutionSource string

const (
	ResolutionOverride ResolutionSource = "OVERRIDE"
	ResolutionRules    ResolutionSource = "RULES"
)

// SymbolResolver maps an InstrumentId onto a provider-specific symbol.
// Resolution failures cause the registry to skip to the next
// provider.
type SymbolResolver interface {
	Resolve(providerID string, qctx QuoteContext) (ResolvedInstrument, error)
}

// RulesResolver is the default resolver: a per-(provider, instrument-key)
// override map checked first, falling back to a simple rules table that
// builds the provider symbol from the InstrumentId's own fields (ticker for
// equities, "BASE/QUOTE" for fx/crypto/metal).
type RulesResolver struct {
	overrides map[string]map[string]string // providerID -> instrumentKey -> symbol
}

// NewRulesResolver builds a resolver with no overrides.
func NewRulesResolver() *RulesResolver {
	return &RulesResolver{overrides: make(map[string]map[string]string)}
}

// SetOverride registers a provider-specific symbol override for an
// instrument key (see InstrumentKey).
func (r *RulesResolver) SetOverride(providerID, instrumentKey, symbol string) {
	m, ok := r.overrides[providerID]
	if !ok {
		m = make(map[string]string)
		r.overrides[providerID] = m
	}
	m[instrumentKey] = symbol
}

func (r *RulesResolver) Resolve(providerID string, qctx QuoteContext) (ResolvedInstrument, error) {
	key := InstrumentKey(qctx.Instrument)
	if m, ok := r.overrides[providerID]; ok {
		if symbol, ok := m[key]; ok {
			return ResolvedInstrument{Instrument: ProviderInstrument{Symbol: symbol}, Source: ResolutionOverride}, nil
		}
	}

	inst := qctx.Instrument
	switch {
	case inst.Ticker != "":
		return ResolvedInstrument{Instrument: ProviderInstrument{Symbol: inst.Ticker}, Source: ResolutionRules}, nil
	case inst.Base != "" && inst.Quote != "":
		return ResolvedInstrument{Instrument: ProviderInstrument{Symbol: inst.Base + "/" + inst.Quote}, Source: ResolutionRules}, nil
	case inst.Code != "" && inst.Quote != "":
		return ResolvedInstrument{Instrument: ProviderInstrument{Symbol: inst.Code + "/" + inst.Quote}, Source: ResolutionRules}, nil
	default:
		return ResolvedInstrument{}, fmt.Errorf("cannot derive a default symbol for instrument %q", key)
	}
}

// InstrumentKey builds a stable string key for an InstrumentId, used as the
// override-map lookup key.
func InstrumentKey(inst InstrumentId) string {
	if inst.Ticker != "" {
		if inst.MIC != "" {
			return fmt.Sprintf("%s:%s:%s", inst.Kind, inst.Ticker, inst.MIC)
		}
		return fmt.Sprintf("%s:%s", inst.Kind, inst.Ticker)
	}
	if inst.Code != "" {
		return fmt.Sprintf("%s:%s/%s", inst.Kind, inst.Code, inst.Quote)
	}
	return fmt.Sprintf("%s:%s/%s", inst.Kind, inst.Base, inst.Quote)
}
