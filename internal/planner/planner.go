// Package planner implements the planner: a pure, deterministic
// translation of a batch of domain events into the work the queue worker
// must run.
package planner

import (
	"sort"

	"github.com/aristath/ledgercore/internal/money"
	"github.com/aristath/ledgercore/internal/queue"
)

// ProfileLookup reports whether assetID currently has an empty profile. It is
// injected rather than hard-coded so Plan stays a deterministic function of
// its inputs (the enrichment set needs a profile-emptiness fact the event
// itself doesn't carry). A nil lookup is treated as "always empty" (enrich
// everything
// touched), matching the conservative default a caller gets by omitting it.
type ProfileLookup func(assetID string) bool

// Planner implements queue.Planner.
type Planner struct {
	HasEmptyProfile ProfileLookup
}

// New builds a planner. lookup may be nil.
func New(lookup ProfileLookup) *Planner {
	return &Planner{HasEmptyProfile: lookup}
}

// Plan translates a batch of domain events into the portfolio job, the
// enrichment asset set, and the broker-sync account set. It is a pure
// function of its inputs.
func (p *Planner) Plan(events []queue.DomainEventView, baseCurrency money.Currency) queue.Plan {
	var (
		accountIDs         = newIDSet()
		assetIDs           = newIDSet()
		createdOrChanged   = newIDSet()
		hasAccountsChanged bool
		hasQuotesChanged   bool
		hasTrackingChanged bool
		hasAssetCreation   bool
		trackingChangedIDs []string
	)

	for _, e := range events {
		switch e.Kind {
		case "ACTIVITIES_CHANGED":
			accountIDs.addAll(e.AccountIDs)
			assetIDs.addAll(e.AssetIDs)
		case "ACCOUNTS_CHANGED":
			accountIDs.addAll(e.AccountIDs)
			hasAccountsChanged = true
		case "ASSETS_CREATED":
			assetIDs.addAll(e.AssetIDs)
			createdOrChanged.addAll(e.AssetIDs)
			hasAssetCreation = true
		case "ASSETS_CHANGED":
			assetIDs.addAll(e.AssetIDs)
			createdOrChanged.addAll(e.AssetIDs)
		case "QUOTES_CHANGED":
			assetIDs.addAll(e.AssetIDs)
			hasQuotesChanged = true
		case "ACCOUNT_TRACKING_MODE_CHANGED":
			accountIDs.addAll(e.AccountIDs)
			hasTrackingChanged = true
			trackingChangedIDs = append(trackingChangedIDs, e.AccountIDs...)
		case "FX_RATES_CHANGED":
			// FX changes affect valuation but not the snapshot/market-sync
			// pipeline directly; no ids to collect.
		}
	}

	mode := determineMarketSyncMode(events, hasAccountsChanged, hasTrackingChanged, hasQuotesChanged, hasAssetCreation, assetIDs.slice())

	var job *queue.PortfolioJobConfig
	if len(accountIDs.slice()) > 0 || len(assetIDs.slice()) > 0 {
		job = &queue.PortfolioJobConfig{
			Mode:                   mode,
			AssetIDs:               assetIDs.slice(),
			AccountIDs:             accountIDs.slice(),
			ForceFullRecalculation: hasTrackingChanged,
		}
	}

	enrich := p.enrichmentCandidates(createdOrChanged.slice())

	return queue.Plan{
		PortfolioJob:         job,
		EnrichAssetIDs:       enrich,
		BrokerSyncAccountIDs: dedupe(trackingChangedIDs),
	}
}

// determineMarketSyncMode picks None, Full, or Targeted for a batch.
func determineMarketSyncMode(events []queue.DomainEventView, accountsChanged, trackingChanged, quotesChanged, assetCreation bool, assetIDs []string) queue.MarketSyncMode {
	if accountsChanged || trackingChanged {
		return queue.MarketSyncFull
	}

	if quotesChanged && !assetCreation && allEventsAreQuotesChanged(events) {
		return queue.MarketSyncNone
	}

	if len(assetIDs) > 0 {
		return queue.MarketSyncTargeted
	}
	return queue.MarketSyncNone
}

func allEventsAreQuotesChanged(events []queue.DomainEventView) bool {
	for _, e := range events {
		if e.Kind != "QUOTES_CHANGED" {
			return false
		}
	}
	return len(events) > 0
}

func (p *Planner) enrichmentCandidates(assetIDs []string) []string {
	if p.HasEmptyProfile == nil {
		return assetIDs
	}
	out := make([]string, 0, len(assetIDs))
	for _, id := range assetIDs {
		if p.HasEmptyProfile(id) {
			out = append(out, id)
		}
	}
	return out
}

type idSet struct {
	seen map[string]struct{}
	ids  []string
}

func newIDSet() *idSet { return &idSet{seen: make(map[string]struct{})} }

func (s *idSet) add(id string) {
	if id == "" {
		return
	}
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
}

func (s *idSet) addAll(ids []string) {
	for _, id := range ids {
		s.add(id)
	}
}

func (s *idSet) slice() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	sort.Strings(out)
	return out
}

func dedupe(ids []string) []string {
	set := newIDSet()
	set.addAll(ids)
	return set.slice()
}
