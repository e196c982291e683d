package queue

import (
	"context"

	"github.com/aristath/ledgercore/internal/money"
)

// MarketSyncMode selects how the market-sync step of a portfolio job fetches
// quotes.
type MarketSyncMode int

const (
	// MarketSyncNone skips market sync entirely (only QuotesChanged fired,
	// i.e. the user updated quotes directly, and no asset was created).
	MarketSyncNone MarketSyncMode = iota
	// MarketSyncFull refetches every tracked asset (AccountsChanged or
	// AccountTrackingModeChanged present).
	MarketSyncFull
	// MarketSyncTargeted refetches only AssetIDs.
	MarketSyncTargeted
)

// PortfolioJobConfig is the planner's synchronous work item: what to
// sync, recalculate, and revalue for this batch.
type PortfolioJobConfig struct {
	Mode                   MarketSyncMode
	AssetIDs               []string
	AccountIDs             []string
	ForceFullRecalculation bool
}

// Plan is the planner's full output for one batch.
type Plan struct {
	PortfolioJob         *PortfolioJobConfig
	EnrichAssetIDs       []string
	BrokerSyncAccountIDs []string
}

// DomainEventView is the planner-facing shape of a domain event: just enough
// to decide what changed, decoupled from the events package's channel types
// so the planner stays a pure, dependency-free function.
type DomainEventView struct {
	Kind       string
	AccountIDs []string
	AssetIDs   []string
}

// Planner translates a batch of domain events into work: pure
// and side-effect-free.
type Planner interface {
	Plan(events []DomainEventView, baseCurrency money.Currency) Plan
}

// MarketSyncer runs the market-sync step of a portfolio job, delegating to
// the provider registry. failedSyncs lists asset ids that could not be
// synced.
type MarketSyncer interface {
	SyncMarket(ctx context.Context, mode MarketSyncMode, assetIDs []string) (failedSyncs []string, err error)
}

// SnapshotRecalculator runs the snapshot engine for a portfolio job.
type SnapshotRecalculator interface {
	Recalculate(ctx context.Context, accountIDs []string, forceFull bool) error
}

// Valuator runs the valuation engine for the accounts a portfolio job
// touched.
type Valuator interface {
	Revalue(ctx context.Context, accountIDs []string) error
}

// AssetEnricher fetches asset-profile metadata for newly created or
// profile-empty assets, run as a fire-and-forget task.
type AssetEnricher interface {
	Enrich(ctx context.Context, assetIDs []string)
}

// BrokerSyncer runs broker account sync as a fire-and-forget task.
type BrokerSyncer interface {
	SyncAccounts(ctx context.Context, accountIDs []string)
}
