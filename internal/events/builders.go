package events

import "time"

// Event builder helpers: repositories construct a DomainEvent after a
// successful write via these, so every call site uses the same identifier-
// only shape the planner expects: identifiers, never full rows.

// NewAccountsChangedEvent reports that one or more accounts were created,
// renamed, archived, or had their tracking mode changed.
func NewAccountsChangedEvent(accountIDs []string) DomainEvent {
	return DomainEvent{Kind: AccountsChanged, AccountIDs: accountIDs, EmittedAt: time.Now()}
}

// NewActivitiesChangedEvent reports that activities touching accountIDs and
// assetIDs were inserted, edited, or removed.
func NewActivitiesChangedEvent(accountIDs, assetIDs []string) DomainEvent {
	return DomainEvent{Kind: ActivitiesChanged, AccountIDs: accountIDs, AssetIDs: assetIDs, EmittedAt: time.Now()}
}

// NewAssetsCreatedEvent reports that new assets were added to the catalog.
func NewAssetsCreatedEvent(assetIDs []string) DomainEvent {
	return DomainEvent{Kind: AssetsCreated, AssetIDs: assetIDs, EmittedAt: time.Now()}
}

// NewAssetsChangedEvent reports that existing assets' metadata changed.
func NewAssetsChangedEvent(assetIDs []string) DomainEvent {
	return DomainEvent{Kind: AssetsChanged, AssetIDs: assetIDs, EmittedAt: time.Now()}
}

// NewQuotesChangedEvent reports that quotes for assetIDs were saved by the
// user directly rather than by a provider sync.
func NewQuotesChangedEvent(assetIDs []string) DomainEvent {
	return DomainEvent{Kind: QuotesChanged, AssetIDs: assetIDs, EmittedAt: time.Now()}
}

// NewAccountTrackingModeChangedEvent reports that an account's tracking mode
// (manual vs auto-sync) changed, forcing a full recalculation.
func NewAccountTrackingModeChangedEvent(accountIDs []string) DomainEvent {
	return DomainEvent{Kind: AccountTrackingModeChanged, AccountIDs: accountIDs, EmittedAt: time.Now()}
}

// NewFxRatesChangedEvent reports that FX pair data changed.
func NewFxRatesChangedEvent(assetIDs []string) DomainEvent {
	return DomainEvent{Kind: FxRatesChanged, AssetIDs: assetIDs, EmittedAt: time.Now()}
}
