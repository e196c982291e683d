package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgercore/internal/cron"
	"github.com/aristath/ledgercore/internal/domain"
	"github.com/aristath/ledgercore/internal/money"
	"github.com/aristath/ledgercore/internal/provider"
	"github.com/aristath/ledgercore/internal/quote"
	"github.com/aristath/ledgercore/internal/queue"
	"github.com/aristath/ledgercore/internal/snapshot"
	"github.com/aristath/ledgercore/internal/store"
	"github.com/aristath/ledgercore/internal/valuation"
)

// marketSyncAdapter satisfies queue.MarketSyncer: it
// resolves each asset id to a provider instrument and asks the registry
// for a fresh quote, saving whatever comes back to the quote store.
type marketSyncAdapter struct {
	registry *provider.Registry
	assets   *store.AssetRepository
	quotes   *quote.Store
	log      zerolog.Logger
}

func (a *marketSyncAdapter) SyncMarket(ctx context.Context, mode queue.MarketSyncMode, assetIDs []string) ([]string, error) {
	targets := assetIDs
	if mode == queue.MarketSyncFull {
		all, err := a.assets.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		targets = nil
		for _, asset := range all {
			if asset.PricingMode == domain.PricingModeMarket {
				targets = append(targets, asset.ID)
			}
		}
	}

	now := civilToday()
	var failed []string
	for _, assetID := range targets {
		asset, ok, err := a.assets.Get(ctx, assetID)
		if err != nil {
			return nil, err
		}
		if !ok || asset.PricingMode != domain.PricingModeMarket {
			continue
		}
		qctx := provider.QuoteContext{
			Instrument:   provider.InstrumentId{Kind: asset.Kind, Ticker: asset.Symbol},
			CurrencyHint: asset.Currency,
		}
		q, err := a.registry.FetchLatestQuote(ctx, qctx)
		if err != nil {
			a.log.Warn().Err(err).Str("asset_id", assetID).Msg("market sync failed")
			if serr := a.quotes.MarkSyncFailed(ctx, assetID, err.Error(), now); serr != nil {
				return nil, serr
			}
			failed = append(failed, assetID)
			continue
		}
		q.AssetID = assetID
		if err := a.quotes.SaveQuotes(ctx, []domain.Quote{q}, q.Timestamp, q.Timestamp); err != nil {
			return nil, err
		}
		if err := a.quotes.MarkSynced(ctx, assetID, q.CivilDay(), nil, now); err != nil {
			return nil, err
		}
	}
	return failed, nil
}

// snapshotAdapter satisfies queue.SnapshotRecalculator: it runs the snapshot
// engine (which persists internally), then reconciles each symbol's
// open/closed sync status against the freshly computed TOTAL holdings.
type snapshotAdapter struct {
	engine         *snapshot.Engine
	quotes         *quote.Store
	baseCurrency   money.Currency
	totalAccountID string
}

func (a *snapshotAdapter) Recalculate(ctx context.Context, accountIDs []string, forceFull bool) error {
	today := civilToday()
	snaps, err := a.engine.Recalculate(ctx, snapshot.Options{
		AccountIDs:             accountIDs,
		ForceFullRecalculation: forceFull,
		BaseCurrency:           a.baseCurrency,
		TotalAccountID:         a.totalAccountID,
		Today:                  today,
	})
	if err != nil {
		return err
	}
	for _, s := range snaps {
		if s.AccountID != a.totalAccountID {
			continue
		}
		openAssetIDs := make([]string, 0, len(s.Positions))
		for assetID := range s.Positions {
			openAssetIDs = append(openAssetIDs, assetID)
		}
		return a.quotes.UpdatePositionStatus(ctx, openAssetIDs, today)
	}
	return nil
}

// valuationAdapter satisfies queue.Valuator: pulls the snapshot window the
// recalculation just wrote, runs the valuation engine's Compute, and
// persists the resulting points.
type valuationAdapter struct {
	engine         *valuation.Engine
	snapshots      *store.SnapshotRepository
	assets         *store.AssetRepository
	accounts       map[string]domain.Account
	baseCurrency   money.Currency
	totalAccountID string
}

func (a *valuationAdapter) Revalue(ctx context.Context, accountIDs []string) error {
	today := civilToday()
	for _, accountID := range append(append([]string{}, accountIDs...), a.totalAccountID) {
		reportingCurrency := a.baseCurrency
		if accountID != a.totalAccountID {
			account, ok := a.accounts[accountID]
			if !ok {
				continue
			}
			reportingCurrency = account.Currency
		}
		earliest, hasAny, err := a.snapshots.LatestSnapshotDate(ctx, accountID)
		if err != nil {
			return err
		}
		if !hasAny {
			continue
		}
		start := earliest.AddDate(-1, 0, 0)
		points, err := a.snapshots.Range(ctx, accountID, start, today)
		if err != nil {
			return err
		}
		if len(points) == 0 {
			continue
		}
		lookup := valuation.AssetCurrencyLookup(func(assetID string) money.Currency {
			asset, ok, err := a.assets.Get(ctx, assetID)
			if err != nil || !ok {
				return reportingCurrency
			}
			return asset.Currency
		})
		computed, err := a.engine.Compute(ctx, points, reportingCurrency, lookup)
		if err != nil {
			return err
		}
		if err := a.engine.Persist(ctx, accountID, points[0].Date, today, computed); err != nil {
			return err
		}
	}
	return nil
}

// enrichAdapter satisfies queue.AssetEnricher. No concrete metadata provider
// is wired in this deployment; this logs the request so the fire-and-forget
// call site in queue.Manager still has somewhere real to go.
type enrichAdapter struct {
	log zerolog.Logger
}

func (a *enrichAdapter) Enrich(ctx context.Context, assetIDs []string) {
	if len(assetIDs) == 0 {
		return
	}
	a.log.Info().Strs("asset_ids", assetIDs).Msg("asset enrichment requested, no metadata provider configured")
}

// brokerSyncAdapter satisfies queue.BrokerSyncer. No broker client is wired
// in this deployment; this only logs so the fire-and-forget call site has a
// real implementation rather than a nil interface.
type brokerSyncAdapter struct {
	log zerolog.Logger
}

func (a *brokerSyncAdapter) SyncAccounts(ctx context.Context, accountIDs []string) {
	if len(accountIDs) == 0 {
		return
	}
	a.log.Info().Strs("account_ids", accountIDs).Msg("broker sync requested, no broker client configured")
}

// accountListerAdapter satisfies cron.AccountLister over the account
// repository, translating domain.Account into the cron package's minimal
// AccountRef so internal/cron never needs to import internal/store.
type accountListerAdapter struct {
	accounts *store.AccountRepository
}

func (a accountListerAdapter) ListNonArchived(ctx context.Context) ([]cron.AccountRef, error) {
	accounts, err := a.accounts.ListNonArchived(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]cron.AccountRef, len(accounts))
	for i, acc := range accounts {
		refs[i] = cron.AccountRef{ID: acc.ID}
	}
	return refs, nil
}

func civilToday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
