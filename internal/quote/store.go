package quote

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/ledgercore/internal/domain"
	"github.com/aristath/ledgercore/internal/errs"
)

// Repository is the persistence surface the quote service needs (package
// store provides the concrete implementation).
type Repository interface {
	// UpsertQuotes idempotently saves quotes keyed by (asset id, civil day,
	// data source): a repeat save with the same key overwrites.
	UpsertQuotes(ctx context.Context, quotes []domain.Quote) error
	LatestQuote(ctx context.Context, assetID string) (domain.Quote, bool, error)
	LatestQuotes(ctx context.Context, assetIDs []string) (map[string]domain.Quote, error)
	// LatestPair returns the latest and previous quote for each asset id,
	// used for day-gain computation.
	LatestPair(ctx context.Context, assetIDs []string) (map[string][2]domain.Quote, error)
	History(ctx context.Context, assetID string, start, end time.Time) ([]domain.Quote, error)
	HistoryMany(ctx context.Context, assetIDs []string, start, end time.Time) (map[string][]domain.Quote, error)
}

// SyncStateRepository is the persistence surface for per-symbol sync
// state.
type SyncStateRepository interface {
	GetSyncState(ctx context.Context, symbol string) (SyncState, bool, error)
	SaveSyncState(ctx context.Context, state SyncState) error
	ListSyncStates(ctx context.Context) ([]SyncState, error)
	// RefreshActivityDatesFromActivities recomputes first/last activity date
	// for every symbol from the activity table.
	RefreshActivityDatesFromActivities(ctx context.Context, now time.Time) error
	// RefreshEarliestQuoteDates recomputes earliest_quote_date for every
	// symbol from the quote table.
	RefreshEarliestQuoteDates(ctx context.Context, now time.Time) error
	// ProviderStats aggregates sync health per data source.
	ProviderStats(ctx context.Context) ([]ProviderSyncStats, error)
}

// Store implements the quote store and sync-state tracker.
type Store struct {
	quotes Repository
	sync   SyncStateRepository
	log    zerolog.Logger
}

// New builds a quote store.
func New(quotes Repository, sync SyncStateRepository, log zerolog.Logger) *Store {
	return &Store{quotes: quotes, sync: sync, log: log.With().Str("component", "quote").Logger()}
}

// SaveQuotes validates then idempotently upserts quotes. A window of zero
// values skips the timestamp-window check.
func (s *Store) SaveQuotes(ctx context.Context, quotes []domain.Quote, windowStart, windowEnd time.Time) error {
	for i, q := range quotes {
		if err := q.Validate(windowStart, windowEnd); err != nil {
			return errs.Wrap(errs.KindValidation, err, "invalid quote at index "+strconv.Itoa(i))
		}
	}
	return s.quotes.UpsertQuotes(ctx, quotes)
}

func (s *Store) LatestQuote(ctx context.Context, assetID string) (domain.Quote, bool, error) {
	return s.quotes.LatestQuote(ctx, assetID)
}

func (s *Store) LatestQuotes(ctx context.Context, assetIDs []string) (map[string]domain.Quote, error) {
	return s.quotes.LatestQuotes(ctx, assetIDs)
}

func (s *Store) LatestPair(ctx context.Context, assetIDs []string) (map[string][2]domain.Quote, error) {
	return s.quotes.LatestPair(ctx, assetIDs)
}

func (s *Store) History(ctx context.Context, assetID string, start, end time.Time) ([]domain.Quote, error) {
	return s.quotes.History(ctx, assetID, start, end)
}

func (s *Store) HistoryMany(ctx context.Context, assetIDs []string, start, end time.Time) (map[string][]domain.Quote, error) {
	return s.quotes.HistoryMany(ctx, assetIDs, start, end)
}

// LatestQuoteOnOrBefore implements fx.QuoteLookup: the most recent close
// price for assetID on or before date. It scans History for simplicity;
// package store's concrete repository may offer a more direct query.
func (s *Store) LatestQuoteOnOrBefore(ctx context.Context, assetID string, date time.Time) (decimal.Decimal, bool, error) {
	history, err := s.quotes.History(ctx, assetID, time.Time{}, date)
	if err != nil {
		return decimal.Zero, false, err
	}
	var best domain.Quote
	found := false
	for _, q := range history {
		if q.CivilDay().After(date) {
			continue
		}
		if !found || q.CivilDay().After(best.CivilDay()) {
			best = q
			found = true
		}
	}
	if !found {
		return decimal.Zero, false, nil
	}
	return best.Close, true, nil
}

// MarkSynced/MarkSyncFailed/DetermineCategory operate on the sync-state
// repository.

func (s *Store) MarkSynced(ctx context.Context, symbol string, lastQuoteDate time.Time, earliestQuoteDate *time.Time, now time.Time) error {
	state, ok, err := s.sync.GetSyncState(ctx, symbol)
	if err != nil {
		return err
	}
	if !ok {
		state = NewSyncState(symbol, "", now)
	}
	state.MarkSynced(lastQuoteDate, earliestQuoteDate, now)
	return s.sync.SaveSyncState(ctx, state)
}

func (s *Store) MarkSyncFailed(ctx context.Context, symbol, errMsg string, now time.Time) error {
	state, ok, err := s.sync.GetSyncState(ctx, symbol)
	if err != nil {
		return err
	}
	if !ok {
		state = NewSyncState(symbol, "", now)
	}
	state.MarkSyncFailed(errMsg, now)
	return s.sync.SaveSyncState(ctx, state)
}

// UpdatePositionStatus reconciles every symbol's open/closed flag against
// the set of asset ids currently held: a tracked symbol that dropped out of
// the holdings is marked closed (starting its grace-period clock), and a
// closed symbol that reappears is marked active again.
func (s *Store) UpdatePositionStatus(ctx context.Context, openAssetIDs []string, today time.Time) error {
	open := make(map[string]bool, len(openAssetIDs))
	for _, id := range openAssetIDs {
		open[id] = true
	}
	states, err := s.sync.ListSyncStates(ctx)
	if err != nil {
		return err
	}
	for _, state := range states {
		switch {
		case open[state.Symbol] && !state.IsActive:
			state.MarkActive(today)
		case !open[state.Symbol] && state.IsActive:
			state.MarkClosed(today, today)
		default:
			continue
		}
		if err := s.sync.SaveSyncState(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

// PendingSyncPlan returns every symbol's current category and priority,
// excluding Closed, sorted by priority descending then symbol: higher
// priority syncs first. The day counts are the configured
// closed-grace-period, quote-history-buffer, and backfill-safety-margin
// values.
func (s *Store) PendingSyncPlan(ctx context.Context, gracePeriodDays, bufferDays, marginDays int, today time.Time) ([]SyncPlanEntry, error) {
	states, err := s.sync.ListSyncStates(ctx)
	if err != nil {
		return nil, err
	}
	plan := make([]SyncPlanEntry, 0, len(states))
	for _, state := range states {
		category := state.DetermineCategory(gracePeriodDays, bufferDays, marginDays, today)
		if category == CategoryClosed {
			continue
		}
		plan = append(plan, SyncPlanEntry{
			Symbol:   state.Symbol,
			Category: category,
			Priority: category.DefaultPriority(),
		})
	}
	sort.Slice(plan, func(i, j int) bool {
		if plan[i].Priority != plan[j].Priority {
			return plan[i].Priority > plan[j].Priority
		}
		return plan[i].Symbol < plan[j].Symbol
	})
	return plan, nil
}

// SyncPlanEntry is one symbol's sync category/priority, as returned by
// PendingSyncPlan.
type SyncPlanEntry struct {
	Symbol   string
	Category SyncCategory
	Priority int
}

