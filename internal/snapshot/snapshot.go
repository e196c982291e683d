// Package snapshot implements the snapshot engine: replaying compiled
// activities through the position/lot ledger to produce per-account,
// per-civil-date keyframes, and aggregating them into the synthetic TOTAL
// account.
package snapshot

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/ledgercore/internal/activity"
	"github.com/aristath/ledgercore/internal/domain"
	"github.com/aristath/ledgercore/internal/errs"
	"github.com/aristath/ledgercore/internal/ledger"
	"github.com/aristath/ledgercore/internal/money"
)

// ActivityStore is the read surface the engine needs from activity storage.
type ActivityStore interface {
	// EarliestActivityDate returns the civil date of the earliest non-Void
	// activity across accountIDs, or ok=false if there are none.
	EarliestActivityDate(ctx context.Context, accountIDs []string) (date time.Time, ok bool, err error)
	// ActivitiesOn returns every Posted-eligible activity (any non-Void
	// status; the compiler itself filters to Posted) for accountIDs whose
	// activity date falls on the given civil day, ordered by activity
	// timestamp then id.
	ActivitiesOn(ctx context.Context, accountIDs []string, day time.Time) ([]domain.Activity, error)
}

// RateSource resolves a currency-pair rate on a date, satisfied by the FX
// service (package fx).
type RateSource interface {
	Rate(ctx context.Context, from, to money.Currency, date time.Time) (decimal.Decimal, error)
}

// AssetCurrencyLookup resolves the currency an asset's cost is denominated
// in, satisfied by an asset-repository closure.
type AssetCurrencyLookup func(assetID string) money.Currency

// Store is the write/read surface the engine needs from snapshot storage.
type Store interface {
	// LatestSnapshotBefore returns the most recent snapshot for accountID
	// strictly before cutoff, the starting point for an incremental replay.
	LatestSnapshotBefore(ctx context.Context, accountID string, cutoff time.Time) (domain.AccountSnapshot, bool, error)
	// LatestSnapshotDate returns the civil date of accountID's most recent
	// snapshot, or ok=false if none exists yet.
	LatestSnapshotDate(ctx context.Context, accountID string) (time.Time, bool, error)
	// ReplaceFullRecalc deletes every existing snapshot for accountIDs and
	// inserts snapshots in one transaction.
	ReplaceFullRecalc(ctx context.Context, accountIDs []string, snapshots []domain.AccountSnapshot) error
	// ReplaceRange deletes accountID's snapshots within [start, end] and
	// inserts snapshots in one transaction.
	ReplaceRange(ctx context.Context, accountID string, start, end time.Time, snapshots []domain.AccountSnapshot) error
}

// Options controls one recalculation run.
type Options struct {
	AccountIDs             []string
	ForceFullRecalculation bool
	BaseCurrency           money.Currency
	TotalAccountID         string
	Today                  time.Time // civil date; injected so replay is deterministic/testable
}

// Engine implements the snapshot engine.
type Engine struct {
	activities    ActivityStore
	store         Store
	accounts      map[string]domain.Account // account id -> account, for reporting currency lookup
	compiler      activity.Compiler
	fx            RateSource
	assetCurrency AssetCurrencyLookup
	log           zerolog.Logger
}

// New builds a snapshot engine. accounts must contain every account id that
// may appear in an Options.AccountIDs call.
func New(activities ActivityStore, store Store, accounts []domain.Account, log zerolog.Logger) *Engine {
	byID := make(map[string]domain.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}
	return &Engine{
		activities: activities,
		store:      store,
		accounts:   byID,
		compiler:   activity.New(),
		log:        log.With().Str("component", "snapshot").Logger(),
	}
}

// WithCostConversion attaches the FX service and asset-currency lookup used
// to express each position's cost basis in the account's reporting currency.
// Without it, snapshots carry the asset-currency cost basis unconverted.
func (e *Engine) WithCostConversion(fx RateSource, assetCurrency AssetCurrencyLookup) *Engine {
	e.fx = fx
	e.assetCurrency = assetCurrency
	return e
}

// costConverter binds ctx, the target currency, and a shared per-run rate
// cache into a ledger.CostConverter. An unresolvable rate falls back to the
// most recently resolved rate for the pair, then to the unconverted amount.
func (e *Engine) costConverter(ctx context.Context, reporting money.Currency, cache map[string]decimal.Decimal) ledger.CostConverter {
	if e.fx == nil || e.assetCurrency == nil {
		return nil
	}
	return func(assetID string, amount decimal.Decimal, date time.Time) decimal.Decimal {
		from := e.assetCurrency(assetID)
		if from == "" || from == reporting {
			return amount
		}
		key := string(from) + "/" + string(reporting)
		rate, err := e.fx.Rate(ctx, from, reporting, date)
		if err != nil {
			if cached, ok := cache[key]; ok {
				return amount.Mul(cached)
			}
			e.log.Debug().Err(err).Str("asset_id", assetID).Msg("no fx rate for cost basis, keeping asset-currency amount")
			return amount
		}
		cache[key] = rate
		return amount.Mul(rate)
	}
}

// Recalculate replays activities into daily keyframes and returns the
// per-account snapshots of the final replayed day (callers that need every
// intermediate day already received them via Store during the walk).
func (e *Engine) Recalculate(ctx context.Context, opts Options) ([]domain.AccountSnapshot, error) {
	if opts.TotalAccountID == "" {
		opts.TotalAccountID = "TOTAL"
	}
	earliest, ok, err := e.activities.EarliestActivityDate(ctx, opts.AccountIDs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	ledgers := make(map[string]*ledger.Ledger, len(opts.AccountIDs))
	starts := make(map[string]time.Time, len(opts.AccountIDs))
	for _, accountID := range opts.AccountIDs {
		start := earliest
		l := ledger.New(accountID)
		if !opts.ForceFullRecalculation {
			if lastDate, hasSnap, err := e.store.LatestSnapshotDate(ctx, accountID); err != nil {
				return nil, err
			} else if hasSnap {
				incrementalStart := lastDate.AddDate(0, 0, 1)
				if incrementalStart.After(earliest) {
					start = incrementalStart
					if prior, found, err := e.store.LatestSnapshotBefore(ctx, accountID, incrementalStart); err != nil {
						return nil, err
					} else if found {
						l = ledger.FromSnapshot(prior)
					}
				}
			}
		}
		ledgers[accountID] = l
		starts[accountID] = start
	}

	perAccountEmitted := make(map[string][]domain.AccountSnapshot, len(opts.AccountIDs))
	var finalByAccount map[string]domain.AccountSnapshot

	rateCache := make(map[string]decimal.Decimal)
	converters := make(map[string]ledger.CostConverter, len(opts.AccountIDs))
	for _, accountID := range opts.AccountIDs {
		converters[accountID] = e.costConverter(ctx, e.accounts[accountID].Currency, rateCache)
	}

	for day := earliestStart(starts); !day.After(opts.Today); day = day.AddDate(0, 0, 1) {
		activities, err := e.activities.ActivitiesOn(ctx, opts.AccountIDs, day)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(activities, func(i, j int) bool {
			if !activities[i].ActivityAt.Equal(activities[j].ActivityAt) {
				return activities[i].ActivityAt.Before(activities[j].ActivityAt)
			}
			return activities[i].ID < activities[j].ID
		})

		compiled := e.compiler.CompileAll(activities)
		for _, compiledActivity := range compiled {
			l, ok := ledgers[compiledActivity.AccountID]
			if !ok || day.Before(starts[compiledActivity.AccountID]) {
				continue
			}
			posting, err := toPosting(compiledActivity)
			if err != nil {
				e.log.Warn().Err(err).Str("activity_id", compiledActivity.ID).Msg("skipping activity, needs_review")
				continue
			}
			if err := l.Apply(posting); err != nil {
				e.log.Warn().Err(err).Str("activity_id", compiledActivity.ID).Msg("posting failed, needs_review")
				continue
			}
		}

		finalByAccount = make(map[string]domain.AccountSnapshot, len(opts.AccountIDs))
		for _, accountID := range opts.AccountIDs {
			if day.Before(starts[accountID]) {
				continue
			}
			reportingCcy := e.accounts[accountID].Currency
			snap := ledgers[accountID].Snapshot(day, reportingCcy, day, converters[accountID])
			perAccountEmitted[accountID] = append(perAccountEmitted[accountID], snap)
			finalByAccount[accountID] = snap
		}
	}

	totals := e.computeTotal(perAccountEmitted, opts)
	if err := e.persist(ctx, opts, perAccountEmitted, totals, starts); err != nil {
		return nil, err
	}

	result := make([]domain.AccountSnapshot, 0, len(finalByAccount)+1)
	for _, accountID := range opts.AccountIDs {
		if s, ok := finalByAccount[accountID]; ok {
			result = append(result, s)
		}
	}
	if len(totals) > 0 {
		result = append(result, totals[len(totals)-1])
	}
	return result, nil
}

func earliestStart(starts map[string]time.Time) time.Time {
	var min time.Time
	first := true
	for _, s := range starts {
		if first || s.Before(min) {
			min = s
			first = false
		}
	}
	return min
}

func (e *Engine) persist(ctx context.Context, opts Options, emitted map[string][]domain.AccountSnapshot, totals []domain.AccountSnapshot, starts map[string]time.Time) error {
	if opts.ForceFullRecalculation {
		all := make([]domain.AccountSnapshot, 0)
		for _, snaps := range emitted {
			all = append(all, snaps...)
		}
		all = append(all, totals...)
		ids := append(append([]string{}, opts.AccountIDs...), opts.TotalAccountID)
		return e.store.ReplaceFullRecalc(ctx, ids, all)
	}
	for _, accountID := range opts.AccountIDs {
		snaps := emitted[accountID]
		if len(snaps) == 0 {
			continue
		}
		if err := e.store.ReplaceRange(ctx, accountID, starts[accountID], opts.Today, snaps); err != nil {
			return err
		}
	}
	if len(totals) > 0 {
		return e.store.ReplaceRange(ctx, opts.TotalAccountID, totals[0].Date, opts.Today, totals)
	}
	return nil
}

// computeTotal aggregates the TOTAL account: for every date present across
// any account's emitted snapshots, sum positions, cash, and net contribution
// across accounts into a synthetic TOTAL snapshot reported in the base
// currency. Per-currency cash and per-asset quantities are summed verbatim;
// cross-currency/cross-asset conversion to the base currency is the
// valuation engine's job, not the snapshot engine's.
func (e *Engine) computeTotal(emitted map[string][]domain.AccountSnapshot, opts Options) []domain.AccountSnapshot {
	byDate := make(map[time.Time][]domain.AccountSnapshot)
	for _, snaps := range emitted {
		for _, s := range snaps {
			byDate[s.Date] = append(byDate[s.Date], s)
		}
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	totals := make([]domain.AccountSnapshot, 0, len(dates))
	for _, d := range dates {
		total := domain.AccountSnapshot{
			AccountID:         opts.TotalAccountID,
			Date:              d,
			ReportingCurrency: opts.BaseCurrency,
			Positions:         make(map[string]domain.PositionState),
			Cash:              make(map[money.Currency]decimal.Decimal),
			CalculatedAt:      d,
		}
		for _, s := range byDate[d] {
			for assetID, pos := range s.Positions {
				agg := total.Positions[assetID]
				agg.Quantity = agg.Quantity.Add(pos.Quantity)
				agg.CostBasisAsset = agg.CostBasisAsset.Add(pos.CostBasisAsset)
				agg.CostBasisAcct = agg.CostBasisAcct.Add(pos.CostBasisAcct)
				agg.Lots = append(agg.Lots, pos.Lots...)
				total.Positions[assetID] = agg
			}
			for ccy, amt := range s.Cash {
				total.Cash[ccy] = total.Cash[ccy].Add(amt)
			}
			total.NetContribution = total.NetContribution.Add(s.NetContribution)
			total.RealizedGain = total.RealizedGain.Add(s.RealizedGain)
		}
		total.PrunePositions()
		totals = append(totals, total)
	}
	return totals
}

// toPosting converts a compiled Activity into a ledger Posting, returning an
// error (surfaced as needs_review) when a required field for the activity's
// type is missing.
func toPosting(a domain.Activity) (ledger.Posting, error) {
	p := ledger.Posting{
		Type:     a.EffectiveType(),
		Date:     a.ActivityAt,
		ID:       a.ID,
		Currency: a.Currency,
	}
	if a.AssetID != nil {
		p.AssetID = *a.AssetID
	}
	if a.Quantity != nil {
		p.Quantity = *a.Quantity
	}
	if a.UnitPrice != nil {
		p.UnitPrice = *a.UnitPrice
	}
	if a.Amount != nil {
		p.Amount = *a.Amount
	}
	if a.Fee != nil {
		p.Fee = *a.Fee
	}
	if a.FxRate != nil {
		p.Ratio = *a.FxRate
	}

	switch p.Type {
	case domain.ActivityBuy, domain.ActivitySell, domain.ActivityAddHolding, domain.ActivityRemoveHolding:
		if a.Quantity == nil {
			return p, missingField(a.ID, "quantity")
		}
	case domain.ActivitySplit:
		// SPLIT has no dedicated ratio field; it is carried in
		// Quantity, the one optional decimal field a split naturally uses.
		if a.Quantity == nil {
			return p, missingField(a.ID, "split ratio")
		}
		p.Ratio = *a.Quantity
	}
	return p, nil
}

func missingField(activityID, field string) error {
	return errs.New(errs.KindValidation, "activity "+activityID+" missing required field "+field)
}
