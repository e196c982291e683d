package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ledgercore/internal/domain"
	"github.com/aristath/ledgercore/internal/money"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func ptr[T any](v T) *T { return &v }

func civilDay(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// memActivityStore is an in-memory ActivityStore fake grouping activities by
// civil day for the test fixtures below.
type memActivityStore struct {
	byDay map[time.Time][]domain.Activity
}

func newMemActivityStore(activities []domain.Activity) *memActivityStore {
	s := &memActivityStore{byDay: make(map[time.Time][]domain.Activity)}
	for _, a := range activities {
		day := time.Date(a.ActivityAt.Year(), a.ActivityAt.Month(), a.ActivityAt.Day(), 0, 0, 0, 0, time.UTC)
		s.byDay[day] = append(s.byDay[day], a)
	}
	return s
}

func (s *memActivityStore) EarliestActivityDate(ctx context.Context, accountIDs []string) (time.Time, bool, error) {
	var min time.Time
	first := true
	for day, acts := range s.byDay {
		for _, a := range acts {
			if a.Status == domain.StatusVoid || !contains(accountIDs, a.AccountID) {
				continue
			}
			if first || day.Before(min) {
				min = day
				first = false
			}
		}
	}
	return min, !first, nil
}

func (s *memActivityStore) ActivitiesOn(ctx context.Context, accountIDs []string, day time.Time) ([]domain.Activity, error) {
	var out []domain.Activity
	for _, a := range s.byDay[day] {
		if contains(accountIDs, a.AccountID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// memStore is an in-memory Store fake that simply records what was written.
type memStore struct {
	latestByAccount map[string][]domain.AccountSnapshot
}

func newMemStore() *memStore {
	return &memStore{latestByAccount: make(map[string][]domain.AccountSnapshot)}
}

func (s *memStore) LatestSnapshotBefore(ctx context.Context, accountID string, cutoff time.Time) (domain.AccountSnapshot, bool, error) {
	var best domain.AccountSnapshot
	found := false
	for _, snap := range s.latestByAccount[accountID] {
		if snap.Date.Before(cutoff) && (!found || snap.Date.After(best.Date)) {
			best = snap
			found = true
		}
	}
	return best, found, nil
}

func (s *memStore) LatestSnapshotDate(ctx context.Context, accountID string) (time.Time, bool, error) {
	var best time.Time
	found := false
	for _, snap := range s.latestByAccount[accountID] {
		if !found || snap.Date.After(best) {
			best = snap.Date
			found = true
		}
	}
	return best, found, nil
}

func (s *memStore) ReplaceFullRecalc(ctx context.Context, accountIDs []string, snapshots []domain.AccountSnapshot) error {
	for _, id := range accountIDs {
		s.latestByAccount[id] = nil
	}
	for _, snap := range snapshots {
		s.latestByAccount[snap.AccountID] = append(s.latestByAccount[snap.AccountID], snap)
	}
	return nil
}

func (s *memStore) ReplaceRange(ctx context.Context, accountID string, start, end time.Time, snapshots []domain.AccountSnapshot) error {
	kept := s.latestByAccount[accountID][:0]
	for _, snap := range s.latestByAccount[accountID] {
		if snap.Date.Before(start) || snap.Date.After(end) {
			kept = append(kept, snap)
		}
	}
	s.latestByAccount[accountID] = append(kept, snapshots...)
	return nil
}

func buyActivity(id, accountID, assetID string, day time.Time, qty, price string) domain.Activity {
	return domain.Activity{
		ID:         id,
		AccountID:  accountID,
		AssetID:    ptr(assetID),
		Type:       domain.ActivityBuy,
		Status:     domain.StatusPosted,
		ActivityAt: day,
		Quantity:   ptr(dec(qty)),
		UnitPrice:  ptr(dec(price)),
		Fee:        ptr(dec("0")),
		Currency:   "USD",
	}
}

func TestFullRecalculationBuildsDailySnapshots(t *testing.T) {
	day1 := civilDay("2024-01-01")
	day2 := civilDay("2024-01-02")
	activities := []domain.Activity{
		buyActivity("a1", "acct-1", "AAPL", day1, "10", "100"),
		buyActivity("a2", "acct-1", "AAPL", day2, "5", "110"),
	}
	store := newMemStore()
	engine := New(newMemActivityStore(activities), store, []domain.Account{
		{ID: "acct-1", Currency: "USD"},
	}, zerolog.Nop())

	_, err := engine.Recalculate(context.Background(), Options{
		AccountIDs:             []string{"acct-1"},
		ForceFullRecalculation: true,
		BaseCurrency:           "USD",
		TotalAccountID:         "TOTAL",
		Today:                  day2,
	})
	require.NoError(t, err)

	snaps := store.latestByAccount["acct-1"]
	require.Len(t, snaps, 2)
	assert.True(t, snaps[0].Date.Equal(day1))
	assert.True(t, snaps[1].Date.Equal(day2))
	assert.True(t, snaps[1].Positions["AAPL"].Quantity.Equal(dec("15")))
}

func TestIncrementalRecalculationStartsAfterLastSnapshot(t *testing.T) {
	day1 := civilDay("2024-01-01")
	day3 := civilDay("2024-01-03")
	activities := []domain.Activity{
		buyActivity("a1", "acct-1", "AAPL", day1, "10", "100"),
		buyActivity("a2", "acct-1", "AAPL", day3, "5", "110"),
	}
	store := newMemStore()
	accounts := []domain.Account{{ID: "acct-1", Currency: "USD"}}
	engine := New(newMemActivityStore(activities), store, accounts, zerolog.Nop())

	_, err := engine.Recalculate(context.Background(), Options{
		AccountIDs:             []string{"acct-1"},
		ForceFullRecalculation: true,
		BaseCurrency:           "USD",
		TotalAccountID:         "TOTAL",
		Today:                  day1,
	})
	require.NoError(t, err)
	require.Len(t, store.latestByAccount["acct-1"], 1)

	_, err = engine.Recalculate(context.Background(), Options{
		AccountIDs:     []string{"acct-1"},
		BaseCurrency:   "USD",
		TotalAccountID: "TOTAL",
		Today:          day3,
	})
	require.NoError(t, err)

	snaps := store.latestByAccount["acct-1"]
	var last domain.AccountSnapshot
	for _, s := range snaps {
		if s.Date.Equal(day3) {
			last = s
		}
	}
	require.NotNil(t, last.Positions)
	assert.True(t, last.Positions["AAPL"].Quantity.Equal(dec("15")))
}

func TestTotalAggregatesAcrossAccounts(t *testing.T) {
	day1 := civilDay("2024-01-01")
	activities := []domain.Activity{
		buyActivity("a1", "acct-1", "AAPL", day1, "10", "100"),
		buyActivity("a2", "acct-2", "AAPL", day1, "3", "100"),
	}
	store := newMemStore()
	accounts := []domain.Account{
		{ID: "acct-1", Currency: "USD"},
		{ID: "acct-2", Currency: "USD"},
	}
	engine := New(newMemActivityStore(activities), store, accounts, zerolog.Nop())

	result, err := engine.Recalculate(context.Background(), Options{
		AccountIDs:             []string{"acct-1", "acct-2"},
		ForceFullRecalculation: true,
		BaseCurrency:           "USD",
		TotalAccountID:         "TOTAL",
		Today:                  day1,
	})
	require.NoError(t, err)

	var total domain.AccountSnapshot
	found := false
	for _, s := range result {
		if s.AccountID == "TOTAL" {
			total = s
			found = true
		}
	}
	require.True(t, found)
	assert.True(t, total.Positions["AAPL"].Quantity.Equal(dec("13")))
	assert.Equal(t, money.Currency("USD"), total.ReportingCurrency)

	persisted := store.latestByAccount["TOTAL"]
	require.Len(t, persisted, 1)
	assert.True(t, persisted[0].Positions["AAPL"].Quantity.Equal(dec("13")))
}

func TestNoActivitiesProducesNoSnapshots(t *testing.T) {
	store := newMemStore()
	accounts := []domain.Account{{ID: "acct-1", Currency: "USD"}}
	engine := New(newMemActivityStore(nil), store, accounts, zerolog.Nop())

	result, err := engine.Recalculate(context.Background(), Options{
		AccountIDs:             []string{"acct-1"},
		ForceFullRecalculation: true,
		BaseCurrency:           "USD",
		TotalAccountID:         "TOTAL",
		Today:                  civilDay("2024-01-01"),
	})
	require.NoError(t, err)
	assert.Empty(t, result)
}

// fixedRateSource resolves every pair to one constant rate.
type fixedRateSource struct {
	rate decimal.Decimal
}

func (f fixedRateSource) Rate(ctx context.Context, from, to money.Currency, date time.Time) (decimal.Decimal, error) {
	return f.rate, nil
}

func TestCostBasisConvertedToReportingCurrency(t *testing.T) {
	day1 := civilDay("2024-01-01")
	activities := []domain.Activity{
		buyActivity("a1", "acct-1", "SAP", day1, "10", "100"),
	}
	store := newMemStore()
	engine := New(newMemActivityStore(activities), store, []domain.Account{
		{ID: "acct-1", Currency: "USD"},
	}, zerolog.Nop()).WithCostConversion(
		fixedRateSource{rate: dec("2")},
		func(assetID string) money.Currency { return "EUR" },
	)

	result, err := engine.Recalculate(context.Background(), Options{
		AccountIDs:             []string{"acct-1"},
		ForceFullRecalculation: true,
		BaseCurrency:           "USD",
		TotalAccountID:         "TOTAL",
		Today:                  day1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result)

	pos := result[0].Positions["SAP"]
	assert.True(t, pos.CostBasisAsset.Equal(dec("1000")), "asset-currency cost basis")
	assert.True(t, pos.CostBasisAcct.Equal(dec("2000")), "reporting-currency cost basis uses the fx rate")
}

func TestCostBasisUnconvertedWithoutFxWiring(t *testing.T) {
	day1 := civilDay("2024-01-01")
	activities := []domain.Activity{
		buyActivity("a1", "acct-1", "AAPL", day1, "10", "100"),
	}
	store := newMemStore()
	engine := New(newMemActivityStore(activities), store, []domain.Account{
		{ID: "acct-1", Currency: "USD"},
	}, zerolog.Nop())

	result, err := engine.Recalculate(context.Background(), Options{
		AccountIDs:             []string{"acct-1"},
		ForceFullRecalculation: true,
		BaseCurrency:           "USD",
		TotalAccountID:         "TOTAL",
		Today:                  day1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result)

	pos := result[0].Positions["AAPL"]
	assert.True(t, pos.CostBasisAcct.Equal(pos.CostBasisAsset))
}
