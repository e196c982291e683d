package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ledgercore/internal/domain"
	"github.com/aristath/ledgercore/internal/money"
)

func testSnapshot(accountID string, day time.Time) domain.AccountSnapshot {
	return domain.AccountSnapshot{
		AccountID:         accountID,
		Date:              day,
		ReportingCurrency: money.Currency("USD"),
		Positions: map[string]domain.PositionState{
			"asset-1": {
				Quantity:       decimal.NewFromInt(10),
				CostBasisAsset: decimal.NewFromInt(1000),
				CostBasisAcct:  decimal.NewFromInt(1000),
				Lots: []domain.Lot{
					{AccountID: accountID, AssetID: "asset-1", OpenDate: day, OpenActivityID: "act-1",
						OriginalQuantity: decimal.NewFromInt(10), RemainingQuantity: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(100)},
				},
			},
		},
		Cash:            map[money.Currency]decimal.Decimal{money.Currency("USD"): decimal.NewFromInt(500)},
		NetContribution: decimal.NewFromInt(1500),
		CalculatedAt:    day,
	}
}

func TestSnapshotRepository_ReplaceFullRecalcRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewSnapshotRepository(db, testLogger())
	ctx := context.Background()

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	snap := testSnapshot("acc-1", day)
	require.NoError(t, repo.ReplaceFullRecalc(ctx, []string{"acc-1"}, []domain.AccountSnapshot{snap}))

	got, ok, err := repo.LatestSnapshotBefore(ctx, "acc-1", day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.NetContribution.Equal(decimal.NewFromInt(1500)))
	require.Contains(t, got.Positions, "asset-1")
	require.True(t, got.Positions["asset-1"].Quantity.Equal(decimal.NewFromInt(10)))
	require.Len(t, got.Positions["asset-1"].Lots, 1)
	require.True(t, got.Cash[money.Currency("USD")].Equal(decimal.NewFromInt(500)))
}

func TestSnapshotRepository_LatestSnapshotBeforeIsStrict(t *testing.T) {
	db := newTestDB(t)
	repo := NewSnapshotRepository(db, testLogger())
	ctx := context.Background()

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.ReplaceFullRecalc(ctx, []string{"acc-1"}, []domain.AccountSnapshot{testSnapshot("acc-1", day)}))

	_, ok, err := repo.LatestSnapshotBefore(ctx, "acc-1", day)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSnapshotRepository_LatestSnapshotDate(t *testing.T) {
	db := newTestDB(t)
	repo := NewSnapshotRepository(db, testLogger())
	ctx := context.Background()

	day1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.ReplaceFullRecalc(ctx, []string{"acc-1"}, []domain.AccountSnapshot{
		testSnapshot("acc-1", day1), testSnapshot("acc-1", day2),
	}))

	latest, ok, err := repo.LatestSnapshotDate(ctx, "acc-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, day2, latest)
}

func TestSnapshotRepository_ReplaceRangeOnlyTouchesWindow(t *testing.T) {
	db := newTestDB(t)
	repo := NewSnapshotRepository(db, testLogger())
	ctx := context.Background()

	jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.ReplaceFullRecalc(ctx, []string{"acc-1"}, []domain.AccountSnapshot{
		testSnapshot("acc-1", jan), testSnapshot("acc-1", mar),
	}))

	replacement := testSnapshot("acc-1", mar)
	replacement.NetContribution = decimal.NewFromInt(9999)
	require.NoError(t, repo.ReplaceRange(ctx, "acc-1",
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		[]domain.AccountSnapshot{replacement}))

	janSnap, ok, err := repo.LatestSnapshotBefore(ctx, "acc-1", jan.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, janSnap.NetContribution.Equal(decimal.NewFromInt(1500)))

	marSnap, ok, err := repo.LatestSnapshotBefore(ctx, "acc-1", mar.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, marSnap.NetContribution.Equal(decimal.NewFromInt(9999)))
}

func TestSnapshotRepository_Range(t *testing.T) {
	db := newTestDB(t)
	repo := NewSnapshotRepository(db, testLogger())
	ctx := context.Background()

	jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.ReplaceFullRecalc(ctx, []string{"acc-1"}, []domain.AccountSnapshot{
		testSnapshot("acc-1", jan), testSnapshot("acc-1", feb), testSnapshot("acc-1", mar),
	}))

	got, err := repo.Range(ctx, "acc-1", feb.AddDate(0, 0, -1), mar)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, feb, got[0].Date)
	require.Equal(t, mar, got[1].Date)
}
