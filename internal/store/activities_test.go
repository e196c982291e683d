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

func testActivity(id, accountID string, at time.Time) domain.Activity {
	qty := decimal.NewFromInt(10)
	price := decimal.NewFromInt(100)
	assetID := "asset-1"
	return domain.Activity{
		ID:         id,
		AccountID:  accountID,
		AssetID:    &assetID,
		Type:       domain.ActivityBuy,
		Status:     domain.StatusPosted,
		ActivityAt: at,
		Quantity:   &qty,
		UnitPrice:  &price,
		Currency:   money.Currency("USD"),
	}
}

func TestActivityRepository_UpsertBatchAndRange(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db, testLogger())
	ctx := context.Background()

	day1 := time.Date(2024, 1, 5, 14, 30, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	acts := []domain.Activity{
		testActivity("act-1", "acc-1", day1),
		testActivity("act-2", "acc-1", day2),
	}
	require.NoError(t, repo.UpsertBatch(ctx, acts))

	got, err := repo.Range(ctx, []string{"acc-1"}, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "act-1", got[0].ID)
	require.Equal(t, "act-2", got[1].ID)
	require.True(t, got[0].Quantity.Equal(decimal.NewFromInt(10)))
}

func TestActivityRepository_UpsertBatchUpdatesExisting(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db, testLogger())
	ctx := context.Background()

	at := time.Date(2024, 1, 5, 14, 30, 0, 0, time.UTC)
	a := testActivity("act-1", "acc-1", at)
	require.NoError(t, repo.UpsertBatch(ctx, []domain.Activity{a}))

	updatedQty := decimal.NewFromInt(20)
	a.Quantity = &updatedQty
	require.NoError(t, repo.UpsertBatch(ctx, []domain.Activity{a}))

	got, err := repo.Range(ctx, []string{"acc-1"}, at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Quantity.Equal(updatedQty))
}

func TestActivityRepository_ActivitiesOnExcludesVoid(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db, testLogger())
	ctx := context.Background()

	day := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	posted := testActivity("act-1", "acc-1", day)
	void := testActivity("act-2", "acc-1", day.Add(2*time.Hour))
	void.Status = domain.StatusVoid
	require.NoError(t, repo.UpsertBatch(ctx, []domain.Activity{posted, void}))

	got, err := repo.ActivitiesOn(ctx, []string{"acc-1"}, day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "act-1", got[0].ID)
}

func TestActivityRepository_EarliestActivityDate(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db, testLogger())
	ctx := context.Background()

	require.NoError(t, repo.UpsertBatch(ctx, []domain.Activity{
		testActivity("act-1", "acc-1", time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)),
		testActivity("act-2", "acc-1", time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)),
	}))

	earliest, ok, err := repo.EarliestActivityDate(ctx, []string{"acc-1"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), earliest)
}

func TestActivityRepository_BySourceRecord(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db, testLogger())
	ctx := context.Background()

	sourceSystem := "IBKR"
	sourceRecord := "rec-123"
	a := testActivity("act-1", "acc-1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	a.Source = domain.ProviderSource{SourceSystem: &sourceSystem, SourceRecordID: &sourceRecord}
	require.NoError(t, repo.UpsertBatch(ctx, []domain.Activity{a}))

	id, ok, err := repo.BySourceRecord(ctx, "IBKR", "rec-123")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "act-1", id)

	_, ok, err = repo.BySourceRecord(ctx, "IBKR", "missing")
	require.NoError(t, err)
	require.False(t, ok)
}
