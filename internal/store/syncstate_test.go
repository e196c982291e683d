package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/ledgercore/internal/domain"
	"github.com/aristath/ledgercore/internal/quote"
)

func TestSyncStateRepository_SaveAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncStateRepository(db, testLogger())
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := quote.NewSyncState("asset-1", "yahoo", now)
	require.NoError(t, repo.SaveSyncState(ctx, s))

	got, ok, err := repo.GetSyncState(ctx, "asset-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "yahoo", got.DataSource)
	require.True(t, got.IsActive)

	_, ok, err = repo.GetSyncState(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSyncStateRepository_ListSyncStates(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncStateRepository(db, testLogger())
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveSyncState(ctx, quote.NewSyncState("asset-1", "yahoo", now)))
	require.NoError(t, repo.SaveSyncState(ctx, quote.NewSyncState("asset-2", "yahoo", now)))

	all, err := repo.ListSyncStates(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestSyncStateRepository_RefreshActivityDatesFromActivities(t *testing.T) {
	db := newTestDB(t)
	syncRepo := NewSyncStateRepository(db, testLogger())
	actRepo := NewActivityRepository(db, testLogger())
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, actRepo.UpsertBatch(ctx, []domain.Activity{testActivity("act-1", "acc-1", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))}))

	require.NoError(t, syncRepo.RefreshActivityDatesFromActivities(ctx, now))

	got, ok, err := syncRepo.GetSyncState(ctx, "asset-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, got.FirstActivityDate)
	require.NotNil(t, got.LastActivityDate)
}

func TestSyncStateRepository_RefreshEarliestQuoteDates(t *testing.T) {
	db := newTestDB(t)
	syncRepo := NewSyncStateRepository(db, testLogger())
	quoteRepo := NewQuoteRepository(db, testLogger())
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, quoteRepo.UpsertQuotes(ctx, []domain.Quote{testQuote("asset-1", day, 100, "yahoo")}))

	require.NoError(t, syncRepo.RefreshEarliestQuoteDates(ctx, now))

	got, ok, err := syncRepo.GetSyncState(ctx, "asset-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, got.EarliestQuoteDate)
	require.True(t, got.EarliestQuoteDate.Equal(day))
}

func TestSyncStateRepository_ProviderStats(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncStateRepository(db, testLogger())
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s1 := quote.NewSyncState("asset-1", "yahoo", now)
	s2 := quote.NewSyncState("asset-2", "yahoo", now)
	s2.MarkSyncFailed("rate limited", now)
	require.NoError(t, repo.SaveSyncState(ctx, s1))
	require.NoError(t, repo.SaveSyncState(ctx, s2))

	stats, err := repo.ProviderStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, "yahoo", stats[0].ProviderID)
	require.Equal(t, 2, stats[0].AssetCount)
	require.Equal(t, 1, stats[0].ErrorCount)
}
