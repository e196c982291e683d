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

func testQuote(assetID string, day time.Time, price int64, source string) domain.Quote {
	p := decimal.NewFromInt(price)
	return domain.Quote{
		AssetID:    assetID,
		Timestamp:  day,
		Open:       p,
		High:       p,
		Low:        p,
		Close:      p,
		Currency:   money.Currency("USD"),
		DataSource: source,
	}
}

func TestQuoteRepository_UpsertAndLatest(t *testing.T) {
	db := newTestDB(t)
	repo := NewQuoteRepository(db, testLogger())
	ctx := context.Background()

	day1 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertQuotes(ctx, []domain.Quote{
		testQuote("asset-1", day1, 100, "yahoo"),
		testQuote("asset-1", day2, 105, "yahoo"),
	}))

	latest, ok, err := repo.LatestQuote(ctx, "asset-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, latest.Close.Equal(decimal.NewFromInt(105)))
}

func TestQuoteRepository_UpsertIsIdempotentPerKey(t *testing.T) {
	db := newTestDB(t)
	repo := NewQuoteRepository(db, testLogger())
	ctx := context.Background()

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertQuotes(ctx, []domain.Quote{testQuote("asset-1", day, 100, "yahoo")}))
	require.NoError(t, repo.UpsertQuotes(ctx, []domain.Quote{testQuote("asset-1", day, 110, "yahoo")}))

	history, err := repo.History(ctx, "asset-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.True(t, history[0].Close.Equal(decimal.NewFromInt(110)))
}

func TestQuoteRepository_LatestPair(t *testing.T) {
	db := newTestDB(t)
	repo := NewQuoteRepository(db, testLogger())
	ctx := context.Background()

	for i, price := range []int64{100, 105, 110} {
		day := time.Date(2024, 6, i+1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, repo.UpsertQuotes(ctx, []domain.Quote{testQuote("asset-1", day, price, "yahoo")}))
	}

	pairs, err := repo.LatestPair(ctx, []string{"asset-1"})
	require.NoError(t, err)
	pair, ok := pairs["asset-1"]
	require.True(t, ok)
	require.True(t, pair[0].Close.Equal(decimal.NewFromInt(110)))
	require.True(t, pair[1].Close.Equal(decimal.NewFromInt(105)))
}

func TestQuoteRepository_HistoryRange(t *testing.T) {
	db := newTestDB(t)
	repo := NewQuoteRepository(db, testLogger())
	ctx := context.Background()

	for i, price := range []int64{100, 101, 102, 103} {
		day := time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, repo.UpsertQuotes(ctx, []domain.Quote{testQuote("asset-1", day, price, "yahoo")}))
	}

	history, err := repo.History(ctx, "asset-1", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, history, 2)
}
