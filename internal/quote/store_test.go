package quote

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSyncStateRepo is an in-memory SyncStateRepository fake.
type memSyncStateRepo struct {
	states map[string]SyncState
}

func newMemSyncStateRepo(states ...SyncState) *memSyncStateRepo {
	m := &memSyncStateRepo{states: make(map[string]SyncState)}
	for _, s := range states {
		m.states[s.Symbol] = s
	}
	return m
}

func (m *memSyncStateRepo) GetSyncState(ctx context.Context, symbol string) (SyncState, bool, error) {
	s, ok := m.states[symbol]
	return s, ok, nil
}

func (m *memSyncStateRepo) SaveSyncState(ctx context.Context, s SyncState) error {
	m.states[s.Symbol] = s
	return nil
}

func (m *memSyncStateRepo) ListSyncStates(ctx context.Context) ([]SyncState, error) {
	out := make([]SyncState, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, s)
	}
	return out, nil
}

func (m *memSyncStateRepo) RefreshActivityDatesFromActivities(ctx context.Context, now time.Time) error {
	return nil
}

func (m *memSyncStateRepo) RefreshEarliestQuoteDates(ctx context.Context, now time.Time) error {
	return nil
}

func (m *memSyncStateRepo) ProviderStats(ctx context.Context) ([]ProviderSyncStats, error) {
	return nil, nil
}

func TestUpdatePositionStatusClosesDroppedSymbols(t *testing.T) {
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	held := NewSyncState("AAPL", "YAHOO", today)
	dropped := NewSyncState("MSFT", "YAHOO", today)
	repo := newMemSyncStateRepo(held, dropped)
	store := New(nil, repo, zerolog.Nop())

	require.NoError(t, store.UpdatePositionStatus(context.Background(), []string{"AAPL"}, today))

	assert.True(t, repo.states["AAPL"].IsActive)
	assert.False(t, repo.states["MSFT"].IsActive)
	require.NotNil(t, repo.states["MSFT"].PositionClosedDate)
	assert.True(t, repo.states["MSFT"].PositionClosedDate.Equal(today))
}

func TestUpdatePositionStatusReopensReappearingSymbols(t *testing.T) {
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	closed := NewSyncState("AAPL", "YAHOO", today)
	closed.MarkClosed(today.AddDate(0, 0, -10), today.AddDate(0, 0, -10))
	repo := newMemSyncStateRepo(closed)
	store := New(nil, repo, zerolog.Nop())

	require.NoError(t, store.UpdatePositionStatus(context.Background(), []string{"AAPL"}, today))

	assert.True(t, repo.states["AAPL"].IsActive)
	assert.Nil(t, repo.states["AAPL"].PositionClosedDate)
}

func TestUpdatePositionStatusLeavesUnchangedStatesAlone(t *testing.T) {
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	held := NewSyncState("AAPL", "YAHOO", today)
	held.UpdatedAt = today.AddDate(0, 0, -5)
	repo := newMemSyncStateRepo(held)
	store := New(nil, repo, zerolog.Nop())

	require.NoError(t, store.UpdatePositionStatus(context.Background(), []string{"AAPL"}, today))

	assert.True(t, repo.states["AAPL"].UpdatedAt.Equal(today.AddDate(0, 0, -5)), "no-op symbols are not rewritten")
}
