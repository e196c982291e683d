package quote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func daysAgo(today time.Time, n int) time.Time {
	return today.AddDate(0, 0, -n)
}

func testState() SyncState {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return NewSyncState("TEST", "YAHOO", now)
}

// TestNewAssetWithActivityButNoQuotes: precedence puts New before the
// is_active check.
func TestNewAssetWithActivityButNoQuotes(t *testing.T) {
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := testState()
	s.IsActive = false
	s.FirstActivityDate = ptrTime(today)
	s.LastActivityDate = ptrTime(today)
	s.EarliestQuoteDate = nil

	assert.Equal(t, CategoryNew, s.DetermineCategory(30, 45, 7, today))
}

func TestActivePositionWithQuotes(t *testing.T) {
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := testState()
	s.IsActive = true
	s.FirstActivityDate = ptrTime(daysAgo(today, 10))
	s.EarliestQuoteDate = ptrTime(daysAgo(today, 70))
	s.LastQuoteDate = ptrTime(daysAgo(today, 1))

	assert.Equal(t, CategoryActive, s.DetermineCategory(30, 45, 7, today))
}

func TestNeedsBackfillActivityBeforeQuotes(t *testing.T) {
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := testState()
	s.IsActive = true
	s.FirstActivityDate = ptrTime(daysAgo(today, 60))
	s.EarliestQuoteDate = ptrTime(daysAgo(today, 20))
	s.LastQuoteDate = ptrTime(daysAgo(today, 1))

	assert.Equal(t, CategoryNeedsBackfill, s.DetermineCategory(30, 45, 7, today))
}

func TestRecentlyClosedWithinGracePeriod(t *testing.T) {
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := testState()
	s.IsActive = false
	s.FirstActivityDate = ptrTime(daysAgo(today, 100))
	s.LastActivityDate = ptrTime(daysAgo(today, 5))
	s.PositionClosedDate = ptrTime(daysAgo(today, 5))
	// earliest_quote_date must be at least (100 + 45 + 7) = 152 days ago to
	// avoid triggering NeedsBackfill.
	s.EarliestQuoteDate = ptrTime(daysAgo(today, 160))

	assert.Equal(t, CategoryRecentlyClosed, s.DetermineCategory(30, 45, 7, today))
}

func TestClosedBeyondGracePeriod(t *testing.T) {
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := testState()
	s.IsActive = false
	s.FirstActivityDate = ptrTime(daysAgo(today, 100))
	s.LastActivityDate = ptrTime(daysAgo(today, 50))
	s.PositionClosedDate = ptrTime(daysAgo(today, 50))
	s.EarliestQuoteDate = ptrTime(daysAgo(today, 160))

	assert.Equal(t, CategoryClosed, s.DetermineCategory(30, 45, 7, today))
}

func TestClosedFallsBackToLastActivityDate(t *testing.T) {
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := testState()
	s.IsActive = false
	s.FirstActivityDate = ptrTime(daysAgo(today, 100))
	s.LastActivityDate = ptrTime(daysAgo(today, 10))
	s.PositionClosedDate = nil
	s.EarliestQuoteDate = ptrTime(daysAgo(today, 160))

	assert.Equal(t, CategoryRecentlyClosed, s.DetermineCategory(30, 45, 7, today))
}

func TestMarkSyncedResetsErrors(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := testState()
	s.ErrorCount = 3
	s.LastError = ptrString("boom")

	s.MarkSynced(now, nil, now)

	assert.Equal(t, 0, s.ErrorCount)
	assert.Nil(t, s.LastError)
	assert.True(t, s.LastQuoteDate.Equal(now))
}

func TestMarkSyncFailedIncrementsErrors(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := testState()
	s.MarkSyncFailed("timeout", now)
	s.MarkSyncFailed("timeout again", now)

	assert.Equal(t, 2, s.ErrorCount)
	assert.Equal(t, "timeout again", *s.LastError)
}

func TestDefaultPriorityOrdering(t *testing.T) {
	assert.Greater(t, CategoryActive.DefaultPriority(), CategoryNeedsBackfill.DefaultPriority())
	assert.Greater(t, CategoryNeedsBackfill.DefaultPriority(), CategoryNew.DefaultPriority())
	assert.Greater(t, CategoryNew.DefaultPriority(), CategoryRecentlyClosed.DefaultPriority())
	assert.Greater(t, CategoryRecentlyClosed.DefaultPriority(), CategoryClosed.DefaultPriority())
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrString(s string) *string     { return &s }

// TestDetermineCategoryRespectsConfiguredWindow: shrinking the buffer+margin
// window below the quote-history gap flips NeedsBackfill to Active.
func TestDetermineCategoryRespectsConfiguredWindow(t *testing.T) {
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := testState()
	s.IsActive = true
	s.FirstActivityDate = ptrTime(daysAgo(today, 10))
	s.EarliestQuoteDate = ptrTime(daysAgo(today, 20))
	s.LastQuoteDate = ptrTime(daysAgo(today, 1))

	assert.Equal(t, CategoryNeedsBackfill, s.DetermineCategory(30, 45, 7, today))
	assert.Equal(t, CategoryActive, s.DetermineCategory(30, 5, 2, today))
}

func TestDetermineCategoryZeroWindowsFallBackToDefaults(t *testing.T) {
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := testState()
	s.IsActive = true
	s.FirstActivityDate = ptrTime(daysAgo(today, 10))
	s.EarliestQuoteDate = ptrTime(daysAgo(today, 20))
	s.LastQuoteDate = ptrTime(daysAgo(today, 1))

	assert.Equal(t, s.DetermineCategory(30, 45, 7, today), s.DetermineCategory(0, 0, 0, today))
}
