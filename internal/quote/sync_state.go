// Package quote implements the quote store and sync-state tracker:
// persisted OHLC quotes keyed by (asset id, civil day, data source), and the
// per-symbol sync category that Store.PendingSyncPlan uses to order what
// to sync next.
package quote

import (
	"time"
)

// SyncCategory is the derived sync priority bucket for one symbol.
type SyncCategory string

const (
	CategoryActive         SyncCategory = "ACTIVE"
	CategoryNew            SyncCategory = "NEW"
	CategoryNeedsBackfill  SyncCategory = "NEEDS_BACKFILL"
	CategoryRecentlyClosed SyncCategory = "RECENTLY_CLOSED"
	CategoryClosed         SyncCategory = "CLOSED"
)

// DefaultPriority returns the category's base sync priority;
// Store.PendingSyncPlan sorts pending syncs by this, descending, and drops
// Closed entirely.
func (c SyncCategory) DefaultPriority() int {
	switch c {
	case CategoryActive:
		return 100
	case CategoryNeedsBackfill:
		return 90
	case CategoryNew:
		return 80
	case CategoryRecentlyClosed:
		return 50
	case CategoryClosed:
		return 0
	default:
		return 0
	}
}

// Defaults for the sync-classification windows, applied when a caller
// passes a non-positive value.
const (
	DefaultQuoteHistoryBufferDays   = 45
	DefaultBackfillSafetyMarginDays = 7
	DefaultClosedGracePeriodDays    = 30
)

// SyncState is the per-symbol sync bookkeeping record.
type SyncState struct {
	Symbol             string
	IsActive           bool
	FirstActivityDate  *time.Time
	LastActivityDate   *time.Time
	PositionClosedDate *time.Time
	LastSyncedAt       *time.Time
	LastQuoteDate      *time.Time
	EarliestQuoteDate  *time.Time
	DataSource         string
	SyncPriority       int
	ErrorCount         int
	LastError          *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewSyncState seeds a fresh sync state for symbol, defaulting to the New
// category's priority.
func NewSyncState(symbol, dataSource string, now time.Time) SyncState {
	return SyncState{
		Symbol:       symbol,
		IsActive:     true,
		DataSource:   dataSource,
		SyncPriority: CategoryNew.DefaultPriority(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// DetermineCategory derives the sync category from the current state, given
// the configured closed-grace-period, history-buffer, and safety-margin day
// counts and the current civil date. Non-positive day counts fall back to
// the package defaults. The New/NeedsBackfill checks apply unconditionally,
// before the is_active check: a closed position can still need a backfill.
func (s SyncState) DetermineCategory(gracePeriodDays, bufferDays, marginDays int, today time.Time) SyncCategory {
	if gracePeriodDays <= 0 {
		gracePeriodDays = DefaultClosedGracePeriodDays
	}
	if bufferDays <= 0 {
		bufferDays = DefaultQuoteHistoryBufferDays
	}
	if marginDays <= 0 {
		marginDays = DefaultBackfillSafetyMarginDays
	}

	if s.FirstActivityDate != nil && s.EarliestQuoteDate == nil {
		return CategoryNew
	}

	if s.FirstActivityDate != nil && s.EarliestQuoteDate != nil {
		requiredStart := s.FirstActivityDate.AddDate(0, 0, -(bufferDays + marginDays))
		if requiredStart.Before(*s.EarliestQuoteDate) {
			return CategoryNeedsBackfill
		}
	}

	if s.IsActive {
		return CategoryActive
	}

	if s.PositionClosedDate != nil {
		daysSinceClose := int(today.Sub(*s.PositionClosedDate).Hours() / 24)
		if daysSinceClose <= gracePeriodDays {
			return CategoryRecentlyClosed
		}
	}

	if s.LastActivityDate != nil {
		daysSinceActivity := int(today.Sub(*s.LastActivityDate).Hours() / 24)
		if daysSinceActivity <= gracePeriodDays {
			return CategoryRecentlyClosed
		}
	}

	return CategoryClosed
}

// MarkSynced resets error bookkeeping and records the sync result.
func (s *SyncState) MarkSynced(lastQuoteDate time.Time, earliestQuoteDate *time.Time, now time.Time) {
	s.LastSyncedAt = &now
	s.LastQuoteDate = &lastQuoteDate
	s.ErrorCount = 0
	s.LastError = nil
	if earliestQuoteDate != nil {
		s.UpdateEarliestQuoteDate(*earliestQuoteDate, now)
	}
	s.UpdatedAt = now
}

// MarkSyncFailed records a failed sync attempt.
func (s *SyncState) MarkSyncFailed(errMsg string, now time.Time) {
	s.ErrorCount++
	s.LastError = &errMsg
	s.UpdatedAt = now
}

// UpdateActivityDates widens the [first, last] activity date window,
// keeping the earlier first date and the later last date.
func (s *SyncState) UpdateActivityDates(first, last *time.Time, now time.Time) {
	if first != nil {
		if s.FirstActivityDate == nil || first.Before(*s.FirstActivityDate) {
			s.FirstActivityDate = first
		}
	}
	if last != nil {
		if s.LastActivityDate == nil || last.After(*s.LastActivityDate) {
			s.LastActivityDate = last
		}
	}
	s.UpdatedAt = now
}

// MarkClosed transitions the symbol to closed, starting its grace-period
// clock.
func (s *SyncState) MarkClosed(closedDate time.Time, now time.Time) {
	s.IsActive = false
	s.PositionClosedDate = &closedDate
	s.SyncPriority = CategoryRecentlyClosed.DefaultPriority()
	s.UpdatedAt = now
}

// MarkActive transitions the symbol back to an open position.
func (s *SyncState) MarkActive(now time.Time) {
	s.IsActive = true
	s.PositionClosedDate = nil
	s.SyncPriority = CategoryActive.DefaultPriority()
	s.UpdatedAt = now
}

// UpdateEarliestQuoteDate widens the earliest-quote-date boundary backward
// only.
func (s *SyncState) UpdateEarliestQuoteDate(date time.Time, now time.Time) {
	if s.EarliestQuoteDate == nil || date.Before(*s.EarliestQuoteDate) {
		s.EarliestQuoteDate = &date
	}
	s.UpdatedAt = now
}

// ProviderSyncStats aggregates sync health for one data provider, as
// returned by SyncStateRepository.ProviderStats.
type ProviderSyncStats struct {
	ProviderID    string
	AssetCount    int64
	ErrorCount    int64
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
}
