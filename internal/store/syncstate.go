package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgercore/internal/database"
	"github.com/aristath/ledgercore/internal/quote"
)

// SyncStateRepository implements the quote.SyncStateRepository contract
//.
type SyncStateRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewSyncStateRepository builds a sync-state repository over db.
func NewSyncStateRepository(db *database.DB, log zerolog.Logger) *SyncStateRepository {
	return &SyncStateRepository{db: db, log: log.With().Str("repo", "sync_state").Logger()}
}

const syncStateColumns = `asset_id, is_active, first_activity_date, last_activity_date, position_closed_date,
	last_synced_at, last_quote_date, earliest_quote_date, data_source, sync_priority, error_count, last_error`

func scanSyncState(row interface{ Scan(...any) error }) (quote.SyncState, error) {
	var s quote.SyncState
	var isActive int
	var firstActivity, lastActivity, closedDate, syncedAt, lastQuote, earliestQuote sql.NullString
	var dataSource sql.NullString
	var lastError sql.NullString
	if err := row.Scan(&s.Symbol, &isActive, &firstActivity, &lastActivity, &closedDate,
		&syncedAt, &lastQuote, &earliestQuote, &dataSource, &s.SyncPriority, &s.ErrorCount, &lastError); err != nil {
		return quote.SyncState{}, err
	}
	s.IsActive = isActive != 0
	s.FirstActivityDate = nullDate(firstActivity)
	s.LastActivityDate = nullDate(lastActivity)
	s.PositionClosedDate = nullDate(closedDate)
	s.LastSyncedAt = nullDate(syncedAt)
	s.LastQuoteDate = nullDate(lastQuote)
	s.EarliestQuoteDate = nullDate(earliestQuote)
	if dataSource.Valid {
		s.DataSource = dataSource.String
	}
	if lastError.Valid {
		s.LastError = &lastError.String
	}
	return s, nil
}

func nullDate(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func datePtrString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

// GetSyncState looks up the sync state for symbol.
func (r *SyncStateRepository) GetSyncState(ctx context.Context, symbol string) (quote.SyncState, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+syncStateColumns+` FROM sync_state WHERE asset_id = ?`, symbol)
	s, err := scanSyncState(row)
	if err == sql.ErrNoRows {
		return quote.SyncState{}, false, nil
	}
	if err != nil {
		return quote.SyncState{}, false, err
	}
	return s, true, nil
}

// SaveSyncState inserts or replaces the sync state for state.Symbol.
func (r *SyncStateRepository) SaveSyncState(ctx context.Context, s quote.SyncState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_state (`+syncStateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET
			is_active = excluded.is_active, first_activity_date = excluded.first_activity_date,
			last_activity_date = excluded.last_activity_date, position_closed_date = excluded.position_closed_date,
			last_synced_at = excluded.last_synced_at, last_quote_date = excluded.last_quote_date,
			earliest_quote_date = excluded.earliest_quote_date, data_source = excluded.data_source,
			sync_priority = excluded.sync_priority, error_count = excluded.error_count, last_error = excluded.last_error
	`, s.Symbol, boolInt(s.IsActive), datePtrString(s.FirstActivityDate), datePtrString(s.LastActivityDate),
		datePtrString(s.PositionClosedDate), datePtrString(s.LastSyncedAt), datePtrString(s.LastQuoteDate),
		datePtrString(s.EarliestQuoteDate), s.DataSource, s.SyncPriority, s.ErrorCount, nullString(s.LastError))
	return err
}

// ListSyncStates returns every symbol's sync state.
func (r *SyncStateRepository) ListSyncStates(ctx context.Context) ([]quote.SyncState, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+syncStateColumns+` FROM sync_state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []quote.SyncState
	for rows.Next() {
		s, err := scanSyncState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RefreshActivityDatesFromActivities recomputes first/last activity date for
// every symbol from the activities table.
func (r *SyncStateRepository) RefreshActivityDatesFromActivities(ctx context.Context, now time.Time) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT asset_id, MIN(activity_at), MAX(activity_at) FROM activities
		WHERE asset_id IS NOT NULL AND status != 'VOID' GROUP BY asset_id
	`)
	if err != nil {
		return err
	}
	type window struct {
		assetID          string
		first, last      string
	}
	var windows []window
	for rows.Next() {
		var w window
		if err := rows.Scan(&w.assetID, &w.first, &w.last); err != nil {
			rows.Close()
			return err
		}
		windows = append(windows, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, w := range windows {
		state, ok, err := r.GetSyncState(ctx, w.assetID)
		if err != nil {
			return err
		}
		if !ok {
			state = quote.NewSyncState(w.assetID, "", now)
		}
		first, ferr := time.Parse(time.RFC3339, w.first)
		last, lerr := time.Parse(time.RFC3339, w.last)
		if ferr == nil && lerr == nil {
			state.UpdateActivityDates(&first, &last, now)
		}
		if err := r.SaveSyncState(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

// RefreshEarliestQuoteDates recomputes earliest_quote_date for every symbol
// from the quotes table.
func (r *SyncStateRepository) RefreshEarliestQuoteDates(ctx context.Context, now time.Time) error {
	rows, err := r.db.QueryContext(ctx, `SELECT asset_id, MIN(day) FROM quotes GROUP BY asset_id`)
	if err != nil {
		return err
	}
	type earliest struct {
		assetID string
		day     string
	}
	var earliests []earliest
	for rows.Next() {
		var e earliest
		if err := rows.Scan(&e.assetID, &e.day); err != nil {
			rows.Close()
			return err
		}
		earliests = append(earliests, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, e := range earliests {
		state, ok, err := r.GetSyncState(ctx, e.assetID)
		if err != nil {
			return err
		}
		if !ok {
			state = quote.NewSyncState(e.assetID, "", now)
		}
		day, err := time.Parse("2006-01-02", e.day)
		if err == nil {
			state.UpdateEarliestQuoteDate(day, now)
		}
		if err := r.SaveSyncState(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

// ProviderStats aggregates sync health per data source.
func (r *SyncStateRepository) ProviderStats(ctx context.Context) ([]quote.ProviderSyncStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT data_source, COUNT(*), SUM(error_count), MAX(last_synced_at)
		FROM sync_state WHERE data_source IS NOT NULL AND data_source != '' GROUP BY data_source
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []quote.ProviderSyncStats
	for rows.Next() {
		var s quote.ProviderSyncStats
		var lastSynced sql.NullString
		if err := rows.Scan(&s.ProviderID, &s.AssetCount, &s.ErrorCount, &lastSynced); err != nil {
			return nil, err
		}
		if lastSynced.Valid {
			if t, err := time.Parse(time.RFC3339, lastSynced.String); err == nil {
				s.LastSuccessAt = &t
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
