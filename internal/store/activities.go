package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/ledgercore/internal/database"
	"github.com/aristath/ledgercore/internal/domain"
	"github.com/aristath/ledgercore/internal/events"
	"github.com/aristath/ledgercore/internal/money"
)

// ActivityRepository implements the ActivityRepo contract and the
// snapshot engine's ActivityStore read surface.
type ActivityRepository struct {
	db     *database.DB
	log    zerolog.Logger
	events *events.DomainEventTx
}

// NewActivityRepository builds an activity repository over db.
func NewActivityRepository(db *database.DB, log zerolog.Logger) *ActivityRepository {
	return &ActivityRepository{db: db, log: log.With().Str("repo", "activity").Logger()}
}

// WithEvents attaches a domain-event sink; every successful batch upsert
// publishes an identifier-only event on it.
func (r *ActivityRepository) WithEvents(tx events.DomainEventTx) *ActivityRepository {
	r.events = &tx
	return r
}

const activityColumns = `id, account_id, asset_id, type, subtype, user_override_type, status, activity_at,
	settlement_date, quantity, unit_price, amount, fee, fx_rate, currency,
	source_system, source_record_id, source_group_id, idempotency_key, needs_review, is_user_modified, metadata`

func scanActivity(row interface{ Scan(...any) error }) (domain.Activity, error) {
	var a domain.Activity
	var assetID, subtype, override, settlement sql.NullString
	var quantity, unitPrice, amount, fee, fxRate sql.NullString
	var currency string
	var sourceSystem, sourceRecordID, sourceGroupID, idempotencyKey sql.NullString
	var needsReview, userModified int
	var metadata sql.NullString
	var activityAt string

	if err := row.Scan(&a.ID, &a.AccountID, &assetID, &a.Type, &subtype, &override, &a.Status, &activityAt,
		&settlement, &quantity, &unitPrice, &amount, &fee, &fxRate, &currency,
		&sourceSystem, &sourceRecordID, &sourceGroupID, &idempotencyKey, &needsReview, &userModified, &metadata); err != nil {
		return domain.Activity{}, err
	}

	ts, err := time.Parse(time.RFC3339, activityAt)
	if err != nil {
		return domain.Activity{}, err
	}
	a.ActivityAt = ts
	a.Currency = money.Currency(currency)
	a.NeedsReview = needsReview != 0
	a.IsUserModified = userModified != 0

	if assetID.Valid {
		v := assetID.String
		a.AssetID = &v
	}
	if subtype.Valid {
		v := domain.ActivitySubtype(subtype.String)
		a.Subtype = &v
	}
	if override.Valid {
		v := domain.ActivityType(override.String)
		a.UserOverrideType = &v
	}
	if settlement.Valid {
		t, err := time.Parse(time.RFC3339, settlement.String)
		if err == nil {
			a.SettlementDate = &t
		}
	}
	a.Quantity = nullDecimal(quantity)
	a.UnitPrice = nullDecimal(unitPrice)
	a.Amount = nullDecimal(amount)
	a.Fee = nullDecimal(fee)
	a.FxRate = nullDecimal(fxRate)
	a.Source = domain.ProviderSource{}
	if sourceSystem.Valid {
		a.Source.SourceSystem = &sourceSystem.String
	}
	if sourceRecordID.Valid {
		a.Source.SourceRecordID = &sourceRecordID.String
	}
	if sourceGroupID.Valid {
		a.Source.SourceGroupID = &sourceGroupID.String
	}
	if idempotencyKey.Valid {
		a.Source.IdempotencyKey = &idempotencyKey.String
	}
	if metadata.Valid {
		a.Metadata = json.RawMessage(metadata.String)
	}
	return a, nil
}

func nullDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func decimalPtrString(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// Range returns every activity for accountIDs with activity date within
// [start, end] inclusive, ordered by activity timestamp then id.
func (r *ActivityRepository) Range(ctx context.Context, accountIDs []string, start, end time.Time) ([]domain.Activity, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(accountIDs)), ",")
	args := make([]any, 0, len(accountIDs)+2)
	for _, id := range accountIDs {
		args = append(args, id)
	}
	args = append(args, start.Format(time.RFC3339), end.Format(time.RFC3339))
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+activityColumns+` FROM activities
		WHERE account_id IN (`+placeholders+`) AND activity_at >= ? AND activity_at <= ?
		ORDER BY activity_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActivities(rows)
}

// ActivitiesOn implements snapshot.ActivityStore: every activity for
// accountIDs whose activity date falls on the given civil day.
func (r *ActivityRepository) ActivitiesOn(ctx context.Context, accountIDs []string, day time.Time) ([]domain.Activity, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)
	if len(accountIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(accountIDs)), ",")
	args := make([]any, 0, len(accountIDs)+2)
	for _, id := range accountIDs {
		args = append(args, id)
	}
	args = append(args, dayStart.Format(time.RFC3339), dayEnd.Format(time.RFC3339))
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+activityColumns+` FROM activities
		WHERE account_id IN (`+placeholders+`) AND activity_at >= ? AND activity_at < ? AND status != 'VOID'
		ORDER BY activity_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActivities(rows)
}

// EarliestActivityDate implements snapshot.ActivityStore: the civil date of
// the earliest non-Void activity across accountIDs.
func (r *ActivityRepository) EarliestActivityDate(ctx context.Context, accountIDs []string) (time.Time, bool, error) {
	if len(accountIDs) == 0 {
		return time.Time{}, false, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(accountIDs)), ",")
	args := make([]any, len(accountIDs))
	for i, id := range accountIDs {
		args[i] = id
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT MIN(activity_at) FROM activities WHERE account_id IN (`+placeholders+`) AND status != 'VOID'
	`, args...)
	var earliest sql.NullString
	if err := row.Scan(&earliest); err != nil {
		return time.Time{}, false, err
	}
	if !earliest.Valid {
		return time.Time{}, false, nil
	}
	ts, err := time.Parse(time.RFC3339, earliest.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), true, nil
}

// BySourceRecord resolves an existing activity id by (source_system,
// source_record_id), used to de-duplicate broker-synced activities.
func (r *ActivityRepository) BySourceRecord(ctx context.Context, sourceSystem, sourceRecordID string) (string, bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM activities WHERE source_system = ? AND source_record_id = ?
	`, sourceSystem, sourceRecordID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// UpsertBatch inserts or replaces a batch of activities in one transaction.
func (r *ActivityRepository) UpsertBatch(ctx context.Context, activities []domain.Activity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO activities (`+activityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id, asset_id = excluded.asset_id, type = excluded.type,
			subtype = excluded.subtype, user_override_type = excluded.user_override_type,
			status = excluded.status, activity_at = excluded.activity_at, settlement_date = excluded.settlement_date,
			quantity = excluded.quantity, unit_price = excluded.unit_price, amount = excluded.amount,
			fee = excluded.fee, fx_rate = excluded.fx_rate, currency = excluded.currency,
			source_system = excluded.source_system, source_record_id = excluded.source_record_id,
			source_group_id = excluded.source_group_id, idempotency_key = excluded.idempotency_key,
			needs_review = excluded.needs_review, is_user_modified = excluded.is_user_modified,
			metadata = excluded.metadata
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range activities {
		var subtype, override, settlement any
		if a.Subtype != nil {
			subtype = string(*a.Subtype)
		}
		if a.UserOverrideType != nil {
			override = string(*a.UserOverrideType)
		}
		if a.SettlementDate != nil {
			settlement = a.SettlementDate.Format(time.RFC3339)
		}
		if _, err := stmt.ExecContext(ctx,
			a.ID, a.AccountID, nullString(a.AssetID), string(a.Type), subtype, override, string(a.Status),
			a.ActivityAt.Format(time.RFC3339), settlement,
			decimalPtrString(a.Quantity), decimalPtrString(a.UnitPrice), decimalPtrString(a.Amount),
			decimalPtrString(a.Fee), decimalPtrString(a.FxRate), string(a.Currency),
			nullString(a.Source.SourceSystem), nullString(a.Source.SourceRecordID),
			nullString(a.Source.SourceGroupID), nullString(a.Source.IdempotencyKey),
			boolInt(a.NeedsReview), boolInt(a.IsUserModified), rawJSON(a.Metadata),
		); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if r.events != nil && len(activities) > 0 {
		accountIDs := make([]string, 0, len(activities))
		assetIDs := make([]string, 0, len(activities))
		seenAccounts := make(map[string]bool)
		seenAssets := make(map[string]bool)
		for _, a := range activities {
			if !seenAccounts[a.AccountID] {
				seenAccounts[a.AccountID] = true
				accountIDs = append(accountIDs, a.AccountID)
			}
			if a.AssetID != nil && !seenAssets[*a.AssetID] {
				seenAssets[*a.AssetID] = true
				assetIDs = append(assetIDs, *a.AssetID)
			}
		}
		r.events.Send(events.NewActivitiesChangedEvent(accountIDs, assetIDs))
	}
	return nil
}

func scanActivities(rows *sql.Rows) ([]domain.Activity, error) {
	var out []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
