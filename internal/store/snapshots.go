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
	"github.com/aristath/ledgercore/internal/money"
)

// SnapshotRepository implements the snapshot.Store contract.
type SnapshotRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewSnapshotRepository builds a snapshot repository over db.
func NewSnapshotRepository(db *database.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{db: db, log: log.With().Str("repo", "snapshot").Logger()}
}

// lotJSON/positionJSON/snapshotJSON mirror domain.AccountSnapshot's shape for
// the JSON blob columns (positions, cash_balances); decimals serialize as
// strings so no precision is lost through encoding/json's float64 path.
type lotJSON struct {
	AccountID         string `json:"account_id"`
	AssetID           string `json:"asset_id"`
	OpenDate          string `json:"open_date"`
	OpenActivityID    string `json:"open_activity_id"`
	OriginalQuantity  string `json:"original_quantity"`
	RemainingQuantity string `json:"remaining_quantity"`
	UnitCost          string `json:"unit_cost"`
}

type positionJSON struct {
	Quantity       string    `json:"quantity"`
	CostBasisAsset string    `json:"cost_basis_asset"`
	CostBasisAcct  string    `json:"cost_basis_acct"`
	Lots           []lotJSON `json:"lots"`
}

func encodePositions(positions map[string]domain.PositionState) (string, error) {
	out := make(map[string]positionJSON, len(positions))
	for assetID, pos := range positions {
		lots := make([]lotJSON, len(pos.Lots))
		for i, l := range pos.Lots {
			lots[i] = lotJSON{
				AccountID:         l.AccountID,
				AssetID:           l.AssetID,
				OpenDate:          l.OpenDate.Format(time.RFC3339),
				OpenActivityID:    l.OpenActivityID,
				OriginalQuantity:  l.OriginalQuantity.String(),
				RemainingQuantity: l.RemainingQuantity.String(),
				UnitCost:          l.UnitCost.String(),
			}
		}
		out[assetID] = positionJSON{
			Quantity:       pos.Quantity.String(),
			CostBasisAsset: pos.CostBasisAsset.String(),
			CostBasisAcct:  pos.CostBasisAcct.String(),
			Lots:           lots,
		}
	}
	raw, err := json.Marshal(out)
	return string(raw), err
}

func decodePositions(raw string) (map[string]domain.PositionState, error) {
	var in map[string]positionJSON
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, err
	}
	out := make(map[string]domain.PositionState, len(in))
	for assetID, pos := range in {
		lots := make([]domain.Lot, len(pos.Lots))
		for i, l := range pos.Lots {
			openDate, _ := time.Parse(time.RFC3339, l.OpenDate)
			lots[i] = domain.Lot{
				AccountID:         l.AccountID,
				AssetID:           l.AssetID,
				OpenDate:          openDate,
				OpenActivityID:    l.OpenActivityID,
				OriginalQuantity:  mustDecimal(l.OriginalQuantity),
				RemainingQuantity: mustDecimal(l.RemainingQuantity),
				UnitCost:          mustDecimal(l.UnitCost),
			}
		}
		out[assetID] = domain.PositionState{
			Quantity:       mustDecimal(pos.Quantity),
			CostBasisAsset: mustDecimal(pos.CostBasisAsset),
			CostBasisAcct:  mustDecimal(pos.CostBasisAcct),
			Lots:           lots,
		}
	}
	return out, nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func encodeCash(cash map[money.Currency]decimal.Decimal) (string, error) {
	out := make(map[string]string, len(cash))
	for ccy, amt := range cash {
		out[string(ccy)] = amt.String()
	}
	raw, err := json.Marshal(out)
	return string(raw), err
}

func decodeCash(raw string) (map[money.Currency]decimal.Decimal, error) {
	var in map[string]string
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, err
	}
	out := make(map[money.Currency]decimal.Decimal, len(in))
	for ccy, amt := range in {
		out[money.Currency(ccy)] = mustDecimal(amt)
	}
	return out, nil
}

func scanSnapshot(row interface{ Scan(...any) error }) (domain.AccountSnapshot, error) {
	var s domain.AccountSnapshot
	var day, reportingCcy, positions, cash, netContribution, realizedGain, calculatedAt string
	if err := row.Scan(&s.AccountID, &day, &reportingCcy, &positions, &cash, &netContribution, &realizedGain, &calculatedAt); err != nil {
		return domain.AccountSnapshot{}, err
	}
	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	s.Date = d
	s.ReportingCurrency = money.Currency(reportingCcy)
	s.NetContribution = mustDecimal(netContribution)
	s.RealizedGain = mustDecimal(realizedGain)
	if t, err := time.Parse(time.RFC3339, calculatedAt); err == nil {
		s.CalculatedAt = t
	}
	if s.Positions, err = decodePositions(positions); err != nil {
		return domain.AccountSnapshot{}, err
	}
	if s.Cash, err = decodeCash(cash); err != nil {
		return domain.AccountSnapshot{}, err
	}
	return s, nil
}

// LatestSnapshotBefore returns accountID's most recent snapshot strictly
// before cutoff.
func (r *SnapshotRepository) LatestSnapshotBefore(ctx context.Context, accountID string, cutoff time.Time) (domain.AccountSnapshot, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT account_id, day, reporting_currency, positions, cash_balances, net_contribution, realized_gain, calculated_at
		FROM snapshots WHERE account_id = ? AND day < ? ORDER BY day DESC LIMIT 1
	`, accountID, cutoff.Format("2006-01-02"))
	s, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return domain.AccountSnapshot{}, false, nil
	}
	if err != nil {
		return domain.AccountSnapshot{}, false, err
	}
	return s, true, nil
}

// LatestSnapshotDate returns the civil date of accountID's most recent snapshot.
func (r *SnapshotRepository) LatestSnapshotDate(ctx context.Context, accountID string) (time.Time, bool, error) {
	var day sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT MAX(day) FROM snapshots WHERE account_id = ?`, accountID).Scan(&day)
	if err != nil {
		return time.Time{}, false, err
	}
	if !day.Valid {
		return time.Time{}, false, nil
	}
	d, err := time.Parse("2006-01-02", day.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return d, true, nil
}

func (r *SnapshotRepository) insertSnapshots(ctx context.Context, tx *sql.Tx, snapshots []domain.AccountSnapshot) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshots (account_id, day, reporting_currency, positions, cash_balances, net_contribution, realized_gain, calculated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, day) DO UPDATE SET
			reporting_currency = excluded.reporting_currency, positions = excluded.positions,
			cash_balances = excluded.cash_balances, net_contribution = excluded.net_contribution,
			realized_gain = excluded.realized_gain, calculated_at = excluded.calculated_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range snapshots {
		positions, err := encodePositions(s.Positions)
		if err != nil {
			return err
		}
		cash, err := encodeCash(s.Cash)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			s.AccountID, s.Date.Format("2006-01-02"), string(s.ReportingCurrency),
			positions, cash, s.NetContribution.String(), s.RealizedGain.String(), s.CalculatedAt.Format(time.RFC3339),
		); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceFullRecalc deletes every existing snapshot for accountIDs and
// inserts snapshots in one transaction.
func (r *SnapshotRepository) ReplaceFullRecalc(ctx context.Context, accountIDs []string, snapshots []domain.AccountSnapshot) error {
	if len(accountIDs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(accountIDs)), ",")
	args := make([]any, len(accountIDs))
	for i, id := range accountIDs {
		args[i] = id
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE account_id IN (`+placeholders+`)`, args...); err != nil {
		return err
	}
	if err := r.insertSnapshots(ctx, tx, snapshots); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceRange deletes accountID's snapshots within [start, end] and inserts
// snapshots in one transaction.
func (r *SnapshotRepository) ReplaceRange(ctx context.Context, accountID string, start, end time.Time, snapshots []domain.AccountSnapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM snapshots WHERE account_id = ? AND day >= ? AND day <= ?
	`, accountID, start.Format("2006-01-02"), end.Format("2006-01-02")); err != nil {
		return err
	}
	if err := r.insertSnapshots(ctx, tx, snapshots); err != nil {
		return err
	}
	return tx.Commit()
}

// Range returns accountID's snapshots within [start, end], ordered by day,
// the read side the valuation engine needs to recompute market value and
// gain over a window.
func (r *SnapshotRepository) Range(ctx context.Context, accountID string, start, end time.Time) ([]domain.AccountSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT account_id, day, reporting_currency, positions, cash_balances, net_contribution, realized_gain, calculated_at
		FROM snapshots WHERE account_id = ? AND day >= ? AND day <= ? ORDER BY day ASC
	`, accountID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AccountSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
