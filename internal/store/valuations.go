package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgercore/internal/database"
	"github.com/aristath/ledgercore/internal/domain"
)

// ValuationRepository implements the valuation.Repository contract.
type ValuationRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewValuationRepository builds a valuation repository over db.
func NewValuationRepository(db *database.DB, log zerolog.Logger) *ValuationRepository {
	return &ValuationRepository{db: db, log: log.With().Str("repo", "valuation").Logger()}
}

const valuationColumns = `account_id, day, market_value, cost_basis, unrealized_gain, realized_gain,
	net_deposits, day_gain_value, day_gain_pct, exchange_rate_used`

// ReplaceRange range-deletes existing valuations for accountID within
// [start, end] and inserts points in one transaction.
func (r *ValuationRepository) ReplaceRange(ctx context.Context, accountID string, start, end time.Time, points []domain.ValuationPoint) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM valuations WHERE account_id = ? AND day >= ? AND day <= ?
	`, accountID, start.Format("2006-01-02"), end.Format("2006-01-02")); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO valuations (`+valuationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, day) DO UPDATE SET
			market_value = excluded.market_value, cost_basis = excluded.cost_basis,
			unrealized_gain = excluded.unrealized_gain, realized_gain = excluded.realized_gain,
			net_deposits = excluded.net_deposits, day_gain_value = excluded.day_gain_value,
			day_gain_pct = excluded.day_gain_pct, exchange_rate_used = excluded.exchange_rate_used
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx,
			p.AccountID, p.Date.Format("2006-01-02"), p.MarketValue.String(), p.CostBasis.String(),
			p.UnrealizedGain.String(), p.RealizedGain.String(), p.CumulativeNetDeposits.String(),
			p.DayGainValue.String(), p.DayGainPct.String(), decimalPtrString(p.BaseExchangeRateUsed),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func scanValuation(row interface{ Scan(...any) error }) (domain.ValuationPoint, error) {
	var p domain.ValuationPoint
	var day, marketValue, costBasis, unrealizedGain, realizedGain, netDeposits, dayGainValue, dayGainPct string
	var rate sql.NullString
	if err := row.Scan(&p.AccountID, &day, &marketValue, &costBasis, &unrealizedGain, &realizedGain,
		&netDeposits, &dayGainValue, &dayGainPct, &rate); err != nil {
		return domain.ValuationPoint{}, err
	}
	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		return domain.ValuationPoint{}, err
	}
	p.Date = d
	p.MarketValue = mustDecimal(marketValue)
	p.CostBasis = mustDecimal(costBasis)
	p.UnrealizedGain = mustDecimal(unrealizedGain)
	p.RealizedGain = mustDecimal(realizedGain)
	p.CumulativeNetDeposits = mustDecimal(netDeposits)
	p.DayGainValue = mustDecimal(dayGainValue)
	p.DayGainPct = mustDecimal(dayGainPct)
	if rate.Valid {
		d := mustDecimal(rate.String)
		p.BaseExchangeRateUsed = &d
	}
	return p, nil
}

// Range returns accountID's valuation points within [start, end], ordered ascending.
func (r *ValuationRepository) Range(ctx context.Context, accountID string, start, end time.Time) ([]domain.ValuationPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+valuationColumns+` FROM valuations WHERE account_id = ? AND day >= ? AND day <= ? ORDER BY day ASC
	`, accountID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ValuationPoint
	for rows.Next() {
		p, err := scanValuation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
