package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/ledgercore/internal/database"
	"github.com/aristath/ledgercore/internal/domain"
	"github.com/aristath/ledgercore/internal/money"
)

// QuoteRepository implements the quote.Repository contract.
type QuoteRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewQuoteRepository builds a quote repository over db.
func NewQuoteRepository(db *database.DB, log zerolog.Logger) *QuoteRepository {
	return &QuoteRepository{db: db, log: log.With().Str("repo", "quote").Logger()}
}

const quoteColumns = `asset_id, day, data_source, open, high, low, close, adj_close, volume, currency, notes`

func scanQuote(row interface{ Scan(...any) error }) (domain.Quote, error) {
	var q domain.Quote
	var day, currency string
	var open, high, low, close_, adjClose, volume sql.NullString
	var notes sql.NullString
	if err := row.Scan(&q.AssetID, &day, &q.DataSource, &open, &high, &low, &close_, &adjClose, &volume, &currency, &notes); err != nil {
		return domain.Quote{}, err
	}
	ts, err := time.Parse("2006-01-02", day)
	if err != nil {
		return domain.Quote{}, err
	}
	q.Timestamp = ts
	q.Currency = money.Currency(currency)
	q.Open = decimalOrZero(open)
	q.High = decimalOrZero(high)
	q.Low = decimalOrZero(low)
	q.Close = decimalOrZero(close_)
	if adjClose.Valid {
		d := decimalOrZero(adjClose)
		q.AdjClose = &d
	}
	if volume.Valid {
		d := decimalOrZero(volume)
		q.Volume = &d
	}
	if notes.Valid {
		q.Notes = &notes.String
	}
	return q, nil
}

func decimalOrZero(s sql.NullString) decimal.Decimal {
	if !s.Valid {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// UpsertQuotes idempotently saves quotes keyed by (asset id, civil day, data
// source) in one transaction.
func (r *QuoteRepository) UpsertQuotes(ctx context.Context, quotes []domain.Quote) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO quotes (`+quoteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_id, day, data_source) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low, close = excluded.close,
			adj_close = excluded.adj_close, volume = excluded.volume, currency = excluded.currency, notes = excluded.notes
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, q := range quotes {
		if _, err := stmt.ExecContext(ctx,
			q.AssetID, q.CivilDay().Format("2006-01-02"), q.DataSource,
			q.Open.String(), q.High.String(), q.Low.String(), q.Close.String(),
			decimalPtrString(q.AdjClose), decimalPtrString(q.Volume), string(q.Currency), nullString(q.Notes),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LatestQuote returns the most recent quote for assetID across any data source.
func (r *QuoteRepository) LatestQuote(ctx context.Context, assetID string) (domain.Quote, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+quoteColumns+` FROM quotes WHERE asset_id = ? ORDER BY day DESC LIMIT 1
	`, assetID)
	q, err := scanQuote(row)
	if err == sql.ErrNoRows {
		return domain.Quote{}, false, nil
	}
	if err != nil {
		return domain.Quote{}, false, err
	}
	return q, true, nil
}

// LatestQuotes returns the latest quote for each asset id that has one.
func (r *QuoteRepository) LatestQuotes(ctx context.Context, assetIDs []string) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote, len(assetIDs))
	for _, id := range assetIDs {
		q, ok, err := r.LatestQuote(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out[id] = q
		}
	}
	return out, nil
}

// LatestPair returns the latest and previous quote for each asset id,
// used for day-gain computation.
func (r *QuoteRepository) LatestPair(ctx context.Context, assetIDs []string) (map[string][2]domain.Quote, error) {
	out := make(map[string][2]domain.Quote, len(assetIDs))
	for _, id := range assetIDs {
		rows, err := r.db.QueryContext(ctx, `
			SELECT `+quoteColumns+` FROM quotes WHERE asset_id = ? ORDER BY day DESC LIMIT 2
		`, id)
		if err != nil {
			return nil, err
		}
		var pair [2]domain.Quote
		i := 0
		for rows.Next() && i < 2 {
			q, err := scanQuote(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			pair[i] = q
			i++
		}
		rows.Close()
		if i > 0 {
			out[id] = pair
		}
	}
	return out, nil
}

// History returns quotes for assetID within [start, end], ordered ascending.
func (r *QuoteRepository) History(ctx context.Context, assetID string, start, end time.Time) ([]domain.Quote, error) {
	args := []any{assetID}
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE asset_id = ?`
	if !start.IsZero() {
		query += ` AND day >= ?`
		args = append(args, start.Format("2006-01-02"))
	}
	if !end.IsZero() {
		query += ` AND day <= ?`
		args = append(args, end.Format("2006-01-02"))
	}
	query += ` ORDER BY day ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// HistoryMany returns History for every asset id in one pass.
func (r *QuoteRepository) HistoryMany(ctx context.Context, assetIDs []string, start, end time.Time) (map[string][]domain.Quote, error) {
	out := make(map[string][]domain.Quote, len(assetIDs))
	for _, id := range assetIDs {
		h, err := r.History(ctx, id, start, end)
		if err != nil {
			return nil, err
		}
		out[id] = h
	}
	return out, nil
}
