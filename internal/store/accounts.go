// Package store provides SQLite-backed implementations of the repository
// contracts (accounts, assets, activities, quotes, sync state, snapshots,
// valuations). The core itself only depends
// on the narrower interfaces declared in internal/snapshot, internal/quote,
// internal/valuation and internal/provider.
package store

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgercore/internal/database"
	"github.com/aristath/ledgercore/internal/domain"
	"github.com/aristath/ledgercore/internal/events"
	"github.com/aristath/ledgercore/internal/money"
)

// AccountRepository implements the AccountRepo contract.
type AccountRepository struct {
	db     *database.DB
	log    zerolog.Logger
	events *events.DomainEventTx
}

// NewAccountRepository builds an account repository over db.
func NewAccountRepository(db *database.DB, log zerolog.Logger) *AccountRepository {
	return &AccountRepository{db: db, log: log.With().Str("repo", "account").Logger()}
}

// WithEvents attaches a domain-event sink; every successful write publishes
// an identifier-only event on it.
func (r *AccountRepository) WithEvents(tx events.DomainEventTx) *AccountRepository {
	r.events = &tx
	return r
}

func scanAccount(row interface{ Scan(...any) error }) (domain.Account, error) {
	var a domain.Account
	var currency string
	var active, archived int
	var platformID sql.NullString
	if err := row.Scan(&a.ID, &a.Name, &currency, &active, &archived, &platformID); err != nil {
		return domain.Account{}, err
	}
	a.Currency = money.Currency(currency)
	a.Active = active != 0
	a.Archived = archived != 0
	if platformID.Valid {
		a.PlatformID = &platformID.String
	}
	return a, nil
}

// ListActive returns every account with active=true.
func (r *AccountRepository) ListActive(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, currency, active, archived, platform_id FROM accounts WHERE active = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// ListNonArchived returns every account with archived=false.
func (r *AccountRepository) ListNonArchived(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, currency, active, archived, platform_id FROM accounts WHERE archived = 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

func scanAccounts(rows *sql.Rows) ([]domain.Account, error) {
	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get looks up a single account by id.
func (r *AccountRepository) Get(ctx context.Context, id string) (domain.Account, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, currency, active, archived, platform_id FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return domain.Account{}, false, nil
	}
	if err != nil {
		return domain.Account{}, false, err
	}
	return a, true, nil
}

// Upsert inserts or replaces a by id.
func (r *AccountRepository) Upsert(ctx context.Context, a domain.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, currency, active, archived, platform_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			currency = excluded.currency,
			active = excluded.active,
			archived = excluded.archived,
			platform_id = excluded.platform_id
	`, a.ID, a.Name, string(a.Currency), boolInt(a.Active), boolInt(a.Archived), nullString(a.PlatformID))
	if err != nil {
		return err
	}
	if r.events != nil {
		r.events.Send(events.NewAccountsChangedEvent([]string{a.ID}))
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
