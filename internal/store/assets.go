package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgercore/internal/database"
	"github.com/aristath/ledgercore/internal/domain"
	"github.com/aristath/ledgercore/internal/events"
	"github.com/aristath/ledgercore/internal/money"
)

// AssetRepository implements the AssetRepo contract.
type AssetRepository struct {
	db     *database.DB
	log    zerolog.Logger
	events *events.DomainEventTx
}

// NewAssetRepository builds an asset repository over db.
func NewAssetRepository(db *database.DB, log zerolog.Logger) *AssetRepository {
	return &AssetRepository{db: db, log: log.With().Str("repo", "asset").Logger()}
}

// WithEvents attaches a domain-event sink; asset creation and metadata
// updates publish identifier-only events on it.
func (r *AssetRepository) WithEvents(tx events.DomainEventTx) *AssetRepository {
	r.events = &tx
	return r
}

func scanAsset(row interface{ Scan(...any) error }) (domain.Asset, error) {
	var a domain.Asset
	var currency, kind, pricingMode string
	var exchangeMIC, isoClass sql.NullString
	var metadata, profile sql.NullString
	if err := row.Scan(&a.ID, &a.Symbol, &a.Name, &currency, &kind, &pricingMode, &exchangeMIC, &isoClass, &metadata, &profile); err != nil {
		return domain.Asset{}, err
	}
	a.Currency = money.Currency(currency)
	a.Kind = domain.AssetKind(kind)
	a.PricingMode = domain.PricingMode(pricingMode)
	if exchangeMIC.Valid {
		a.ExchangeMIC = &exchangeMIC.String
	}
	if isoClass.Valid {
		a.ISOClass = &isoClass.String
	}
	if metadata.Valid {
		a.Metadata = json.RawMessage(metadata.String)
	}
	if profile.Valid {
		a.Profile = json.RawMessage(profile.String)
	}
	return a, nil
}

const assetColumns = `id, symbol, name, currency, kind, pricing_mode, exchange_mic, iso_class, metadata, profile`

// Get looks up a single asset by id.
func (r *AssetRepository) Get(ctx context.Context, id string) (domain.Asset, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return domain.Asset{}, false, nil
	}
	if err != nil {
		return domain.Asset{}, false, err
	}
	return a, true, nil
}

// ListByIDs returns every matching asset, skipping unknown ids.
func (r *AssetRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAll returns every asset, used by a full market-sync pass to
// enumerate every market-priced asset.
func (r *AssetRepository) ListAll(ctx context.Context) ([]domain.Asset, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListByKind returns every asset of the given kind.
func (r *AssetRepository) ListByKind(ctx context.Context, kind domain.AssetKind) ([]domain.Asset, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE kind = ?`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// EnsureAsset inserts a, leaving any existing row with the same id untouched
// (idempotent existence check, not an overwrite).
func (r *AssetRepository) EnsureAsset(ctx context.Context, a domain.Asset) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assets (`+assetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, a.ID, a.Symbol, a.Name, string(a.Currency), string(a.Kind), string(a.PricingMode),
		nullString(a.ExchangeMIC), nullString(a.ISOClass), rawJSON(a.Metadata), rawJSON(a.Profile))
	return err
}

// Create inserts a new asset, failing if the id already exists.
func (r *AssetRepository) Create(ctx context.Context, a domain.Asset) error {
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assets (`+assetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Symbol, a.Name, string(a.Currency), string(a.Kind), string(a.PricingMode),
		nullString(a.ExchangeMIC), nullString(a.ISOClass), rawJSON(a.Metadata), rawJSON(a.Profile))
	if err != nil {
		return err
	}
	if r.events != nil {
		r.events.Send(events.NewAssetsCreatedEvent([]string{a.ID}))
	}
	return nil
}

// UpdateMetadata replaces an asset's metadata blob (nil clears it), used by
// asset-profile enrichment.
func (r *AssetRepository) UpdateMetadata(ctx context.Context, id string, metadata []byte) error {
	_, err := r.db.ExecContext(ctx, `UPDATE assets SET metadata = ? WHERE id = ?`, metadata, id)
	if err != nil {
		return err
	}
	if r.events != nil {
		r.events.Send(events.NewAssetsChangedEvent([]string{id}))
	}
	return nil
}

func rawJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
