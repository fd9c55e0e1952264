package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"balance-checker/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrDuplicateTicker = errors.New("ticker already registered")
	ErrAssetNotFound   = errors.New("asset not found")
)

type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

func (r *Repo) Close() error {
	return r.db.Close()
}

func (r *Repo) CreateAsset(ctx context.Context, a models.Asset) (models.Asset, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	q := r.db.Rebind(`INSERT INTO assets (name, ticker, provider, class, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`)
	if err := r.db.QueryRowxContext(ctx, q, a.Name, a.Ticker, a.Provider, string(a.Class), a.CreatedAt.UTC()).Scan(&a.ID); err != nil {
		if isUniqueViolation(err) {
			return models.Asset{}, fmt.Errorf("%w: %s", ErrDuplicateTicker, a.Ticker)
		}
		return models.Asset{}, fmt.Errorf("insert asset %s: %w", a.Ticker, err)
	}
	return a, nil
}

func (r *Repo) AssetByTicker(ctx context.Context, ticker string) (models.Asset, error) {
	var a models.Asset
	q := r.db.Rebind(`SELECT id, name, ticker, provider, class, created_at FROM assets WHERE ticker = ?`)
	if err := r.db.GetContext(ctx, &a, q, ticker); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Asset{}, fmt.Errorf("%w: %s", ErrAssetNotFound, ticker)
		}
		return models.Asset{}, fmt.Errorf("get asset %s: %w", ticker, err)
	}
	return a, nil
}

// ListAssets returns every asset of the class, or all assets when class is empty.
func (r *Repo) ListAssets(ctx context.Context, class models.AssetClass) ([]models.Asset, error) {
	q := r.db.Rebind(`SELECT id, name, ticker, provider, class, created_at FROM assets WHERE (CAST(? AS TEXT) = '' OR class = ?) ORDER BY id`)
	res := []models.Asset{}
	if err := r.db.SelectContext(ctx, &res, q, string(class), string(class)); err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return res, nil
}

func (r *Repo) AppendMovement(ctx context.Context, m models.Movement) error {
	return r.AppendMovements(ctx, []models.Movement{m})
}

// AppendMovements commits the whole batch or nothing, so readers never see a
// half-applied reconciliation pass.
func (r *Repo) AppendMovements(ctx context.Context, ms []models.Movement) error {
	if len(ms) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin movements: %w", err)
	}
	defer tx.Rollback()

	q := tx.Rebind(`INSERT INTO ledger_movements (asset_id, quantity, moved_at, source) VALUES (?, ?, ?, ?)`)
	for _, m := range ms {
		source := m.Source
		if source == "" {
			source = models.SourceImport
		}
		if _, err := tx.ExecContext(ctx, q, m.AssetID, m.Quantity.String(), m.Timestamp.UTC(), source); err != nil {
			return fmt.Errorf("insert movement for asset %d: %w", m.AssetID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit movements: %w", err)
	}
	return nil
}

func (r *Repo) AppendObservation(ctx context.Context, o models.Observation) error {
	if o.Price.IsNegative() {
		return fmt.Errorf("negative price %s for asset %d", o.Price, o.AssetID)
	}
	q := r.db.Rebind(`INSERT INTO price_observations (asset_id, price, observed_at) VALUES (?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, q, o.AssetID, o.Price.String(), o.Timestamp.UTC()); err != nil {
		return fmt.Errorf("insert observation for asset %d: %w", o.AssetID, err)
	}
	return nil
}

func (r *Repo) TotalQuantity(ctx context.Context, assetID int64) (decimal.Decimal, error) {
	q := r.db.Rebind(`SELECT quantity FROM ledger_movements WHERE asset_id = ?`)
	var quantities []decimal.Decimal
	if err := r.db.SelectContext(ctx, &quantities, q, assetID); err != nil {
		return decimal.Zero, fmt.Errorf("total quantity for asset %d: %w", assetID, err)
	}
	return decimal.Sum(decimal.Zero, quantities...), nil
}

// LatestObservation picks the maximum timestamp; equal timestamps resolve to
// the last inserted row.
func (r *Repo) LatestObservation(ctx context.Context, assetID int64) (models.Observation, bool, error) {
	var o models.Observation
	q := r.db.Rebind(`SELECT id, asset_id, price, observed_at FROM price_observations WHERE asset_id = ? ORDER BY observed_at DESC, id DESC LIMIT 1`)
	if err := r.db.GetContext(ctx, &o, q, assetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Observation{}, false, nil
		}
		return models.Observation{}, false, fmt.Errorf("latest observation for asset %d: %w", assetID, err)
	}
	return o, true, nil
}

// Holdings reads every asset of the class with its ledger total in a single
// statement. Assets without movements are included with a zero total.
func (r *Repo) Holdings(ctx context.Context, class models.AssetClass) ([]models.Holding, error) {
	q := r.db.Rebind(`
		SELECT a.id, a.name, a.ticker, a.provider, a.class, a.created_at, m.quantity
		FROM assets a
		LEFT JOIN ledger_movements m ON m.asset_id = a.id
		WHERE (CAST(? AS TEXT) = '' OR a.class = ?)
		ORDER BY a.id, m.id`)
	rows, err := r.db.QueryxContext(ctx, q, string(class), string(class))
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	res := []models.Holding{}
	for rows.Next() {
		var row assetMovementRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		if n := len(res); n == 0 || res[n-1].Asset.ID != row.ID {
			res = append(res, models.Holding{Asset: row.Asset, Quantity: decimal.Zero})
		}
		if row.Quantity.Valid {
			last := &res[len(res)-1]
			last.Quantity = last.Quantity.Add(row.Quantity.Decimal)
		}
	}
	return res, rows.Err()
}

// Positions joins ledger totals with the latest observation of each asset.
// Assets lacking either a movement or an observation are left out.
func (r *Repo) Positions(ctx context.Context) ([]Position, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT a.id AS asset_id, a.name, a.ticker, a.class, p.price, p.observed_at, m.quantity
		FROM assets a
		JOIN price_observations p ON p.id = (
			SELECT p2.id FROM price_observations p2
			WHERE p2.asset_id = a.id
			ORDER BY p2.observed_at DESC, p2.id DESC
			LIMIT 1
		)
		JOIN ledger_movements m ON m.asset_id = a.id
		ORDER BY a.id, m.id`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	res := []Position{}
	for rows.Next() {
		var row positionRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		if n := len(res); n == 0 || res[n-1].AssetID != row.AssetID {
			res = append(res, Position{
				AssetID:  row.AssetID,
				Name:     row.Name,
				Ticker:   row.Ticker,
				Class:    row.Class,
				Quantity: decimal.Zero,
				Price:    row.Price,
				PricedAt: row.ObservedAt,
			})
		}
		last := &res[len(res)-1]
		last.Quantity = last.Quantity.Add(row.Quantity)
	}
	return res, rows.Err()
}

func (r *Repo) Movements(ctx context.Context, assetID int64) ([]models.Movement, error) {
	q := r.db.Rebind(`SELECT id, asset_id, quantity, moved_at, source FROM ledger_movements WHERE asset_id = ? ORDER BY id`)
	res := []models.Movement{}
	if err := r.db.SelectContext(ctx, &res, q, assetID); err != nil {
		return nil, fmt.Errorf("list movements for asset %d: %w", assetID, err)
	}
	return res, nil
}
