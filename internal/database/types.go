package database

import (
	"time"

	"balance-checker/internal/models"

	"github.com/shopspring/decimal"
)

// Position is a valued ledger total: the sum of an asset's movements next to
// its latest price observation.
type Position struct {
	AssetID  int64             `db:"asset_id" json:"asset_id"`
	Name     string            `db:"name" json:"name"`
	Ticker   string            `db:"ticker" json:"ticker"`
	Class    models.AssetClass `db:"class" json:"class"`
	Quantity decimal.Decimal   `json:"quantity"`
	Price    decimal.Decimal   `db:"price" json:"price"`
	PricedAt time.Time         `db:"observed_at" json:"priced_at"`
}

type assetMovementRow struct {
	models.Asset
	Quantity decimal.NullDecimal `db:"quantity"`
}

type positionRow struct {
	AssetID    int64             `db:"asset_id"`
	Name       string            `db:"name"`
	Ticker     string            `db:"ticker"`
	Class      models.AssetClass `db:"class"`
	Price      decimal.Decimal   `db:"price"`
	ObservedAt time.Time         `db:"observed_at"`
	Quantity   decimal.Decimal   `db:"quantity"`
}
