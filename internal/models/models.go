package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type AssetClass string

const (
	ClassETF      AssetClass = "etf"
	ClassCrypto   AssetClass = "crypto"
	ClassSecurity AssetClass = "security"
	ClassBond     AssetClass = "bond"
)

var ErrInvalidAssetClass = errors.New("invalid asset class")

// AssetClasses lists the closed set in report order.
var AssetClasses = []AssetClass{ClassETF, ClassCrypto, ClassSecurity, ClassBond}

// ParseAssetClass accepts any casing. "securites" is kept as an alias because
// older import files were written with that spelling.
func ParseAssetClass(s string) (AssetClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "etf":
		return ClassETF, nil
	case "crypto":
		return ClassCrypto, nil
	case "security", "securites", "securities":
		return ClassSecurity, nil
	case "bond":
		return ClassBond, nil
	}
	return "", ErrInvalidAssetClass
}

func (c AssetClass) Valid() bool {
	return c.Rank() < len(AssetClasses)
}

// Rank orders classes for reporting; unknown classes sort last.
func (c AssetClass) Rank() int {
	for i, k := range AssetClasses {
		if k == c {
			return i
		}
	}
	return len(AssetClasses)
}

func NormalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

type Asset struct {
	ID        int64      `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Ticker    string     `db:"ticker" json:"ticker"`
	Provider  string     `db:"provider" json:"provider"`
	Class     AssetClass `db:"class" json:"class"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

const (
	SourceImport    = "import"
	SourceReconcile = "reconcile"
	SourceBootstrap = "bootstrap"
)

type Movement struct {
	ID        int64           `db:"id" json:"id"`
	AssetID   int64           `db:"asset_id" json:"asset_id"`
	Quantity  decimal.Decimal `db:"quantity" json:"quantity"`
	Timestamp time.Time       `db:"moved_at" json:"timestamp"`
	Source    string          `db:"source" json:"source"`
}

type Observation struct {
	ID        int64           `db:"id" json:"id"`
	AssetID   int64           `db:"asset_id" json:"asset_id"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Timestamp time.Time       `db:"observed_at" json:"timestamp"`
}

type Holding struct {
	Asset    Asset           `json:"asset"`
	Quantity decimal.Decimal `json:"quantity"`
}

type PortfolioLine struct {
	Name     string          `json:"name"`
	Ticker   string          `json:"ticker"`
	Class    AssetClass      `json:"class"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`
	PricedAt time.Time       `json:"priced_at"`
}

// Token is one tracked on-chain holding. An empty Contract means the network's
// native currency.
type Token struct {
	Name     string `mapstructure:"name" csv:"Token name" json:"name"`
	Ticker   string `mapstructure:"ticker" csv:"Ticker" json:"ticker"`
	Contract string `mapstructure:"contract" csv:"address" json:"contract"`
	Network  string `mapstructure:"network" csv:"Network" json:"network"`
}

type Wallet struct {
	Address string `mapstructure:"address" csv:"Public address" json:"address"`
}

// Diagnostic is a recovered failure reported in a run summary instead of
// aborting the run.
type Diagnostic struct {
	Phase   string `json:"phase"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Subject == "" {
		return d.Phase + ": " + d.Message
	}
	return d.Phase + " " + d.Subject + ": " + d.Message
}
