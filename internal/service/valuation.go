package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"balance-checker/internal/database"
	"balance-checker/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type PositionReader interface {
	Positions(ctx context.Context) ([]database.Position, error)
}

type Valuation struct {
	Lines []models.PortfolioLine `json:"lines"`
	Total decimal.Decimal        `json:"total"`
	At    time.Time              `json:"at"`
}

type Valuator struct {
	positions PositionReader
	log       *logrus.Logger
	now       func() time.Time
}

func NewValuator(positions PositionReader, log *logrus.Logger) *Valuator {
	return &Valuator{positions: positions, log: log, now: time.Now}
}

// Value prices every asset that has both ledger movements and an
// observation. Unpriced assets are simply absent.
func (v *Valuator) Value(ctx context.Context) (Valuation, error) {
	positions, err := v.positions.Positions(ctx)
	if err != nil {
		return Valuation{}, fmt.Errorf("read positions: %w", err)
	}

	val := Valuation{Lines: make([]models.PortfolioLine, 0, len(positions)), Total: decimal.Zero, At: v.now().UTC()}
	for _, p := range positions {
		value := p.Quantity.Mul(p.Price)
		val.Lines = append(val.Lines, models.PortfolioLine{
			Name:     p.Name,
			Ticker:   p.Ticker,
			Class:    p.Class,
			Quantity: p.Quantity,
			Price:    p.Price,
			Value:    value,
			PricedAt: p.PricedAt,
		})
		val.Total = val.Total.Add(value)
	}
	SortLines(val.Lines)

	v.log.WithFields(logrus.Fields{"lines": len(val.Lines), "total": val.Total.StringFixed(2)}).Info("portfolio valued")
	return val, nil
}

// SortLines orders lines by asset class, then name, then ticker.
func SortLines(lines []models.PortfolioLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if ra, rb := a.Class.Rank(), b.Class.Rank(); ra != rb {
			return ra < rb
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Ticker < b.Ticker
	})
}
