// Package report renders valuations for people: spreadsheet or CSV files and
// a plain-text run summary.
package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"balance-checker/internal/models"

	"github.com/Rhymond/go-money"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tealeg/xlsx/v3"
)

var ErrUnsupportedFormat = errors.New("unsupported report format")

const sheetName = "Portfolio"

var header = []string{"asset_name", "ticker", "class", "total_amount", "asset_price", "total_value", "price_date"}

type row struct {
	Name     string `csv:"asset_name"`
	Ticker   string `csv:"ticker"`
	Class    string `csv:"class"`
	Quantity string `csv:"total_amount"`
	Price    string `csv:"asset_price"`
	Value    string `csv:"total_value"`
	PricedAt string `csv:"price_date"`
}

func toRow(l models.PortfolioLine) row {
	return row{
		Name:     l.Name,
		Ticker:   l.Ticker,
		Class:    string(l.Class),
		Quantity: l.Quantity.String(),
		Price:    l.Price.String(),
		Value:    l.Value.String(),
		PricedAt: l.PricedAt.UTC().Format(time.RFC3339),
	}
}

// FileSink writes the valuation to Path, choosing the format from its extension.
type FileSink struct {
	Path string
	log  *logrus.Logger
}

func NewFileSink(path string, log *logrus.Logger) (*FileSink, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".csv":
		return &FileSink{Path: path, log: log}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
}

func (s *FileSink) Write(_ context.Context, lines []models.PortfolioLine) error {
	var err error
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".xlsx":
		err = writeXLSX(s.Path, lines)
	case ".csv":
		err = writeCSV(s.Path, lines)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, s.Path)
	}
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"path": s.Path, "lines": len(lines)}).Info("report written")
	return nil
}

func writeCSV(path string, lines []models.PortfolioLine) error {
	rows := make([]row, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, toRow(l))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()
	if len(rows) == 0 {
		_, err = f.WriteString(strings.Join(header, ",") + "\n")
		return err
	}
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("write csv report: %w", err)
	}
	return nil
}

func writeXLSX(path string, lines []models.PortfolioLine) error {
	wb := xlsx.NewFile()
	sh, err := wb.AddSheet(sheetName)
	if err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	hr := sh.AddRow()
	for _, h := range header {
		hr.AddCell().SetString(h)
	}
	for _, l := range lines {
		r := sh.AddRow()
		r.AddCell().SetString(l.Name)
		r.AddCell().SetString(l.Ticker)
		r.AddCell().SetString(string(l.Class))
		r.AddCell().SetFloat(l.Quantity.InexactFloat64())
		r.AddCell().SetFloat(l.Price.InexactFloat64())
		r.AddCell().SetFloat(l.Value.InexactFloat64())
		r.AddCell().SetDateTime(l.PricedAt.UTC())
	}
	if err := wb.Save(path); err != nil {
		return fmt.Errorf("save xlsx report: %w", err)
	}
	return nil
}

// FormatMoney renders a value in the currency's minor units, e.g. "$1,380.00".
func FormatMoney(v decimal.Decimal, currency string) string {
	cur := money.New(0, currency).Currency()
	minor := v.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return cur.Formatter().Format(minor)
}
