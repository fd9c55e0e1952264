// Package importer books holdings from a CSV file into the ledger. Each row
// names an asset and a signed quantity; unknown assets are registered on the way.
package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"balance-checker/internal/models"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const phase = "import"

// Record is one CSV row: name,ticker,api,type,quantity.
type Record struct {
	Name     string `csv:"name"`
	Ticker   string `csv:"ticker"`
	Provider string `csv:"api"`
	Class    string `csv:"type"`
	Quantity string `csv:"quantity"`
}

type Registrar interface {
	LookupOrRegister(ctx context.Context, name, ticker, providerID, class string) (models.Asset, bool, error)
}

type MovementWriter interface {
	AppendMovement(ctx context.Context, m models.Movement) error
}

type Result struct {
	Rows        int
	Booked      int
	Registered  int
	Diagnostics []models.Diagnostic
}

type Importer struct {
	registry Registrar
	ledger   MovementWriter
	log      *logrus.Logger
	now      func() time.Time
}

func New(reg Registrar, ledger MovementWriter, log *logrus.Logger) *Importer {
	return &Importer{registry: reg, ledger: ledger, log: log, now: time.Now}
}

// Import books every valid row. A bad row is reported and skipped; only an
// unreadable file or a cancelled ctx stops the batch.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Result, error) {
	var records []Record
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return Result{}, fmt.Errorf("parse csv: %w", err)
	}

	res := Result{Rows: len(records)}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		// header is line 1
		subject := fmt.Sprintf("line %d (%s)", i+2, rec.Ticker)
		fail := func(err error) {
			res.Diagnostics = append(res.Diagnostics, models.Diagnostic{Phase: phase, Subject: subject, Message: err.Error()})
			im.log.WithField("row", i+2).Warnf("skipping import row: %v", err)
		}

		qty, err := decimal.NewFromString(strings.TrimSpace(rec.Quantity))
		if err != nil {
			fail(fmt.Errorf("invalid quantity %q", rec.Quantity))
			continue
		}
		asset, created, err := im.registry.LookupOrRegister(ctx, rec.Name, rec.Ticker, rec.Provider, rec.Class)
		if err != nil {
			fail(err)
			continue
		}
		if created {
			res.Registered++
		}
		m := models.Movement{AssetID: asset.ID, Quantity: qty, Timestamp: im.now().UTC(), Source: models.SourceImport}
		if err := im.ledger.AppendMovement(ctx, m); err != nil {
			fail(err)
			continue
		}
		res.Booked++
	}

	im.log.WithFields(logrus.Fields{"rows": res.Rows, "booked": res.Booked, "registered": res.Registered, "skipped": len(res.Diagnostics)}).Info("import finished")
	return res, nil
}

func (im *Importer) ImportFile(ctx context.Context, path string) (int, []models.Diagnostic, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	res, err := im.Import(ctx, f)
	return res.Booked, res.Diagnostics, err
}
