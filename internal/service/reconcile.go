package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"balance-checker/internal/models"
	"balance-checker/internal/pricesource"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Ledger interface {
	Holdings(ctx context.Context, class models.AssetClass) ([]models.Holding, error)
	TotalQuantity(ctx context.Context, assetID int64) (decimal.Decimal, error)
	AppendMovements(ctx context.Context, ms []models.Movement) error
}

type AssetRegistry interface {
	LookupOrRegister(ctx context.Context, name, ticker, providerID, class string) (models.Asset, bool, error)
}

// Adjustment records one ledger change made by reconciliation.
type Adjustment struct {
	AssetID  int64           `json:"asset_id"`
	Ticker   string          `json:"ticker"`
	Name     string          `json:"name"`
	Previous decimal.Decimal `json:"previous"`
	Observed decimal.Decimal `json:"observed"`
	Delta    decimal.Decimal `json:"delta"`
}

type ReconcileResult struct {
	Adjusted    []Adjustment
	Created     []Adjustment
	Diagnostics []models.Diagnostic
}

type Reconciler struct {
	ledger   Ledger
	registry AssetRegistry
	opts     Options
	log      *logrus.Logger
	now      func() time.Time
}

func NewReconciler(ledger Ledger, reg AssetRegistry, opts Options, log *logrus.Logger) *Reconciler {
	return &Reconciler{ledger: ledger, registry: reg, opts: opts, log: log, now: time.Now}
}

// Reconcile brings the ledger total of every observed ticker in line with its
// external balance. Known crypto assets are corrected by a single signed
// movement in one transaction; only once that pass is committed are the
// remaining tickers registered and bootstrapped. A zero delta writes nothing.
func (r *Reconciler) Reconcile(ctx context.Context, balances map[string]Balance) (ReconcileResult, error) {
	var res ReconcileResult
	now := r.now().UTC()

	working := make(map[string]Balance, len(balances))
	for ticker, b := range balances {
		t := models.NormalizeTicker(ticker)
		if b.Ticker == "" {
			b.Ticker = t
		}
		working[t] = b
	}

	holdings, err := r.ledger.Holdings(ctx, models.ClassCrypto)
	if err != nil {
		return res, fmt.Errorf("read crypto holdings: %w", err)
	}

	var corrections []models.Movement
	for _, h := range holdings {
		b, ok := working[h.Asset.Ticker]
		if !ok {
			continue
		}
		delete(working, h.Asset.Ticker)
		if r.skip(&res, b) {
			continue
		}
		delta := b.Total.Sub(h.Quantity)
		if delta.IsZero() {
			continue
		}
		corrections = append(corrections, models.Movement{AssetID: h.Asset.ID, Quantity: delta, Timestamp: now, Source: models.SourceReconcile})
		res.Adjusted = append(res.Adjusted, Adjustment{
			AssetID:  h.Asset.ID,
			Ticker:   h.Asset.Ticker,
			Name:     h.Asset.Name,
			Previous: h.Quantity,
			Observed: b.Total,
			Delta:    delta,
		})
	}
	if err := r.ledger.AppendMovements(ctx, corrections); err != nil {
		return ReconcileResult{Diagnostics: res.Diagnostics}, fmt.Errorf("append corrections: %w", err)
	}
	for _, a := range res.Adjusted {
		r.log.WithFields(logrus.Fields{"ticker": a.Ticker, "previous": a.Previous, "observed": a.Observed, "delta": a.Delta}).Info("ledger corrected")
	}

	remaining := make([]string, 0, len(working))
	for t := range working {
		remaining = append(remaining, t)
	}
	sort.Strings(remaining)

	var bootstraps []models.Movement
	var created []Adjustment
	for _, ticker := range remaining {
		b := working[ticker]
		if r.skip(&res, b) {
			continue
		}
		name := b.Name
		if name == "" {
			name = ticker
		}
		asset, isNew, err := r.registry.LookupOrRegister(ctx, name, ticker, pricesource.ProviderExchange, string(models.ClassCrypto))
		if err != nil {
			res.Diagnostics = append(res.Diagnostics, diag(PhaseReconcile, ticker, err))
			r.log.WithField("ticker", ticker).Errorf("register discovered asset: %v", err)
			continue
		}

		previous := decimal.Zero
		if !isNew {
			// registered under another class; correct it rather than bootstrap twice
			previous, err = r.ledger.TotalQuantity(ctx, asset.ID)
			if err != nil {
				res.Diagnostics = append(res.Diagnostics, diag(PhaseReconcile, ticker, err))
				continue
			}
		}
		delta := b.Total.Sub(previous)
		adj := Adjustment{AssetID: asset.ID, Ticker: asset.Ticker, Name: asset.Name, Previous: previous, Observed: b.Total, Delta: delta}

		if !delta.IsZero() {
			source := models.SourceBootstrap
			if !isNew {
				source = models.SourceReconcile
			}
			bootstraps = append(bootstraps, models.Movement{AssetID: asset.ID, Quantity: delta, Timestamp: now, Source: source})
		}
		switch {
		case isNew:
			created = append(created, adj)
		case !delta.IsZero():
			res.Adjusted = append(res.Adjusted, adj)
		}
	}
	if err := r.ledger.AppendMovements(ctx, bootstraps); err != nil {
		// registered assets keep a zero total and are corrected on the next run
		return res, fmt.Errorf("append bootstrap movements: %w", err)
	}
	res.Created = created
	for _, c := range created {
		r.log.WithFields(logrus.Fields{"ticker": c.Ticker, "quantity": c.Observed}).Info("asset discovered on-chain")
	}
	return res, nil
}

func (r *Reconciler) skip(res *ReconcileResult, b Balance) bool {
	if !b.Partial || !r.opts.SkipPartial {
		return false
	}
	res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
		Phase:   PhaseReconcile,
		Subject: b.Ticker,
		Message: "skipped: balance is incomplete",
	})
	r.log.WithField("ticker", b.Ticker).Warn("skipping reconciliation of incomplete balance")
	return true
}
