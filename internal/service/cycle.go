package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"balance-checker/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrSchema = errors.New("schema unavailable")

type SchemaStore interface {
	EnsureSchema(ctx context.Context) error
}

type Scanner interface {
	Scan(ctx context.Context) (map[string]Balance, []models.Diagnostic, error)
}

type AssetLister interface {
	Assets(ctx context.Context) ([]models.Asset, error)
}

type Importer interface {
	ImportFile(ctx context.Context, path string) (int, []models.Diagnostic, error)
}

type Sink interface {
	Write(ctx context.Context, lines []models.PortfolioLine) error
}

// CycleDeps wires the phases of a run. Scanner, Importer and Sink are
// optional; a nil one skips its phase. ImportPath is booked on the first run
// of a Cycle only, the ledger is append-only.
type CycleDeps struct {
	Schema     SchemaStore
	Assets     AssetLister
	Scanner    Scanner
	Reconciler *Reconciler
	Poller     *Poller
	Valuator   *Valuator
	Importer   Importer
	ImportPath string
	Sink       Sink
}

type Summary struct {
	RunID        uuid.UUID           `json:"run_id"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	Imported     int                 `json:"imported"`
	Adjusted     []Adjustment        `json:"adjusted"`
	Created      []Adjustment        `json:"created"`
	Observations int                 `json:"observations"`
	Valuation    Valuation           `json:"valuation"`
	Diagnostics  []models.Diagnostic `json:"diagnostics"`
}

func (s Summary) OK() bool { return len(s.Diagnostics) == 0 }

// Cycle runs import, wallet scan, reconciliation, price polling, valuation
// and reporting in that order, each phase finishing before the next starts.
// Runs never overlap.
type Cycle struct {
	deps CycleDeps
	log  *logrus.Logger

	runMu    sync.Mutex
	imported bool

	mu   sync.RWMutex
	last *Summary
}

func NewCycle(deps CycleDeps, log *logrus.Logger) *Cycle {
	return &Cycle{deps: deps, log: log}
}

// Run only fails when the schema cannot be ensured or ctx is cancelled.
// Every other failure is recorded in the summary and the run moves on.
func (c *Cycle) Run(ctx context.Context) (Summary, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	sum := Summary{RunID: uuid.New(), StartedAt: time.Now().UTC()}
	log := c.log.WithField("run_id", sum.RunID.String())
	log.Info("cycle started")

	if err := c.deps.Schema.EnsureSchema(ctx); err != nil {
		sum.Diagnostics = append(sum.Diagnostics, diag(PhaseSchema, "", err))
		log.Errorf("ensure schema: %v", err)
		return sum, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	if c.deps.Importer != nil && c.deps.ImportPath != "" && !c.imported {
		n, diags, err := c.deps.Importer.ImportFile(ctx, c.deps.ImportPath)
		sum.Imported = n
		// a file that could not be read booked nothing and is retried next run
		c.imported = err == nil || n > 0
		sum.Diagnostics = append(sum.Diagnostics, diags...)
		if err != nil {
			sum.Diagnostics = append(sum.Diagnostics, diag(PhaseImport, c.deps.ImportPath, err))
			log.Errorf("import %s: %v", c.deps.ImportPath, err)
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
	}

	if c.deps.Scanner != nil {
		balances, diags, err := c.deps.Scanner.Scan(ctx)
		sum.Diagnostics = append(sum.Diagnostics, diags...)
		if err != nil {
			return sum, fmt.Errorf("wallet scan: %w", err)
		}
		res, err := c.deps.Reconciler.Reconcile(ctx, balances)
		sum.Adjusted = res.Adjusted
		sum.Created = res.Created
		sum.Diagnostics = append(sum.Diagnostics, res.Diagnostics...)
		if err != nil {
			sum.Diagnostics = append(sum.Diagnostics, diag(PhaseReconcile, "", err))
			log.Errorf("reconcile: %v", err)
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
	}

	assets, err := c.deps.Assets.Assets(ctx)
	if err != nil {
		sum.Diagnostics = append(sum.Diagnostics, diag(PhasePoll, "", err))
		log.Errorf("list assets: %v", err)
	} else {
		res, err := c.deps.Poller.Poll(ctx, assets)
		if err != nil {
			return sum, fmt.Errorf("poll prices: %w", err)
		}
		sum.Observations = len(res.Stored)
		sum.Diagnostics = append(sum.Diagnostics, res.Diagnostics...)
	}

	val, err := c.deps.Valuator.Value(ctx)
	if err != nil {
		sum.Diagnostics = append(sum.Diagnostics, diag(PhaseValuation, "", err))
		log.Errorf("valuation: %v", err)
	} else {
		sum.Valuation = val
		if c.deps.Sink != nil {
			if err := c.deps.Sink.Write(ctx, val.Lines); err != nil {
				sum.Diagnostics = append(sum.Diagnostics, diag(PhaseReport, "", err))
				log.Errorf("write report: %v", err)
			}
		}
	}

	sum.FinishedAt = time.Now().UTC()
	c.mu.Lock()
	c.last = &sum
	c.mu.Unlock()
	log.WithFields(logrus.Fields{
		"imported":     sum.Imported,
		"adjusted":     len(sum.Adjusted),
		"created":      len(sum.Created),
		"observations": sum.Observations,
		"lines":        len(sum.Valuation.Lines),
		"diagnostics":  len(sum.Diagnostics),
		"took":         sum.FinishedAt.Sub(sum.StartedAt),
	}).Info("cycle finished")
	return sum, nil
}

// Last returns the summary of the most recent completed run. It does not wait
// for a run in flight.
func (c *Cycle) Last() (Summary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return Summary{}, false
	}
	return *c.last, true
}
