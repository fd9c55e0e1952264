package service

import (
	"context"
	"fmt"
	"time"

	"balance-checker/internal/models"
	"balance-checker/internal/pricesource"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type ObservationStore interface {
	AppendObservation(ctx context.Context, o models.Observation) error
}

type SourceResolver interface {
	Source(a models.Asset) (pricesource.Source, error)
}

type PollResult struct {
	Stored      []models.Observation
	Diagnostics []models.Diagnostic
}

// Poller samples the bound price source of every asset and records one
// observation per successful quote.
type Poller struct {
	resolver SourceResolver
	store    ObservationStore
	opts     Options
	log      *logrus.Logger
	now      func() time.Time
}

func NewPoller(resolver SourceResolver, store ObservationStore, opts Options, log *logrus.Logger) *Poller {
	return &Poller{resolver: resolver, store: store, opts: opts, log: log, now: time.Now}
}

// Poll fans quotes out across a bounded pool and writes the observations
// after all calls returned. A failed quote stores nothing, so the asset keeps
// its previous price and no other asset is affected.
func (p *Poller) Poll(ctx context.Context, assets []models.Asset) (PollResult, error) {
	var res PollResult
	quotes := make([]pricesource.Quote, len(assets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.concurrency())
	for i, a := range assets {
		i, a := i, a
		src, err := p.resolver.Source(a)
		if err != nil {
			quotes[i] = pricesource.Quote{Request: pricesource.Request{Ticker: a.Ticker}, Err: err}
			continue
		}
		g.Go(func() error {
			quotes[i] = pricesource.Fetch(gctx, src, pricesource.Request{Ticker: a.Ticker}, p.opts.timeout())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	now := p.now().UTC()
	for i, q := range quotes {
		a := assets[i]
		entry := p.log.WithFields(logrus.Fields{"ticker": a.Ticker, "provider": a.Provider})
		if !q.OK() {
			res.Diagnostics = append(res.Diagnostics, diag(PhasePoll, a.Ticker, q.Err))
			entry.Warnf("price fetch failed: %v", q.Err)
			continue
		}
		if q.Value.IsNegative() {
			res.Diagnostics = append(res.Diagnostics, diag(PhasePoll, a.Ticker, fmt.Errorf("%w: negative price %s", pricesource.ErrMalformedQuote, q.Value)))
			entry.Warnf("discarding negative price %s", q.Value)
			continue
		}
		o := models.Observation{AssetID: a.ID, Price: q.Value, Timestamp: now}
		if err := p.store.AppendObservation(ctx, o); err != nil {
			res.Diagnostics = append(res.Diagnostics, diag(PhasePoll, a.Ticker, err))
			entry.Errorf("store observation: %v", err)
			continue
		}
		entry.WithField("price", q.Value).Debug("price observed")
		res.Stored = append(res.Stored, o)
	}
	return res, nil
}
