package service

import (
	"context"
	"time"

	"balance-checker/internal/models"
	"balance-checker/internal/pricesource"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Balance is the aggregate external balance of one ticker across every
// configured wallet and network.
type Balance struct {
	Name   string
	Ticker string
	Total  decimal.Decimal
	// Partial is set when at least one wallet read failed and contributed 0.
	Partial bool
}

type WalletScanner struct {
	source  pricesource.Source
	wallets []models.Wallet
	tokens  []models.Token
	opts    Options
	log     *logrus.Logger
}

func NewWalletScanner(src pricesource.Source, wallets []models.Wallet, tokens []models.Token, opts Options, log *logrus.Logger) *WalletScanner {
	return &WalletScanner{source: src, wallets: wallets, tokens: tokens, opts: opts, log: log}
}

func (s *WalletScanner) requests() []pricesource.Request {
	reqs := make([]pricesource.Request, 0, len(s.wallets)*len(s.tokens))
	for _, w := range s.wallets {
		for _, t := range s.tokens {
			reqs = append(reqs, pricesource.Request{
				Ticker:   models.NormalizeTicker(t.Ticker),
				Contract: t.Contract,
				Wallet:   w.Address,
				Network:  t.Network,
			})
		}
	}
	return reqs
}

// Scan reads every (wallet, network, ticker) triple with bounded concurrency
// and sums the results per ticker. A failed read counts as 0 and is reported
// as a diagnostic; only cancellation of ctx fails the scan.
func (s *WalletScanner) Scan(ctx context.Context) (map[string]Balance, []models.Diagnostic, error) {
	reqs := s.requests()
	quotes := make([]pricesource.Quote, len(reqs))

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.concurrency())
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			quotes[i] = pricesource.Fetch(gctx, s.source, req, s.opts.timeout())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	names := make(map[string]string, len(s.tokens))
	for _, t := range s.tokens {
		ticker := models.NormalizeTicker(t.Ticker)
		if _, ok := names[ticker]; !ok {
			names[ticker] = t.Name
		}
	}

	balances := make(map[string]Balance, len(names))
	var diags []models.Diagnostic
	for _, q := range quotes {
		ticker := q.Request.Ticker
		b, ok := balances[ticker]
		if !ok {
			b = Balance{Name: names[ticker], Ticker: ticker, Total: decimal.Zero}
		}
		if !q.OK() {
			b.Partial = true
			diags = append(diags, diag(PhaseScan, q.Request.String(), q.Err))
			s.log.WithFields(logrus.Fields{"ticker": ticker, "network": q.Request.Network, "wallet": q.Request.Wallet}).
				Warnf("balance read failed, counting 0: %v", q.Err)
		}
		b.Total = b.Total.Add(q.OrZero())
		balances[ticker] = b
	}

	s.log.WithFields(logrus.Fields{"reads": len(reqs), "tickers": len(balances), "failed": len(diags), "took": time.Since(start)}).Info("wallet scan finished")
	return balances, diags, nil
}
