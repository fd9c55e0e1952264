package main

import (
	"context"

	"balance-checker/internal/config"
	"balance-checker/internal/database"
	"balance-checker/internal/importer"
	"balance-checker/internal/pricesource"
	"balance-checker/internal/registry"
	"balance-checker/internal/report"
	"balance-checker/internal/service"

	"github.com/sirupsen/logrus"
)

type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	repo     *database.Repo
	registry *registry.Registry
	onchain  *pricesource.OnChain
	importer *importer.Importer
	valuator *service.Valuator
	cycle    *service.Cycle
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := cfg.Logger()

	db, err := database.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	repo := database.New(db, logger)

	providers := pricesource.Providers{
		pricesource.ProviderMarket:   pricesource.NewMarket(cfg.Market.BaseURL, logger),
		pricesource.ProviderExchange: pricesource.NewExchange(cfg.Exchange.BaseURL, cfg.Exchange.QuoteCurrency, logger),
	}
	onchain, err := pricesource.NewOnChain(cfg.Networks, nil, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	reg := registry.New(repo, providers, logger)
	opts := cfg.Options()
	a := &app{
		cfg:      cfg,
		log:      logger,
		repo:     repo,
		registry: reg,
		onchain:  onchain,
		importer: importer.New(reg, repo, logger),
		valuator: service.NewValuator(repo, logger),
	}

	deps := service.CycleDeps{
		Schema:     repo,
		Assets:     reg,
		Reconciler: service.NewReconciler(repo, reg, opts, logger),
		Poller:     service.NewPoller(reg, repo, opts, logger),
		Valuator:   a.valuator,
		Importer:   a.importer,
		ImportPath: cfg.ImportFile,
	}
	if len(cfg.Wallets) > 0 && len(cfg.Tokens) > 0 {
		deps.Scanner = service.NewWalletScanner(onchain, cfg.Wallets, cfg.Tokens, opts, logger)
	} else {
		logger.Warn("no wallets or tokens configured, skipping on-chain reconciliation")
	}
	if cfg.ReportFile != "" {
		sink, err := report.NewFileSink(cfg.ReportFile, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Sink = sink
	}
	a.cycle = service.NewCycle(deps, logger)
	return a, nil
}

func (a *app) Close() {
	a.onchain.Close()
	if err := a.repo.Close(); err != nil {
		a.log.Warnf("close store: %v", err)
	}
}
