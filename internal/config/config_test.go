package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"balance-checker/internal/models"
	"balance-checker/internal/pricesource"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("PORTFOLIO_STORE", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "portfolio.db", cfg.Store)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, "@every 1h", cfg.Schedule)
	assert.Equal(t, "USDT", cfg.Exchange.QuoteCurrency)
	assert.False(t, cfg.Reconcile.SkipPartial)
	assert.Len(t, cfg.Networks, len(pricesource.DefaultNetworks()))
	assert.Equal(t, logrus.InfoLevel, cfg.Logger().GetLevel())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	yaml := `
store: data/portfolio.db
concurrency: 2
timeout: 3s
log_level: debug
reconcile:
  skip_partial: true
networks:
  - name: Ethereum
    rpc_url: http://localhost:8545
    native_currency: ETH
wallets:
  - address: "0x1111111111111111111111111111111111111111"
tokens:
  - name: Ether
    ticker: ETH
    network: Ethereum
wallets_file: wallets.csv
tokens_file: tokens.csv
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "portfolio.yaml"), []byte(yaml), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wallets.csv"), []byte("Public address\n0x2222222222222222222222222222222222222222\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokens.csv"), []byte("Token name,Ticker,address,Network\nUSD Coin,USDC,0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48,Ethereum\n"), 0o600))
	t.Setenv("PORTFOLIO_STORE", "")
	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/portfolio?sslmode=disable")
	t.Setenv("PORTFOLIO_CONCURRENCY", "5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/portfolio?sslmode=disable", cfg.Store)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	require.Len(t, cfg.Networks, 1)
	assert.Equal(t, "http://localhost:8545", cfg.Networks[0].RPCURL)
	require.Len(t, cfg.Wallets, 2)
	require.Len(t, cfg.Tokens, 2)
	assert.Equal(t, "USDC", cfg.Tokens[1].Ticker)

	opts := cfg.Options()
	assert.True(t, opts.SkipPartial)
	assert.Equal(t, 5, opts.Concurrency)
	assert.Equal(t, logrus.DebugLevel, cfg.Logger().GetLevel())
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := Load("missing.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{Store: "p.db", Concurrency: 1, Timeout: time.Second, LogLevel: "info", Networks: pricesource.DefaultNetworks()}
	require.NoError(t, base.Validate())

	c := base
	c.Store = " "
	assert.Error(t, c.Validate())

	c = base
	c.Concurrency = 0
	assert.Error(t, c.Validate())

	c = base
	c.LogLevel = "loud"
	assert.Error(t, c.Validate())

	c = base
	c.Tokens = []models.Token{{Name: "Solana", Ticker: "SOL", Network: "Solana"}}
	assert.ErrorIs(t, c.Validate(), pricesource.ErrUnknownNetwork)
}
