// Package config assembles run settings from .env, an optional portfolio.yaml
// and PORTFOLIO_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"balance-checker/internal/models"
	"balance-checker/internal/pricesource"
	"balance-checker/internal/service"

	"github.com/gocarina/gocsv"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Market struct {
	BaseURL string `mapstructure:"base_url"`
}

type Exchange struct {
	BaseURL       string `mapstructure:"base_url"`
	QuoteCurrency string `mapstructure:"quote_currency"`
}

type Reconcile struct {
	SkipPartial bool `mapstructure:"skip_partial"`
}

type Config struct {
	Store       string        `mapstructure:"store"`
	LogLevel    string        `mapstructure:"log_level"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Schedule    string        `mapstructure:"schedule"`
	Port        string        `mapstructure:"port"`
	ImportFile  string        `mapstructure:"import_file"`
	ReportFile  string        `mapstructure:"report_file"`
	Currency    string        `mapstructure:"currency"`
	Reconcile   Reconcile     `mapstructure:"reconcile"`
	Market      Market        `mapstructure:"market"`
	Exchange    Exchange      `mapstructure:"exchange"`

	Networks    []pricesource.Network `mapstructure:"networks"`
	Wallets     []models.Wallet       `mapstructure:"wallets"`
	Tokens      []models.Token        `mapstructure:"tokens"`
	WalletsFile string                `mapstructure:"wallets_file"`
	TokensFile  string                `mapstructure:"tokens_file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store", "portfolio.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("concurrency", 8)
	v.SetDefault("timeout", "10s")
	v.SetDefault("schedule", "@every 1h")
	v.SetDefault("port", "8080")
	v.SetDefault("currency", "USD")
	v.SetDefault("reconcile.skip_partial", false)
	v.SetDefault("exchange.quote_currency", "USDT")
}

// Load reads configuration. An explicit path must exist; without one a
// portfolio.yaml in the working directory is used when present.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PORTFOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("store", "PORTFOLIO_STORE", "POSTGRES_URL"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("port", "PORTFOLIO_PORT", "PORT"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("portfolio")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Networks) == 0 {
		cfg.Networks = pricesource.DefaultNetworks()
	}
	if err := cfg.loadHoldingFiles(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadHoldingFiles appends wallets and tokens listed in CSV files
// ("Public address"; "Token name,Ticker,address,Network").
func (c *Config) loadHoldingFiles() error {
	if c.WalletsFile != "" {
		var ws []models.Wallet
		if err := readCSV(c.WalletsFile, &ws); err != nil {
			return err
		}
		c.Wallets = append(c.Wallets, ws...)
	}
	if c.TokensFile != "" {
		var ts []models.Token
		if err := readCSV(c.TokensFile, &ts); err != nil {
			return err
		}
		c.Tokens = append(c.Tokens, ts...)
	}
	return nil
}

func readCSV(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if err := gocsv.UnmarshalFile(f, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store) == "" {
		return errors.New("store location is required (PORTFOLIO_STORE or POSTGRES_URL)")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	known := map[string]bool{}
	for _, n := range c.Networks {
		known[strings.ToLower(n.Name)] = true
	}
	for _, t := range c.Tokens {
		if !known[strings.ToLower(strings.TrimSpace(t.Network))] {
			return fmt.Errorf("token %s: %w %q", t.Ticker, pricesource.ErrUnknownNetwork, t.Network)
		}
	}
	return nil
}

func (c *Config) Options() service.Options {
	return service.Options{Concurrency: c.Concurrency, Timeout: c.Timeout, SkipPartial: c.Reconcile.SkipPartial}
}

func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
