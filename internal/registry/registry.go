package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"balance-checker/internal/database"
	"balance-checker/internal/models"
	"balance-checker/internal/pricesource"

	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidAssetClass = models.ErrInvalidAssetClass
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrDuplicateTicker   = database.ErrDuplicateTicker
	ErrEmptyTicker       = errors.New("ticker is empty")
)

type AssetStore interface {
	CreateAsset(ctx context.Context, a models.Asset) (models.Asset, error)
	AssetByTicker(ctx context.Context, ticker string) (models.Asset, error)
	ListAssets(ctx context.Context, class models.AssetClass) ([]models.Asset, error)
}

// Registry owns the set of known assets and their provider bindings. It never
// talks to a price source itself.
type Registry struct {
	store     AssetStore
	providers pricesource.Providers
	log       *logrus.Logger
}

func New(store AssetStore, providers pricesource.Providers, log *logrus.Logger) *Registry {
	return &Registry{store: store, providers: providers, log: log}
}

func (r *Registry) Register(ctx context.Context, name, ticker, providerID, class string) (models.Asset, error) {
	a, err := r.validate(name, ticker, providerID, class)
	if err != nil {
		return models.Asset{}, err
	}
	created, err := r.store.CreateAsset(ctx, a)
	if err != nil {
		return models.Asset{}, err
	}
	r.log.WithFields(logrus.Fields{"ticker": created.Ticker, "provider": created.Provider, "class": created.Class}).Info("asset registered")
	return created, nil
}

func (r *Registry) Lookup(ctx context.Context, ticker string) (models.Asset, bool, error) {
	a, err := r.store.AssetByTicker(ctx, models.NormalizeTicker(ticker))
	if errors.Is(err, database.ErrAssetNotFound) {
		return models.Asset{}, false, nil
	}
	if err != nil {
		return models.Asset{}, false, err
	}
	return a, true, nil
}

// LookupOrRegister returns the existing asset for ticker or registers it.
// Only a duplicate ticker falls back to the lookup; validation and storage
// failures are returned to the caller.
func (r *Registry) LookupOrRegister(ctx context.Context, name, ticker, providerID, class string) (models.Asset, bool, error) {
	if existing, ok, err := r.Lookup(ctx, ticker); err != nil {
		return models.Asset{}, false, err
	} else if ok {
		return existing, false, nil
	}
	a, err := r.Register(ctx, name, ticker, providerID, class)
	if errors.Is(err, ErrDuplicateTicker) {
		// registered concurrently between lookup and insert
		existing, ok, lookupErr := r.Lookup(ctx, ticker)
		if lookupErr != nil {
			return models.Asset{}, false, lookupErr
		}
		if ok {
			return existing, false, nil
		}
	}
	if err != nil {
		return models.Asset{}, false, err
	}
	return a, true, nil
}

func (r *Registry) Assets(ctx context.Context) ([]models.Asset, error) {
	return r.store.ListAssets(ctx, "")
}

// Source resolves the price source bound to an asset.
func (r *Registry) Source(a models.Asset) (pricesource.Source, error) {
	s, ok := r.providers.Lookup(a.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %q for %s", ErrUnknownProvider, a.Provider, a.Ticker)
	}
	return s, nil
}

func (r *Registry) validate(name, ticker, providerID, class string) (models.Asset, error) {
	t := models.NormalizeTicker(ticker)
	if t == "" {
		return models.Asset{}, ErrEmptyTicker
	}
	c, err := models.ParseAssetClass(class)
	if err != nil {
		return models.Asset{}, fmt.Errorf("%w: %q", ErrInvalidAssetClass, class)
	}
	p := strings.ToLower(strings.TrimSpace(providerID))
	if _, ok := r.providers.Lookup(p); !ok {
		return models.Asset{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownProvider, providerID, strings.Join(r.providers.IDs(), ", "))
	}
	if strings.TrimSpace(name) == "" {
		name = t
	}
	return models.Asset{Name: strings.TrimSpace(name), Ticker: t, Provider: p, Class: c}, nil
}
