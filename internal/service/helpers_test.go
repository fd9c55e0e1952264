package service

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"balance-checker/internal/database"
	"balance-checker/internal/models"
	"balance-checker/internal/pricesource"
	"balance-checker/internal/registry"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) Observe(ctx context.Context, req pricesource.Request) (decimal.Decimal, error) {
	args := m.Called(req)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	repo     *database.Repo
	registry *registry.Registry
	exchange *MockSource
	market   *MockSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.New(db, quietLogger())
	require.NoError(t, repo.EnsureSchema(ctx))

	f := &fixture{repo: repo, exchange: new(MockSource), market: new(MockSource)}
	f.registry = registry.New(repo, pricesource.Providers{
		pricesource.ProviderExchange: f.exchange,
		pricesource.ProviderMarket:   f.market,
	}, quietLogger())
	return f
}

// holding registers an asset and books qty as one imported movement.
func (f *fixture) holding(t *testing.T, ticker, provider string, class models.AssetClass, qty string) models.Asset {
	t.Helper()
	ctx := context.Background()
	a, err := f.registry.Register(ctx, ticker+" name", ticker, provider, string(class))
	require.NoError(t, err)
	if qty != "" {
		require.NoError(t, f.repo.AppendMovement(ctx, models.Movement{AssetID: a.ID, Quantity: dec(qty), Timestamp: time.Now()}))
	}
	return a
}

func (f *fixture) total(t *testing.T, ticker string) decimal.Decimal {
	t.Helper()
	a, ok, err := f.registry.Lookup(context.Background(), ticker)
	require.NoError(t, err)
	require.True(t, ok, "asset %s not registered", ticker)
	q, err := f.repo.TotalQuantity(context.Background(), a.ID)
	require.NoError(t, err)
	return q
}

func (f *fixture) movementCount(t *testing.T) int {
	t.Helper()
	assets, err := f.registry.Assets(context.Background())
	require.NoError(t, err)
	n := 0
	for _, a := range assets {
		ms, err := f.repo.Movements(context.Background(), a.ID)
		require.NoError(t, err)
		n += len(ms)
	}
	return n
}

func (f *fixture) reconciler(opts Options) *Reconciler {
	return NewReconciler(f.repo, f.registry, opts, quietLogger())
}

func balances(pairs ...string) map[string]Balance {
	res := map[string]Balance{}
	for i := 0; i+1 < len(pairs); i += 2 {
		res[pairs[i]] = Balance{Name: pairs[i] + " token", Ticker: pairs[i], Total: dec(pairs[i+1])}
	}
	return res
}

// gaugeSource answers every request after a short delay and records the
// highest number of calls it saw at once.
type gaugeSource struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (g *gaugeSource) Observe(ctx context.Context, _ pricesource.Request) (decimal.Decimal, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	g.calls.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-time.After(15 * time.Millisecond):
		return decimal.NewFromInt(1), nil
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	}
}
