package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"balance-checker/internal/importer"
	"balance-checker/internal/models"
	"balance-checker/internal/pricesource"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type staticScanner struct {
	balances map[string]Balance
	diags    []models.Diagnostic
}

func (s staticScanner) Scan(context.Context) (map[string]Balance, []models.Diagnostic, error) {
	return s.balances, s.diags, nil
}

type memorySink struct {
	lines []models.PortfolioLine
	err   error
}

func (m *memorySink) Write(_ context.Context, lines []models.PortfolioLine) error {
	m.lines = lines
	return m.err
}

type brokenSchema struct{}

func (brokenSchema) EnsureSchema(context.Context) error { return errors.New("read-only file system") }

func (f *fixture) cycle(scanner Scanner, sink Sink) *Cycle {
	return NewCycle(CycleDeps{
		Schema:     f.repo,
		Assets:     f.registry,
		Scanner:    scanner,
		Reconciler: f.reconciler(Options{}),
		Poller:     NewPoller(f.registry, f.repo, Options{}, quietLogger()),
		Valuator:   NewValuator(f.repo, quietLogger()),
		Sink:       sink,
	}, quietLogger())
}

func TestCycle_Run(t *testing.T) {
	f := newFixture(t)
	f.holding(t, "ABC", pricesource.ProviderExchange, models.ClassCrypto, "10")
	f.holding(t, "VOO", pricesource.ProviderMarket, models.ClassETF, "3")

	f.exchange.On("Observe", pricesource.Request{Ticker: "ABC"}).Return(dec("2"), nil)
	f.exchange.On("Observe", pricesource.Request{Ticker: "XYZ"}).Return(decimal.Zero, errors.New("Invalid symbol."))
	f.market.On("Observe", pricesource.Request{Ticker: "VOO"}).Return(dec("450"), nil)

	scanner := staticScanner{
		balances: balances("ABC", "15", "XYZ", "3.2"),
		diags:    []models.Diagnostic{{Phase: PhaseScan, Subject: "ABC@Base/0x1", Message: "timeout"}},
	}
	sink := &memorySink{}
	c := f.cycle(scanner, sink)

	sum, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, sum.RunID.String())
	require.Len(t, sum.Adjusted, 1)
	require.Len(t, sum.Created, 1)
	assert.Equal(t, "XYZ", sum.Created[0].Ticker)
	assert.Equal(t, 2, sum.Observations)

	// scan diagnostic + failed XYZ price
	require.Len(t, sum.Diagnostics, 2)
	assert.False(t, sum.OK())

	require.Len(t, sum.Valuation.Lines, 2)
	assert.Equal(t, "VOO", sum.Valuation.Lines[0].Ticker)
	assert.True(t, sum.Valuation.Lines[1].Value.Equal(dec("30")))
	assert.True(t, sum.Valuation.Total.Equal(dec("1380")))
	assert.Equal(t, sum.Valuation.Lines, sink.lines)

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, sum.RunID, last.RunID)
}

func TestCycle_SecondRunIsQuiet(t *testing.T) {
	f := newFixture(t)
	f.exchange.On("Observe", pricesource.Request{Ticker: "XYZ"}).Return(dec("1.1"), nil)
	c := f.cycle(staticScanner{balances: balances("XYZ", "3.2")}, nil)

	_, err := c.Run(context.Background())
	require.NoError(t, err)
	movements := f.movementCount(t)

	sum, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sum.Adjusted)
	assert.Empty(t, sum.Created)
	assert.True(t, sum.OK())
	assert.Equal(t, movements, f.movementCount(t))
}

func TestCycle_SchemaFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	c := NewCycle(CycleDeps{Schema: brokenSchema{}, Assets: f.registry}, quietLogger())

	sum, err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrSchema)
	require.Len(t, sum.Diagnostics, 1)
	assert.Equal(t, PhaseSchema, sum.Diagnostics[0].Phase)
	_, ok := c.Last()
	assert.False(t, ok)
}

func TestCycle_SinkFailureIsDiagnostic(t *testing.T) {
	f := newFixture(t)
	sink := &memorySink{err: errors.New("permission denied")}

	sum, err := f.cycle(nil, sink).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Diagnostics, 1)
	assert.Equal(t, PhaseReport, sum.Diagnostics[0].Phase)
}

type stubImporter struct {
	path string
}

func (s *stubImporter) ImportFile(_ context.Context, path string) (int, []models.Diagnostic, error) {
	s.path = path
	return 3, []models.Diagnostic{{Phase: PhaseImport, Subject: "row 4", Message: "invalid asset class"}}, nil
}

func TestCycle_ImportsBeforeReconciling(t *testing.T) {
	f := newFixture(t)
	imp := &stubImporter{}
	c := NewCycle(CycleDeps{
		Schema:     f.repo,
		Assets:     f.registry,
		Poller:     NewPoller(f.registry, f.repo, Options{}, quietLogger()),
		Valuator:   NewValuator(f.repo, quietLogger()),
		Importer:   imp,
		ImportPath: "assets.csv",
	}, quietLogger())

	sum, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "assets.csv", imp.path)
	assert.Equal(t, 3, sum.Imported)
	assert.Len(t, sum.Diagnostics, 1)
}

func TestNewScheduler_RejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	_, err := NewScheduler(f.cycle(nil, nil), "every now and then", quietLogger())
	assert.Error(t, err)

	s, err := NewScheduler(f.cycle(nil, nil), "@every 1h", quietLogger())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx, false)
	cancel()
	s.Wait()
}

func TestCycle_ImportFileIsBookedOnce(t *testing.T) {
	f := newFixture(t)
	f.market.On("Observe", mock.Anything).Return(dec("450"), nil)

	path := filepath.Join(t.TempDir(), "assets.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,ticker,api,type,quantity\nVanguard S&P 500,VOO,yahoofi,etf,10\n"), 0o600))

	c := NewCycle(CycleDeps{
		Schema:     f.repo,
		Assets:     f.registry,
		Poller:     NewPoller(f.registry, f.repo, Options{}, quietLogger()),
		Valuator:   NewValuator(f.repo, quietLogger()),
		Importer:   importer.New(f.registry, f.repo, quietLogger()),
		ImportPath: path,
	}, quietLogger())

	sum, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Imported)

	for i := 0; i < 2; i++ {
		sum, err = c.Run(context.Background())
		require.NoError(t, err)
		assert.Zero(t, sum.Imported)
	}
	assert.True(t, f.total(t, "VOO").Equal(dec("10")), "VOO total %s", f.total(t, "VOO"))
	assert.True(t, sum.Valuation.Total.Equal(dec("4500")))
}

func TestCycle_UnreadableImportIsRetried(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "assets.csv")
	c := NewCycle(CycleDeps{
		Schema:     f.repo,
		Assets:     f.registry,
		Poller:     NewPoller(f.registry, f.repo, Options{}, quietLogger()),
		Valuator:   NewValuator(f.repo, quietLogger()),
		Importer:   importer.New(f.registry, f.repo, quietLogger()),
		ImportPath: path,
	}, quietLogger())

	sum, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Diagnostics, 1)
	assert.Equal(t, PhaseImport, sum.Diagnostics[0].Phase)

	require.NoError(t, os.WriteFile(path, []byte("name,ticker,api,type,quantity\nTether,USDT,binance,crypto,100\n"), 0o600))
	f.exchange.On("Observe", pricesource.Request{Ticker: "USDT"}).Return(dec("1"), nil)
	sum, err = c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Imported)
}

// blockingScanner holds a run inside the scan phase until released or
// cancelled.
type blockingScanner struct {
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
	returned atomic.Bool
}

func newBlockingScanner() *blockingScanner {
	return &blockingScanner{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingScanner) Scan(ctx context.Context) (map[string]Balance, []models.Diagnostic, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-ctx.Done():
	case <-b.release:
	}
	time.Sleep(20 * time.Millisecond)
	b.returned.Store(true)
	return map[string]Balance{}, nil, ctx.Err()
}

func TestCycle_LastDoesNotWaitForRunInFlight(t *testing.T) {
	f := newFixture(t)
	sc := newBlockingScanner()
	c := f.cycle(sc, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background())
		done <- err
	}()
	<-sc.entered

	got := make(chan bool, 1)
	go func() {
		_, ok := c.Last()
		got <- ok
	}()
	select {
	case ok := <-got:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Last blocked behind a running cycle")
	}

	close(sc.release)
	require.NoError(t, <-done)
	_, ok := c.Last()
	assert.True(t, ok)
}

func TestScheduler_WaitJoinsInitialRun(t *testing.T) {
	f := newFixture(t)
	sc := newBlockingScanner()
	s, err := NewScheduler(f.cycle(sc, nil), "@every 1h", quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx, true)
	<-sc.entered
	cancel()
	s.Wait()
	assert.True(t, sc.returned.Load())
}
