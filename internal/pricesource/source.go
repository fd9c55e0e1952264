// Package pricesource normalizes heterogeneous price and balance feeds behind a
// single Observe call. Market and exchange variants return a unit price for a
// ticker; the on-chain variant returns a wallet balance.
package pricesource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProviderMarket   = "yahoofi"
	ProviderExchange = "binance"
)

const defaultTimeout = 8 * time.Second

var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrMalformedQuote   = errors.New("malformed quote")
	ErrUnknownNetwork   = errors.New("unknown network")
	ErrInvalidAddress   = errors.New("invalid address")
)

// Request carries everything a variant may need. Ticker is always set;
// Contract, Wallet and Network only matter to the on-chain variant.
type Request struct {
	Ticker   string
	Contract string
	Wallet   string
	Network  string
}

func (r Request) String() string {
	if r.Wallet == "" {
		return r.Ticker
	}
	return fmt.Sprintf("%s@%s/%s", r.Ticker, r.Network, r.Wallet)
}

type Source interface {
	Observe(ctx context.Context, req Request) (decimal.Decimal, error)
}

// Quote is the outcome of one Observe call. A failed quote keeps its error so
// callers can tell a real zero from a fetch that did not happen.
type Quote struct {
	Request Request
	Value   decimal.Decimal
	Err     error
}

func (q Quote) OK() bool { return q.Err == nil }

// OrZero degrades a failed quote to the 0 sentinel for aggregation.
func (q Quote) OrZero() decimal.Decimal {
	if q.Err != nil {
		return decimal.Zero
	}
	return q.Value
}

// Fetch runs one Observe bounded by timeout and wraps the outcome.
func Fetch(ctx context.Context, src Source, req Request, timeout time.Duration) Quote {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	v, err := src.Observe(ctx, req)
	if err != nil {
		return Quote{Request: req, Err: err}
	}
	return Quote{Request: req, Value: v}
}

// Providers binds provider identifiers to price-capable sources.
type Providers map[string]Source

func (p Providers) Lookup(id string) (Source, bool) {
	s, ok := p[strings.ToLower(strings.TrimSpace(id))]
	return s, ok
}

func (p Providers) IDs() []string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}
