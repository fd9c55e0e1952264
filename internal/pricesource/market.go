package pricesource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMarketURL = "https://query1.finance.yahoo.com"
	marketPricePath  = "$.chart.result[0].meta.regularMarketPrice"
)

// Market reads the last traded price from Yahoo Finance's chart endpoint.
type Market struct {
	BaseURL    string
	HTTPClient *http.Client
	log        *logrus.Logger
}

func NewMarket(baseURL string, log *logrus.Logger) *Market {
	if baseURL == "" {
		baseURL = DefaultMarketURL
	}
	return &Market{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: newHTTPClient(), log: log}
}

func (m *Market) Observe(ctx context.Context, req Request) (decimal.Decimal, error) {
	addr := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", m.BaseURL, url.PathEscape(req.Ticker))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return decimal.Zero, err
	}
	// the endpoint rejects Go's default agent
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (balance-checker)")

	resp, err := m.HTTPClient.Do(httpReq)
	if err != nil {
		return decimal.Zero, fmt.Errorf("market quote %s: %w", req.Ticker, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("market quote %s: %w %d", req.Ticker, ErrUnexpectedStatus, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("market quote %s: %w", req.Ticker, err)
	}

	var jobj any
	if err := json.Unmarshal(body, &jobj); err != nil {
		return decimal.Zero, fmt.Errorf("market quote %s: %w: %v", req.Ticker, ErrMalformedQuote, err)
	}
	jval, err := jsonpath.Get(marketPricePath, jobj)
	if err != nil {
		return decimal.Zero, fmt.Errorf("market quote %s: %w: %v", req.Ticker, ErrMalformedQuote, err)
	}
	if jlist, ok := jval.([]any); ok && len(jlist) > 0 {
		jval = jlist[0]
	}
	price, ok := jval.(float64)
	if !ok || price < 0 {
		return decimal.Zero, fmt.Errorf("market quote %s: %w: price %v", req.Ticker, ErrMalformedQuote, jval)
	}
	m.log.WithField("ticker", req.Ticker).Debugf("market price %v", price)
	return decimal.NewFromFloat(price), nil
}
