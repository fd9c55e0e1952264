package pricesource

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DefaultExchangeURL   = "https://api.binance.com"
	DefaultQuoteCurrency = "USDT"
)

// Exchange quotes TICKER against the quote currency on Binance's public ticker
// endpoint. The quote currency itself is the unit of account and is always 1.
type Exchange struct {
	BaseURL       string
	QuoteCurrency string
	HTTPClient    *http.Client
	log           *logrus.Logger
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func NewExchange(baseURL, quoteCurrency string, log *logrus.Logger) *Exchange {
	if baseURL == "" {
		baseURL = DefaultExchangeURL
	}
	if quoteCurrency == "" {
		quoteCurrency = DefaultQuoteCurrency
	}
	return &Exchange{
		BaseURL:       baseURL,
		QuoteCurrency: strings.ToUpper(quoteCurrency),
		HTTPClient:    newHTTPClient(),
		log:           log,
	}
}

func (e *Exchange) Observe(ctx context.Context, req Request) (decimal.Decimal, error) {
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == e.QuoteCurrency {
		return decimal.NewFromInt(1), nil
	}

	endpoint, err := url.Parse(e.BaseURL)
	if err != nil {
		return decimal.Zero, err
	}
	endpoint.Path = "/api/v3/ticker/price"
	params := endpoint.Query()
	params.Set("symbol", ticker+e.QuoteCurrency)
	endpoint.RawQuery = params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := e.HTTPClient.Do(httpReq)
	if err != nil {
		return decimal.Zero, fmt.Errorf("exchange quote %s: %w", ticker, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("exchange quote %s: %w %d", ticker, ErrUnexpectedStatus, resp.StatusCode)
	}

	var parsed tickerPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return decimal.Zero, fmt.Errorf("exchange quote %s: %w: %v", ticker, ErrMalformedQuote, err)
	}
	if parsed.Price == "" {
		return decimal.Zero, fmt.Errorf("exchange quote %s: %w: no price", ticker, ErrMalformedQuote)
	}
	price, err := decimal.NewFromString(parsed.Price)
	if err != nil || price.IsNegative() {
		return decimal.Zero, fmt.Errorf("exchange quote %s: %w: price %q", ticker, ErrMalformedQuote, parsed.Price)
	}
	e.log.WithField("symbol", parsed.Symbol).Debugf("exchange price %s", price)
	return price, nil
}
