/*
Package rates keeps the exchange-rate snapshots the ledger converts with.

  Client     fetches the latest USD-based rates from exchangerate-api
  Refresher  stores a new snapshot periodically and on demand
  Cache      Redis-backed ledger.RateSource in front of the store

A snapshot maps each supported currency to its rate versus USD
("1 USD = rate units"). The ledger divides by it to get USD amounts.
*/
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/wallet-ledger/ledger"
)

// ErrUpstream is returned when the rate provider answers with anything but
// a successful payload.
var ErrUpstream = errors.New("exchange rate provider failed")

// Client calls <BaseURL>/<APIKey>/latest/USD.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type latestResponse struct {
	Result          string                     `json:"result"`
	ErrorType       string                     `json:"error-type"`
	BaseCode        string                     `json:"base_code"`
	ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`
}

// Latest returns the provider's current rates restricted to the currencies
// the ledger supports. USD is always present with rate 1.
func (c *Client) Latest(ctx context.Context) (map[ledger.Currency]decimal.Decimal, error) {
	if c.BaseURL == "" || c.APIKey == "" {
		return nil, fmt.Errorf("%w: provider url and key are required", ErrUpstream)
	}
	url := fmt.Sprintf("%s/%s/latest/USD", c.BaseURL, c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %s", ErrUpstream, resp.Status)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	if body.Result != "success" {
		return nil, fmt.Errorf("%w: result %q %s", ErrUpstream, body.Result, body.ErrorType)
	}

	out := make(map[ledger.Currency]decimal.Decimal, len(ledger.SupportedCurrencies()))
	for _, c := range ledger.SupportedCurrencies() {
		if r, ok := body.ConversionRates[string(c)]; ok && r.IsPositive() {
			out[c] = r
		}
	}
	out[ledger.USD] = decimal.NewFromInt(1)
	return out, nil
}
