package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"monoswap/internal/model"
)

const (
	DefaultBaseURL = "https://min-api.cryptocompare.com/data"
	DefaultTimeout = 10 * time.Second
)

// Source fetches market data.
type Source interface {
	Price(ctx context.Context, symbol, quote string) (float64, error)
	Prices(ctx context.Context, symbols []string, quote string) (map[string]float64, error)
	History(ctx context.Context, base, quote string, spec HistorySpec) ([]model.Candle, error)
}

// StatusError is a non-2xx response from the market-data endpoint.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Endpoint, e.Code, e.Body)
}

// APIError is an error envelope returned with a 200 status.
type APIError struct {
	Endpoint string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}

// IsRetriable reports whether err is worth retrying: server errors, rate
// limiting and timeouts.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code >= 500 || status.Code == http.StatusTooManyRequests
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// CryptoCompare is a Source backed by the CryptoCompare min-api.
type CryptoCompare struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

// NewCryptoCompare creates a client. Empty values fall back to defaults.
func NewCryptoCompare(baseURL, apiKey string, timeout time.Duration, client *http.Client) *CryptoCompare {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	return &CryptoCompare{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		client:  client,
	}
}

// Price returns the price of symbol in quote.
func (c *CryptoCompare) Price(ctx context.Context, symbol, quote string) (float64, error) {
	params := url.Values{}
	params.Set("fsym", symbol)
	params.Set("tsyms", quote)

	var resp map[string]float64
	if err := c.get(ctx, "price", params, &resp); err != nil {
		return 0, err
	}
	price, ok := resp[quote]
	if !ok {
		return 0, &APIError{Endpoint: "price", Message: fmt.Sprintf("no %s price for %s", quote, symbol)}
	}
	return price, nil
}

// Prices returns prices for symbols in quote. Symbols the endpoint does not
// know are absent from the result.
func (c *CryptoCompare) Prices(ctx context.Context, symbols []string, quote string) (map[string]float64, error) {
	params := url.Values{}
	params.Set("fsyms", strings.Join(symbols, ","))
	params.Set("tsyms", quote)

	var resp map[string]map[string]float64
	if err := c.get(ctx, "pricemulti", params, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(resp))
	for symbol, prices := range resp {
		if price, ok := prices[quote]; ok {
			out[normalizeSymbol(symbol)] = price
		}
	}
	return out, nil
}

type historyResponse struct {
	Data []struct {
		Time  int64   `json:"time"`
		Open  float64 `json:"open"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Close float64 `json:"close"`
	} `json:"Data"`
}

// History returns candles for base/quote, oldest first.
func (c *CryptoCompare) History(ctx context.Context, base, quote string, spec HistorySpec) ([]model.Candle, error) {
	params := url.Values{}
	params.Set("fsym", base)
	params.Set("tsym", quote)
	params.Set("limit", strconv.Itoa(spec.Limit))
	params.Set("aggregate", strconv.Itoa(spec.Aggregate))

	var resp historyResponse
	if err := c.get(ctx, spec.Endpoint, params, &resp); err != nil {
		return nil, err
	}
	candles := make([]model.Candle, 0, len(resp.Data))
	for _, d := range resp.Data {
		candles = append(candles, model.Candle{Time: d.Time, Open: d.Open, High: d.High, Low: d.Low, Close: d.Close})
	}
	return candles, nil
}

func (c *CryptoCompare) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Expires", "0")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: snippet}
	}

	var envelope struct {
		Response string `json:"Response"`
		Message  string `json:"Message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Response == "Error" {
		return &APIError{Endpoint: endpoint, Message: envelope.Message}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
