// Package marketapi is the REST client for the simulated exchange's market
// API: deployed contract listings, order books and oracle query suggestions.
package marketapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/simexchange/internal/crypto"
	"github.com/alanyoungcy/simexchange/internal/domain"
)

// maxBodyBytes caps response bodies read from the API.
const maxBodyBytes = 4 << 20

// Client implements domain.MarketData over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAuth signs every request with HMAC headers.
func WithAuth(auth *crypto.HMACAuth) Option {
	return func(c *Client) { c.auth = auth }
}

// NewClient creates a market API client.
//
// baseURL is the API root, e.g. "https://api.simexchange.example".
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Contracts returns every deployed contract known to the API.
func (c *Client) Contracts(ctx context.Context) ([]domain.ContractSummary, error) {
	body, err := c.doGet(ctx, "/contracts")
	if err != nil {
		return nil, fmt.Errorf("marketapi: get contracts: %w", err)
	}

	var apiContracts []APIContract
	if err := json.Unmarshal(body, &apiContracts); err != nil {
		return nil, fmt.Errorf("marketapi: decode contracts: %w", err)
	}

	out := make([]domain.ContractSummary, 0, len(apiContracts))
	for i := range apiContracts {
		out = append(out, apiContracts[i].ToDomain())
	}
	return out, nil
}

// OrderBook returns the bids, asks and contract details for address.
func (c *Client) OrderBook(ctx context.Context, address string) (domain.OrderBook, error) {
	path := "/orders/" + url.PathEscape(address)

	body, err := c.doGet(ctx, path)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("marketapi: get orders %s: %w", address, err)
	}

	var book APIOrderBook
	if err := json.Unmarshal(body, &book); err != nil {
		return domain.OrderBook{}, fmt.Errorf("marketapi: decode orders: %w", err)
	}
	return book.ToDomain(address, c.now().UTC()), nil
}

// OracleSuggestions returns oracle queries matching the free-form query.
func (c *Client) OracleSuggestions(ctx context.Context, query string) ([]domain.OracleSuggestion, error) {
	params := url.Values{}
	params.Set("q", query)

	body, err := c.doGet(ctx, "/oracle/suggestions?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("marketapi: oracle suggestions: %w", err)
	}

	var apiSuggestions []APISuggestion
	if err := json.Unmarshal(body, &apiSuggestions); err != nil {
		return nil, fmt.Errorf("marketapi: decode suggestions: %w", err)
	}

	out := make([]domain.OracleSuggestion, 0, len(apiSuggestions))
	for _, s := range apiSuggestions {
		out = append(out, s.ToDomain())
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends a GET request, signed when credentials are configured.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.auth.Enabled() {
		for k, v := range c.auth.Headers(http.MethodGet, path, "") {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx responses to domain sentinel errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := strings.TrimSpace(string(body))
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
