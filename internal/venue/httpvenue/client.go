// Package httpvenue is a reference venue.Client implementation for REST
// prediction-market exchanges: functional-options construction, optional
// request signing, and exponential-backoff retry on 5xx/429.
//
// Grounded on the teacher's internal/api/{client.go,request.go}
// (NewClient + ClientOption pattern, doRequest/doWithRetry shape,
// *venue.APIError on non-2xx), generalized away from Kalshi's fixed
// RSA-PSS signing: Signer is now a pluggable capability (see signer.go),
// adapted from the teacher's internal/auth.Signer/generateSignature so a
// venue without request signing can simply omit it. The retry loop
// reclassifies failures through internal/venue.Classify instead of the
// teacher's inline status-code check, and sleeps with full jitter instead
// of the teacher's half-plus-random-remainder formula.
package httpvenue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/mdragan85/venuepoll/internal/model"
	"github.com/mdragan85/venuepoll/internal/venue"
)

// DiscoverParser turns a raw discovery response body into instruments.
// Venues shape their listing endpoints differently, so this is supplied by
// the caller rather than fixed by the package.
type DiscoverParser func(body []byte) ([]model.Instrument, error)

// OrderbookPath builds the request path for one poll_key's order book.
type OrderbookPath func(pollKey string) string

// Client is a reference REST venue.Client. It satisfies venue.Client and
// venue.Pinger.
type Client struct {
	baseURL        string
	discoverPath   string
	orderbookPath  OrderbookPath
	parseDiscover  DiscoverParser
	pingPath       string
	signer         Signer
	httpClient     *http.Client
	logger         *slog.Logger
	maxRetries     int
	retryBackoff   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// New constructs a Client. discoverPath and orderbookPath are required;
// parseDiscover must know how to turn the venue's discovery payload into
// []model.Instrument.
func New(baseURL, discoverPath string, orderbookPath OrderbookPath, parseDiscover DiscoverParser, opts ...Option) *Client {
	c := &Client{
		baseURL:       baseURL,
		discoverPath:  discoverPath,
		orderbookPath: orderbookPath,
		parseDiscover: parseDiscover,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        slog.Default(),
		maxRetries:    3,
		retryBackoff:  time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetries sets the retry count and base backoff.
func WithRetries(max int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient swaps the underlying http.Client, e.g. for test servers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSigner attaches a request signer; omit for venues with no
// authenticated read endpoints.
func WithSigner(s Signer) Option {
	return func(c *Client) { c.signer = s }
}

// WithPingPath enables Ping by naming a lightweight health-check endpoint.
func WithPingPath(path string) Option {
	return func(c *Client) { c.pingPath = path }
}

// Discover fetches and parses the venue's instrument listing.
func (c *Client) Discover(ctx context.Context) ([]model.Instrument, error) {
	body, err := c.doWithRetry(ctx, http.MethodGet, c.discoverPath, nil)
	if err != nil {
		return nil, err
	}
	return c.parseDiscover(body)
}

// GetOrderbook fetches and decodes the raw order book for pollKey.
func (c *Client) GetOrderbook(ctx context.Context, pollKey string) (venue.RawOrderbook, error) {
	body, err := c.doWithRetry(ctx, http.MethodGet, c.orderbookPath(pollKey), nil)
	if err != nil {
		return nil, err
	}
	var raw venue.RawOrderbook
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("httpvenue: unmarshal orderbook: %w", err)
	}
	return raw, nil
}

// Ping satisfies venue.Pinger when a health path was configured.
func (c *Client) Ping(ctx context.Context) error {
	if c.pingPath == "" {
		return fmt.Errorf("httpvenue: no ping path configured")
	}
	_, err := c.doRequest(ctx, http.MethodGet, c.pingPath, nil)
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpvenue: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.signer != nil {
		parsed, err := url.Parse(c.baseURL)
		if err != nil {
			return nil, fmt.Errorf("httpvenue: parse base url: %w", err)
		}
		timestampMs := time.Now().UnixMilli()
		headers, err := c.signer.Sign(timestampMs, method, parsed.Path+path)
		if err != nil {
			return nil, fmt.Errorf("httpvenue: sign request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpvenue: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpvenue: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &venue.APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       bytes.TrimSpace(body),
		}
	}
	return body, nil
}

// doWithRetry retries a request classified as RateLimited or ServerError
// (see internal/venue.Classify) using full jitter: each sleep is a full
// random draw between zero and the exponentially growing backoff ceiling,
// rather than a fixed fraction plus a random remainder, to spread out
// retries from many instruments colliding on the same cooldown window.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	var lastErr error
	ceiling := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			sleep := time.Duration(rand.Int64N(int64(ceiling)))
			c.logger.Debug("retrying request", "attempt", attempt, "sleep", sleep, "ceiling", ceiling, "path", path)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sleep):
			}
			ceiling *= 2
		}

		body, err := c.doRequest(ctx, method, path, query)
		if err == nil {
			return body, nil
		}
		lastErr = err

		apiErr, ok := err.(*venue.APIError)
		if !ok {
			return nil, err
		}
		switch venue.Classify(apiErr, apiErr.StatusCode) {
		case venue.RateLimited, venue.ServerError:
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("httpvenue: max retries exceeded: %w", lastErr)
}
