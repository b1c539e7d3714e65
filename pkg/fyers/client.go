// Package fyers is a typed client for the Fyers trading APIs: the REST
// endpoints used for daily history and order placement, plus the data and
// order websockets. All surfaces authenticate with the "app_id:access_token"
// form.
package fyers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrForbidden reports an authentication failure (HTTP 403 or a Forbidden
// socket teardown). Callers treat it as an expired token: exit 0 so the
// supervisor restarts the process against fresh credentials.
var ErrForbidden = errors.New("fyers: forbidden (token expired)")

const defaultAPIBase = "https://api-t1.fyers.in"

var routes = map[string]string{
	"data.history": "/data/history",
	"orders.place": "/api/v3/orders/sync",
}

// Config configures the REST client.
type Config struct {
	AppID       string
	AccessToken string
	APIBase     string        // default: https://api-t1.fyers.in
	Timeout     time.Duration // default: 7s
}

// Client talks to the Fyers REST API.
type Client struct {
	appID      string
	token      string
	base       string
	httpClient *http.Client

	// SessionExpiryHook, when set, fires before a 403 response is returned
	// as ErrForbidden.
	SessionExpiryHook func()
}

// NewClient builds a REST client with defaults applied.
func NewClient(cfg Config) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	return &Client{
		appID:      cfg.AppID,
		token:      cfg.AccessToken,
		base:       strings.TrimRight(cfg.APIBase, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) authHeader() string {
	return c.appID + ":" + c.token
}

func (c *Client) buildURL(route string) (string, error) {
	uri, ok := routes[route]
	if !ok {
		return "", fmt.Errorf("fyers: unknown route %q", route)
	}
	return c.base + uri, nil
}

// doJSON performs one authenticated request and decodes the JSON response
// into out. HTTP 403 maps to ErrForbidden.
func (c *Client) doJSON(ctx context.Context, method, route string, query url.Values, body, out any) error {
	fullURL, err := c.buildURL(route)
	if err != nil {
		return err
	}
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("fyers: encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("fyers: create request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fyers: %s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("fyers: read response: %w", err)
	}

	if resp.StatusCode == http.StatusForbidden {
		if c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		return fmt.Errorf("fyers: %s %s: %w", method, route, ErrForbidden)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fyers: %s %s: unexpected status %d: %s", method, route, resp.StatusCode, truncate(raw, 200))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("fyers: decode response: %w", err)
	}
	return nil
}

// History fetches candles for one symbol. The caller owns resolution and the
// date range; cont_flag and date_format match the daily-history contract.
func (c *Client) History(ctx context.Context, req HistoryRequest) (*HistoryResponse, error) {
	q := url.Values{}
	q.Set("symbol", req.Symbol)
	q.Set("resolution", req.Resolution)
	q.Set("date_format", "1")
	q.Set("range_from", req.RangeFrom)
	q.Set("range_to", req.RangeTo)
	q.Set("cont_flag", "1")

	var resp HistoryResponse
	if err := c.doJSON(ctx, http.MethodGet, "data.history", q, nil, &resp); err != nil {
		return nil, err
	}
	if resp.S != "ok" {
		return nil, fmt.Errorf("fyers: history %s: s=%q message=%q", req.Symbol, resp.S, resp.Message)
	}
	return &resp, nil
}

// PlaceOrder submits an order and returns the broker order id. A logical
// rejection (s != "ok") is an error like any transport failure.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	var resp OrderResponse
	if err := c.doJSON(ctx, http.MethodPost, "orders.place", nil, req, &resp); err != nil {
		return "", err
	}
	if resp.S != "ok" || resp.ID == "" {
		return "", fmt.Errorf("fyers: order rejected: s=%q code=%d message=%q", resp.S, resp.Code, resp.Message)
	}
	return resp.ID, nil
}

// PlaceMarketOrder places an intraday market order: type 2, day validity,
// zero limit/stop prices, no disclosed quantity.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, qty int, side int) (string, error) {
	return c.PlaceOrder(ctx, OrderRequest{
		Symbol:      symbol,
		Qty:         qty,
		Type:        OrderTypeMarket,
		Side:        side,
		ProductType: "INTRADAY",
		Validity:    "DAY",
	})
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
