package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// API is the ledger surface the reconciliation engine depends on.
type API interface {
	GetAccountInfo(ctx context.Context, account string, offset, limit int) (*AccountInfo, error)
	GetLiveQuote(ctx context.Context, id string) (*Quote, error)
	GetLiveTrade(ctx context.Context, id string) (*Trade, error)
	CreateQuote(ctx context.Context, market, durationLabel string, backing, spot, premium Coin) error
	UpdateQuote(ctx context.Context, id string, spot, premium Coin) error
	CancelQuote(ctx context.Context, id string) error
	SettleTrade(ctx context.Context, id string) error
}

// APIError represents an error response from the ledger.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger api error %d: %s", e.StatusCode, e.Message)
}

// Client is the REST ledger client. Calls are deliberately not retried; the
// reconciliation pass aborts on the first failure and the next periodic
// trigger retries fresh.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	signingKey string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithSigningKey sets the account key sent as a bearer token on every call.
func WithSigningKey(key string) ClientOption {
	return func(c *Client) { c.signingKey = key }
}

// NewClient creates a ledger REST client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAccountInfo fetches one page of account state.
func (c *Client) GetAccountInfo(ctx context.Context, account string, offset, limit int) (*AccountInfo, error) {
	query := url.Values{}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var wire accountInfoWire
	if err := c.get(ctx, "/account/"+url.PathEscape(account), query, &wire); err != nil {
		return nil, fmt.Errorf("get account info: %w", err)
	}

	balance, err := decimal.NewFromString(wire.Balance)
	if err != nil {
		return nil, fmt.Errorf("parse account balance %q: %w", wire.Balance, err)
	}

	return &AccountInfo{
		Balance:           balance,
		ActiveQuotes:      wire.ActiveQuotes,
		ActiveTrades:      wire.ActiveTrades,
		TotalActiveQuotes: wire.TotalActiveQuotes,
		TotalActiveTrades: wire.TotalActiveTrades,
		Limit:             wire.Limit,
	}, nil
}

// GetLiveQuote fetches a single active quote.
func (c *Client) GetLiveQuote(ctx context.Context, id string) (*Quote, error) {
	var wire quoteWire
	if err := c.get(ctx, "/quote/"+url.PathEscape(id), nil, &wire); err != nil {
		return nil, fmt.Errorf("get live quote %s: %w", id, err)
	}
	q, err := wire.toQuote()
	if err != nil {
		return nil, fmt.Errorf("decode quote %s: %w", id, err)
	}
	return &q, nil
}

// GetLiveTrade fetches a single active trade.
func (c *Client) GetLiveTrade(ctx context.Context, id string) (*Trade, error) {
	var wire tradeWire
	if err := c.get(ctx, "/trade/"+url.PathEscape(id), nil, &wire); err != nil {
		return nil, fmt.Errorf("get live trade %s: %w", id, err)
	}
	t, err := wire.toTrade()
	if err != nil {
		return nil, fmt.Errorf("decode trade %s: %w", id, err)
	}
	return &t, nil
}

// CreateQuote places a new quote on the ledger.
func (c *Client) CreateQuote(ctx context.Context, market, durationLabel string, backing, spot, premium Coin) error {
	body := createQuoteWire{
		Market:   market,
		Duration: durationLabel,
		Backing:  backing.String(),
		Spot:     spot.String(),
		Premium:  premium.String(),
	}
	if err := c.post(ctx, "/quotes", body, nil); err != nil {
		return fmt.Errorf("create quote %s/%s: %w", market, durationLabel, err)
	}
	return nil
}

// UpdateQuote refreshes an existing quote's spot and premium.
func (c *Client) UpdateQuote(ctx context.Context, id string, spot, premium Coin) error {
	body := updateQuoteWire{Spot: spot.String(), Premium: premium.String()}
	if err := c.post(ctx, "/quotes/"+url.PathEscape(id)+"/update", body, nil); err != nil {
		return fmt.Errorf("update quote %s: %w", id, err)
	}
	return nil
}

// CancelQuote removes a quote from the ledger.
func (c *Client) CancelQuote(ctx context.Context, id string) error {
	if err := c.post(ctx, "/quotes/"+url.PathEscape(id)+"/cancel", nil, nil); err != nil {
		return fmt.Errorf("cancel quote %s: %w", id, err)
	}
	return nil
}

// SettleTrade settles a trade whose expiration is finalized on-chain.
func (c *Client) SettleTrade(ctx context.Context, id string) error {
	if err := c.post(ctx, "/trades/"+url.PathEscape(id)+"/settle", nil, nil); err != nil {
		return fmt.Errorf("settle trade %s: %w", id, err)
	}
	return nil
}

// get performs a GET request and unmarshals the response.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// post performs a POST request with a JSON body.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return err
	}
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// doRequest performs a single HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.signingKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.signingKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       respBody,
		}
	}

	return respBody, nil
}
