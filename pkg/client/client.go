package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Error kinds reported by the server.
const (
	KindValidation        = "validation"
	KindNotFound          = "not_found"
	KindInvalidState      = "invalid_state"
	KindAuthorization     = "authorization"
	KindInsufficientFunds = "insufficient_funds"
	KindUnauthenticated   = "unauthenticated"
	KindRateLimited       = "rate_limited"
	KindInternal          = "internal"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
}

// IsKind reports whether err is an *APIError of the given kind.
func IsKind(err error, kind string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// Client talks to a crop ledger server.
type Client struct {
	base       string
	httpClient *http.Client
	cache      *cropCache

	mu    sync.RWMutex
	token string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithCacheTTL enables in-memory caching of GetCrop results.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		if ttl <= 0 {
			return fmt.Errorf("cache ttl must be positive, got %s", ttl)
		}
		c.cache = newCropCache(ttl)
		return nil
	}
}

// WithActorToken attaches an actor token to every request.
func WithActorToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development against a self-signed certificate.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: 10 * time.Second,
		}
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// SetActorToken replaces the token attached to subsequent requests.
func (c *Client) SetActorToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// RegisterCrop registers a crop lot and returns it with its minted token.
func (c *Client) RegisterCrop(ctx context.Context, req RegisterCropRequest) (*RegisterCropResult, error) {
	var res RegisterCropResult
	if err := c.call(ctx, http.MethodPost, "/api/crops/register", req, &res); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.set(res.Crop.CropID, &res.Crop)
	}
	return &res, nil
}

// GetCrop fetches a crop by id, served from the cache when enabled.
func (c *Client) GetCrop(ctx context.Context, cropID string) (*Crop, error) {
	if c.cache != nil {
		if crop, ok := c.cache.get(cropID); ok {
			return crop, nil
		}
	}

	var res struct {
		Crop Crop `json:"crop"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/crops/"+url.PathEscape(cropID), nil, &res); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.set(cropID, &res.Crop)
	}
	return &res.Crop, nil
}

// ListCrops returns every registered crop.
func (c *Client) ListCrops(ctx context.Context) ([]Crop, error) {
	var res struct {
		Crops []Crop `json:"crops"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/crops", nil, &res); err != nil {
		return nil, err
	}
	return res.Crops, nil
}

// GetToken fetches a token together with the crop it is backed by.
func (c *Client) GetToken(ctx context.Context, tokenID string) (*Token, *Crop, error) {
	var res struct {
		Token Token `json:"token"`
		Crop  Crop  `json:"crop"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/tokens/"+url.PathEscape(tokenID), nil, &res); err != nil {
		return nil, nil, err
	}
	if c.cache != nil {
		c.cache.set(res.Crop.CropID, &res.Crop)
	}
	return &res.Token, &res.Crop, nil
}

// ListTokens returns every token.
func (c *Client) ListTokens(ctx context.Context) ([]Token, error) {
	return c.tokens(ctx, "/api/tokens")
}

// TokensByStatus returns tokens in the given status. The match is
// case-insensitive.
func (c *Client) TokensByStatus(ctx context.Context, status string) ([]Token, error) {
	return c.tokens(ctx, "/api/tokens/status/"+url.PathEscape(status))
}

// TokensByOwner returns tokens currently owned by ownerID.
func (c *Client) TokensByOwner(ctx context.Context, ownerID string) ([]Token, error) {
	return c.tokens(ctx, "/api/tokens/owner/"+url.PathEscape(ownerID))
}

func (c *Client) tokens(ctx context.Context, path string) ([]Token, error) {
	var res struct {
		Tokens []Token `json:"tokens"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Tokens, nil
}

// ListToken offers a CREATED token for sale on behalf of its owner.
func (c *Client) ListToken(ctx context.Context, tokenID, sellerID string) (*Token, error) {
	body := map[string]string{"token_id": tokenID, "seller_id": sellerID}
	var res struct {
		Token Token `json:"token"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/tokens/list", body, &res); err != nil {
		return nil, err
	}
	return &res.Token, nil
}

// ExecuteSettlement buys a LISTED token at the current oracle price.
func (c *Client) ExecuteSettlement(ctx context.Context, tokenID, buyerID string) (*Settlement, error) {
	body := map[string]string{"token_id": tokenID, "buyer_id": buyerID}
	var res struct {
		Settlement Settlement `json:"settlement"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/settlements/execute", body, &res); err != nil {
		return nil, err
	}
	return &res.Settlement, nil
}

// ListSettlements returns every settlement in execution order.
func (c *Client) ListSettlements(ctx context.Context) ([]Settlement, error) {
	var res struct {
		Settlements []Settlement `json:"settlements"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/settlements", nil, &res); err != nil {
		return nil, err
	}
	return res.Settlements, nil
}

// AuditTrail returns the full audit trail, oldest first.
func (c *Client) AuditTrail(ctx context.Context) ([]AuditEntry, error) {
	var res struct {
		AuditTrail []AuditEntry `json:"audit_trail"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/audit/trail", nil, &res); err != nil {
		return nil, err
	}
	return res.AuditTrail, nil
}

// AuditEntry returns the entry at seq.
func (c *Client) AuditEntry(ctx context.Context, seq int64) (*AuditEntry, error) {
	var e AuditEntry
	if err := c.call(ctx, http.MethodGet, "/api/audit/entries/"+strconv.FormatInt(seq, 10), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// AuditRoot returns the hash of the newest entry, or the genesis hash for an
// empty trail.
func (c *Client) AuditRoot(ctx context.Context) (string, error) {
	var res struct {
		Root string `json:"root"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/audit", nil, &res); err != nil {
		return "", err
	}
	return res.Root, nil
}

// VerifyAudit asks the server to re-verify the whole hash chain. A broken
// chain is reported in the result, not as an error.
func (c *Client) VerifyAudit(ctx context.Context) (*VerifyReport, error) {
	var r VerifyReport
	if err := c.call(ctx, http.MethodGet, "/api/audit/verify", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Stats returns market statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var res struct {
		Stats Stats `json:"stats"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/stats", nil, &res); err != nil {
		return nil, err
	}
	return &res.Stats, nil
}

// Compliance returns the compliance report.
func (c *Client) Compliance(ctx context.Context) (*ComplianceReport, error) {
	var res struct {
		Report ComplianceReport `json:"compliance_report"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/compliance/report", nil, &res); err != nil {
		return nil, err
	}
	return &res.Report, nil
}

// Price quotes the per-kg price for a crop type at a mandi.
func (c *Client) Price(ctx context.Context, cropType, mandiID string) (decimal.Decimal, error) {
	q := url.Values{"crop_type": {cropType}, "mandi_id": {mandiID}}
	var res struct {
		PricePerKg decimal.Decimal `json:"price_per_kg"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/prices?"+q.Encode(), nil, &res); err != nil {
		return decimal.Zero, err
	}
	return res.PricePerKg, nil
}

// Wallet returns an account balance. Unknown accounts read as zero.
func (c *Client) Wallet(ctx context.Context, accountID string) (*Wallet, error) {
	var w Wallet
	if err := c.call(ctx, http.MethodGet, "/api/wallets/"+url.PathEscape(accountID), nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Deposit credits amount to an account and returns the new balance.
func (c *Client) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (*Wallet, error) {
	body := map[string]decimal.Decimal{"amount": amount}
	var w Wallet
	if err := c.call(ctx, http.MethodPost, "/api/wallets/"+url.PathEscape(accountID)+"/deposit", body, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Health checks the server's /healthz endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/healthz", nil, nil)
}

// call sends a JSON request and decodes a 2xx body into out. Pass nil for
// reqBody or out when not needed.
func (c *Client) call(ctx context.Context, method, path string, reqBody, out any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, body)
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var payload struct {
		Message string `json:"message"`
		Error   struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Kind = payload.Error.Kind
		switch {
		case payload.Error.Message != "":
			apiErr.Message = payload.Error.Message
		case payload.Message != "":
			apiErr.Message = payload.Message
		}
	}
	return apiErr
}
