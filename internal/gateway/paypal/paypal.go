// Package paypal implements the PayPal Orders v2 REST flow: OAuth
// client-credentials token, order create, explicit capture, and status
// query for the polling fallback.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

var (
	ErrConfigInvalid   = errors.New("paypal: config invalid")
	ErrAuthFailed      = errors.New("paypal: auth failed")
	ErrRequestFailed   = errors.New("paypal: request failed")
	ErrResponseInvalid = errors.New("paypal: response invalid")
)

// Order states from the Orders v2 API.
const (
	StatusCreated   = "CREATED"
	StatusApproved  = "APPROVED"
	StatusCompleted = "COMPLETED"
)

type Config struct {
	ClientID string
	Secret   string
	BaseURL  string // https://api-m.paypal.com or the sandbox host
}

// Client talks to the PayPal REST API for one merchant app. The OAuth
// token is cached until shortly before expiry; refresh is serialized.
type Client struct {
	clientID   string
	secret     string
	baseURL    string
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func New(cfg Config, timeout time.Duration) (*Client, error) {
	if cfg.ClientID == "" || cfg.Secret == "" || cfg.BaseURL == "" {
		return nil, ErrConfigInvalid
	}
	return &Client{
		clientID:   cfg.ClientID,
		secret:     cfg.Secret,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token",
		bytes.NewBufferString("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuthFailed)
	}

	c.accessToken = tok.AccessToken
	// Refresh one minute early so in-flight requests never carry a
	// token that expires mid-call.
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

// CreateResult is the provider-side session for a new order.
type CreateResult struct {
	OrderID    string
	ApproveURL string
}

// CreateOrder opens a PayPal order for the given amount. The internal
// order ID travels as custom_id so the capture can be matched back even
// if the client loses its state.
func (c *Client) CreateOrder(ctx context.Context, internalID, amount, currency, description string) (*CreateResult, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"custom_id":   internalID,
			"description": description,
			"amount": map[string]string{
				"currency_code": currency,
				"value":         amount,
			},
		}},
	}

	body, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", payload)
	if err != nil {
		return nil, err
	}

	var created struct {
		ID    string `json:"id"`
		Links []struct {
			Href string `json:"href"`
			Rel  string `json:"rel"`
		} `json:"links"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("%w: empty order id", ErrResponseInvalid)
	}

	result := &CreateResult{OrderID: created.ID}
	for _, link := range created.Links {
		if link.Rel == "approve" {
			result.ApproveURL = link.Href
		}
	}
	return result, nil
}

// CaptureResult is the outcome of an explicit capture call.
type CaptureResult struct {
	OrderID  string
	Status   string
	CustomID string
	Amount   string
	Currency string
}

// CaptureOrder captures an approved order. PayPal reports an already
// captured order as ORDER_ALREADY_CAPTURED with a 422; that is folded
// into a COMPLETED result so retried captures stay idempotent.
func (c *Client) CaptureOrder(ctx context.Context, paypalOrderID string) (*CaptureResult, error) {
	body, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+paypalOrderID+"/capture", struct{}{})
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.issue == "ORDER_ALREADY_CAPTURED" {
			return c.GetOrder(ctx, paypalOrderID)
		}
		return nil, err
	}
	return parseOrderBody(paypalOrderID, body)
}

// GetOrder fetches the current state of an order, used by the status
// poller and for idempotent capture retries.
func (c *Client) GetOrder(ctx context.Context, paypalOrderID string) (*CaptureResult, error) {
	body, err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+paypalOrderID, nil)
	if err != nil {
		return nil, err
	}
	return parseOrderBody(paypalOrderID, body)
}

func parseOrderBody(id string, body []byte) (*CaptureResult, error) {
	var order struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			CustomID string `json:"custom_id"`
			Amount   struct {
				CurrencyCode string `json:"currency_code"`
				Value        string `json:"value"`
			} `json:"amount"`
			Payments struct {
				Captures []struct {
					Status   string `json:"status"`
					CustomID string `json:"custom_id"`
					Amount   struct {
						CurrencyCode string `json:"currency_code"`
						Value        string `json:"value"`
					} `json:"amount"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if order.ID == "" {
		order.ID = id
	}

	result := &CaptureResult{OrderID: order.ID, Status: order.Status}
	if len(order.PurchaseUnits) > 0 {
		unit := order.PurchaseUnits[0]
		result.CustomID = unit.CustomID
		result.Amount = unit.Amount.Value
		result.Currency = unit.Amount.CurrencyCode
		if len(unit.Payments.Captures) > 0 {
			capture := unit.Payments.Captures[0]
			if result.CustomID == "" {
				result.CustomID = capture.CustomID
			}
			if result.Amount == "" {
				result.Amount = capture.Amount.Value
				result.Currency = capture.Amount.CurrencyCode
			}
		}
	}
	return result, nil
}

// apiError carries the first issue code from a 4xx response body.
type apiError struct {
	status int
	issue  string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("paypal: api error status=%d issue=%s", e.status, e.issue)
}

func (e *apiError) Unwrap() error { return ErrRequestFailed }

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	if resp.StatusCode >= 400 {
		var details struct {
			Details []struct {
				Issue string `json:"issue"`
			} `json:"details"`
		}
		_ = json.Unmarshal(body, &details)
		issue := ""
		if len(details.Details) > 0 {
			issue = details.Details[0].Issue
		}
		return nil, &apiError{status: resp.StatusCode, issue: issue}
	}
	return body, nil
}
