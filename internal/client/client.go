// Package client is a thin HTTP client for the warehouse API, used by
// station-side tooling that drives fulfillment reconciliation against a
// remote backend instead of an in-process service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gudangku/backend/internal/domain"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the backend. Message carries the
// body's "message" field when present, otherwise a generic fallback.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

func (c *Client) Login(ctx context.Context, username, password string) (domain.LoginResponse, error) {
	var resp domain.LoginResponse
	err := c.post(ctx, "/api/v1/auth/login", domain.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	c.token = resp.AccessToken
	return resp, nil
}

func (c *Client) FulfillTag(ctx context.Context, tagID string, req domain.FulfillRequest) (domain.FulfillmentResult, error) {
	var result domain.FulfillmentResult
	path := "/api/v1/tags/" + url.PathEscape(tagID) + "/fulfill"
	if err := c.post(ctx, path, req, &result); err != nil {
		return domain.FulfillmentResult{}, err
	}
	return result, nil
}

func (c *Client) PartialReturn(ctx context.Context, loanTagID string, req domain.PartialReturnRequest) (domain.PartialReturnResponse, error) {
	var result domain.PartialReturnResponse
	path := "/api/v1/tools/" + url.PathEscape(loanTagID) + "/partial-return"
	if err := c.post(ctx, path, req, &result); err != nil {
		return domain.PartialReturnResponse{}, err
	}
	return result, nil
}

func (c *Client) MarkTagsUsed(ctx context.Context, req domain.MarkUsedRequest) (domain.FulfillmentResult, error) {
	var result domain.FulfillmentResult
	if err := c.post(ctx, "/api/v1/tags/mark-used", req, &result); err != nil {
		return domain.FulfillmentResult{}, err
	}
	return result, nil
}

func (c *Client) BatchScan(ctx context.Context, barcodes []string) (domain.BarcodeBatchResponse, error) {
	var result domain.BarcodeBatchResponse
	err := c.post(ctx, "/api/v1/barcodes/batch-scan", domain.BarcodeBatchRequest{Barcodes: barcodes}, &result)
	if err != nil {
		return domain.BarcodeBatchResponse{}, err
	}
	return result, nil
}

func (c *Client) GetTag(ctx context.Context, tagID string, populate bool) (domain.TagResponse, error) {
	var result domain.TagResponse
	path := "/api/v1/tags/" + url.PathEscape(tagID)
	if populate {
		path += "?populate=true"
	}
	if err := c.get(ctx, path, &result); err != nil {
		return domain.TagResponse{}, err
	}
	return result, nil
}

// AvailableItems satisfies the tag wizard's catalog loader against a
// remote backend.
func (c *Client) AvailableItems(ctx context.Context) ([]domain.SKU, error) {
	var result struct {
		SKUs []domain.SKU `json:"skus"`
	}
	if err := c.get(ctx, "/api/v1/skus", &result); err != nil {
		return nil, err
	}
	return result.SKUs, nil
}

func (c *Client) CreateTag(ctx context.Context, req domain.TagCreateRequest) (domain.TagResponse, error) {
	var result domain.TagResponse
	if err := c.post(ctx, "/api/v1/tags", req, &result); err != nil {
		return domain.TagResponse{}, err
	}
	return result, nil
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodGet, path, nil, dest)
}

func (c *Client) post(ctx context.Context, path string, payload any, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, body, dest)
}

func (c *Client) do(ctx context.Context, method string, path string, body []byte, dest any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	if dest == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

// errorMessage extracts the "message" field from an error body. Anything
// unparseable falls back to a generic message so a proxy's HTML error page
// never leaks into the UI.
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && strings.TrimSpace(body.Message) != "" {
		return body.Message
	}
	return "request failed"
}
