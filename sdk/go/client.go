// Package reqlinesdk is the Go client for the reqline broker API. Tenants use
// it to poll for work, reserve requests and post results.
package reqlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to a reqline server. Set either APIKey or BearerToken.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Details string `json:"details,omitempty"`
	}
}

func (e *APIError) Error() string {
	if e.Body.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body.Message)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// Capability mirrors the server's capability resource.
type Capability struct {
	UUID           string         `json:"uuid"`
	Quantity       string         `json:"quantity"`
	Method         string         `json:"method"`
	Specifications map[string]any `json:"specifications"`
	ResultOutput   map[string]any `json:"result_output"`
	IsActive       bool           `json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
}

type Limitation struct {
	Quantity    string `json:"quantity"`
	Method      string `json:"method"`
	Limitations any    `json:"limitations"`
}

type Request struct {
	UUID       string                    `json:"uuid"`
	Quantity   string                    `json:"quantity"`
	Methods    []string                  `json:"methods"`
	Parameters map[string]map[string]any `json:"parameters"`
	TenantUUID string                    `json:"tenant_uuid"`
	Status     string                    `json:"status"`
	CreatedAt  time.Time                 `json:"created_at"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

type Result struct {
	UUID        string                    `json:"uuid"`
	RequestUUID string                    `json:"request_uuid"`
	Quantity    string                    `json:"quantity"`
	Method      string                    `json:"method"`
	Parameters  map[string]map[string]any `json:"parameters"`
	Data        map[string]any            `json:"data"`
	TenantUUID  string                    `json:"tenant_uuid"`
	Status      string                    `json:"status"`
	CreatedAt   time.Time                 `json:"created_at"`
}

// RequestSubmission is the payload for CreateRequest.
type RequestSubmission struct {
	Quantity   string                    `json:"quantity"`
	Methods    []string                  `json:"methods"`
	Parameters map[string]map[string]any `json:"parameters"`
}

// ResultSubmission is the payload for PostResult and PostUnsolicitedResult.
type ResultSubmission struct {
	RequestUUID string                    `json:"request_uuid,omitempty"`
	Quantity    string                    `json:"quantity"`
	Methods     []string                  `json:"methods"`
	Parameters  map[string]map[string]any `json:"parameters"`
	Data        map[string]any            `json:"data"`
}

type statusChange struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (c *Client) Capabilities(ctx context.Context, quantity, method string, currentlyAvailable bool) ([]Capability, error) {
	var out []Capability
	endpoint := "/capabilities?" + listQuery(quantity, method, &currentlyAvailable)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Limitations(ctx context.Context, currentlyAvailable bool) ([]Limitation, error) {
	var out []Limitation
	endpoint := "/limitations?currently_available=" + strconv.FormatBool(currentlyAvailable)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateRequest(ctx context.Context, sub RequestSubmission) (Request, error) {
	var out Request
	if err := c.do(ctx, http.MethodPost, "/requests", sub, &out); err != nil {
		return Request{}, err
	}
	return out, nil
}

func (c *Client) GetRequest(ctx context.Context, id string) (Request, error) {
	var out Request
	if err := c.do(ctx, http.MethodGet, "/requests/"+url.PathEscape(id), nil, &out); err != nil {
		return Request{}, err
	}
	return out, nil
}

// PendingRequests lists requests in status pending, optionally narrowed by
// quantity and method.
func (c *Client) PendingRequests(ctx context.Context, quantity, method string) ([]Request, error) {
	var out []Request
	endpoint := "/requests/pending?" + listQuery(quantity, method, nil)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ChangeRequestStatus moves a request to status with an annotation.
func (c *Client) ChangeRequestStatus(ctx context.Context, id, status, message string) (Request, error) {
	var out Request
	endpoint := "/requests/" + url.PathEscape(id) + "/status"
	if err := c.do(ctx, http.MethodPost, endpoint, statusChange{Status: status, Message: message}, &out); err != nil {
		return Request{}, err
	}
	return out, nil
}

// ReserveRequest marks a pending request as reserved by this tenant.
func (c *Client) ReserveRequest(ctx context.Context, id, message string) (Request, error) {
	return c.ChangeRequestStatus(ctx, id, "reserved", message)
}

// ReleaseRequest returns a reserved request to the pending pool.
func (c *Client) ReleaseRequest(ctx context.Context, id, message string) (Request, error) {
	return c.ChangeRequestStatus(ctx, id, "pending", message)
}

func (c *Client) PostResult(ctx context.Context, sub ResultSubmission) (Result, error) {
	var out Result
	if err := c.do(ctx, http.MethodPost, "/results", sub, &out); err != nil {
		return Result{}, err
	}
	return out, nil
}

func (c *Client) PostUnsolicitedResult(ctx context.Context, sub ResultSubmission) (Result, error) {
	var out Result
	if err := c.do(ctx, http.MethodPost, "/results/unsolicited", sub, &out); err != nil {
		return Result{}, err
	}
	return out, nil
}

func (c *Client) GetResult(ctx context.Context, id string) (Result, error) {
	var out Result
	if err := c.do(ctx, http.MethodGet, "/results/"+url.PathEscape(id), nil, &out); err != nil {
		return Result{}, err
	}
	return out, nil
}

// ResultByRequest fetches the result posted for a request.
func (c *Client) ResultByRequest(ctx context.Context, requestUUID string) (Result, error) {
	var out Result
	endpoint := "/requests/" + url.PathEscape(requestUUID) + "/result"
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return Result{}, err
	}
	return out, nil
}

func listQuery(quantity, method string, currentlyAvailable *bool) string {
	q := url.Values{}
	if quantity != "" {
		q.Set("quantity", quantity)
	}
	if method != "" {
		q.Set("method", method)
	}
	if currentlyAvailable != nil {
		q.Set("currently_available", strconv.FormatBool(*currentlyAvailable))
	}
	return q.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	} else if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.Timeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, &apiErr.Body)
		return apiErr
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
