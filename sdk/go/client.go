package orderlinesdk

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
)

// Client is a minimal Orderline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Order represents the API order model.
type Order struct {
	ID           string `json:"id"`
	OrderNumber  string `json:"order_number"`
	OrderDate    string `json:"order_date"`
	DeliveryLink string `json:"delivery_link,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// Lease represents a lease attached to a report.
type Lease struct {
	ID               int64  `json:"id"`
	LeaseNumber      string `json:"lease_number"`
	Agency           string `json:"agency"`
	PriorReportFound bool   `json:"prior_report_found"`
	ArchiveLink      string `json:"archive_link,omitempty"`
}

// Report represents the API report model.
type Report struct {
	ID               int64   `json:"id"`
	OrderID          string  `json:"order_id"`
	Kind             string  `json:"kind"`
	LegalDescription string  `json:"legal_description"`
	StartDate        *string `json:"start_date,omitempty"`
	EndDate          *string `json:"end_date,omitempty"`
	Description      string  `json:"description"`
	Leases           []Lease `json:"leases"`
}

// OrderGraph is an order with its reports and leases.
type OrderGraph struct {
	Order   Order    `json:"order"`
	Reports []Report `json:"reports"`
}

// LeaseInput describes a lease to attach when adding a report.
type LeaseInput struct {
	LeaseNumber      string  `json:"lease_number"`
	Agency           string  `json:"agency"`
	PriorReportFound bool    `json:"prior_report_found,omitempty"`
	ArchiveLink      *string `json:"archive_link,omitempty"`
}

// RunOutcome summarizes one workflow generation run.
type RunOutcome struct {
	Success     bool              `json:"success"`
	NothingToDo bool              `json:"nothing_to_do"`
	Succeeded   []string          `json:"succeeded"`
	Failed      []string          `json:"failed"`
	Errors      map[string]string `json:"errors"`
	Lists       int               `json:"lists"`
	Tasks       int               `json:"tasks"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	OrderID    string `json:"order_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateOrder creates an order.
func (c *Client) CreateOrder(ctx context.Context, orderNumber, orderDate string) (Order, error) {
	body := map[string]any{
		"order_number": orderNumber,
		"order_date":   orderDate,
	}
	var resp Order
	err := c.do(ctx, http.MethodPost, "v0/orders", body, &resp)
	return resp, err
}

// GetOrder fetches an order with its reports and leases.
func (c *Client) GetOrder(ctx context.Context, orderID string) (OrderGraph, error) {
	var resp OrderGraph
	err := c.do(ctx, http.MethodGet, "v0/orders/"+url.PathEscape(orderID), nil, &resp)
	return resp, err
}

// AddReport adds a report with its leases to an order.
func (c *Client) AddReport(ctx context.Context, orderID, kind, legalDescription string, startDate, endDate *string, leases []LeaseInput) (Report, error) {
	body := map[string]any{
		"kind":              kind,
		"legal_description": legalDescription,
		"leases":            leases,
	}
	if startDate != nil {
		body["start_date"] = *startDate
	}
	if endDate != nil {
		body["end_date"] = *endDate
	}
	var resp Report
	endpoint := fmt.Sprintf("v0/orders/%s/reports", url.PathEscape(orderID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Connect stores the caller's task-hub credential.
func (c *Client) Connect(ctx context.Context, accessToken, refreshToken string) error {
	body := map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	}
	return c.do(ctx, http.MethodPut, "v0/me/connection", body, nil)
}

// RunWorkflows triggers workflow generation for an order.
func (c *Client) RunWorkflows(ctx context.Context, orderID string) (RunOutcome, error) {
	var resp RunOutcome
	endpoint := fmt.Sprintf("v0/orders/%s/workflows", url.PathEscape(orderID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
