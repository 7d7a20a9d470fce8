package taskhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultRetryCount = 5
	retryWait         = 500 * time.Millisecond
	retryMaxWait      = 8 * time.Second
)

// RateLimitError means the hub kept answering 429 after the retry budget
// was spent.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("hub rate limit exceeded; retry after %s", e.RetryAfter)
	}
	return "hub rate limit exceeded"
}

// AuthError means the hub rejected the credential and a refresh did not help.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("hub authentication failed (status %d)", e.Status)
}

// RejectedError is a permanent rejection: the hub found the request itself
// invalid, so retrying the same call cannot succeed.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("hub rejected request (status %d): %s", e.Status, e.Body)
}

// Credential is an actor's hub token pair.
type Credential struct {
	AccessToken  string
	RefreshToken string
}

type Options struct {
	BaseURL      string
	Credential   Credential
	ClientID     string
	ClientSecret string
	// OnRefresh persists a refreshed credential. Nil is fine; the refreshed
	// token then lives only for this client's lifetime.
	OnRefresh func(Credential) error
	Timeout   time.Duration
}

// Client talks to the task hub. It retries rate-limited and 5xx responses
// with exponential backoff and refreshes the access token once on a 401
// before giving up.
type Client struct {
	rc   *resty.Client
	opts Options

	mu   sync.Mutex
	cred Credential
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(defaultRetryCount).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(retryMaxWait)
	rc.AddRetryCondition(retryCondition)
	return &Client{rc: rc, opts: opts, cred: opts.Credential}
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// CreateList creates a task list inside a hub project.
func (c *Client) CreateList(ctx context.Context, projectID, name, description string) (string, error) {
	path := fmt.Sprintf("/projects/%s/lists", url.PathEscape(projectID))
	return c.create(ctx, path, map[string]any{"name": name, "description": description})
}

// CreateGroup creates a named group (section) inside a task list.
func (c *Client) CreateGroup(ctx context.Context, listID, name string) (string, error) {
	path := fmt.Sprintf("/lists/%s/groups", url.PathEscape(listID))
	return c.create(ctx, path, map[string]any{"name": name})
}

// CreateTask creates a task inside a list or group.
func (c *Client) CreateTask(ctx context.Context, containerID, name, description string) (string, error) {
	path := fmt.Sprintf("/containers/%s/tasks", url.PathEscape(containerID))
	return c.create(ctx, path, map[string]any{"name": name, "description": description})
}

type createResponse struct {
	ID string `json:"id"`
}

func (c *Client) create(ctx context.Context, path string, body map[string]any) (string, error) {
	resp, err := c.post(ctx, path, body)
	if err != nil {
		return "", err
	}
	if resp.IsSuccess() {
		var out createResponse
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return "", fmt.Errorf("decode hub response: %w", err)
		}
		if out.ID == "" {
			return "", fmt.Errorf("hub response missing id")
		}
		return out.ID, nil
	}
	return "", responseError(resp)
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) (*resty.Response, error) {
	resp, err := c.request(ctx).SetBody(body).Post(path)
	if err != nil {
		return nil, fmt.Errorf("hub request: %w", err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		if err := c.refreshCredential(ctx); err != nil {
			return nil, err
		}
		resp, err = c.request(ctx).SetBody(body).Post(path)
		if err != nil {
			return nil, fmt.Errorf("hub request: %w", err)
		}
	}
	return resp, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	c.mu.Lock()
	token := c.cred.AccessToken
	c.mu.Unlock()
	return c.rc.R().SetContext(ctx).SetAuthToken(token)
}

func responseError(resp *resty.Response) error {
	switch code := resp.StatusCode(); {
	case code == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter(resp)}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &AuthError{Status: code}
	default:
		body := strings.TrimSpace(string(resp.Body()))
		if len(body) > 512 {
			body = body[:512]
		}
		return &RejectedError{Status: code, Body: body}
	}
}

func retryAfter(resp *resty.Response) time.Duration {
	v := resp.Header().Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// refreshCredential exchanges the refresh token for a new access token and
// persists it through OnRefresh.
func (c *Client) refreshCredential(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred.RefreshToken == "" {
		return &AuthError{Status: http.StatusUnauthorized}
	}
	resp, err := c.rc.R().SetContext(ctx).SetBody(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": c.cred.RefreshToken,
		"client_id":     c.opts.ClientID,
		"client_secret": c.opts.ClientSecret,
	}).Post("/oauth/token")
	if err != nil {
		return fmt.Errorf("refresh hub token: %w", err)
	}
	if !resp.IsSuccess() {
		return &AuthError{Status: resp.StatusCode()}
	}
	var out tokenResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return &AuthError{Status: resp.StatusCode()}
	}
	c.cred.AccessToken = out.AccessToken
	if out.RefreshToken != "" {
		c.cred.RefreshToken = out.RefreshToken
	}
	if c.opts.OnRefresh != nil {
		if err := c.opts.OnRefresh(c.cred); err != nil {
			return fmt.Errorf("persist refreshed credential: %w", err)
		}
	}
	return nil
}
