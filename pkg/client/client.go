// Package client is a Go client for the service orchestrator API.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	v1 "github.com/dcm-project/service-orchestrator/api/v1"
	"github.com/go-resty/resty/v2"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Problem    v1.Error
}

func (e *APIError) Error() string {
	if e.Problem.Detail != nil {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Problem.Title, *e.Problem.Detail)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.Problem.Title)
}

type Option func(*resty.Client)

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *resty.Client) {
		c.SetHeader("X-API-Key", key)
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *resty.Client) {
		c.SetTimeout(timeout)
	}
}

// WithRetries retries requests that failed to reach the server.
func WithRetries(count int, wait time.Duration) Option {
	return func(c *resty.Client) {
		c.SetRetryCount(count).SetRetryWaitTime(wait)
	}
}

type Client struct {
	http *resty.Client
}

// New returns a client for the API at baseURL, e.g. http://localhost:8080/api/v1.
func New(baseURL string, opts ...Option) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(httpClient)
	}
	return &Client{http: httpClient}
}

func (c *Client) Health(ctx context.Context) (*v1.Health, error) {
	var health v1.Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &health, nil); err != nil {
		return nil, err
	}
	return &health, nil
}

// Register submits a new service. The build runs after the call returns.
func (c *Client) Register(ctx context.Context, req v1.RegisterServiceRequest) (*v1.TaskAcknowledgement, error) {
	var ack v1.TaskAcknowledgement
	if err := c.do(ctx, http.MethodPost, "/services", req, &ack, nil); err != nil {
		return nil, err
	}
	return &ack, nil
}

func (c *Client) Get(ctx context.Context, id string) (*v1.Service, error) {
	var svc v1.Service
	if err := c.do(ctx, http.MethodGet, "/services/"+id, nil, &svc, nil); err != nil {
		return nil, err
	}
	return &svc, nil
}

// List returns one page of services. A zero pageSize uses the server default.
func (c *Client) List(ctx context.Context, pageSize int, pageToken string) (*v1.ServiceList, error) {
	query := map[string]string{}
	if pageSize > 0 {
		query["max_page_size"] = strconv.Itoa(pageSize)
	}
	if pageToken != "" {
		query["page_token"] = pageToken
	}
	var list v1.ServiceList
	if err := c.do(ctx, http.MethodGet, "/services", nil, &list, query); err != nil {
		return nil, err
	}
	return &list, nil
}

// Redeploy rebuilds id, applying the fields set in req.
func (c *Client) Redeploy(ctx context.Context, id string, req v1.UpdateServiceRequest) (*v1.TaskAcknowledgement, error) {
	var ack v1.TaskAcknowledgement
	if err := c.do(ctx, http.MethodPost, "/services/"+id, req, &ack, nil); err != nil {
		return nil, err
	}
	return &ack, nil
}

func (c *Client) Patch(ctx context.Context, id string, req v1.UpdateServiceRequest) (*v1.TaskAcknowledgement, error) {
	var ack v1.TaskAcknowledgement
	if err := c.do(ctx, http.MethodPatch, "/services/"+id, req, &ack, nil); err != nil {
		return nil, err
	}
	return &ack, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/services/"+id, nil, nil, nil)
}

// WaitForState polls id until it reaches one of states or ctx is done.
func (c *Client) WaitForState(ctx context.Context, id string, interval time.Duration, states ...v1.ServiceState) (*v1.Service, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		svc, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, state := range states {
			if svc.State == state {
				return svc, nil
			}
		}
		select {
		case <-ctx.Done():
			return svc, fmt.Errorf("service %s still %s: %w", id, svc.State, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, result any, query map[string]string) error {
	req := c.http.R().
		SetContext(ctx).
		SetError(&v1.Error{})
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode()}
		if problem, ok := resp.Error().(*v1.Error); ok && problem.Title != "" {
			apiErr.Problem = *problem
		} else {
			apiErr.Problem.Title = http.StatusText(resp.StatusCode())
		}
		return apiErr
	}
	return nil
}
