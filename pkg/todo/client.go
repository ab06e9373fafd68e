package todo

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jds-integration/integration/pkg/httputil"
)

// TokenSource supplies the bearer token for each call
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// Client calls the to-do API on behalf of a signed-in user
type Client struct {
	rest  *resty.Client
	token TokenSource
}

// APIError is a non-2xx answer from the to-do API
type APIError struct {
	StatusCode int
	Errors     []string
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("todo api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("todo api: status %d: %s", e.StatusCode, e.Errors[0])
}

// NewClient creates a client for the API at baseURL
func NewClient(baseURL string, token TokenSource, timeout time.Duration) *Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		rest.SetTimeout(timeout)
	}
	return &Client{rest: rest, token: token}
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	req := c.rest.R().SetContext(ctx).SetError(&httputil.APIResponse{})
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire token: %w", err)
		}
		req.SetAuthToken(token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("todo api request: %w", err)
	}
	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode()}
		if env, ok := resp.Error().(*httputil.APIResponse); ok {
			apiErr.Errors = env.Errors
		}
		return apiErr
	}
	return nil
}

// List returns the caller's items
func (c *Client) List(ctx context.Context) ([]Todo, error) {
	var todos []Todo
	if err := c.do(ctx, http.MethodGet, BasePath, nil, &todos); err != nil {
		return nil, err
	}
	return todos, nil
}

// Get returns one item
func (c *Client) Get(ctx context.Context, id int) (Todo, error) {
	var t Todo
	err := c.do(ctx, http.MethodGet, BasePath+"/"+strconv.Itoa(id), nil, &t)
	return t, err
}

// Add creates an item owned by the caller
func (c *Client) Add(ctx context.Context, todo Todo) (Todo, error) {
	var created Todo
	err := c.do(ctx, http.MethodPost, BasePath, todo, &created)
	return created, err
}

// Edit replaces the title of an existing item
func (c *Client) Edit(ctx context.Context, todo Todo) (Todo, error) {
	var updated Todo
	err := c.do(ctx, http.MethodPatch, BasePath+"/"+strconv.Itoa(todo.ID), todo, &updated)
	return updated, err
}

// Delete removes an item
func (c *Client) Delete(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, BasePath+"/"+strconv.Itoa(id), nil, nil)
}
