package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dcpinventory-desktop/internal/config"
	"dcpinventory-desktop/internal/logging"
	"dcpinventory-desktop/internal/session"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client is the DCP inventory backend client
type Client struct {
	baseURL string
	http    *resty.Client
	session session.Store
	log     *zap.SugaredLogger
}

// StatusError is a non-2xx backend response
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// NewClient creates a backend client. The bearer token is read from store on every request.
func NewClient(opts config.APIOptions, store session.Store, log *zap.SugaredLogger) *Client {
	log = logging.OrNop(log)
	client := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		session: store,
		log:     log,
	}

	client.http = resty.New().
		SetHeader("Accept", "application/json").
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Writes are never retried: a bulk create either lands once or fails
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
		}).
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			if store == nil {
				return nil
			}
			if token, ok := store.Get(session.KeyToken); ok && token != "" {
				r.SetAuthToken(token)
			}
			return nil
		})

	return client
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, endpoint string, params map[string]string) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParams(params)
	}
	return req.Get(c.buildURL(endpoint))
}

// Post performs a POST request with a JSON body
func (c *Client) Post(ctx context.Context, endpoint string, payload interface{}) (*resty.Response, error) {
	return c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(c.buildURL(endpoint))
}

// Put performs a PUT request with a JSON body
func (c *Client) Put(ctx context.Context, endpoint string, payload interface{}) (*resty.Response, error) {
	return c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Put(c.buildURL(endpoint))
}

// BaseURL returns the backend root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// buildURL constructs the full URL for an endpoint
func (c *Client) buildURL(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "/")
	return fmt.Sprintf("%s/%s", c.baseURL, endpoint)
}

func statusError(resp *resty.Response) error {
	return &StatusError{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL,
		StatusCode: resp.StatusCode(),
		Body:       string(resp.Body()),
	}
}
