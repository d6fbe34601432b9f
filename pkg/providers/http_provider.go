package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// maxErrorBody caps how much of an error response body is kept in messages.
const maxErrorBody = 4096

const defaultTimeout = 60 * time.Second

// HTTPClient is the shared transport for HTTP-based adapters.
// It provides connection pooling, per-call timeouts, error classification and
// the provider's retry budget with exponential backoff.
//
// Vendor adapters embed it and implement the wire format on top.
type HTTPClient struct {
	config ProviderConfig
	client *http.Client
	logger *slog.Logger

	initialInterval time.Duration
	maxInterval     time.Duration
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithLogger sets the logger used for retry and transport diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *HTTPClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBackOff overrides the retry backoff intervals.
func WithBackOff(initial, max time.Duration) Option {
	return func(c *HTTPClient) {
		c.initialInterval = initial
		c.maxInterval = max
	}
}

// WithTransport replaces the pooled HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *HTTPClient) {
		c.client.Transport = rt
	}
}

// NewHTTPClient creates the base HTTP client with connection pooling.
// Timeouts are enforced per call through the request context, so the
// http.Client itself carries none and streams may outlive the timeout.
func NewHTTPClient(config ProviderConfig, opts ...Option) *HTTPClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	c := &HTTPClient{
		config:          config,
		client:          &http.Client{Transport: transport},
		logger:          slog.Default(),
		initialInterval: 500 * time.Millisecond,
		maxInterval:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "provider", "provider", config.Name)
	return c
}

// Name returns the provider's configured name.
func (c *HTTPClient) Name() string {
	return c.config.Name
}

// Type returns the provider's type.
func (c *HTTPClient) Type() string {
	return c.config.Type
}

// Config returns the provider's configuration.
func (c *HTTPClient) Config() ProviderConfig {
	return c.config
}

// Logger returns the provider-scoped logger.
func (c *HTTPClient) Logger() *slog.Logger {
	return c.logger
}

// DoJSON marshals reqBody, performs the request within the retry budget and
// decodes a 2xx response into respBody.
func (c *HTTPClient) DoJSON(ctx context.Context, method, url string, reqBody, respBody interface{}, headers map[string]string) error {
	body, err := marshalBody(reqBody)
	if err != nil {
		return NewError(c.config.Name, KindInvalidRequest, "failed to marshal request", err)
	}

	_, err = retryOp(ctx, c, func() (struct{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()

		resp, err := c.send(ctx, callCtx, method, url, body, headers)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return struct{}{}, ClassifyTransport(ctx, c.config.Name, c.config.Timeout, err)
		}
		if respBody != nil && len(data) > 0 {
			if err := json.Unmarshal(data, respBody); err != nil {
				return struct{}{}, NewError(c.config.Name, KindServerError, "malformed response body", err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

// DoStream performs a streaming request. Retries apply until response headers
// arrive; the per-call timeout bounds only the time to first byte. The caller
// must close the returned body.
func (c *HTTPClient) DoStream(ctx context.Context, method, url string, reqBody interface{}, headers map[string]string) (io.ReadCloser, error) {
	body, err := marshalBody(reqBody)
	if err != nil {
		return nil, NewError(c.config.Name, KindInvalidRequest, "failed to marshal request", err)
	}

	return retryOp(ctx, c, func() (io.ReadCloser, error) {
		callCtx, cancel := context.WithCancelCause(ctx)
		timer := time.AfterFunc(c.config.Timeout, func() { cancel(context.DeadlineExceeded) })

		resp, err := c.send(ctx, callCtx, method, url, body, headers)
		timer.Stop()
		if err != nil {
			cancel(nil)
			return nil, err
		}
		return &cancelOnClose{ReadCloser: resp.Body, cancel: func() { cancel(nil) }}, nil
	})
}

// send performs one round trip. Non-2xx responses are drained, closed and
// classified.
func (c *HTTPClient) send(parent, callCtx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(callCtx, method, url, bodyReader)
	if err != nil {
		return nil, NewError(c.config.Name, KindInvalidRequest, "failed to create request", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("sending request to provider", "method", method, "url", url)

	resp, err := c.client.Do(req)
	if err != nil {
		if cause := context.Cause(callCtx); cause != nil {
			err = fmt.Errorf("%w: %v", cause, err)
		}
		return nil, ClassifyTransport(parent, c.config.Name, c.config.Timeout, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, ClassifyStatus(c.config.Name, resp.StatusCode, strings.TrimSpace(string(data)), resp.Header)
	}

	return resp, nil
}

// retryOp runs op within the provider's retry budget. Non-retryable errors
// and cancellation stop immediately.
func retryOp[T any](ctx context.Context, c *HTTPClient, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = c.maxInterval

	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		res, err := op()
		if err != nil && !IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.config.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("provider request failed, will retry",
				"attempt", attempt,
				"max_retries", c.config.MaxRetries,
				"backoff", next,
				"error", err,
			)
		}),
	)
	if err == nil {
		return res, nil
	}

	// backoff returns the context's cause when it gives up while waiting.
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return res, context.Canceled
	}
	var pe *Error
	if !errors.As(err, &pe) && errors.Is(err, context.DeadlineExceeded) {
		return res, NewError(c.config.Name, KindTimeout, "deadline exceeded while retrying", err)
	}
	return res, err
}

// Close releases idle pooled connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	c.logger.Debug("provider closed")
	return nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel func()
}

func (r *cancelOnClose) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}

func marshalBody(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
