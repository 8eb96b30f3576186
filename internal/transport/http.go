package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/crimson-sun/ember/internal/model"
)

const defaultTimeout = 10 * time.Second

// HTTPOption configures an HTTP transport.
type HTTPOption func(*HTTP)

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) HTTPOption {
	return func(t *HTTP) { t.headers = h }
}

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) HTTPOption {
	return func(t *HTTP) { t.client.Timeout = d }
}

// WithClient replaces the underlying http.Client.
func WithClient(c *http.Client) HTTPOption {
	return func(t *HTTP) { t.client = c }
}

// HTTP POSTs JSON payloads and waits for the response. Network errors and
// non-2xx statuses are reported as ErrTransport; retrying is the caller's job.
type HTTP struct {
	client  *http.Client
	url     string
	headers map[string]string
}

// NewHTTP creates a blocking transport targeting url.
func NewHTTP(url string, opts ...HTTPOption) *HTTP {
	t := &HTTP{
		client: &http.Client{Timeout: defaultTimeout},
		url:    url,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send encodes p and POSTs it.
func (t *HTTP) Send(ctx context.Context, p Payload) error {
	body, err := Encode(p)
	if err != nil {
		return fmt.Errorf("%w: http: marshal: %v", model.ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: http: %v", model.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: http: %v", model.ErrTransport, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: http: HTTP %d", model.ErrTransport, resp.StatusCode)
	}
	return nil
}

// Close is a no-op; HTTP holds no background resources.
func (t *HTTP) Close() error {
	return nil
}
