// Package fetch provides the one HTTP client used for every external
// resource the core is allowed to call: request_uri, jku, and
// status-list URLs. Concurrent identical fetches are collapsed with
// golang.org/x/sync/singleflight, and the transport is instrumented
// with otelhttp.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"

	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// Client fetches external resources. pkg/status builds one for
// statusListCredential URLs; the jku resolver and the holder's
// request_uri resolution take a caller-supplied fetch function, which
// a Client's Get can back.
type Client struct {
	http  *http.Client
	group singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default 10s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New builds a Client with an otelhttp-instrumented transport.
func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches url once per distinct in-flight URL, returning the response
// body. A non-2xx status or transport error becomes a vcerr.Fetch.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	v, err, _ := c.group.Do(url, func() (interface{}, error) {
		return c.doGet(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Client) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, vcerr.Fetch("build request for %s", url).Wrap(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, vcerr.Fetch("fetch %s", url).Wrap(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, vcerr.Fetch("read body from %s", url).Wrap(err)
	}

	if resp.StatusCode/100 != 2 {
		return nil, vcerr.Fetch("%s returned %s", url, resp.Status).Wrap(
			fmt.Errorf("status %d", resp.StatusCode))
	}

	return body, nil
}
