// Package upstream wraps outbound HTTP fetching with bounded timeouts
// and per-request header forwarding.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"streamedge/pkg/httprange"
)

const (
	connectTimeout = 10 * time.Second
	requestTimeout = 30 * time.Second
)

// ErrNotFound marks an upstream 404, which is propagated to the client
// as-is instead of being mapped to a 500.
var ErrNotFound = errors.New("upstream resource not found")

type Client struct {
	logger zerolog.Logger
	http   *http.Client
}

func New() *Client {
	return &Client{
		logger: log.With().Str("module", "upstream").Logger(),
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Do issues a request with forwarded headers. The caller owns the
// response body. rangeHeader is forwarded verbatim when non-empty.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	return resp, nil
}

// Fetch buffers a whole resource.
func (c *Client) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, http.Header, error) {
	resp, err := c.Do(ctx, http.MethodGet, url, headers, "")
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}

	return body, resp.Header, nil
}

// FetchRange buffers exactly one byte window of a resource.
func (c *Client) FetchRange(ctx context.Context, url string, headers map[string]string, rng httprange.ByteRange) ([]byte, http.Header, error) {
	resp, err := c.Do(ctx, http.MethodGet, url, headers, rng.Header())
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}

	return body, resp.Header, nil
}

// ContentLength probes the total size of a resource via HEAD, falling
// back to a one-byte ranged GET for servers that refuse HEAD.
func (c *Client) ContentLength(ctx context.Context, url string, headers map[string]string) (int64, error) {
	resp, err := c.Do(ctx, http.MethodHead, url, headers, "")
	if err == nil {
		defer resp.Body.Close()

		if err := statusError(resp); err == nil && resp.ContentLength > 0 {
			return resp.ContentLength, nil
		}
	}

	resp, err = c.Do(ctx, http.MethodGet, url, headers, "bytes=0-0")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return 0, err
	}

	if total, ok := totalFromContentRange(resp.Header.Get("Content-Range")); ok {
		return total, nil
	}
	if resp.StatusCode == http.StatusOK && resp.ContentLength > 0 {
		return resp.ContentLength, nil
	}

	return 0, fmt.Errorf("unable to determine size of %s", url)
}

func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return fmt.Errorf("upstream status %s", resp.Status)
}

// totalFromContentRange extracts the total size from a header shaped
// like "bytes 0-0/12345".
func totalFromContentRange(header string) (int64, bool) {
	_, totalPart, ok := strings.Cut(header, "/")
	if !ok || totalPart == "*" {
		return 0, false
	}

	total, err := strconv.ParseInt(totalPart, 10, 64)
	if err != nil || total <= 0 {
		return 0, false
	}

	return total, true
}
