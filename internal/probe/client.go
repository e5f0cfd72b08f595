// Package probe talks to the speed test service outside the timed runs:
// client geolocation, edge identity and HTTP latency.
package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

const (
	tracePath = "/cdn-cgi/trace"
	downPath  = "/__down"
)

// Options configures the shared probe client.
type Options struct {
	BaseURL        string
	ConnectTimeout time.Duration
	UserAgent      string
	TLSConfig      *tls.Config
}

// Client is safe for concurrent use. Build one per process.
type Client struct {
	base      *url.URL
	userAgent string
	http      *http.Client
}

func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be https with a host", opts.BaseURL)
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
	}
	if opts.TLSConfig != nil {
		transport.TLSClientConfig = opts.TLSConfig.Clone()
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configure http2: %w", err)
	}
	return &Client{
		base:      base,
		userAgent: opts.UserAgent,
		http:      &http.Client{Transport: transport},
	}, nil
}

// Endpoint returns the absolute URL of path on the service.
func (c *Client) Endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = path
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Referer", c.base.String()+"/")
	req.Header.Set("Origin", c.base.String())
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{URL: target, Code: resp.StatusCode}
	}
	return resp, nil
}

// StatusError reports an HTTP error status from the service.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

// ErrMissingField is returned when a probe response lacks a required value.
var ErrMissingField = errors.New("missing field")
