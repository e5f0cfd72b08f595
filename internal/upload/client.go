package upload

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const contentType = "text/plain;charset=UTF-8"

// Options configures an Uploader.
type Options struct {
	URL            string
	ConnectTimeout time.Duration
	UserAgent      string
	Referer        string
	Origin         string
	TLSConfig      *tls.Config
}

// Uploader posts streaming bodies over its own HTTP/1.1 connection.
type Uploader struct {
	opts   Options
	client *http.Client
}

// NewUploader builds an uploader with a private transport. HTTP/2 is
// disabled so that parallel uploaders use distinct TCP connections.
func NewUploader(opts Options) *Uploader {
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSClientConfig:     opts.TLSConfig,
		TLSHandshakeTimeout: opts.ConnectTimeout,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
		TLSNextProto:        map[string]func(string, *tls.Conn) http.RoundTripper{},
	}
	return &Uploader{
		opts:   opts,
		client: &http.Client{Transport: transport},
	}
}

// Upload sends body as one chunked POST and drains the response.
func (u *Uploader) Upload(ctx context.Context, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.opts.URL, body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if u.opts.UserAgent != "" {
		req.Header.Set("User-Agent", u.opts.UserAgent)
	}
	if u.opts.Referer != "" {
		req.Header.Set("Referer", u.opts.Referer)
	}
	if u.opts.Origin != "" {
		req.Header.Set("Origin", u.opts.Origin)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain upload response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("upload failed with status %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle connections.
func (u *Uploader) Close() {
	u.client.CloseIdleConnections()
}
