package speedtest

import (
	"crypto/tls"
	"log/slog"
	"time"
)

const (
	// DefaultBaseURL is the speed test service origin.
	DefaultBaseURL = "https://speed.cloudflare.com"
	// DefaultDuration is the timed length of each direction.
	DefaultDuration = 12 * time.Second
	// DefaultDownloadWorkers is the number of parallel download connections.
	DefaultDownloadWorkers = 6
	// DefaultUploadWorkers is the number of parallel upload connections.
	DefaultUploadWorkers = 4
	// DefaultDownloadBytes is the body size requested per download.
	DefaultDownloadBytes = 100_000_000
	// DefaultUploadBytes is the body size sent per upload.
	DefaultUploadBytes = 25_000_000
	// DefaultConnectTimeout bounds connect and handshake, and each idle read.
	DefaultConnectTimeout = 9600 * time.Millisecond
)

// Policy selects which statistic becomes the headline Mbps figure.
type Policy string

const (
	// PolicyP90 reports the 90th percentile of per-second samples.
	PolicyP90 Policy = "p90"
	// PolicyMedian reports the median of per-second samples.
	PolicyMedian Policy = "median"
)

// Config defines parameters for a speed test.
type Config struct {
	// BaseURL is the service origin; endpoints are derived from it.
	BaseURL string
	// Duration is the timed length of each direction before worker scaling.
	Duration time.Duration
	// DownloadWorkers is the number of parallel download connections.
	DownloadWorkers int
	// UploadWorkers is the number of parallel upload connections.
	UploadWorkers int
	// DownloadBytes is requested per download response.
	DownloadBytes int64
	// UploadBytes is sent per upload request.
	UploadBytes int64
	// DownloadOnly skips the upload direction.
	DownloadOnly bool
	// UploadOnly skips the download direction.
	UploadOnly bool
	// ConnectTimeout bounds connect and handshake, and each idle read.
	ConnectTimeout time.Duration
	// Policy picks the headline statistic (default PolicyP90).
	Policy Policy
	// UserAgent is sent with every request.
	UserAgent string
	// MeasID is the measId query value; a random UUID when empty.
	MeasID string
	// TLSConfig overrides the TLS client settings (optional).
	TLSConfig *tls.Config
	// Logger receives progress lines (optional).
	Logger *slog.Logger
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	var cfg Config
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Duration <= 0 {
		c.Duration = DefaultDuration
	}
	if c.DownloadWorkers <= 0 {
		c.DownloadWorkers = DefaultDownloadWorkers
	}
	if c.UploadWorkers <= 0 {
		c.UploadWorkers = DefaultUploadWorkers
	}
	if c.DownloadBytes <= 0 {
		c.DownloadBytes = DefaultDownloadBytes
	}
	if c.UploadBytes <= 0 {
		c.UploadBytes = DefaultUploadBytes
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Policy == "" {
		c.Policy = PolicyP90
	}
}
