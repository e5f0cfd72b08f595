package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NodePath81/cfspeed/internal/util"
	"github.com/NodePath81/cfspeed/internal/version"
)

const (
	defaultDuration        = 12 * time.Second
	defaultDownloadWorkers = 6
	defaultUploadWorkers   = 4
	defaultDownloadBytes   = 100_000_000
	defaultUploadBytes     = 25_000_000
	defaultConnectTimeout  = 9600 * time.Millisecond
	defaultBaseURL         = "https://speed.cloudflare.com"

	minDuration = time.Second
	maxWorkers  = 64
	minBytes    = 1_000

	ReportP90    = "p90"
	ReportMedian = "median"
)

type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	switch value.Tag {
	case "!!int", "!!float":
		var secs float64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	default:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		if raw == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Size is a byte count written as a plain number or with a unit, e.g. 25MB.
type Size int64

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("size must be a scalar")
	}
	if value.Tag == "!!int" {
		var n int64
		if err := value.Decode(&n); err != nil {
			return err
		}
		*s = Size(n)
		return nil
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		*s = 0
		return nil
	}
	n, err := util.ParseBytes(raw)
	if err != nil {
		return err
	}
	*s = Size(n)
	return nil
}

func (s Size) Int64() int64 {
	return int64(s)
}

type Config struct {
	Duration        Duration        `yaml:"duration"`
	DownloadWorkers int             `yaml:"download_workers"`
	UploadWorkers   int             `yaml:"upload_workers"`
	DownloadBytes   Size            `yaml:"download_bytes"`
	UploadBytes     Size            `yaml:"upload_bytes"`
	DownloadOnly    bool            `yaml:"download_only"`
	UploadOnly      bool            `yaml:"upload_only"`
	ConnectTimeout  Duration        `yaml:"connect_timeout"`
	Report          string          `yaml:"report"`
	UserAgent       string          `yaml:"user_agent"`
	GeoIPDB         string          `yaml:"geoip_db"`
	HistoryDB       string          `yaml:"history_db"`
	LiveAddr        string          `yaml:"live_addr"`
	Endpoints       EndpointsConfig `yaml:"endpoints"`
}

type EndpointsConfig struct {
	Base string `yaml:"base"`
}

// ValidationError names the offending config field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Default returns a config with every default applied.
func Default() Config {
	var cfg Config
	cfg.setDefaults()
	return cfg
}

func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(raw)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Duration == 0 {
		c.Duration = Duration(defaultDuration)
	}
	if c.DownloadWorkers == 0 {
		c.DownloadWorkers = defaultDownloadWorkers
	}
	if c.UploadWorkers == 0 {
		c.UploadWorkers = defaultUploadWorkers
	}
	if c.DownloadBytes == 0 {
		c.DownloadBytes = defaultDownloadBytes
	}
	if c.UploadBytes == 0 {
		c.UploadBytes = defaultUploadBytes
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = Duration(defaultConnectTimeout)
	}
	c.Report = strings.ToLower(strings.TrimSpace(c.Report))
	if c.Report == "" {
		c.Report = ReportP90
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = "cfspeed/" + version.Version
	}
	c.Endpoints.Base = strings.TrimRight(strings.TrimSpace(c.Endpoints.Base), "/")
	if c.Endpoints.Base == "" {
		c.Endpoints.Base = defaultBaseURL
	}
}

// Validate checks the config before any network I/O.
func (c *Config) Validate() error {
	if c.Duration.Duration() < minDuration {
		return invalid("duration", "must be >= %s", minDuration)
	}
	if c.DownloadWorkers < 1 || c.DownloadWorkers > maxWorkers {
		return invalid("download_workers", "must be in 1..%d", maxWorkers)
	}
	if c.UploadWorkers < 1 || c.UploadWorkers > maxWorkers {
		return invalid("upload_workers", "must be in 1..%d", maxWorkers)
	}
	if c.DownloadBytes < minBytes {
		return invalid("download_bytes", "must be >= %d", minBytes)
	}
	if c.UploadBytes < minBytes {
		return invalid("upload_bytes", "must be >= %d", minBytes)
	}
	if c.DownloadOnly && c.UploadOnly {
		return invalid("download_only", "and upload_only are mutually exclusive")
	}
	if c.ConnectTimeout.Duration() <= 0 {
		return invalid("connect_timeout", "must be > 0")
	}
	switch c.Report {
	case ReportP90, ReportMedian:
	default:
		return invalid("report", "must be %s or %s, got %q", ReportP90, ReportMedian, c.Report)
	}
	base, err := url.Parse(c.Endpoints.Base)
	if err != nil {
		return invalid("endpoints.base", "is not a url: %v", err)
	}
	if base.Scheme != "https" || base.Host == "" {
		return invalid("endpoints.base", "must be an https url with a host")
	}
	return nil
}
