package speedtest

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/NodePath81/cfspeed/internal/engine"
	"github.com/NodePath81/cfspeed/internal/rawconn"
	"github.com/NodePath81/cfspeed/internal/upload"
	"github.com/NodePath81/cfspeed/internal/util"
)

// Test is one speed test run. It is not reusable.
type Test struct {
	cfg     Config
	results *engine.Results
}

// New validates cfg and prepares a Test.
func New(cfg Config) (*Test, error) {
	cfg.setDefaults()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	switch cfg.Policy {
	case PolicyP90, PolicyMedian:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPolicy, cfg.Policy)
	}
	if cfg.DownloadOnly && cfg.UploadOnly {
		return nil, ErrNoDirection
	}
	if cfg.MeasID == "" {
		cfg.MeasID = uuid.NewString()
	}
	return &Test{cfg: cfg, results: engine.NewResults()}, nil
}

// Run is shorthand for New followed by Test.Run.
func Run(ctx context.Context, cfg Config) (Result, error) {
	t, err := New(cfg)
	if err != nil {
		return Result{}, err
	}
	return t.Run(ctx)
}

// MeasID returns the measId used by the test.
func (t *Test) MeasID() string { return t.cfg.MeasID }

// Source exposes the samples of the running test to live observers.
func (t *Test) Source() SnapshotSource { return t.results }

// Live returns a copy of the samples collected so far.
func (t *Test) Live() Snapshot { return t.results.Snapshot() }

// Run measures download then upload. On cancellation or a fatal worker
// error the partial Result is returned together with the error.
func (t *Test) Run(ctx context.Context) (Result, error) {
	var wire engine.WireStats
	if !t.cfg.UploadOnly {
		out, err := t.orchestrator(t.cfg.DownloadWorkers, t.cfg.DownloadBytes).Run(ctx, engine.DirectionDownload)
		wire = out.Wire
		if err != nil {
			return t.result(wire), fmt.Errorf("download: %w", err)
		}
	}
	if !t.cfg.DownloadOnly {
		if _, err := t.orchestrator(t.cfg.UploadWorkers, t.cfg.UploadBytes).Run(ctx, engine.DirectionUpload); err != nil {
			return t.result(wire), fmt.Errorf("upload: %w", err)
		}
	}
	return t.result(wire), nil
}

func (t *Test) result(wire engine.WireStats) Result {
	return buildResult(t.cfg.MeasID, t.cfg.Policy, t.results.Snapshot(), wire)
}

func (t *Test) orchestrator(workers int, bytes int64) *engine.Orchestrator {
	logger := t.cfg.Logger
	if logger == nil {
		logger = util.DiscardLogger()
	}
	referer := t.cfg.BaseURL + "/"
	origin := t.cfg.BaseURL
	return &engine.Orchestrator{
		Workers:  workers,
		Bytes:    bytes,
		Duration: t.cfg.Duration,
		Stagger:  engine.DefaultStagger,
		Interval: engine.DefaultInterval,
		Dialer: engine.RawDialer{Options: rawconn.Options{
			URL:       downloadURL(t.cfg.BaseURL),
			MeasID:    t.cfg.MeasID,
			Timeout:   t.cfg.ConnectTimeout,
			UserAgent: t.cfg.UserAgent,
			Referer:   referer,
			Origin:    origin,
			TLSConfig: t.cfg.TLSConfig,
		}},
		NewUploader: func(int) engine.Uploader {
			return upload.NewUploader(upload.Options{
				URL:            uploadURL(t.cfg.BaseURL, t.cfg.MeasID),
				ConnectTimeout: t.cfg.ConnectTimeout,
				UserAgent:      t.cfg.UserAgent,
				Referer:        referer,
				Origin:         origin,
				TLSConfig:      t.cfg.TLSConfig,
			})
		},
		Results: t.results,
		Logger:  logger,
	}
}

const (
	downloadPath = "/__down"
	uploadPath   = "/__up"
)

// downloadURL is the raw download endpoint; rawconn adds bytes and measId.
func downloadURL(base string) string {
	return base + downloadPath
}

func uploadURL(base, measID string) string {
	return base + uploadPath + "?" + url.Values{"measId": {measID}}.Encode()
}
