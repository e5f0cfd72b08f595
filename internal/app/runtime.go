package app

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/NodePath81/cfspeed/internal/config"
	"github.com/NodePath81/cfspeed/internal/geo"
	"github.com/NodePath81/cfspeed/internal/history"
	"github.com/NodePath81/cfspeed/internal/live"
	"github.com/NodePath81/cfspeed/internal/probe"
	"github.com/NodePath81/cfspeed/internal/report"
	"github.com/NodePath81/cfspeed/internal/util"
	"github.com/NodePath81/cfspeed/pkg/speedtest"
)

// Options configures a Runtime.
type Options struct {
	Config config.Config
	Logger util.Logger
	// Out receives the preamble and results, or the JSON result.
	Out  io.Writer
	JSON bool
	// TLSConfig overrides TLS settings for every connection (optional).
	TLSConfig *tls.Config
}

// Runtime runs one full speed test: preflight probes, the timed
// directions, reporting and history.
type Runtime struct {
	cfg     config.Config
	logger  util.Logger
	out     io.Writer
	json    bool
	probe   *probe.Client
	geo     *geo.Reader
	history *history.Store
	test    *speedtest.Test
	wg      sync.WaitGroup
}

func NewRuntime(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = util.DiscardLogger()
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	test, err := speedtest.New(testConfig(cfg, opts.TLSConfig, logger))
	if err != nil {
		return nil, err
	}
	client, err := probe.NewClient(probe.Options{
		BaseURL:        cfg.Endpoints.Base,
		ConnectTimeout: cfg.ConnectTimeout.Duration(),
		UserAgent:      cfg.UserAgent,
		TLSConfig:      opts.TLSConfig,
	})
	if err != nil {
		return nil, err
	}
	rt := &Runtime{
		cfg:    cfg,
		logger: logger,
		out:    out,
		json:   opts.JSON,
		probe:  client,
		test:   test,
	}
	if cfg.GeoIPDB != "" {
		reader, err := geo.Open(cfg.GeoIPDB)
		if err != nil {
			logger.Warn("geoip database unavailable", "path", cfg.GeoIPDB, "error", err)
		} else {
			rt.geo = reader
		}
	}
	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			rt.Stop()
			return nil, err
		}
		rt.history = store
	}
	return rt, nil
}

func testConfig(cfg config.Config, tlsConfig *tls.Config, logger util.Logger) speedtest.Config {
	return speedtest.Config{
		BaseURL:         cfg.Endpoints.Base,
		Duration:        cfg.Duration.Duration(),
		DownloadWorkers: cfg.DownloadWorkers,
		UploadWorkers:   cfg.UploadWorkers,
		DownloadBytes:   cfg.DownloadBytes.Int64(),
		UploadBytes:     cfg.UploadBytes.Int64(),
		DownloadOnly:    cfg.DownloadOnly,
		UploadOnly:      cfg.UploadOnly,
		ConnectTimeout:  cfg.ConnectTimeout.Duration(),
		Policy:          speedtest.Policy(cfg.Report),
		UserAgent:       cfg.UserAgent,
		TLSConfig:       tlsConfig,
		Logger:          logger,
	}
}

// Snapshot returns the samples collected so far, for the interrupt path.
func (r *Runtime) Snapshot() speedtest.Snapshot {
	return r.test.Live()
}

// Run executes the test. Preflight failures abort before any timed run.
// When ctx is cancelled mid-run the partial result and ctx's error are
// returned and nothing is reported or stored.
func (r *Runtime) Run(ctx context.Context) (speedtest.Result, error) {
	start := time.Now()
	info, err := r.preflight(ctx)
	if err != nil {
		return speedtest.Result{}, fmt.Errorf("preflight: %w", err)
	}
	info.Start = start
	if !r.json {
		report.WritePreamble(r.out, info.Preamble)
	}

	liveCtx, stopLive := context.WithCancel(ctx)
	defer stopLive()
	r.startLive(liveCtx)

	res, err := r.test.Run(ctx)
	if err != nil {
		return res, err
	}
	if err := r.report(res); err != nil {
		return res, err
	}
	r.store(ctx, start, info, res)
	return res, nil
}

type preflightInfo struct {
	report.Preamble
	Country string
	Colo    string
}

func (r *Runtime) preflight(ctx context.Context) (preflightInfo, error) {
	trace, err := r.probe.Trace(ctx)
	if err != nil {
		return preflightInfo{}, err
	}
	latency, err := r.probe.Latency(ctx)
	if err != nil {
		return preflightInfo{}, err
	}
	server, err := r.probe.ServerInfo(ctx, r.test.MeasID())
	if err != nil {
		return preflightInfo{}, err
	}
	r.logger.Debug("preflight complete", "ip", trace.IP, "country", trace.Country, "colo", server.Colo, "latency", latency.String())
	return preflightInfo{
		Preamble: report.Preamble{
			ClientLocation: r.geo.Describe(trace.IP, trace.Country),
			Colo:           server.Colo,
			ColoLocation:   r.geo.Describe(server.IP(), ""),
			Latency:        latency,
		},
		Country: trace.Country,
		Colo:    server.Colo,
	}, nil
}

func (r *Runtime) startLive(ctx context.Context) {
	if r.cfg.LiveAddr == "" {
		return
	}
	srv := &live.Server{Source: r.test.Source(), Interval: time.Second, Logger: r.logger}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(ctx, r.cfg.LiveAddr); err != nil {
			r.logger.Error("live results server failed", "addr", r.cfg.LiveAddr, "error", err)
		}
	}()
}

func (r *Runtime) report(res speedtest.Result) error {
	if r.json {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	report.WriteResults(r.out, res.Snapshot, time.Now())
	return nil
}

func (r *Runtime) store(ctx context.Context, start time.Time, info preflightInfo, res speedtest.Result) {
	if r.history == nil {
		return
	}
	samples := append(res.Snapshot.Samples(speedtest.DirectionDownload), res.Snapshot.Samples(speedtest.DirectionUpload)...)
	id, err := r.history.Save(ctx, history.Record{
		MeasID:            res.MeasID,
		StartedAt:         start,
		Policy:            string(res.Policy),
		DownloadMbps:      res.DownloadMbps,
		UploadMbps:        res.UploadMbps,
		DownloadMedian:    res.Download.Median,
		DownloadP90:       res.Download.P90,
		UploadMedian:      res.Upload.Median,
		UploadP90:         res.Upload.P90,
		DownloadCompleted: res.DownloadCompleted,
		UploadCompleted:   res.UploadCompleted,
		Country:           info.Country,
		Colo:              info.Colo,
		Latency:           info.Latency,
		Samples:           samples,
	})
	if err != nil {
		r.logger.Error("history save failed", "error", err)
		return
	}
	r.logger.Debug("run stored", "id", id)
}

// Stop releases every resource held by the runtime.
func (r *Runtime) Stop() {
	r.wg.Wait()
	if r.probe != nil {
		r.probe.Close()
	}
	if r.geo != nil {
		_ = r.geo.Close()
	}
	if r.history != nil {
		if err := r.history.Close(); err != nil {
			r.logger.Error("history close failed", "error", err)
		}
	}
}
