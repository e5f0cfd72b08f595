package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/NodePath81/cfspeed/internal/config"
	"github.com/NodePath81/cfspeed/internal/util"
)

type runOptions struct {
	cfg     config.Config
	json    bool
	verbose bool
}

// parseRunFlags loads the optional config file and applies the flags that
// were set on top of it.
func parseRunFlags(args []string) (runOptions, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "Path to config file")
	duration := fs.Duration("duration", 0, "")
	downloadWorkers := fs.Int("download-workers", 0, "")
	uploadWorkers := fs.Int("upload-workers", 0, "")
	downloadBytes := fs.String("download-bytes", "", "")
	uploadBytes := fs.String("upload-bytes", "", "")
	downloadOnly := fs.Bool("download-only", false, "")
	uploadOnly := fs.Bool("upload-only", false, "")
	connectTimeout := fs.Duration("connect-timeout", 0, "")
	reportPolicy := fs.String("report", "", "")
	geoipDB := fs.String("geoip-db", "", "")
	historyDB := fs.String("history-db", "", "")
	liveAddr := fs.String("live-addr", "", "")
	jsonOut := fs.Bool("json", false, "")
	verbose := fs.Bool("v", false, "")
	if err := fs.Parse(args); err != nil {
		return runOptions{}, err
	}
	if fs.NArg() > 0 {
		return runOptions{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			return runOptions{}, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	var parseErr error
	fs.Visit(func(f *flag.Flag) {
		if parseErr != nil {
			return
		}
		switch f.Name {
		case "duration":
			cfg.Duration = config.Duration(*duration)
		case "download-workers":
			cfg.DownloadWorkers = *downloadWorkers
		case "upload-workers":
			cfg.UploadWorkers = *uploadWorkers
		case "download-bytes":
			cfg.DownloadBytes, parseErr = parseSize("download-bytes", *downloadBytes)
		case "upload-bytes":
			cfg.UploadBytes, parseErr = parseSize("upload-bytes", *uploadBytes)
		case "download-only":
			cfg.DownloadOnly = *downloadOnly
		case "upload-only":
			cfg.UploadOnly = *uploadOnly
		case "connect-timeout":
			cfg.ConnectTimeout = config.Duration(*connectTimeout)
		case "report":
			cfg.Report = strings.ToLower(strings.TrimSpace(*reportPolicy))
		case "geoip-db":
			cfg.GeoIPDB = *geoipDB
		case "history-db":
			cfg.HistoryDB = *historyDB
		case "live-addr":
			cfg.LiveAddr = *liveAddr
		}
	})
	if parseErr != nil {
		return runOptions{}, parseErr
	}
	if err := cfg.Validate(); err != nil {
		return runOptions{}, fmt.Errorf("invalid config: %w", err)
	}
	return runOptions{cfg: cfg, json: *jsonOut, verbose: *verbose}, nil
}

func parseSize(name, raw string) (config.Size, error) {
	n, err := util.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("-%s: %w", name, err)
	}
	return config.Size(n), nil
}
