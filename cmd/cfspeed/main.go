package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NodePath81/cfspeed/internal/app"
	"github.com/NodePath81/cfspeed/internal/config"
	"github.com/NodePath81/cfspeed/internal/history"
	"github.com/NodePath81/cfspeed/internal/report"
	"github.com/NodePath81/cfspeed/internal/util"
	"github.com/NodePath81/cfspeed/internal/version"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "run":
			os.Exit(runTest(args[1:]))
		case "check":
			checkCmd := flag.NewFlagSet("check", flag.ExitOnError)
			configPath := checkCmd.String("config", "cfspeed.yaml", "Path to config file")
			_ = checkCmd.Parse(args[1:])
			if *configPath == "cfspeed.yaml" && checkCmd.NArg() > 0 {
				*configPath = checkCmd.Arg(0)
			}
			checkConfig(*configPath)
			return
		case "history":
			os.Exit(showHistory(args[1:]))
		case "help", "-h", "--help":
			printHelp()
			return
		case "version", "--version":
			fmt.Println(version.Version)
			return
		}
	}
	os.Exit(runTest(args))
}

func runTest(args []string) int {
	opts, err := parseRunFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printHelp()
			return 0
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	logger := util.NewLogger(opts.verbose)

	rt, err := app.NewRuntime(app.Options{
		Config: opts.cfg,
		Logger: logger,
		Out:    os.Stdout,
		JSON:   opts.json,
	})
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer rt.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	_, err = rt.Run(ctx)
	switch {
	case err == nil:
		return 0
	case ctx.Err() != nil:
		logger.Info("interrupted, printing partial results")
		report.WriteResults(os.Stdout, rt.Snapshot(), time.Now())
		return 0
	default:
		logger.Error("speed test failed", "error", err)
		return 1
	}
}

func checkConfig(path string) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("config valid: %s per direction, %d download / %d upload workers, report %s\n",
		cfg.Duration.Duration(), cfg.DownloadWorkers, cfg.UploadWorkers, cfg.Report)
	os.Exit(0)
}

func showHistory(args []string) int {
	historyCmd := flag.NewFlagSet("history", flag.ExitOnError)
	dbPath := historyCmd.String("db", "", "Path to history database")
	limit := historyCmd.Int("n", 10, "Number of runs to show")
	_ = historyCmd.Parse(args)
	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "history: -db is required")
		return 2
	}
	store, err := history.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		return 1
	}
	defer store.Close()
	records, err := store.List(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		return 1
	}
	report.WriteHistory(os.Stdout, records)
	return 0
}

func printHelp() {
	fmt.Print(`cfspeed - bandwidth and latency test against speed.cloudflare.com

Usage:
  cfspeed [run] [flags]             Run a speed test
  cfspeed check --config <path>     Validate config file
  cfspeed history -db <path> [-n N] Show stored runs
  cfspeed help                      Show this help
  cfspeed version                   Print version

Run flags:
  -config <path>           YAML config file
  -duration <d>            Timed length of each direction (default 12s)
  -download-workers <n>    Parallel download connections (default 6)
  -upload-workers <n>      Parallel upload connections (default 4)
  -download-bytes <size>   Bytes requested per download (default 100MB)
  -upload-bytes <size>     Bytes sent per upload (default 25MB)
  -download-only           Skip the upload test
  -upload-only             Skip the download test
  -connect-timeout <d>     Connect and idle read timeout (default 9.6s)
  -report <p90|median>     Headline statistic (default p90)
  -geoip-db <path>         MaxMind country database
  -history-db <path>       Store finished runs in this sqlite file
  -live-addr <addr>        Serve live results on ws://<addr>/live
  -json                    Print the result as JSON
  -v                       Debug logging
`)
}
