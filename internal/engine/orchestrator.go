package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NodePath81/cfspeed/internal/util"
)

const (
	DefaultStagger  = 250 * time.Millisecond
	DefaultInterval = time.Second
)

// AdjustedDuration extends d by one second for every four workers beyond
// the first four, leaving time for staggered workers to ramp up.
func AdjustedDuration(d time.Duration, workers int) time.Duration {
	if workers <= 4 {
		return d
	}
	return d + time.Duration((workers-4)/4)*time.Second
}

// Orchestrator runs one timed direction of a speed test across a pool of
// workers and samples their combined progress once per Interval.
type Orchestrator struct {
	Workers  int
	Bytes    int64
	Duration time.Duration
	Stagger  time.Duration
	Interval time.Duration

	Dialer      Dialer
	NewUploader UploaderFactory
	Results     *Results
	Logger      util.Logger
}

type workerFunc func(ctx context.Context, wc *WorkerContext, id int) error

func (o *Orchestrator) RunDownload(ctx context.Context) ([]int64, error) {
	out, err := o.Run(ctx, DirectionDownload)
	return out.Samples, err
}

func (o *Orchestrator) RunUpload(ctx context.Context) ([]int64, error) {
	out, err := o.Run(ctx, DirectionUpload)
	return out.Samples, err
}

// Run executes dir for the adjusted duration and returns the per-second
// samples. Samples collected before a cancellation or a fatal worker error
// are returned together with that error.
func (o *Orchestrator) Run(ctx context.Context, dir Direction) (Outcome, error) {
	out := Outcome{Direction: dir}
	if o.Workers <= 0 {
		return out, ErrNoWorkers
	}
	work, err := o.workerFor(dir)
	if err != nil {
		return out, err
	}
	if o.Results == nil {
		o.Results = NewResults()
	}
	logger := o.logger().With("direction", dir.String())
	interval := o.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	stagger := o.Stagger
	if stagger <= 0 {
		stagger = DefaultStagger
	}

	adjusted := AdjustedDuration(o.Duration, o.Workers)
	wc := newWorkerContext(dir, time.Now().Add(adjusted))
	logger.Info("starting", "workers", o.Workers, "duration", adjusted.String(), "bytes", o.Bytes)

	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < o.Workers; i++ {
		id := i
		group.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %s worker %d: %v", ErrWorkerPanic, dir, id, r)
				}
			}()
			if id > 0 && !wc.sleep(gctx, time.Duration(id)*stagger) {
				return nil
			}
			return work(gctx, wc, id)
		})
	}

	samples := o.sample(gctx, wc, interval, logger)

	logger.Debug("waiting for workers to finish", "workers", o.Workers)
	wc.Stop()
	werr := group.Wait()

	out.Samples = samples
	out.Wire = wc.wireStats()

	if err := ctx.Err(); err != nil {
		o.Results.Publish(dir, samples)
		return out, err
	}
	if werr != nil {
		o.Results.Publish(dir, samples)
		logger.Error("run aborted", "error", werr)
		return out, werr
	}
	if err := o.Results.Complete(dir, samples); err != nil {
		return out, err
	}
	return out, nil
}

func (o *Orchestrator) sample(ctx context.Context, wc *WorkerContext, interval time.Duration, logger util.Logger) []int64 {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var samples []int64
	var last int64
	for {
		select {
		case <-ctx.Done():
			return samples
		case now := <-ticker.C:
			total := wc.Total()
			delta := total - last
			last = total
			wc.setSpeed(delta)
			samples = append(samples, delta)
			o.Results.TryPublish(wc.Direction, samples)

			byteRate, bitRate := util.RateUnits(delta)
			logger.Info("throughput", "second", len(samples), "bits", bitRate, "bytes", byteRate)
			if now.After(wc.Deadline) {
				return samples
			}
		}
	}
}

func (o *Orchestrator) workerFor(dir Direction) (workerFunc, error) {
	logger := o.logger()
	switch dir {
	case DirectionDownload:
		if o.Dialer == nil {
			return nil, errors.New("download requires a dialer")
		}
		return func(ctx context.Context, wc *WorkerContext, id int) error {
			return downloadWorker(ctx, wc, o.Dialer, o.Bytes, logger, id)
		}, nil
	case DirectionUpload:
		if o.NewUploader == nil {
			return nil, errors.New("upload requires an uploader factory")
		}
		return func(ctx context.Context, wc *WorkerContext, id int) error {
			return uploadWorker(ctx, wc, o.NewUploader(id), o.Bytes, logger, id)
		}, nil
	default:
		return nil, fmt.Errorf("unknown direction %d", dir)
	}
}

func (o *Orchestrator) logger() util.Logger {
	if o.Logger == nil {
		return util.DiscardLogger()
	}
	return o.Logger
}
