package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Direction describes traffic flow relative to the client.
type Direction int

const (
	DirectionDownload Direction = iota
	DirectionUpload
)

func (d Direction) String() string {
	switch d {
	case DirectionUpload:
		return "upload"
	default:
		return "download"
	}
}

// Sample is one second of transfer in one direction.
type Sample struct {
	Direction Direction
	Second    int
	Bytes     int64
}

// WorkerContext is the state shared by every worker of one direction for
// one run. Counters only grow; the stop flag is set once.
type WorkerContext struct {
	Direction Direction
	Deadline  time.Time

	total   atomic.Int64
	speed   atomic.Int64
	stopped atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}

	overhead    atomic.Int64
	retransmits atomic.Int64
	connections atomic.Int64
	rttMicros   atomic.Int64
	rttSamples  atomic.Int64
}

func newWorkerContext(dir Direction, deadline time.Time) *WorkerContext {
	return &WorkerContext{
		Direction: dir,
		Deadline:  deadline,
		stopCh:    make(chan struct{}),
	}
}

// Add records n transferred bytes and returns the new total. Non-positive
// values are ignored so the total never decreases.
func (w *WorkerContext) Add(n int64) int64 {
	if n <= 0 {
		return w.total.Load()
	}
	return w.total.Add(n)
}

// Total is the sum of bytes moved by all workers so far.
func (w *WorkerContext) Total() int64 { return w.total.Load() }

// Speed is the byte delta of the most recent sampling interval.
func (w *WorkerContext) Speed() int64 { return w.speed.Load() }

func (w *WorkerContext) setSpeed(bytesPerSec int64) { w.speed.Store(bytesPerSec) }

// Stop tells workers to finish. Later calls are no-ops.
func (w *WorkerContext) Stop() {
	w.stopOnce.Do(func() {
		w.stopped.Store(true)
		close(w.stopCh)
	})
}

// Stopped reports whether Stop was called.
func (w *WorkerContext) Stopped() bool { return w.stopped.Load() }

// sleep waits for d and reports false if the run stopped or ctx ended first.
func (w *WorkerContext) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !w.Stopped() && ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// WireStats summarizes the raw download connections of a run.
type WireStats struct {
	Bytes       int64
	Overhead    int64
	Connections int64
	Retransmits int64
	MeanRTT     time.Duration
}

// OverheadRatio is the share of wire bytes that were TLS framing.
func (s WireStats) OverheadRatio() float64 {
	if s.Bytes <= 0 {
		return 0
	}
	return float64(s.Overhead) / float64(s.Bytes)
}

func (w *WorkerContext) wireStats() WireStats {
	stats := WireStats{
		Bytes:       w.total.Load(),
		Overhead:    w.overhead.Load(),
		Connections: w.connections.Load(),
		Retransmits: w.retransmits.Load(),
	}
	if n := w.rttSamples.Load(); n > 0 {
		stats.MeanRTT = time.Duration(w.rttMicros.Load()/n) * time.Microsecond
	}
	return stats
}

// Outcome is what one direction of a run produced.
type Outcome struct {
	Direction Direction
	Samples   []int64
	Wire      WireStats
}
