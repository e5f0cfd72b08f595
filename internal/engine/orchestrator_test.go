package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NodePath81/cfspeed/internal/rawconn"
	"github.com/NodePath81/cfspeed/internal/util"
)

type stubConn struct {
	remaining int64
	delay     time.Duration
	failWith  error
}

func (c *stubConn) ReadRaw(p []byte) (int, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.remaining <= 0 {
		if c.failWith != nil {
			return 0, c.failWith
		}
		return 0, io.EOF
	}
	n := int64(len(p))
	if n > c.remaining {
		n = c.remaining
	}
	c.remaining -= n
	return int(n), nil
}

func (c *stubConn) Close() error { return nil }

func (c *stubConn) Overhead() int64 { return 10 }

type stubDialer struct {
	perConn   int64
	delay     time.Duration
	failDials int64
	err       error
	panics    bool
	dials     atomic.Int64
}

func (d *stubDialer) Dial(ctx context.Context, bytes int64) (RawConn, error) {
	n := d.dials.Add(1)
	if d.panics {
		panic("dialer exploded")
	}
	if d.err != nil {
		return nil, d.err
	}
	if n <= d.failDials {
		return nil, errors.New("connection refused")
	}
	return &stubConn{remaining: d.perConn, delay: d.delay}, nil
}

// blockingConn delivers one chunk, then blocks in ReadRaw until Close.
type blockingConn struct {
	served    bool
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *blockingConn) ReadRaw(p []byte) (int, error) {
	if !c.served {
		c.served = true
		return len(p), nil
	}
	select {
	case <-c.closed:
		return 0, errors.New("use of closed connection")
	case <-time.After(10 * time.Second):
		return 0, io.EOF
	}
}

func (c *blockingConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type blockingDialer struct{}

func (blockingDialer) Dial(ctx context.Context, bytes int64) (RawConn, error) {
	return &blockingConn{closed: make(chan struct{})}, nil
}

type stubUploader struct {
	requests atomic.Int64
}

func (u *stubUploader) Upload(ctx context.Context, body io.Reader) error {
	u.requests.Add(1)
	_, err := io.Copy(io.Discard, body)
	return err
}

func startWorker(t *testing.T, wc *WorkerContext, d Dialer) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- downloadWorker(context.Background(), wc, d, 1<<20, util.DiscardLogger(), 0)
	}()
	return done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after stop")
		return nil
	}
}

func TestAdjustedDuration(t *testing.T) {
	cases := []struct {
		workers int
		want    time.Duration
	}{
		{1, 10 * time.Second},
		{4, 10 * time.Second},
		{5, 10 * time.Second},
		{7, 10 * time.Second},
		{8, 11 * time.Second},
		{12, 12 * time.Second},
	}
	for _, tc := range cases {
		if got := AdjustedDuration(10*time.Second, tc.workers); got != tc.want {
			t.Fatalf("AdjustedDuration(10s, %d) = %v, want %v", tc.workers, got, tc.want)
		}
	}
}

func TestDownloadWorkerReconnectsOnEOF(t *testing.T) {
	wc := newWorkerContext(DirectionDownload, time.Now().Add(time.Minute))
	dialer := &stubDialer{perConn: 1000}
	done := startWorker(t, wc, dialer)

	waitFor(t, "three connections", func() bool { return dialer.dials.Load() >= 3 })
	wc.Stop()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("worker error: %v", err)
	}
	if got := wc.Total(); got < 2000 {
		t.Fatalf("total = %d, want at least two full responses", got)
	}
	if got := wc.wireStats().Overhead; got < 20 {
		t.Fatalf("overhead = %d, want per-connection accounting", got)
	}
}

func TestDownloadWorkerStopsPromptly(t *testing.T) {
	wc := newWorkerContext(DirectionDownload, time.Now().Add(time.Minute))
	dialer := &stubDialer{perConn: 1 << 40, delay: 10 * time.Millisecond}
	done := startWorker(t, wc, dialer)

	waitFor(t, "first bytes", func() bool { return wc.Total() > 0 })
	wc.Stop()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("worker error: %v", err)
	}
	if dialer.dials.Load() != 1 {
		t.Fatalf("dials = %d, want 1", dialer.dials.Load())
	}
}

func TestDownloadWorkerRetriesDialFailures(t *testing.T) {
	wc := newWorkerContext(DirectionDownload, time.Now().Add(time.Minute))
	dialer := &stubDialer{perConn: 1000, failDials: 2}
	done := startWorker(t, wc, dialer)

	waitFor(t, "bytes after retries", func() bool { return wc.Total() > 0 })
	wc.Stop()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("worker error: %v", err)
	}
	if dialer.dials.Load() < 3 {
		t.Fatalf("dials = %d, want failed attempts retried", dialer.dials.Load())
	}
}

func TestDownloadWorkerInvalidURLIsFatal(t *testing.T) {
	wc := newWorkerContext(DirectionDownload, time.Now().Add(time.Minute))
	dialer := &stubDialer{err: &rawconn.ConnectError{Op: "parse", Err: rawconn.ErrInvalidURL}}
	done := startWorker(t, wc, dialer)

	err := waitDone(t, done)
	if !errors.Is(err, rawconn.ErrInvalidURL) {
		t.Fatalf("err = %v, want ErrInvalidURL", err)
	}
	if dialer.dials.Load() != 1 {
		t.Fatalf("dials = %d, want no retry", dialer.dials.Load())
	}
}

func TestRunDownloadCompletes(t *testing.T) {
	if testing.Short() {
		t.Skip("timed run")
	}
	results := NewResults()
	o := &Orchestrator{
		Workers:  2,
		Bytes:    1 << 20,
		Duration: 3 * time.Second,
		Dialer:   &stubDialer{perConn: 1_000_000},
		Results:  results,
		Logger:   util.DiscardLogger(),
	}
	samples, err := o.RunDownload(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(samples) < 2 || len(samples) > 4 {
		t.Fatalf("samples = %d, want 3±1", len(samples))
	}
	for i, s := range samples {
		if s <= 0 {
			t.Fatalf("sample %d = %d, want > 0", i, s)
		}
	}
	snap := results.Snapshot()
	if !snap.DownloadCompleted {
		t.Fatal("download not marked completed")
	}
	if len(snap.Download) != len(samples) {
		t.Fatalf("published %d samples, returned %d", len(snap.Download), len(samples))
	}
}

func TestRunUploadCompletes(t *testing.T) {
	if testing.Short() {
		t.Skip("timed run")
	}
	var (
		mu        sync.Mutex
		uploaders []*stubUploader
	)
	o := &Orchestrator{
		Workers:  2,
		Bytes:    1 << 20,
		Duration: 2 * time.Second,
		NewUploader: func(id int) Uploader {
			u := &stubUploader{}
			mu.Lock()
			uploaders = append(uploaders, u)
			mu.Unlock()
			return u
		},
		Logger: util.DiscardLogger(),
	}
	out, err := o.Run(context.Background(), DirectionUpload)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Samples) < 1 || len(out.Samples) > 3 {
		t.Fatalf("samples = %d, want 2±1", len(out.Samples))
	}
	var sum int64
	for _, s := range out.Samples {
		sum += s
	}
	if sum <= 0 || sum > out.Wire.Bytes {
		t.Fatalf("sampled %d bytes of %d sent", sum, out.Wire.Bytes)
	}
	if !o.Results.Snapshot().UploadCompleted {
		t.Fatal("upload not marked completed")
	}
	if len(uploaders) != 2 {
		t.Fatalf("uploaders = %d, want one per worker", len(uploaders))
	}
}

func TestRunCancelledStopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		Workers:  3,
		Bytes:    1 << 20,
		Duration: time.Minute,
		Interval: 50 * time.Millisecond,
		Dialer:   &stubDialer{perConn: 1 << 40, delay: time.Millisecond},
		Logger:   util.DiscardLogger(),
	}
	time.AfterFunc(300*time.Millisecond, cancel)

	start := time.Now()
	samples, err := o.RunDownload(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancelled run took %v", elapsed)
	}
	snap := o.Results.Snapshot()
	if snap.DownloadCompleted {
		t.Fatal("cancelled run marked completed")
	}
	if len(snap.Download) != len(samples) {
		t.Fatalf("snapshot has %d samples, run returned %d", len(snap.Download), len(samples))
	}
}

func TestRunWorkerPanicIsFatal(t *testing.T) {
	o := &Orchestrator{
		Workers:  2,
		Duration: time.Minute,
		Dialer:   &stubDialer{panics: true},
		Logger:   util.DiscardLogger(),
	}
	_, err := o.RunDownload(context.Background())
	if !errors.Is(err, ErrWorkerPanic) {
		t.Fatalf("err = %v, want ErrWorkerPanic", err)
	}
	if o.Results.Snapshot().DownloadCompleted {
		t.Fatal("aborted run marked completed")
	}
}

func TestRunRequiresWorkers(t *testing.T) {
	o := &Orchestrator{Dialer: &stubDialer{}}
	if _, err := o.RunDownload(context.Background()); !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("err = %v, want ErrNoWorkers", err)
	}
}

func TestRunCancelUnblocksStalledRead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	results := NewResults()
	o := &Orchestrator{
		Workers:  1,
		Bytes:    1 << 20,
		Duration: time.Minute,
		Interval: 50 * time.Millisecond,
		Dialer:   blockingDialer{},
		Results:  results,
	}
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	samples, err := o.RunDownload(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("RunDownload returned after %v, want shortly after cancel", elapsed)
	}
	if len(samples) == 0 {
		t.Fatal("no samples collected before cancel")
	}
	snap := results.Snapshot()
	if snap.DownloadCompleted || len(snap.Download) != len(samples) {
		t.Fatalf("snapshot = %+v, want published partial samples", snap)
	}
}
