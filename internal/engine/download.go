package engine

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/NodePath81/cfspeed/internal/rawconn"
	"github.com/NodePath81/cfspeed/internal/util"
)

const reconnectBackoff = 100 * time.Millisecond

// RawConn is a download connection yielding undecrypted response bytes.
// Close may be called concurrently with ReadRaw and more than once.
type RawConn interface {
	ReadRaw(p []byte) (int, error)
	Close() error
}

// Dialer opens a download connection asking for bytes of body.
type Dialer interface {
	Dial(ctx context.Context, bytes int64) (RawConn, error)
}

// RawDialer dials rawconn connections with a fixed set of options.
type RawDialer struct {
	Options rawconn.Options
}

func (d RawDialer) Dial(ctx context.Context, bytes int64) (RawConn, error) {
	opts := d.Options
	opts.Bytes = bytes
	conn, err := rawconn.Dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type overheadReporter interface {
	Overhead() int64
}

type tcpInfoReporter interface {
	TCPInfo() (rawconn.TCPInfo, bool)
}

func downloadWorker(ctx context.Context, wc *WorkerContext, dialer Dialer, bytes int64, logger util.Logger, id int) error {
	var buf []byte
	for !wc.Stopped() && ctx.Err() == nil {
		conn, err := dialer.Dial(ctx, bytes)
		if err != nil {
			if errors.Is(err, rawconn.ErrInvalidURL) {
				return err
			}
			if ctx.Err() == nil && !wc.Stopped() {
				logger.Error("download connect failed", "worker", id, "error", err)
			}
			if !wc.sleep(ctx, reconnectBackoff) {
				return nil
			}
			continue
		}
		wc.connections.Add(1)

		// A blocked read ignores ctx; closing the connection unblocks it.
		release := context.AfterFunc(ctx, func() { _ = conn.Close() })
		got, err := readResponse(ctx, wc, conn, &buf)
		release()
		_ = conn.Close()
		wc.account(conn)

		switch {
		case err != nil:
			if ctx.Err() == nil {
				logger.Error("download read failed", "worker", id, "bytes", got, "error", err)
			}
		case got == 0 && !wc.Stopped() && ctx.Err() == nil:
			logger.Error("empty response from download server", "worker", id)
		}
	}
	return nil
}

// readResponse reads conn until it is exhausted, fails, or the run stops.
// A clean end of response returns a nil error.
func readResponse(ctx context.Context, wc *WorkerContext, conn RawConn, buf *[]byte) (int64, error) {
	var got int64
	for !wc.Stopped() && ctx.Err() == nil {
		size := BufferSize(wc.Speed())
		if len(*buf) != size {
			*buf = make([]byte, size)
		}
		n, err := conn.ReadRaw(*buf)
		if n > 0 {
			got += int64(n)
			wc.Add(int64(n))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return got, nil
			}
			return got, err
		}
	}
	return got, nil
}

func (w *WorkerContext) account(conn RawConn) {
	if r, ok := conn.(overheadReporter); ok {
		w.overhead.Add(r.Overhead())
	}
	if r, ok := conn.(tcpInfoReporter); ok {
		if info, ok := r.TCPInfo(); ok {
			w.retransmits.Add(int64(info.Retransmits))
			if info.RTT > 0 {
				w.rttMicros.Add(info.RTT.Microseconds())
				w.rttSamples.Add(1)
			}
		}
	}
}
