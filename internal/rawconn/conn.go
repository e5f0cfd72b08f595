// Package rawconn opens a TLS session, sends one encrypted HTTP request
// through it and then exposes the undecrypted byte stream of the response.
//
// Counting ciphertext instead of plaintext keeps the client CPU out of the
// measurement at high rates. The handshake is real, so the server sees an
// ordinary HTTPS client.
package rawconn

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Options configures one raw download connection.
type Options struct {
	// URL is the download endpoint; bytes and measId are added to its query.
	URL string
	// Bytes is the requested response body size.
	Bytes int64
	// MeasID is sent as the measId query parameter when non-empty.
	MeasID string
	// Timeout bounds connect and handshake, and is the idle timeout of every read.
	Timeout   time.Duration
	UserAgent string
	Referer   string
	Origin    string
	// TLSConfig is cloned; ServerName and NextProtos are filled in.
	TLSConfig *tls.Config
}

// Conn is a raw download connection. It is not safe for concurrent use.
type Conn struct {
	raw     net.Conn
	tls     *tls.Conn
	timeout time.Duration
	framer  framer

	lastDeadline time.Time
	wire         int64
	done         bool

	closeOnce sync.Once
	info      TCPInfo
	infoOK    bool
}

// Dial resolves and connects to the URL host, completes a TLS handshake and
// writes a single GET for opts.Bytes bytes through the encrypted channel.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	u, err := requestURL(opts)
	if err != nil {
		return nil, &ConnectError{Op: "parse", Addr: opts.URL, Err: fmt.Errorf("%w: %v", ErrInvalidURL, err)}
	}
	addr := hostPort(u)

	dialer := &net.Dialer{Timeout: opts.Timeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Op: "dial", Addr: addr, Err: err}
	}

	cfg := &tls.Config{}
	if opts.TLSConfig != nil {
		cfg = opts.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = u.Hostname()
	}
	// The response is read as ciphertext, so it must be plain HTTP/1.1 framing.
	cfg.NextProtos = []string{"http/1.1"}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	c := &Conn{raw: raw, timeout: opts.Timeout}
	hs := &handshakeConn{Conn: raw, framer: &c.framer}
	tlsConn := tls.Client(hs, cfg)

	hsCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		hsCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	if err := tlsConn.HandshakeContext(hsCtx); err != nil {
		_ = raw.Close()
		return nil, &ConnectError{Op: "handshake", Addr: addr, Err: err}
	}
	if hs.err != nil {
		_ = raw.Close()
		return nil, &ConnectError{Op: "handshake", Addr: addr, Err: hs.err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		_ = raw.Close()
		return nil, &ConnectError{Op: "send", Addr: addr, Err: err}
	}
	req.Close = true
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "identity")
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	if opts.Referer != "" {
		req.Header.Set("Referer", opts.Referer)
	}
	if opts.Origin != "" {
		req.Header.Set("Origin", opts.Origin)
	}
	if opts.Timeout > 0 {
		_ = raw.SetWriteDeadline(time.Now().Add(opts.Timeout))
	}
	if err := req.Write(tlsConn); err != nil {
		_ = raw.Close()
		return nil, &ConnectError{Op: "send", Addr: addr, Err: err}
	}
	_ = raw.SetWriteDeadline(time.Time{})

	expansion := expansionTLS12
	if tlsConn.ConnectionState().Version == tls.VersionTLS13 {
		expansion = expansionTLS13
	}
	c.tls = tlsConn
	c.framer.startResponse(expansion)
	return c, nil
}

// handshakeConn passes everything the TLS stack reads through the framer, so
// record boundaries are known when ReadRaw takes over the socket.
type handshakeConn struct {
	net.Conn
	framer *framer
	err    error
}

func (h *handshakeConn) Read(p []byte) (int, error) {
	n, err := h.Conn.Read(p)
	if n > 0 && h.err == nil {
		h.err = h.framer.feed(p[:n])
	}
	return n, err
}

// ReadRaw reads ciphertext straight from the socket, bypassing TLS record
// decryption. Like io.Reader, n bytes were consumed even when err != nil.
// It returns io.EOF once the response is exhausted, *IOError on socket
// failure and *ProtocolError when record framing is malformed.
//
// The response ends when the server closes the socket or, on TLS 1.2, after
// a cleartext alert record such as close_notify. TLS 1.3 encrypts alerts
// inside application data records, so there only the socket close ends it.
func (c *Conn) ReadRaw(p []byte) (int, error) {
	if c.done {
		return 0, io.EOF
	}
	if c.timeout > 0 && time.Since(c.lastDeadline) > time.Second {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.timeout))
		c.lastDeadline = time.Now()
	}
	n, err := c.raw.Read(p)
	if n > 0 {
		c.wire += int64(n)
		if ferr := c.framer.feed(p[:n]); ferr != nil {
			c.done = true
			return n, ferr
		}
		if c.framer.sawAlert {
			c.done = true
		}
	}
	if err != nil {
		c.done = true
		if errors.Is(err, io.EOF) {
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		}
		return n, &IOError{Err: err}
	}
	return n, nil
}

// WireBytes is the number of raw bytes read from the response so far.
func (c *Conn) WireBytes() int64 { return c.wire }

// Overhead estimates how many of the wire bytes were TLS record framing.
func (c *Conn) Overhead() int64 { return c.framer.overhead }

// Records is the number of TLS record headers seen.
func (c *Conn) Records() int64 { return c.framer.records }

// Version is the negotiated TLS version.
func (c *Conn) Version() uint16 { return c.tls.ConnectionState().Version }

// TCPInfo returns the kernel TCP statistics captured when the connection was
// closed. ok is false before Close or where TCP_INFO is unavailable.
func (c *Conn) TCPInfo() (TCPInfo, bool) { return c.info, c.infoOK }

// Close snapshots TCP statistics and closes the socket. The TLS session is
// abandoned without close_notify; the server already considers it done.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if info, ierr := readTCPInfo(c.raw); ierr == nil {
			c.info = info
			c.infoOK = true
		}
		err = c.raw.Close()
	})
	return err
}

func requestURL(opts Options) (*url.URL, error) {
	if opts.URL == "" {
		return nil, errors.New("empty url")
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "https" {
		return nil, fmt.Errorf("scheme %q is not https", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("missing host")
	}
	q := u.Query()
	if opts.MeasID != "" {
		q.Set("measId", opts.MeasID)
	}
	if opts.Bytes > 0 {
		q.Set("bytes", strconv.FormatInt(opts.Bytes, 10))
	}
	u.RawQuery = q.Encode()
	return u, nil
}

func hostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}
