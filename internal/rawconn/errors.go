package rawconn

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL marks a download URL that can never be dialed.
	ErrInvalidURL = errors.New("invalid download url")
	// ErrUnsupported is returned where the platform lacks a socket facility.
	ErrUnsupported = errors.New("not supported on this platform")
)

// ConnectError reports a failure while establishing a raw connection.
// Op is one of "parse", "dial", "handshake" or "send".
type ConnectError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IOError reports a socket failure in the middle of a response.
type IOError struct {
	Err error
}

func (e *IOError) Error() string { return "raw read: " + e.Err.Error() }

func (e *IOError) Unwrap() error { return e.Err }

// ProtocolError reports TLS record framing that cannot be right.
type ProtocolError struct {
	Offset int64
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed tls framing at byte %d: %s", e.Offset, e.Reason)
}
