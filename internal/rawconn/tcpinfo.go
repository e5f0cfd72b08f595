package rawconn

import "time"

// TCPInfo is the subset of kernel TCP statistics kept per raw connection.
type TCPInfo struct {
	Retransmits uint64
	RTT         time.Duration
}
