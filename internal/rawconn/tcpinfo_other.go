//go:build !linux

package rawconn

import "net"

func readTCPInfo(net.Conn) (TCPInfo, error) {
	return TCPInfo{}, ErrUnsupported
}
