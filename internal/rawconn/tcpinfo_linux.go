//go:build linux

package rawconn

import (
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func readTCPInfo(conn net.Conn) (TCPInfo, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return TCPInfo{}, ErrUnsupported
	}
	rawConn, err := sc.SyscallConn()
	if err != nil {
		return TCPInfo{}, fmt.Errorf("syscall conn: %w", err)
	}

	var info *unix.TCPInfo
	var sockErr error
	if err := rawConn.Control(func(fd uintptr) {
		info, sockErr = unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
	}); err != nil {
		return TCPInfo{}, fmt.Errorf("control syscall: %w", err)
	}
	if sockErr != nil {
		return TCPInfo{}, fmt.Errorf("getsockopt TCP_INFO: %w", sockErr)
	}
	if info == nil {
		return TCPInfo{}, fmt.Errorf("getsockopt TCP_INFO: nil info")
	}
	return TCPInfo{
		Retransmits: uint64(info.Total_retrans),
		RTT:         time.Duration(info.Rtt) * time.Microsecond,
	}, nil
}
