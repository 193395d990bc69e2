//go:build unix

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// recvBufferSize leaves room for bursts of maximum-size datagrams.
const recvBufferSize = 1 << 20

// setSockopts enlarges the receive buffer. The port is not shared: a node
// owns its socket exclusively, so SO_REUSEADDR stays off.
func setSockopts(network, address string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, recvBufferSize)
	})
	if err != nil {
		return err
	}
	return opErr
}
