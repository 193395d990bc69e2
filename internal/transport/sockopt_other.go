//go:build !unix

package transport

import "syscall"

func setSockopts(network, address string, c syscall.RawConn) error {
	return nil
}
