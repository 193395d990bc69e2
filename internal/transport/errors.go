package transport

import (
	"errors"
	"net/netip"
)

var (
	ErrClosed      = errors.New("transport: connection closed")
	ErrAddrInUse   = errors.New("transport: address already in use")
	ErrUnreachable = errors.New("transport: no listener at address")
)

// Conn is a datagram endpoint. Each WriteTo sends exactly one datagram and
// each ReadFrom returns exactly one.
type Conn interface {
	// ReadFrom blocks until a datagram arrives or the conn is closed.
	ReadFrom(buf []byte) (int, netip.AddrPort, error)
	WriteTo(b []byte, addr netip.AddrPort) error
	LocalAddr() netip.AddrPort
	Close() error
}
