package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"
)

// UDPConn carries virtual datagrams over one real UDP socket, used for both
// ingress and egress.
type UDPConn struct {
	conn *net.UDPConn
}

// ListenUDP binds addr (e.g. ":1618"). The socket is opened with the
// platform options from setSockopts.
func ListenUDP(addr string) (*UDPConn, error) {
	lc := net.ListenConfig{Control: setSockopts}
	pc, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen udp %s: %w", addr, ErrAddrInUse)
		}
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	return &UDPConn{conn: pc.(*net.UDPConn)}, nil
}

func (u *UDPConn) ReadFrom(buf []byte) (int, netip.AddrPort, error) {
	n, from, err := u.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return 0, netip.AddrPort{}, ErrClosed
		}
		return 0, netip.AddrPort{}, err
	}
	return n, unmap(from), nil
}

func (u *UDPConn) WriteTo(b []byte, addr netip.AddrPort) error {
	_, err := u.conn.WriteToUDPAddrPort(b, addr)
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}

func (u *UDPConn) LocalAddr() netip.AddrPort {
	return unmap(u.conn.LocalAddr().(*net.UDPAddr).AddrPort())
}

func (u *UDPConn) Close() error {
	return u.conn.Close()
}

func unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
