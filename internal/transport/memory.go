package transport

import (
	"net/netip"
	"sync"
)

const memQueueLen = 256

type datagram struct {
	from netip.AddrPort
	data []byte
}

// MemNetwork is an in-process datagram fabric. It lets a whole topology of
// routers and hosts run inside one process with the same Conn semantics as
// real UDP: writes never block and are dropped when the receiver's queue is
// full.
type MemNetwork struct {
	mu    sync.Mutex
	conns map[netip.AddrPort]*MemConn
}

func NewMemNetwork() *MemNetwork {
	return &MemNetwork{conns: make(map[netip.AddrPort]*MemConn)}
}

func (n *MemNetwork) Listen(addr netip.AddrPort) (*MemConn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.conns[addr]; ok {
		return nil, ErrAddrInUse
	}
	c := &MemConn{
		net:    n,
		addr:   addr,
		queue:  make(chan datagram, memQueueLen),
		closed: make(chan struct{}),
	}
	n.conns[addr] = c
	return c, nil
}

func (n *MemNetwork) lookup(addr netip.AddrPort) *MemConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conns[addr]
}

func (n *MemNetwork) remove(c *MemConn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conns[c.addr] == c {
		delete(n.conns, c.addr)
	}
}

type MemConn struct {
	net    *MemNetwork
	addr   netip.AddrPort
	queue  chan datagram
	closed chan struct{}
	once   sync.Once

	dropped int
	mu      sync.Mutex
}

func (c *MemConn) ReadFrom(buf []byte) (int, netip.AddrPort, error) {
	select {
	case d := <-c.queue:
		return copy(buf, d.data), d.from, nil
	case <-c.closed:
		return 0, netip.AddrPort{}, ErrClosed
	}
}

func (c *MemConn) WriteTo(b []byte, addr netip.AddrPort) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	peer := c.net.lookup(addr)
	if peer == nil {
		return ErrUnreachable
	}
	d := datagram{from: c.addr, data: append([]byte(nil), b...)}
	select {
	case peer.queue <- d:
	default:
		peer.mu.Lock()
		peer.dropped++
		peer.mu.Unlock()
	}
	return nil
}

func (c *MemConn) LocalAddr() netip.AddrPort {
	return c.addr
}

func (c *MemConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.net.remove(c)
	})
	return nil
}

// Dropped is the number of datagrams discarded because the queue was full.
func (c *MemConn) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
