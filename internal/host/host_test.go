package host

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtual-router/internal/packet"
	"virtual-router/internal/route"
	"virtual-router/internal/router"
	"virtual-router/internal/transport"
)

var (
	routerReal = netip.MustParseAddrPort("127.0.0.1:1618")
	aReal      = netip.MustParseAddrPort("127.0.0.2:1618")
	bReal      = netip.MustParseAddrPort("127.0.0.3:1618")

	routerVirt = netip.MustParseAddr("10.0.0.1")
	aVirt      = netip.MustParseAddr("10.0.0.5")
	bVirt      = netip.MustParseAddr("10.0.1.7")
)

type topology struct {
	a, b *Endpoint
	r    *router.Router
	stop func()
}

func quietLogger() *log.Entry {
	l, _ := test.NewNullLogger()
	return log.NewEntry(l)
}

func newTopology(t *testing.T, aOpts ...Option) *topology {
	t.Helper()
	n := transport.NewMemNetwork()
	listen := func(ap netip.AddrPort) *transport.MemConn {
		c, err := n.Listen(ap)
		require.NoError(t, err)
		return c
	}

	p32, err := route.ParsePrefix("10.0.0.5/32")
	require.NoError(t, err)
	p24, err := route.ParsePrefix("10.0.1.0/24")
	require.NoError(t, err)
	tbl, _ := route.NewTable([]netip.Addr{routerVirt}, []route.Entry{
		{Prefix: p32, NextHop: aReal},
		{Prefix: p24, NextHop: bReal},
	})

	r := router.New(listen(routerReal), tbl, router.WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	opts := append([]Option{WithLogger(quietLogger())}, aOpts...)
	top := &topology{
		a: New(listen(aReal), Config{Address: aVirt, Gateway: routerReal}, opts...),
		b: New(listen(bReal), Config{Address: bVirt, Gateway: routerReal}, WithLogger(quietLogger())),
		r: r,
	}
	top.stop = func() {
		cancel()
		<-done
	}
	t.Cleanup(top.stop)
	return top
}

func TestSendThroughRouter(t *testing.T) {
	top := newTopology(t)

	require.NoError(t, top.a.Send(bVirt, []byte("hello")))

	m, err := top.b.Receive()
	require.NoError(t, err)
	assert.Equal(t, KindText, m.Kind)
	assert.Equal(t, "hello", m.Text)
	assert.Equal(t, aVirt, m.Src)
	assert.Equal(t, bVirt, m.Dst)
	assert.Equal(t, uint8(63), m.TTL)
	assert.Equal(t, "10.0.0.5: hello", m.String())
}

func TestUnreachableReported(t *testing.T) {
	top := newTopology(t)
	nowhere := netip.MustParseAddr("10.9.9.9")

	require.NoError(t, top.a.Send(nowhere, []byte("anyone?")))

	m, err := top.a.Receive()
	require.NoError(t, err)
	assert.Equal(t, KindICMP, m.Kind)
	assert.Equal(t, uint8(packet.ICMPTypeUnreachable), m.ICMPType)
	assert.Equal(t, uint8(packet.ICMPCodeNetUnreachable), m.ICMPCode)
	assert.Equal(t, routerVirt, m.Src)
	assert.Equal(t, nowhere, m.OrigDst)
	assert.Equal(t, "10.0.0.1: destination unreachable (code 0) for 10.9.9.9", m.String())
}

func TestTimeExceededReported(t *testing.T) {
	top := newTopology(t, WithTTL(0))

	require.NoError(t, top.a.Send(bVirt, []byte("expired")))

	m, err := top.a.Receive()
	require.NoError(t, err)
	assert.Equal(t, KindICMP, m.Kind)
	assert.Equal(t, uint8(packet.ICMPTypeTimeExceeded), m.ICMPType)
	assert.Equal(t, bVirt, m.OrigDst)
}

func TestSendRejectsNonIPv4(t *testing.T) {
	top := newTopology(t)
	assert.ErrorIs(t, top.a.Send(netip.MustParseAddr("::1"), []byte("x")), ErrNotIPv4)
}

func TestReceiveChecksumError(t *testing.T) {
	n := transport.NewMemNetwork()
	c, err := n.Listen(aReal)
	require.NoError(t, err)
	peer, err := n.Listen(bReal)
	require.NoError(t, err)
	e := New(c, Config{Address: aVirt, Gateway: bReal})

	b, err := packet.BuildUDPPacket(packet.UDPPacketSpec{
		Src: bVirt, Dst: aVirt, SrcPort: 4529, DstPort: 4529, TTL: 5, Data: []byte("abc"),
	})
	require.NoError(t, err)
	b[len(b)-1] ^= 0x20
	require.NoError(t, peer.WriteTo(b, aReal))

	_, err = e.Receive()
	var ce *packet.ChecksumError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "UDP", ce.Layer)
}

func TestListen(t *testing.T) {
	top := newTopology(t)

	got := make(chan Message, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- top.b.Listen(ctx, func(m Message) { got <- m })
	}()

	require.NoError(t, top.a.Send(bVirt, []byte("ping")))
	select {
	case m := <-got:
		assert.Equal(t, "ping", m.Text)
	case <-time.After(time.Second):
		t.Fatal("no message")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}

func TestListenSkipsBadPackets(t *testing.T) {
	n := transport.NewMemNetwork()
	c, err := n.Listen(aReal)
	require.NoError(t, err)
	peer, err := n.Listen(bReal)
	require.NoError(t, err)
	logger, hook := test.NewNullLogger()
	e := New(c, Config{Address: aVirt, Gateway: bReal}, WithLogger(log.NewEntry(logger)))

	good, err := packet.BuildUDPPacket(packet.UDPPacketSpec{
		Src: bVirt, Dst: aVirt, SrcPort: 4529, DstPort: 4529, TTL: 5, Data: []byte("good"),
	})
	require.NoError(t, err)
	bad := append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0x20
	require.NoError(t, peer.WriteTo(bad, aReal))
	require.NoError(t, peer.WriteTo([]byte{0x45}, aReal))
	require.NoError(t, peer.WriteTo(good, aReal))

	got := make(chan Message, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Listen(ctx, func(m Message) { got <- m })

	select {
	case m := <-got:
		assert.Equal(t, "good", m.Text)
	case <-time.After(time.Second):
		t.Fatal("good packet not delivered")
	}

	var dropped int
	for _, entry := range hook.AllEntries() {
		if entry.Message == "dropped packet" {
			dropped++
			var pe *PacketError
			assert.ErrorAs(t, entry.Data[log.ErrorKey].(error), &pe)
		}
	}
	assert.Equal(t, 2, dropped)
}

// failingConn fails every read until closed.
type failingConn struct {
	transport.Conn
	reads  atomic.Int32
	closed chan struct{}
	once   sync.Once
}

func (c *failingConn) ReadFrom([]byte) (int, netip.AddrPort, error) {
	c.reads.Add(1)
	select {
	case <-c.closed:
		return 0, netip.AddrPort{}, transport.ErrClosed
	default:
		return 0, netip.AddrPort{}, errors.New("temporary read failure")
	}
}

func (c *failingConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func TestListenBacksOffOnReadErrors(t *testing.T) {
	conn := &failingConn{closed: make(chan struct{})}
	e := New(conn, Config{Address: aVirt, Gateway: routerReal}, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Listen(ctx, func(Message) {}) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
	assert.Less(t, int(conn.reads.Load()), 20)
}
