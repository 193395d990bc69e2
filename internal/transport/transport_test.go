package transport

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemNetworkDelivers(t *testing.T) {
	n := NewMemNetwork()
	a, err := n.Listen(netip.MustParseAddrPort("127.0.0.1:1618"))
	require.NoError(t, err)
	b, err := n.Listen(netip.MustParseAddrPort("127.0.0.2:1618"))
	require.NoError(t, err)

	msg := []byte("datagram")
	require.NoError(t, a.WriteTo(msg, b.LocalAddr()))
	msg[0] = 'X' // sender's buffer may be reused

	buf := make([]byte, 64)
	nr, from, err := b.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "datagram", string(buf[:nr]))
	assert.Equal(t, a.LocalAddr(), from)
}

func TestMemNetworkErrors(t *testing.T) {
	n := NewMemNetwork()
	addr := netip.MustParseAddrPort("127.0.0.1:1618")
	a, err := n.Listen(addr)
	require.NoError(t, err)

	_, err = n.Listen(addr)
	assert.ErrorIs(t, err, ErrAddrInUse)

	assert.ErrorIs(t, a.WriteTo([]byte("x"), netip.MustParseAddrPort("127.0.0.9:1")), ErrUnreachable)

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.WriteTo([]byte("x"), addr), ErrClosed)
	_, _, err = a.ReadFrom(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)

	// The address is free again after close.
	_, err = n.Listen(addr)
	assert.NoError(t, err)
}

func TestMemConnCloseUnblocksReader(t *testing.T) {
	n := NewMemNetwork()
	a, err := n.Listen(netip.MustParseAddrPort("127.0.0.1:1618"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, _, err := a.ReadFrom(make([]byte, 8))
		done <- err
	}()
	a.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("reader not unblocked by Close")
	}
}

func TestMemConnDropsWhenFull(t *testing.T) {
	n := NewMemNetwork()
	a, _ := n.Listen(netip.MustParseAddrPort("127.0.0.1:1"))
	b, _ := n.Listen(netip.MustParseAddrPort("127.0.0.1:2"))

	for i := 0; i < memQueueLen+3; i++ {
		require.NoError(t, a.WriteTo([]byte{byte(i)}, b.LocalAddr()))
	}
	assert.Equal(t, 3, b.Dropped())
}

func TestUDPConnLoopback(t *testing.T) {
	a, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()
	b, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.WriteTo([]byte("over udp"), b.LocalAddr()))

	buf := make([]byte, 64)
	nr, from, err := b.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "over udp", string(buf[:nr]))
	assert.Equal(t, a.LocalAddr(), from)

	require.NoError(t, b.Close())
	_, _, err = b.ReadFrom(buf)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUDPConnExclusivePort(t *testing.T) {
	a, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()

	_, err = ListenUDP(a.LocalAddr().String())
	assert.ErrorIs(t, err, ErrAddrInUse)
}

func TestBackoff(t *testing.T) {
	var b Backoff
	assert.Equal(t, minRetryDelay, b.Delay())

	ctx := context.Background()
	b.Wait(ctx)
	assert.Equal(t, 2*minRetryDelay, b.Delay())
	b.Wait(ctx)
	assert.Equal(t, 4*minRetryDelay, b.Delay())

	b.Reset()
	assert.Equal(t, minRetryDelay, b.Delay())

	b.delay = maxRetryDelay
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	start := time.Now()
	b.Wait(cancelled)
	assert.Less(t, time.Since(start), maxRetryDelay/2, "cancelled context cuts the wait short")
	assert.Equal(t, maxRetryDelay, b.Delay())
}
