package capture

import (
	"bytes"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtual-router/internal/packet"
)

func udpDatagram(t *testing.T) []byte {
	t.Helper()
	b, err := packet.BuildUDPPacket(packet.UDPPacketSpec{
		Src:     netip.MustParseAddr("10.0.0.5"),
		Dst:     netip.MustParseAddr("10.1.0.9"),
		SrcPort: 4529,
		DstPort: 4529,
		TTL:     64,
		Data:    []byte("hello"),
	})
	require.NoError(t, err)
	return b
}

func TestWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	d := udpDatagram(t)
	ts := time.Unix(1700000000, 0)
	require.NoError(t, w.Write(d, ts))
	require.NoError(t, w.Write(d, ts.Add(time.Second)))
	assert.Equal(t, 2, w.Count())

	r, err := pcapgo.NewReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeRaw, r.LinkType())

	data, ci, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, d, data)
	assert.Equal(t, len(d), ci.Length)
	assert.True(t, ts.Equal(ci.Timestamp))
}

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router.pcap")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(udpDatagram(t), time.Now()))
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(24))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "10.0.0.5 > 10.1.0.9 ttl 64 UDP 4529 > 4529 len 5", Describe(udpDatagram(t)))

	orig := udpDatagram(t)
	icmp, err := packet.BuildICMPError(packet.ICMPErrorSpec{
		Src:   netip.MustParseAddr("10.0.0.1"),
		Dst:   netip.MustParseAddr("10.0.0.5"),
		TTL:   64,
		Type:  packet.ICMPTypeTimeExceeded,
		Code:  packet.ICMPCodeTTLExceeded,
		Quote: orig[:packet.IPv4HeaderLen+packet.ICMPQuoteLen],
	})
	require.NoError(t, err)
	assert.Contains(t, Describe(icmp), "10.0.0.1 > 10.0.0.5 ttl 64 ICMP TimeExceeded")

	for _, b := range [][]byte{nil, {0x45, 0x00}, orig[:12]} {
		assert.Contains(t, Describe(b), "undecodable", "input % x", b)
	}
}
