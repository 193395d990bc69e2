// Package capture records virtual datagrams as a pcap file and renders
// one-line packet summaries for debug logs.
package capture

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"virtual-router/internal/config"
)

// Writer appends raw IPv4 datagrams to a pcap stream. It is safe for
// concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
	count  int
}

// Create opens path and writes the pcap file header.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

func NewWriter(out io.Writer) (*Writer, error) {
	w := pcapgo.NewWriter(out)
	if err := w.WriteFileHeader(config.MaxPacketSize, layers.LinkTypeRaw); err != nil {
		return nil, fmt.Errorf("capture: write header: %w", err)
	}
	return &Writer{w: w}, nil
}

func (w *Writer) Write(data []byte, ts time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(data),
		Length:        len(data),
	}
	if err := w.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	w.count++
	return nil
}

// Count is the number of packets written so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// Describe decodes an IPv4 datagram and summarizes its headers, e.g.
// "10.0.0.5 > 10.1.0.9 ttl 64 UDP 4529 > 4529 len 5".
func Describe(data []byte) string {
	pkt := gopacket.NewPacket(data, layers.LayerTypeIPv4, gopacket.NoCopy)

	// A failed decode can still leave an empty IPv4 layer behind.
	ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok || ip.SrcIP == nil || ip.DstIP == nil {
		if el := pkt.ErrorLayer(); el != nil {
			return "undecodable: " + el.Error().Error()
		}
		return "undecodable"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s > %s ttl %d", ip.SrcIP, ip.DstIP, ip.TTL)
	switch l := pkt.TransportLayer().(type) {
	case *layers.UDP:
		fmt.Fprintf(&sb, " UDP %d > %d len %d", l.SrcPort, l.DstPort, len(l.Payload))
		return sb.String()
	}
	if icmp, ok := pkt.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4); ok {
		fmt.Fprintf(&sb, " ICMP %s", icmp.TypeCode)
		return sb.String()
	}
	fmt.Fprintf(&sb, " proto %d", ip.Protocol)
	return sb.String()
}
