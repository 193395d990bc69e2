package packet

import (
	"encoding/binary"
	"math/rand"
	"net/netip"
)

// RandomID returns a fresh IPv4 identification value.
func RandomID() uint16 {
	return uint16(rand.Uint32())
}

// newIPv4 returns a header for a non-fragmented datagram carrying
// payloadLen bytes.
func newIPv4(src, dst netip.Addr, proto, ttl uint8, payloadLen int) (IPv4Header, error) {
	total := IPv4HeaderLen + payloadLen
	if err := checkWidth("total length", uint64(total), 16); err != nil {
		return IPv4Header{}, err
	}
	return IPv4Header{
		Version:  IPv4Version,
		IHL:      IPv4IHL,
		TotalLen: uint16(total),
		ID:       RandomID(),
		TTL:      ttl,
		Protocol: proto,
		Src:      src,
		Dst:      dst,
	}, nil
}

// finishIPv4 writes h at the front of buf and fills in its checksum.
func finishIPv4(buf []byte, h IPv4Header) error {
	if err := PutIPv4(buf, h); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(buf[offChecksum:], IPv4Checksum(buf[:IPv4HeaderLen]))
	return nil
}

type UDPPacketSpec struct {
	Src, Dst         netip.Addr
	SrcPort, DstPort uint16
	TTL              uint8
	Data             []byte
}

// BuildUDPPacket assembles IPv4 + UDP + data with both checksums set.
func BuildUDPPacket(s UDPPacketSpec) ([]byte, error) {
	udpLen := UDPHeaderLen + len(s.Data)
	if err := checkWidth("udp length", uint64(udpLen), 16); err != nil {
		return nil, err
	}
	ip, err := newIPv4(s.Src, s.Dst, ProtoUDP, s.TTL, udpLen)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, ip.TotalLen)
	segment := buf[IPv4HeaderLen:]
	PutUDP(segment, UDPHeader{
		SrcPort: s.SrcPort,
		DstPort: s.DstPort,
		Length:  uint16(udpLen),
	})
	copy(segment[UDPHeaderLen:], s.Data)
	binary.BigEndian.PutUint16(segment[offUDPChecksum:], UDPChecksum(s.Src, s.Dst, segment))

	if err := finishIPv4(buf, ip); err != nil {
		return nil, err
	}
	return buf, nil
}

type ICMPErrorSpec struct {
	Src, Dst netip.Addr
	TTL      uint8
	Type     uint8
	Code     uint8
	// Quote is the offending datagram's header and leading payload bytes.
	Quote []byte
}

// BuildICMPError assembles an IPv4 + ICMP error message echoing Quote.
func BuildICMPError(s ICMPErrorSpec) ([]byte, error) {
	icmpLen := ICMPHeaderLen + len(s.Quote)
	ip, err := newIPv4(s.Src, s.Dst, ProtoICMP, s.TTL, icmpLen)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, ip.TotalLen)
	msg := buf[IPv4HeaderLen:]
	PutICMP(msg, ICMPHeader{Type: s.Type, Code: s.Code})
	copy(msg[ICMPHeaderLen:], s.Quote)
	binary.BigEndian.PutUint16(msg[offICMPChecksum:], ICMPChecksum(msg))

	if err := finishIPv4(buf, ip); err != nil {
		return nil, err
	}
	return buf, nil
}
