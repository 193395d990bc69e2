package packet

import (
	"encoding/binary"
	"net/netip"
)

// DecodeIPv4 extracts the fixed 20-byte IPv4 header from data. It does not
// validate any field.
func DecodeIPv4(data []byte) (IPv4Header, error) {
	if len(data) < IPv4HeaderLen {
		return IPv4Header{}, ErrPacketTooShort
	}

	flagsAndOffset := binary.BigEndian.Uint16(data[offFlagsFrag:])

	return IPv4Header{
		Version:    data[offVersionIHL] >> 4,
		IHL:        data[offVersionIHL] & 0x0F,
		TOS:        data[offTOS],
		TotalLen:   binary.BigEndian.Uint16(data[offTotalLen:]),
		ID:         binary.BigEndian.Uint16(data[offID:]),
		Flags:      uint8(flagsAndOffset >> 13),
		FragOffset: flagsAndOffset & 0x1FFF,
		TTL:        data[offTTL],
		Protocol:   data[offProtocol],
		Checksum:   binary.BigEndian.Uint16(data[offChecksum:]),
		Src:        netip.AddrFrom4([4]byte(data[offSrc : offSrc+4])),
		Dst:        netip.AddrFrom4([4]byte(data[offDst : offDst+4])),
	}, nil
}

func DecodeUDP(data []byte) (UDPHeader, error) {
	if len(data) < UDPHeaderLen {
		return UDPHeader{}, ErrPacketTooShort
	}

	return UDPHeader{
		SrcPort:  binary.BigEndian.Uint16(data[offUDPSrcPort:]),
		DstPort:  binary.BigEndian.Uint16(data[offUDPDstPort:]),
		Length:   binary.BigEndian.Uint16(data[offUDPLength:]),
		Checksum: binary.BigEndian.Uint16(data[offUDPChecksum:]),
	}, nil
}

func DecodeICMP(data []byte) (ICMPHeader, error) {
	if len(data) < ICMPHeaderLen {
		return ICMPHeader{}, ErrPacketTooShort
	}

	return ICMPHeader{
		Type:     data[offICMPType],
		Code:     data[offICMPCode],
		Checksum: binary.BigEndian.Uint16(data[offICMPChecksum:]),
		Rest:     binary.BigEndian.Uint32(data[offICMPRest:]),
	}, nil
}

// Packet is a decoded virtual datagram. Raw, Payload and Data alias the
// receive buffer.
type Packet struct {
	IP      IPv4Header
	UDP     *UDPHeader
	ICMP    *ICMPHeader
	Raw     []byte // whole datagram trimmed to IP.TotalLen
	Payload []byte // bytes after the IPv4 header
	Data    []byte // bytes after the transport header
}

// Parse decodes the IPv4 header of datagram and, for UDP and ICMP, the
// transport header. Checksums are not verified; see Verify.
func Parse(datagram []byte) (*Packet, error) {
	ip, err := DecodeIPv4(datagram)
	if err != nil {
		return nil, err
	}
	if ip.Version != IPv4Version || ip.IHL != IPv4IHL {
		return nil, ErrInvalidVersion
	}
	if int(ip.TotalLen) < IPv4HeaderLen || int(ip.TotalLen) > len(datagram) {
		return nil, ErrMalformed
	}

	raw := datagram[:ip.TotalLen]
	p := &Packet{
		IP:      ip,
		Raw:     raw,
		Payload: raw[IPv4HeaderLen:],
	}

	switch ip.Protocol {
	case ProtoUDP:
		udp, err := DecodeUDP(p.Payload)
		if err != nil {
			return nil, err
		}
		if int(udp.Length) < UDPHeaderLen || int(udp.Length) > len(p.Payload) {
			return nil, ErrMalformed
		}
		p.UDP = &udp
		p.Data = p.Payload[UDPHeaderLen:udp.Length]
	case ProtoICMP:
		icmp, err := DecodeICMP(p.Payload)
		if err != nil {
			return nil, err
		}
		p.ICMP = &icmp
		p.Data = p.Payload[ICMPHeaderLen:]
	default:
		p.Data = p.Payload
	}

	return p, nil
}

// Verify checks the IPv4 header checksum and, for UDP and ICMP, the
// transport checksum.
func (p *Packet) Verify() error {
	if err := VerifyIPv4(p.Raw); err != nil {
		return err
	}
	switch {
	case p.UDP != nil:
		return VerifyUDP(p.IP.Src, p.IP.Dst, p.Payload[:p.UDP.Length])
	case p.ICMP != nil:
		return VerifyICMP(p.Payload)
	}
	return nil
}

// Quote returns the offending-datagram excerpt carried by an ICMP error:
// the original IPv4 header plus up to ICMPQuoteLen payload bytes.
func (p *Packet) Quote() []byte {
	n := IPv4HeaderLen + ICMPQuoteLen
	if n > len(p.Raw) {
		n = len(p.Raw)
	}
	return p.Raw[:n]
}
