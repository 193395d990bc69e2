package packet

import (
	"encoding/binary"
	"net/netip"
)

// EncodeIPv4 writes h into a fresh 20-byte buffer. Fields are written as
// given, including Checksum; use IPv4Checksum to fill it in.
func EncodeIPv4(h IPv4Header) ([]byte, error) {
	var buf [IPv4HeaderLen]byte
	if err := PutIPv4(buf[:], h); err != nil {
		return nil, err
	}
	return buf[:], nil
}

// PutIPv4 writes h into the first 20 bytes of b.
func PutIPv4(b []byte, h IPv4Header) error {
	if len(b) < IPv4HeaderLen {
		return ErrPacketTooShort
	}
	if err := checkWidth("version", uint64(h.Version), 4); err != nil {
		return err
	}
	if err := checkWidth("ihl", uint64(h.IHL), 4); err != nil {
		return err
	}
	if err := checkWidth("flags", uint64(h.Flags), 3); err != nil {
		return err
	}
	if err := checkWidth("fragment offset", uint64(h.FragOffset), 13); err != nil {
		return err
	}
	src, err := addr4("source address", h.Src)
	if err != nil {
		return err
	}
	dst, err := addr4("destination address", h.Dst)
	if err != nil {
		return err
	}

	b[offVersionIHL] = h.Version<<4 | h.IHL
	b[offTOS] = h.TOS
	binary.BigEndian.PutUint16(b[offTotalLen:], h.TotalLen)
	binary.BigEndian.PutUint16(b[offID:], h.ID)
	binary.BigEndian.PutUint16(b[offFlagsFrag:], uint16(h.Flags)<<13|h.FragOffset)
	b[offTTL] = h.TTL
	b[offProtocol] = h.Protocol
	binary.BigEndian.PutUint16(b[offChecksum:], h.Checksum)
	copy(b[offSrc:offSrc+4], src[:])
	copy(b[offDst:offDst+4], dst[:])
	return nil
}

func addr4(field string, a netip.Addr) ([4]byte, error) {
	if !a.Is4() {
		// An IPv6 address carries 128 bits into a 32-bit field.
		return [4]byte{}, &EncodingError{Field: field, Value: uint64(a.BitLen()), Bits: 32}
	}
	return a.As4(), nil
}

// EncodeUDP writes h into a fresh 8-byte buffer.
func EncodeUDP(h UDPHeader) []byte {
	buf := make([]byte, UDPHeaderLen)
	PutUDP(buf, h)
	return buf
}

// PutUDP writes h into the first 8 bytes of b, which must be long enough.
func PutUDP(b []byte, h UDPHeader) {
	binary.BigEndian.PutUint16(b[offUDPSrcPort:], h.SrcPort)
	binary.BigEndian.PutUint16(b[offUDPDstPort:], h.DstPort)
	binary.BigEndian.PutUint16(b[offUDPLength:], h.Length)
	binary.BigEndian.PutUint16(b[offUDPChecksum:], h.Checksum)
}

// EncodeICMP writes h into a fresh 8-byte buffer.
func EncodeICMP(h ICMPHeader) []byte {
	buf := make([]byte, ICMPHeaderLen)
	PutICMP(buf, h)
	return buf
}

// PutICMP writes h into the first 8 bytes of b, which must be long enough.
func PutICMP(b []byte, h ICMPHeader) {
	b[offICMPType] = h.Type
	b[offICMPCode] = h.Code
	binary.BigEndian.PutUint16(b[offICMPChecksum:], h.Checksum)
	binary.BigEndian.PutUint32(b[offICMPRest:], h.Rest)
}
