package packet

import (
	"encoding/binary"
	"net/netip"
)

// Checksum computes the RFC 1071 Internet checksum over the concatenation
// of chunks. Each chunk except the last must have even length; an odd
// trailing byte of the last chunk is padded with a zero byte.
func Checksum(chunks ...[]byte) uint16 {
	var sum uint32
	for _, data := range chunks {
		sum = accumulate(sum, data)
	}
	return ^fold(sum)
}

func accumulate(sum uint32, data []byte) uint32 {
	for i := 0; i+1 < len(data); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
		// Fold early so very large buffers cannot overflow 32 bits.
		if sum > 0xFFFF0000 {
			sum = (sum & 0xFFFF) + (sum >> 16)
		}
	}
	if len(data)%2 == 1 {
		sum += uint32(data[len(data)-1]) << 8
	}
	return sum
}

func fold(sum uint32) uint16 {
	for sum > 0xFFFF {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return uint16(sum)
}

// IPv4Checksum computes the header checksum of hdr with the checksum field
// treated as zero. hdr is not modified.
func IPv4Checksum(hdr []byte) uint16 {
	return withZeroedField(hdr, offChecksum, func(b []byte) uint16 {
		return Checksum(b)
	})
}

// UDPChecksum computes the UDP checksum of segment (header + data) using
// the IPv4 pseudo-header for src and dst. The checksum field in segment is
// treated as zero. A zero result is returned as 0xffff, since zero on the
// wire means no checksum (RFC 768).
func UDPChecksum(src, dst netip.Addr, segment []byte) uint16 {
	pseudo := pseudoHeader(src, dst, ProtoUDP, len(segment))
	sum := withZeroedField(segment, offUDPChecksum, func(b []byte) uint16 {
		return Checksum(pseudo[:], b)
	})
	if sum == 0 {
		return 0xffff
	}
	return sum
}

// ICMPChecksum computes the checksum of an ICMP message (header + body)
// with the checksum field treated as zero.
func ICMPChecksum(msg []byte) uint16 {
	return withZeroedField(msg, offICMPChecksum, func(b []byte) uint16 {
		return Checksum(b)
	})
}

func pseudoHeader(src, dst netip.Addr, proto uint8, length int) [12]byte {
	var p [12]byte
	s, d := src.As4(), dst.As4()
	copy(p[0:4], s[:])
	copy(p[4:8], d[:])
	p[8] = 0
	p[9] = proto
	binary.BigEndian.PutUint16(p[10:12], uint16(length))
	return p
}

// withZeroedField runs fn over b with the 16-bit field at off zeroed and
// restores it afterwards.
func withZeroedField(b []byte, off int, fn func([]byte) uint16) uint16 {
	if len(b) < off+2 {
		return fn(b)
	}
	saved := binary.BigEndian.Uint16(b[off : off+2])
	binary.BigEndian.PutUint16(b[off:off+2], 0)
	sum := fn(b)
	binary.BigEndian.PutUint16(b[off:off+2], saved)
	return sum
}

// VerifyIPv4 checks the header checksum of a 20-byte IPv4 header.
func VerifyIPv4(hdr []byte) error {
	if len(hdr) < IPv4HeaderLen {
		return ErrPacketTooShort
	}
	return verify("IP", hdr[:IPv4HeaderLen], offChecksum, IPv4Checksum(hdr[:IPv4HeaderLen]))
}

// VerifyUDP checks the checksum of a UDP segment carried between src and dst.
func VerifyUDP(src, dst netip.Addr, segment []byte) error {
	if len(segment) < UDPHeaderLen {
		return ErrPacketTooShort
	}
	return verify("UDP", segment, offUDPChecksum, UDPChecksum(src, dst, segment))
}

// VerifyICMP checks the checksum of an ICMP message.
func VerifyICMP(msg []byte) error {
	if len(msg) < ICMPHeaderLen {
		return ErrPacketTooShort
	}
	return verify("ICMP", msg, offICMPChecksum, ICMPChecksum(msg))
}

func verify(layer string, b []byte, off int, computed uint16) error {
	stored := binary.BigEndian.Uint16(b[off : off+2])
	if stored != computed {
		return &ChecksumError{Layer: layer, Stored: stored, Computed: computed}
	}
	return nil
}
