package packet

import "encoding/binary"

// DecrementTTL lowers the TTL of the datagram in place and recomputes the
// IPv4 header checksum. The transport checksum does not cover the TTL and
// is left untouched. It returns the new TTL; a datagram whose TTL is
// already zero is not modified.
func DecrementTTL(datagram []byte) (uint8, error) {
	if len(datagram) < IPv4HeaderLen {
		return 0, ErrPacketTooShort
	}

	ttl := datagram[offTTL]
	if ttl == 0 {
		return 0, nil
	}
	ttl--
	datagram[offTTL] = ttl

	binary.BigEndian.PutUint16(datagram[offChecksum:], 0)
	binary.BigEndian.PutUint16(datagram[offChecksum:], Checksum(datagram[:IPv4HeaderLen]))
	return ttl, nil
}
