package packet

import (
	"errors"
	"fmt"
	"net/netip"
)

const (
	IPv4HeaderLen = 20
	UDPHeaderLen  = 8
	ICMPHeaderLen = 8
	MaxPacketSize = 65535

	// ICMPQuoteLen is how many bytes of the offending datagram's payload an
	// ICMP error echoes after its IPv4 header.
	ICMPQuoteLen = 8

	ProtoICMP = 1
	ProtoUDP  = 17

	IPv4Version = 4
	IPv4IHL     = IPv4HeaderLen / 4
)

// ICMP types and codes emitted by the router.
const (
	ICMPTypeUnreachable  = 3
	ICMPTypeTimeExceeded = 11

	ICMPCodeNetUnreachable = 0
	ICMPCodeTTLExceeded    = 0
)

// IPv4 field offsets.
const (
	offVersionIHL = 0
	offTOS        = 1
	offTotalLen   = 2
	offID         = 4
	offFlagsFrag  = 6
	offTTL        = 8
	offProtocol   = 9
	offChecksum   = 10
	offSrc        = 12
	offDst        = 16
)

// UDP field offsets.
const (
	offUDPSrcPort  = 0
	offUDPDstPort  = 2
	offUDPLength   = 4
	offUDPChecksum = 6
)

// ICMP field offsets.
const (
	offICMPType     = 0
	offICMPCode     = 1
	offICMPChecksum = 2
	offICMPRest     = 4
)

var (
	ErrPacketTooShort = errors.New("packet: packet too short")
	ErrInvalidVersion = errors.New("packet: invalid IP version or header length")
	ErrMalformed      = errors.New("packet: malformed packet")
)

type IPv4Header struct {
	Version    uint8
	IHL        uint8
	TOS        uint8
	TotalLen   uint16
	ID         uint16
	Flags      uint8
	FragOffset uint16
	TTL        uint8
	Protocol   uint8
	Checksum   uint16
	Src        netip.Addr
	Dst        netip.Addr
}

// PayloadLen is the number of bytes TotalLen claims after the header.
func (h IPv4Header) PayloadLen() int {
	return int(h.TotalLen) - int(h.IHL)*4
}

type UDPHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

type ICMPHeader struct {
	Type     uint8
	Code     uint8
	Checksum uint16
	Rest     uint32
}

// IsError reports whether the message is one of the error types the router
// generates. Errors about errors are never sent.
func (h ICMPHeader) IsError() bool {
	return h.Type == ICMPTypeUnreachable || h.Type == ICMPTypeTimeExceeded
}

// EncodingError reports a header field whose value does not fit its width
// on the wire.
type EncodingError struct {
	Field string
	Value uint64
	Bits  int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("packet: %s value %d exceeds %d bits", e.Field, e.Value, e.Bits)
}

func checkWidth(field string, v uint64, bits int) error {
	if v>>bits != 0 {
		return &EncodingError{Field: field, Value: v, Bits: bits}
	}
	return nil
}

// ChecksumError reports a stored checksum that does not match the one
// recomputed over the received bytes.
type ChecksumError struct {
	Layer    string
	Stored   uint16
	Computed uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("packet: bad %s checksum: got 0x%04x, expected 0x%04x", e.Layer, e.Stored, e.Computed)
}
