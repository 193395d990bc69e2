package route

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Prefix is an IPv4 network held as a masked 32-bit value and a length.
type Prefix struct {
	Network uint32
	Len     uint8
}

// Mask returns the netmask for n leading bits.
func Mask(n uint8) uint32 {
	if n == 0 {
		return 0
	}
	return ^uint32(0) << (32 - uint32(n))
}

// NewPrefix masks addr down to bits leading bits.
func NewPrefix(addr netip.Addr, bits int) (Prefix, error) {
	if !addr.Is4() {
		return Prefix{}, fmt.Errorf("route: %s is not an IPv4 address", addr)
	}
	if bits < 0 || bits > 32 {
		return Prefix{}, fmt.Errorf("route: invalid prefix length %d", bits)
	}
	n := uint8(bits)
	return Prefix{Network: U32(addr) & Mask(n), Len: n}, nil
}

// ParsePrefix parses "a.b.c.d/n". Host bits are masked off, so
// "10.1.2.3/16" is the same prefix as "10.1.0.0/16".
func ParsePrefix(s string) (Prefix, error) {
	addrStr, bitsStr, ok := strings.Cut(s, "/")
	if !ok {
		return Prefix{}, fmt.Errorf("route: missing prefix length in %q", s)
	}
	addr, err := netip.ParseAddr(addrStr)
	if err != nil {
		return Prefix{}, fmt.Errorf("route: %w", err)
	}
	bits, err := strconv.Atoi(bitsStr)
	if err != nil {
		return Prefix{}, fmt.Errorf("route: invalid prefix length in %q", s)
	}
	return NewPrefix(addr, bits)
}

// Contains reports whether the leading Len bits of addr equal Network.
func (p Prefix) Contains(addr netip.Addr) bool {
	if !addr.Is4() {
		return false
	}
	return U32(addr)&Mask(p.Len) == p.Network
}

func (p Prefix) Addr() netip.Addr {
	return FromU32(p.Network)
}

func (p Prefix) String() string {
	return fmt.Sprintf("%s/%d", p.Addr(), p.Len)
}

// U32 converts an IPv4 address to its big-endian integer form.
func U32(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func FromU32(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
