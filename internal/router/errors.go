package router

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	ErrNoPrimary     = errors.New("router: no local address to source ICMP errors from")
	ErrICMPAboutICMP = errors.New("router: not generating an ICMP error about an ICMP error")
	ErrICMPAboutSelf = errors.New("router: not generating an ICMP error about a local packet")
)

// RouteNotFoundError means no table entry covers Dst.
type RouteNotFoundError struct {
	Dst netip.Addr
}

func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("router: no route to %s", e.Dst)
}

// TTLExpiredError means a routable packet arrived with no hops left.
type TTLExpiredError struct {
	Src, Dst netip.Addr
}

func (e *TTLExpiredError) Error() string {
	return fmt.Sprintf("router: ttl expired for %s -> %s", e.Src, e.Dst)
}
