package router

// Verdict is the outcome of one pass over a received packet.
type Verdict int

const (
	Dropped Verdict = iota
	Delivered
	Forwarded
	Unreachable
	TTLExpired
)

func (v Verdict) String() string {
	switch v {
	case Dropped:
		return "dropped"
	case Delivered:
		return "delivered"
	case Forwarded:
		return "forwarded"
	case Unreachable:
		return "unreachable"
	case TTLExpired:
		return "ttl-expired"
	}
	return "unknown"
}
