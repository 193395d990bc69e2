package route

import (
	"fmt"
	"net/netip"
	"sort"
)

// Entry maps a virtual network to the real transport endpoint of its next
// hop. A zero port in NextHop means the default node port.
type Entry struct {
	Prefix  Prefix
	NextHop netip.AddrPort
}

func (e Entry) String() string {
	return fmt.Sprintf("%s -> %s", e.Prefix, e.NextHop)
}

// DuplicateError reports an entry whose prefix was already in the table.
// The first inserted entry is kept.
type DuplicateError struct {
	Kept    Entry
	Dropped Entry
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("route: duplicate prefix %s: keeping %s, ignoring %s", e.Kept.Prefix, e.Kept.NextHop, e.Dropped.NextHop)
}

// Table is the static routing table and self-address set of one router.
// It is immutable once built and safe for concurrent readers.
type Table struct {
	self    []netip.Addr
	selfSet map[netip.Addr]struct{}

	// byLen[n] maps masked networks of length n to their entry.
	byLen   [33]map[uint32]Entry
	lengths []uint8 // populated lengths, longest first
	entries []Entry // insertion order
}

// NewTable builds a table from self addresses and route entries. Entries
// repeating an earlier prefix are skipped and reported in dups; the table
// is still usable.
func NewTable(self []netip.Addr, entries []Entry) (t *Table, dups []error) {
	t = &Table{selfSet: make(map[netip.Addr]struct{}, len(self))}

	for _, a := range self {
		if _, ok := t.selfSet[a]; ok {
			continue
		}
		t.selfSet[a] = struct{}{}
		t.self = append(t.self, a)
	}

	for _, e := range entries {
		n := e.Prefix.Len
		if t.byLen[n] == nil {
			t.byLen[n] = make(map[uint32]Entry)
			t.lengths = append(t.lengths, n)
		}
		if kept, ok := t.byLen[n][e.Prefix.Network]; ok {
			dups = append(dups, &DuplicateError{Kept: kept, Dropped: e})
			continue
		}
		t.byLen[n][e.Prefix.Network] = e
		t.entries = append(t.entries, e)
	}

	sort.Slice(t.lengths, func(i, j int) bool { return t.lengths[i] > t.lengths[j] })
	return t, dups
}

// Lookup returns the entry with the longest prefix containing dst.
func (t *Table) Lookup(dst netip.Addr) (Entry, bool) {
	if !dst.Is4() {
		return Entry{}, false
	}
	v := U32(dst)
	for _, n := range t.lengths {
		if e, ok := t.byLen[n][v&Mask(n)]; ok {
			return e, true
		}
	}
	return Entry{}, false
}

func (t *Table) IsSelf(addr netip.Addr) bool {
	_, ok := t.selfSet[addr]
	return ok
}

// Primary is the address the router uses as the source of packets it
// originates. It is the first configured self address.
func (t *Table) Primary() (netip.Addr, bool) {
	if len(t.self) == 0 {
		return netip.Addr{}, false
	}
	return t.self[0], true
}

func (t *Table) SelfAddrs() []netip.Addr {
	return append([]netip.Addr(nil), t.self...)
}

// Entries lists the routes longest prefix first, insertion order within a
// length.
func (t *Table) Entries() []Entry {
	out := append([]Entry(nil), t.entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Prefix.Len > out[j].Prefix.Len })
	return out
}

func (t *Table) Len() int {
	return len(t.entries)
}
