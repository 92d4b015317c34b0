package kstate

import (
	"encoding/hex"
	"strings"
)

// Bytes is an immutable byte sequence used as the key of every raw store.
// Bytes values order by unsigned byte-wise lexicographic comparison, a
// prefix sorting before any longer sequence it prefixes. The zero value is
// the empty key.
//
// Bytes is comparable and can be used as a map key; two values are equal iff
// their contents are identical.
type Bytes struct {
	s string
}

// NewBytes copies b into a new key.
func NewBytes(b []byte) Bytes {
	return Bytes{s: string(b)}
}

// BytesOf returns the key with the bytes of s.
func BytesOf(s string) Bytes {
	return Bytes{s: s}
}

// Get returns a copy of the key's content.
func (b Bytes) Get() []byte {
	return []byte(b.s)
}

func (b Bytes) Len() int {
	return len(b.s)
}

// Compare returns -1, 0 or +1.
func (b Bytes) Compare(other Bytes) int {
	return strings.Compare(b.s, other.s)
}

func (b Bytes) Less(other Bytes) bool {
	return b.s < other.s
}

func (b Bytes) Equal(other Bytes) bool {
	return b.s == other.s
}

// String renders the key as hex.
func (b Bytes) String() string {
	return hex.EncodeToString([]byte(b.s))
}

// UpperBoundExclusive returns the smallest key strictly greater than b, for
// engines whose range scans take an exclusive upper bound.
func (b Bytes) UpperBoundExclusive() []byte {
	out := make([]byte, len(b.s)+1)
	copy(out, b.s)
	return out
}
