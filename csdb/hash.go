// Package csdb implements the in-memory block and transaction model:
// PoolHash, Pool, Transaction, Amount, and the compact binary codec used
// to persist and re-load them.
package csdb

import (
	"bytes"

	"golang.org/x/crypto/blake2s"
)

// PoolHash is the content hash of a pool's binary form: an opaque byte
// string that is either empty (genesis has no predecessor) or exactly
// HashLength bytes. Equality and ordering are lexicographic on bytes.
type PoolHash []byte

// HashLength is the size in bytes of a non-empty PoolHash.
const HashLength = 32

// Empty reports whether h is the empty (genesis-predecessor) hash.
func (h PoolHash) Empty() bool { return len(h) == 0 }

// Equal reports byte-for-byte equality.
func (h PoolHash) Equal(other PoolHash) bool { return bytes.Equal(h, other) }

// Less reports whether h sorts before other lexicographically.
func (h PoolHash) Less(other PoolHash) bool { return bytes.Compare(h, other) < 0 }

// Clone returns an independent copy of h.
func (h PoolHash) Clone() PoolHash {
	if h == nil {
		return nil
	}
	cp := make(PoolHash, len(h))
	copy(cp, h)
	return cp
}

// String renders the hash as a hex string ("" for an empty hash).
func (h PoolHash) String() string {
	if h.Empty() {
		return ""
	}
	const hextable = "0123456789abcdef"
	out := make([]byte, len(h)*2)
	for i, b := range h {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

// CalcFromData returns the content hash of an arbitrary byte string. It
// is the independent hash storage uses to verify pool.hash() against a
// key/value entry's key during rescan (spec §4.8.1).
func CalcFromData(data []byte) PoolHash {
	digest := blake2s.Sum256(data)
	return PoolHash(digest[:])
}
