// Package identity implements node identity and the per-message hash chain
// used to stamp every outbound datagram with a unique, sender-derived
// fingerprint. It is grounded on the CS-Node Hash/PublicKey model: a 40-byte
// message-chain hash and a 32-byte public-key digest, both produced with
// BLAKE2s.
package identity

import (
	"encoding/binary"
	"net"

	"golang.org/x/crypto/blake2s"
)

// NodeID is a node's IPv4 address packed into 32 bits. It serves both as a
// network endpoint identifier and as the round-table notion of a node's
// identity.
type NodeID uint32

// NodeIDFromIP packs an IPv4 address into a NodeID. Non-IPv4 addresses pack
// as zero.
func NodeIDFromIP(ip net.IP) NodeID {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return NodeID(binary.BigEndian.Uint32(v4))
}

// IP unpacks the NodeID back into a net.IP.
func (id NodeID) IP() net.IP {
	b := make(net.IP, 4)
	binary.BigEndian.PutUint32(b, uint32(id))
	return b
}

// String returns the dotted-quad representation.
func (id NodeID) String() string { return id.IP().String() }

const (
	// HashLength is the size in bytes of a Hash value.
	HashLength = 40

	// PublicKeyLength is the size in bytes of a PublicKey value.
	PublicKeyLength = 32

	// PublicKeyTextLength is the length of the human-readable key string
	// a PublicKey is derived from.
	PublicKeyTextLength = 44

	digestLength = 32
)

// Hash is a fixed-size 40-byte message-chain hash: 8 reserved/zero bytes
// followed by a 32-byte BLAKE2s digest.
type Hash [HashLength]byte

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// PublicKey is a fixed-size 32-byte digest of a node's public key text.
type PublicKey [PublicKeyLength]byte

// PublicKeyFromString derives a PublicKey by hashing the given key string.
// The source format is a 44-character encoded key; callers are expected to
// validate length before calling (a mismatched length still hashes, but the
// result will not match a peer using the canonical encoding).
func PublicKeyFromString(keyText string) PublicKey {
	return PublicKey(blake2s.Sum256([]byte(keyText)))
}

// hashFromDigest packs a 32-byte BLAKE2s digest into the 40-byte Hash shape:
// 8 zero bytes followed by the digest itself.
func hashFromDigest(digest [digestLength]byte) Hash {
	var h Hash
	copy(h[HashLength-digestLength:], digest[:])
	return h
}

// ComputeNodeHash derives a node's initial message-chain hash from its IP
// and the textual form of its public key, by hashing ip || public_key_text.
func ComputeNodeHash(ip net.IP, publicKeyText string) Hash {
	v4 := ip.To4()
	buf := make([]byte, 0, 4+len(publicKeyText))
	if v4 != nil {
		buf = append(buf, v4...)
	} else {
		buf = append(buf, ip...)
	}
	buf = append(buf, publicKeyText...)
	digest := blake2s.Sum256(buf)
	return hashFromDigest(digest)
}

// MessageHasher produces a unique-per-sender message hash for every
// outbound message. It chains on an internal counter so that distinct
// messages sent by the same node in the same session never collide, even
// when their payloads are identical.
//
// Layout of the internal buffer: [0:32) counter state (only the first 4
// bytes are a little-endian counter; the rest stay zero), [32:64) the
// node's public key, [64:96) scratch space for the BLAKE2s digest of the
// current payload.
type MessageHasher struct {
	buffer [32 + PublicKeyLength + digestLength]byte
}

// NewMessageHasher creates a hasher seeded with the given public key and a
// zero counter.
func NewMessageHasher(pub PublicKey) *MessageHasher {
	h := &MessageHasher{}
	copy(h.buffer[32:32+PublicKeyLength], pub[:])
	return h
}

// NextHash computes the message hash for payload and advances the internal
// counter so the next call (even with an identical payload) yields a
// different hash.
func (h *MessageHasher) NextHash(payload []byte) Hash {
	digest := blake2s.Sum256(payload)
	copy(h.buffer[32+PublicKeyLength:], digest[:])

	out := blake2s.Sum256(h.buffer[:])
	result := hashFromDigest(out)

	counter := binary.LittleEndian.Uint32(h.buffer[0:4])
	binary.LittleEndian.PutUint32(h.buffer[0:4], counter+1)

	return result
}
