// Package packet implements the fixed-size wire record exchanged over UDP
// (Packet), the pooled buffers it is encoded into, and the framing rules
// that split an oversized logical Message into packet-sized fragments.
//
// Grounded on the CS-Node net::Packet/net::SessionIO model: every datagram
// has the same on-wire size regardless of how much of its payload is
// meaningful, which lets the transport layer reuse one pool of buffers for
// every fragment of every message.
package packet

import (
	"encoding/binary"
	"errors"

	"github.com/puppy86/CS-Node/identity"
)

const (
	// MaxPayload is the number of payload bytes carried by one packet.
	MaxPayload = 62440

	// MaxFragments is the largest legal fragment_count for a message.
	MaxFragments = 2048

	// HeaderLength is the size in bytes of everything in a Packet except
	// its payload: command, subcommand, version, origin_ip, sender_hash,
	// sender_public_key, message_hash, fragment_index, fragment_count.
	HeaderLength = 1 + 1 + 1 + 4 + identity.HashLength + identity.PublicKeyLength + identity.HashLength + 2 + 2

	// Size is the fixed total size of one packet on the wire.
	Size = HeaderLength + MaxPayload
)

// ErrShortPacket is returned when decoding a buffer shorter than HeaderLength.
var ErrShortPacket = errors.New("packet: buffer shorter than header")

// Packet is the fixed-size record exchanged over UDP. FragmentCount == 0
// means the message occupies exactly this one packet.
type Packet struct {
	Command         Command
	Subcommand      Subcommand
	Version         byte
	OriginIP        uint32
	SenderHash      identity.Hash
	SenderPublicKey identity.PublicKey
	MessageHash     identity.Hash
	FragmentIndex   uint16
	FragmentCount   uint16
	Payload         []byte // up to MaxPayload bytes of logical data
}

// IsFragmented reports whether this packet is one of several fragments of
// a larger message.
func (p *Packet) IsFragmented() bool { return p.FragmentCount > 0 }

// Encode writes the packet's header and payload into dst, which must be at
// least HeaderLength+len(p.Payload) bytes. It returns the number of bytes
// written (the header plus only the meaningful payload bytes -- unlike the
// fixed on-wire buffer size, Encode does not pad).
func (p *Packet) Encode(dst []byte) (int, error) {
	need := HeaderLength + len(p.Payload)
	if len(dst) < need {
		return 0, errors.New("packet: destination buffer too small")
	}
	dst[0] = byte(p.Command)
	dst[1] = byte(p.Subcommand)
	dst[2] = p.Version
	binary.LittleEndian.PutUint32(dst[3:7], p.OriginIP)
	off := 7
	copy(dst[off:off+identity.HashLength], p.SenderHash[:])
	off += identity.HashLength
	copy(dst[off:off+identity.PublicKeyLength], p.SenderPublicKey[:])
	off += identity.PublicKeyLength
	copy(dst[off:off+identity.HashLength], p.MessageHash[:])
	off += identity.HashLength
	binary.LittleEndian.PutUint16(dst[off:off+2], p.FragmentIndex)
	off += 2
	binary.LittleEndian.PutUint16(dst[off:off+2], p.FragmentCount)
	off += 2
	copy(dst[off:], p.Payload)
	return off + len(p.Payload), nil
}

// Decode parses a Packet's header out of src and references the remaining
// bytes as Payload (no copy). The caller must keep src alive for as long as
// the returned Packet's Payload is used, or copy it out explicitly.
func Decode(src []byte) (Packet, error) {
	var p Packet
	if len(src) < HeaderLength {
		return p, ErrShortPacket
	}
	p.Command = Command(src[0])
	p.Subcommand = Subcommand(src[1])
	p.Version = src[2]
	p.OriginIP = binary.LittleEndian.Uint32(src[3:7])
	off := 7
	copy(p.SenderHash[:], src[off:off+identity.HashLength])
	off += identity.HashLength
	copy(p.SenderPublicKey[:], src[off:off+identity.PublicKeyLength])
	off += identity.PublicKeyLength
	copy(p.MessageHash[:], src[off:off+identity.HashLength])
	off += identity.HashLength
	p.FragmentIndex = binary.LittleEndian.Uint16(src[off : off+2])
	off += 2
	p.FragmentCount = binary.LittleEndian.Uint16(src[off : off+2])
	off += 2
	p.Payload = src[off:]
	return p, nil
}

// FragmentCountFor returns the number of fragments needed to carry a
// message of the given length, and the wire-level fragment_count value
// (0 when the message fits in a single packet).
func FragmentCountFor(length int) (n int, wireCount uint16) {
	n = 1
	if length > 0 {
		n = (length + MaxPayload - 1) / MaxPayload
		if n == 0 {
			n = 1
		}
	}
	if n == 1 {
		return 1, 0
	}
	return n, uint16(n)
}
