package transport

import "net"

// peerRingCapacity bounds the peer ring (spec §3).
const peerRingCapacity = 500

// Endpoint is a UDP peer address.
type Endpoint struct {
	IP   [4]byte
	Port uint16
}

// EndpointFromUDP converts a net.UDPAddr to an Endpoint, truncating to
// IPv4 (the wire protocol's origin_ip field is a u32).
func EndpointFromUDP(addr *net.UDPAddr) Endpoint {
	var ep Endpoint
	if v4 := addr.IP.To4(); v4 != nil {
		copy(ep.IP[:], v4)
	}
	ep.Port = uint16(addr.Port)
	return ep
}

// UDPAddr converts back to a net.UDPAddr.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(e.IP[0], e.IP[1], e.IP[2], e.IP[3]), Port: int(e.Port)}
}

// PeerRing is a bounded, insertion-ordered set of peer endpoints (spec
// §3, §4 "Peer Ring"). On overflow the oldest is evicted; membership has
// no duplicates and iteration/snapshot order follows insertion order,
// used for broadcast.
type PeerRing struct {
	capacity int
	order    []Endpoint
	members  map[Endpoint]struct{}
}

// NewPeerRing creates a ring bounded at capacity endpoints.
func NewPeerRing(capacity int) *PeerRing {
	return &PeerRing{capacity: capacity, members: make(map[Endpoint]struct{}, capacity)}
}

// NewDefaultPeerRing creates a ring sized per spec §3 (capacity 500).
func NewDefaultPeerRing() *PeerRing {
	return NewPeerRing(peerRingCapacity)
}

// Add registers ep, evicting the oldest entry if the ring is full and ep
// is not already a member. Adding an existing member is a no-op (it does
// not move to the back).
func (r *PeerRing) Add(ep Endpoint) {
	if _, ok := r.members[ep]; ok {
		return
	}
	if len(r.order) >= r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.members, oldest)
	}
	r.order = append(r.order, ep)
	r.members[ep] = struct{}{}
}

// Contains reports ring membership.
func (r *PeerRing) Contains(ep Endpoint) bool {
	_, ok := r.members[ep]
	return ok
}

// Len returns the current number of members.
func (r *PeerRing) Len() int { return len(r.order) }

// Snapshot returns a copy of the ring's members in insertion order, for
// a broadcast task to target.
func (r *PeerRing) Snapshot() []Endpoint {
	out := make([]Endpoint, len(r.order))
	copy(out, r.order)
	return out
}
