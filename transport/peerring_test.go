package transport

import (
	"net"
	"testing"
)

func TestEndpointFromUDPRoundTrip(t *testing.T) {
	udp := &net.UDPAddr{IP: net.ParseIP("203.0.113.5"), Port: 4321}
	ep := EndpointFromUDP(udp)
	back := ep.UDPAddr()
	if !back.IP.Equal(udp.IP) || back.Port != udp.Port {
		t.Fatalf("round trip mismatch: got %v, want %v", back, udp)
	}
}

func TestPeerRingAddAndContains(t *testing.T) {
	r := NewPeerRing(3)
	a := Endpoint{IP: [4]byte{1, 1, 1, 1}, Port: 1}
	r.Add(a)
	if !r.Contains(a) {
		t.Fatal("ring should contain an added endpoint")
	}
	if r.Len() != 1 {
		t.Fatalf("expected length 1, got %d", r.Len())
	}
}

func TestPeerRingAddIsIdempotent(t *testing.T) {
	r := NewPeerRing(3)
	a := Endpoint{IP: [4]byte{1, 1, 1, 1}, Port: 1}
	r.Add(a)
	r.Add(a)
	if r.Len() != 1 {
		t.Fatalf("re-adding a member should not grow the ring, got len %d", r.Len())
	}
}

func TestPeerRingEvictsOldestAtCapacity(t *testing.T) {
	r := NewPeerRing(2)
	a := Endpoint{IP: [4]byte{1, 0, 0, 0}, Port: 1}
	b := Endpoint{IP: [4]byte{2, 0, 0, 0}, Port: 2}
	c := Endpoint{IP: [4]byte{3, 0, 0, 0}, Port: 3}

	r.Add(a)
	r.Add(b)
	r.Add(c)

	if r.Contains(a) {
		t.Fatal("oldest endpoint should have been evicted")
	}
	if !r.Contains(b) || !r.Contains(c) {
		t.Fatal("the two most recent endpoints should remain")
	}
	if r.Len() != 2 {
		t.Fatalf("expected length capped at 2, got %d", r.Len())
	}
}

func TestPeerRingSnapshotOrderAndIndependence(t *testing.T) {
	r := NewPeerRing(5)
	a := Endpoint{IP: [4]byte{1, 0, 0, 0}, Port: 1}
	b := Endpoint{IP: [4]byte{2, 0, 0, 0}, Port: 2}
	r.Add(a)
	r.Add(b)

	snap := r.Snapshot()
	if len(snap) != 2 || snap[0] != a || snap[1] != b {
		t.Fatalf("snapshot should preserve insertion order, got %v", snap)
	}

	snap[0] = Endpoint{}
	if r.Snapshot()[0] != a {
		t.Fatal("mutating a snapshot should not affect the ring")
	}
}

func TestNewDefaultPeerRingCapacity(t *testing.T) {
	r := NewDefaultPeerRing()
	if r.capacity != peerRingCapacity {
		t.Fatalf("expected default capacity %d, got %d", peerRingCapacity, r.capacity)
	}
}
