package packet

import (
	"bytes"
	"testing"
)

func sampleHeader() Packet {
	var p Packet
	p.Command = CmdGetTransaction
	p.Subcommand = SubEmpty
	p.Version = 5
	p.OriginIP = 0x0A000001
	for i := range p.SenderHash {
		p.SenderHash[i] = byte(i)
	}
	for i := range p.SenderPublicKey {
		p.SenderPublicKey[i] = byte(200 + i)
	}
	for i := range p.MessageHash {
		p.MessageHash[i] = byte(100 + i)
	}
	p.FragmentIndex = 3
	p.FragmentCount = 7
	return p
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := sampleHeader()
	p.Payload = []byte("hello fragment payload")

	buf := make([]byte, Size)
	n, err := p.Encode(buf)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Command != p.Command || got.Subcommand != p.Subcommand || got.Version != p.Version {
		t.Fatalf("header command/subcommand/version mismatch: got %+v", got)
	}
	if got.OriginIP != p.OriginIP {
		t.Fatalf("OriginIP mismatch: got %x want %x", got.OriginIP, p.OriginIP)
	}
	if got.SenderHash != p.SenderHash || got.MessageHash != p.MessageHash {
		t.Fatal("hash fields did not round trip")
	}
	if got.SenderPublicKey != p.SenderPublicKey {
		t.Fatal("sender public key did not round trip")
	}
	if got.FragmentIndex != p.FragmentIndex || got.FragmentCount != p.FragmentCount {
		t.Fatalf("fragment fields mismatch: got index=%d count=%d", got.FragmentIndex, got.FragmentCount)
	}
	if !bytes.Equal(got.Payload, p.Payload) {
		t.Fatalf("payload mismatch: got %q want %q", got.Payload, p.Payload)
	}
	if !got.IsFragmented() {
		t.Fatal("expected IsFragmented true for nonzero FragmentCount")
	}
}

func TestIsFragmentedFalseWhenSingle(t *testing.T) {
	p := sampleHeader()
	p.FragmentCount = 0
	if p.IsFragmented() {
		t.Fatal("FragmentCount == 0 should mean not fragmented")
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := Decode(make([]byte, HeaderLength-1))
	if err != ErrShortPacket {
		t.Fatalf("expected ErrShortPacket, got %v", err)
	}
}

func TestEncodeDestinationTooSmall(t *testing.T) {
	p := sampleHeader()
	p.Payload = make([]byte, 10)
	_, err := p.Encode(make([]byte, HeaderLength))
	if err == nil {
		t.Fatal("expected an error encoding into a too-small buffer")
	}
}

func TestFragmentCountForBoundaries(t *testing.T) {
	cases := []struct {
		length    int
		wantN     int
		wantCount uint16
	}{
		{0, 1, 0},
		{1, 1, 0},
		{MaxPayload, 1, 0},
		{MaxPayload + 1, 2, 2},
		{MaxPayload * 2, 2, 2},
		{MaxPayload*2 + 1, 3, 3},
	}
	for _, c := range cases {
		n, wire := FragmentCountFor(c.length)
		if n != c.wantN || wire != c.wantCount {
			t.Errorf("FragmentCountFor(%d) = (%d, %d), want (%d, %d)", c.length, n, wire, c.wantN, c.wantCount)
		}
	}
}

func TestFragmentCountForAtMaxFragmentsBoundary(t *testing.T) {
	n, wire := FragmentCountFor(MaxFragments * MaxPayload)
	if n != MaxFragments || wire != MaxFragments {
		t.Fatalf("expected exactly MaxFragments fragments at the boundary, got n=%d wire=%d", n, wire)
	}
}
