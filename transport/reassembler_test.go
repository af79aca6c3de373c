package transport

import (
	"bytes"
	"testing"

	"github.com/puppy86/CS-Node/identity"
)

func TestReassemblerCombinesInOrder(t *testing.T) {
	r := NewReassembler(10)
	var mh identity.Hash
	mh[0] = 1

	parts := [][]byte{[]byte("hello "), []byte("frag"), []byte("mented")}
	for i, p := range parts {
		e, accepted := r.Append(mh, uint16(i), uint16(len(parts)), p)
		if !accepted {
			t.Fatalf("fragment %d should be newly accepted", i)
		}
		if i < len(parts)-1 && e.Remaining() == 0 {
			t.Fatalf("should not be complete after %d of %d fragments", i+1, len(parts))
		}
	}

	got := r.Complete(mh)
	want := bytes.Join([][]byte{parts[0], parts[1], parts[2]}, nil)
	if !bytes.Equal(got, want) {
		t.Fatalf("combined payload mismatch: got %q want %q", got, want)
	}

	// Complete removes the entry.
	if got2 := r.Complete(mh); got2 != nil {
		t.Fatalf("second Complete on the same hash should return nil, got %v", got2)
	}
}

func TestReassemblerRejectsDuplicateFragment(t *testing.T) {
	r := NewReassembler(10)
	var mh identity.Hash
	mh[0] = 2

	r.Append(mh, 0, 2, []byte("a"))
	_, accepted := r.Append(mh, 0, 2, []byte("a-again"))
	if accepted {
		t.Fatal("re-sending fragment 0 should not be accepted as new")
	}
}

func TestReassemblerEvictsOldestAtCapacity(t *testing.T) {
	r := NewReassembler(2)
	var h1, h2, h3 identity.Hash
	h1[0], h2[0], h3[0] = 1, 2, 3

	r.Append(h1, 0, 2, []byte("x"))
	r.Append(h2, 0, 2, []byte("y"))
	// h1 should be evicted to admit h3.
	r.Append(h3, 0, 2, []byte("z"))

	if out := r.Complete(h1); out != nil {
		t.Fatal("oldest in-progress message should have been evicted")
	}
}

func TestLastFragmentSize(t *testing.T) {
	cases := []struct {
		total int
		want  int
	}{
		{0, 0},
		{1, 1},
		{62440, 62440},
		{62441, 1},
		{62440 * 2, 62440},
	}
	for _, c := range cases {
		if got := LastFragmentSize(c.total); got != c.want {
			t.Errorf("LastFragmentSize(%d) = %d, want %d", c.total, got, c.want)
		}
	}
}
