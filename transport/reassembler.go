package transport

import (
	"github.com/puppy86/CS-Node/identity"
	"github.com/puppy86/CS-Node/packet"
)

// reassemblyCapacity bounds the number of in-progress messages tracked
// at once (spec §3).
const reassemblyCapacity = 1000

// entry tracks the fragments received so far for one in-progress message
// (spec §3 "reassembly table").
type entry struct {
	fragmentCount int
	received      int
	totalBytes    int
	slots         [][]byte // payload bytes per fragment index, nil until received
}

// Remaining reports how many fragments are still outstanding.
func (e *entry) Remaining() int { return e.fragmentCount - e.received }

// Combine concatenates fragments 0..count-1 into the original payload.
// Valid only once Remaining() == 0.
func (e *entry) Combine() []byte {
	out := make([]byte, 0, e.totalBytes)
	for _, s := range e.slots {
		out = append(out, s...)
	}
	return out
}

// Reassembler groups packet fragments by message hash and reports
// completion (spec §4.3).
type Reassembler struct {
	capacity int
	order    []identity.Hash
	entries  map[identity.Hash]*entry
}

// NewReassembler creates a reassembler bounded at capacity in-progress
// messages.
func NewReassembler(capacity int) *Reassembler {
	return &Reassembler{capacity: capacity, entries: make(map[identity.Hash]*entry, capacity)}
}

// NewDefaultReassembler creates a reassembler sized per spec §3
// (capacity 1000).
func NewDefaultReassembler() *Reassembler {
	return NewReassembler(reassemblyCapacity)
}

// Append records one fragment of a message. It returns the message's
// entry and whether this fragment was newly accepted (false if this
// fragment_index was already seen for this message_hash).
func (r *Reassembler) Append(messageHash identity.Hash, fragmentIndex, fragmentCount uint16, payload []byte) (*entry, bool) {
	e, ok := r.entries[messageHash]
	if !ok {
		if len(r.entries) >= r.capacity {
			r.evictOldest()
		}
		e = &entry{fragmentCount: int(fragmentCount), slots: make([][]byte, fragmentCount)}
		r.entries[messageHash] = e
		r.order = append(r.order, messageHash)
	}

	if int(fragmentIndex) >= len(e.slots) || e.slots[fragmentIndex] != nil {
		return e, false
	}

	cp := make([]byte, len(payload))
	copy(cp, payload)
	e.slots[fragmentIndex] = cp
	e.received++
	e.totalBytes += len(cp)
	return e, true
}

// Complete removes and returns the finished message's combined payload.
// Callers must call this once Remaining() reaches zero to free the slot.
func (r *Reassembler) Complete(messageHash identity.Hash) []byte {
	e, ok := r.entries[messageHash]
	if !ok {
		return nil
	}
	out := e.Combine()
	delete(r.entries, messageHash)
	for i, h := range r.order {
		if h == messageHash {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return out
}

func (r *Reassembler) evictOldest() {
	if len(r.order) == 0 {
		return
	}
	oldest := r.order[0]
	r.order = r.order[1:]
	delete(r.entries, oldest)
}

// LastFragmentSize returns the size a final fragment should carry for a
// message of byte length L (used by both framing and the testable
// property in spec §8).
func LastFragmentSize(totalLength int) int {
	if totalLength == 0 {
		return 0
	}
	rem := totalLength % packet.MaxPayload
	if rem == 0 {
		return packet.MaxPayload
	}
	return rem
}
