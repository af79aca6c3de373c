package csdb

import (
	"sync/atomic"

	"github.com/puppy86/CS-Node/identity"
)

type poolState int

const (
	stateMutable poolState = iota
	stateComposed
	stateLoaded
)

// Pool is a block: an ordered bundle of transactions linked to its
// predecessor by hash (spec §3). It has three lifecycle states --
// Mutable (under construction), Composed (compose() has fixed its
// serialization and hash), and Loaded (reconstructed from bytes,
// structurally identical to Composed). Mutation is only legal while
// Mutable.
type Pool struct {
	previousHash PoolHash
	sequence     uint64
	writerKey    identity.PublicKey
	signature    []byte
	transactions []Transaction
	fields       userFieldMap

	state  poolState
	binary atomic.Pointer[[]byte]
	hash   atomic.Pointer[PoolHash]
}

// NewPool creates a fresh Mutable pool with the given predecessor hash
// and sequence number. An empty previousHash marks a genesis pool.
func NewPool(previousHash PoolHash, sequence uint64) *Pool {
	return &Pool{
		previousHash: previousHash.Clone(),
		sequence:     sequence,
		fields:       newUserFieldMap(),
	}
}

// Sequence returns the pool's position in the chain.
func (p *Pool) Sequence() uint64 { return p.sequence }

// PreviousHash returns the predecessor's hash (empty for genesis).
func (p *Pool) PreviousHash() PoolHash { return p.previousHash.Clone() }

// IsMutable reports whether transactions/fields may still be added.
func (p *Pool) IsMutable() bool { return p.state == stateMutable }

// IsComposed reports whether compose() has run (Composed or Loaded).
func (p *Pool) IsComposed() bool { return p.state != stateMutable }

// SetWriterPublicKey attaches the key of the node that produced this
// pool. Only legal on a Mutable pool.
func (p *Pool) SetWriterPublicKey(key identity.PublicKey) error {
	if !p.IsMutable() {
		return errMalformed
	}
	p.writerKey = key
	return nil
}

// WriterPublicKey returns the writer's public key.
func (p *Pool) WriterPublicKey() identity.PublicKey { return p.writerKey }

// SetSignature attaches the writer's signature over the composed binary.
// Only legal on a Mutable pool; typically called after compose() has run
// on a clone used to compute the to-be-signed bytes, or before compose()
// with the signature appended as the pool's own trailing field.
func (p *Pool) SetSignature(sig []byte) error {
	if !p.IsMutable() {
		return errMalformed
	}
	p.signature = append([]byte(nil), sig...)
	return nil
}

// Signature returns the writer's signature bytes.
func (p *Pool) Signature() []byte { return p.signature }

// SetUserField attaches a pool-level tagged value.
func (p *Pool) SetUserField(id int32, f UserField) error {
	if !p.IsMutable() {
		return errMalformed
	}
	p.fields.set(id, f)
	return nil
}

// UserField retrieves a pool-level tagged value.
func (p *Pool) UserField(id int32) (UserField, bool) { return p.fields.get(id) }

// Transactions returns the pool's transactions in insertion order. The
// returned slice must not be mutated by the caller.
func (p *Pool) Transactions() []Transaction { return p.transactions }

// TransactionCount returns the number of transactions in the pool.
func (p *Pool) TransactionCount() int { return len(p.transactions) }

// AddTransaction appends t to the pool, enforcing the core add-transaction
// rule (spec §4.7): rejected if t.Source already has an unsigned pending
// transaction with the same InnerID in this pool, unless allowDuplicateInnerID
// is set (the unit-test escape hatch spec.md names). Also rejected once the
// pool has been composed.
func (p *Pool) AddTransaction(t Transaction, allowDuplicateInnerID bool) error {
	if !p.IsMutable() {
		return errMalformed
	}
	if !allowDuplicateInnerID {
		for _, existing := range p.transactions {
			if existing.Source == t.Source && existing.InnerID == t.InnerID && !existing.Signed {
				return errMalformed
			}
		}
	}
	p.transactions = append(p.transactions, t)
	return nil
}

// Compose transitions a Mutable pool to Composed: it fixes the binary
// serialization and the hash, then forbids further mutation.
func (p *Pool) Compose() PoolHash {
	if p.IsComposed() {
		if h := p.hash.Load(); h != nil {
			return *h
		}
	}
	bin := p.encode()
	h := CalcFromData(bin)
	p.binary.Store(&bin)
	p.hash.Store(&h)
	p.state = stateComposed
	return h
}

// Hash returns the pool's content hash, composing it first if necessary.
func (p *Pool) Hash() PoolHash {
	if h := p.hash.Load(); h != nil {
		return *h
	}
	return p.Compose()
}

// ToBinary returns the pool's composed binary form. The pool is composed
// first if it hadn't been already.
func (p *Pool) ToBinary() []byte {
	if b := p.binary.Load(); b != nil {
		return *b
	}
	p.Compose()
	return *p.binary.Load()
}

func (p *Pool) encode() []byte {
	dst := make([]byte, 0, 256)
	dst = putBytes(dst, p.previousHash)
	dst = putUvarint(dst, p.sequence)
	dst = append(dst, p.writerKey[:]...)
	dst = putUvarint(dst, uint64(len(p.transactions)))
	for _, t := range p.transactions {
		dst = t.encode(dst)
	}
	dst = p.fields.encode(dst)
	dst = putBytes(dst, p.signature)
	return dst
}

// FromBinary reconstructs a read-only (Loaded) pool from its binary form.
// It returns an error if the byte stream is malformed.
func FromBinary(data []byte) (*Pool, error) {
	p := &Pool{fields: newUserFieldMap()}
	off := 0

	prevHash, n, err := getBytes(data[off:])
	if err != nil {
		return nil, err
	}
	p.previousHash = PoolHash(prevHash).Clone()
	off += n

	seq, n := getUvarint(data[off:])
	if n <= 0 {
		return nil, errShortBuffer
	}
	p.sequence = seq
	off += n

	if len(data) < off+identity.PublicKeyLength {
		return nil, errShortBuffer
	}
	copy(p.writerKey[:], data[off:off+identity.PublicKeyLength])
	off += identity.PublicKeyLength

	count, n := getUvarint(data[off:])
	if n <= 0 {
		return nil, errShortBuffer
	}
	off += n
	p.transactions = make([]Transaction, 0, count)
	for i := uint64(0); i < count; i++ {
		t, n, err := decodeTransaction(data[off:])
		if err != nil {
			return nil, err
		}
		off += n
		p.transactions = append(p.transactions, t)
	}

	fields, n, err := decodeUserFieldMap(data[off:])
	if err != nil {
		return nil, err
	}
	p.fields = fields
	off += n

	sig, n, err := getBytes(data[off:])
	if err != nil {
		return nil, err
	}
	p.signature = append([]byte(nil), sig...)
	off += n

	bin := append([]byte(nil), data...)
	h := CalcFromData(bin)
	p.binary.Store(&bin)
	p.hash.Store(&h)
	p.state = stateLoaded
	return p, nil
}

// MetaFromBinary decodes only the header of a pool (previous hash,
// sequence, writer key) and the transaction count, without materializing
// any transaction. Storage's rescan does not use it; rescan decodes each
// pool in full with FromBinary.
type PoolMeta struct {
	PreviousHash PoolHash
	Sequence     uint64
	WriterKey    identity.PublicKey
	TxCount      uint64
}

func MetaFromBinary(data []byte) (PoolMeta, error) {
	var m PoolMeta
	off := 0
	prevHash, n, err := getBytes(data[off:])
	if err != nil {
		return m, err
	}
	m.PreviousHash = PoolHash(prevHash).Clone()
	off += n

	seq, n := getUvarint(data[off:])
	if n <= 0 {
		return m, errShortBuffer
	}
	m.Sequence = seq
	off += n

	if len(data) < off+identity.PublicKeyLength {
		return m, errShortBuffer
	}
	copy(m.WriterKey[:], data[off:off+identity.PublicKeyLength])
	off += identity.PublicKeyLength

	count, n := getUvarint(data[off:])
	if n <= 0 {
		return m, errShortBuffer
	}
	m.TxCount = count
	return m, nil
}

// GetLastBySource returns the most recent (last-inserted) transaction in
// the pool whose source matches addr. Resolves spec §9's open question:
// "last" means last insertion order, since the pool's transaction slice
// already is ordered that way.
func (p *Pool) GetLastBySource(addr Address) (Transaction, bool) {
	for i := len(p.transactions) - 1; i >= 0; i-- {
		if p.transactions[i].Source == addr {
			return p.transactions[i], true
		}
	}
	return Transaction{}, false
}

// GetLastByTarget returns the most recent (last-inserted) transaction in
// the pool whose target matches addr.
func (p *Pool) GetLastByTarget(addr Address) (Transaction, bool) {
	for i := len(p.transactions) - 1; i >= 0; i-- {
		if p.transactions[i].Target == addr {
			return p.transactions[i], true
		}
	}
	return Transaction{}, false
}

// LinksTo reports whether p is the direct successor of prev on the main
// chain: p.previous_hash == prev.hash and p.sequence == prev.sequence+1
// (spec §3 chain-linking invariant).
func (p *Pool) LinksTo(prev *Pool) bool {
	return p.previousHash.Equal(prev.Hash()) && p.sequence == prev.sequence+1
}
