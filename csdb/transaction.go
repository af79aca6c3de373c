package csdb

import "github.com/puppy86/CS-Node/identity"

// Address identifies a transaction participant. The original source uses
// a 32-byte public-key-derived address; this module reuses identity's
// PublicKey shape since the two are the same size and role.
type Address = identity.PublicKey

// TransactionID identifies a transaction by the pool it lives in and its
// position within that pool, per spec §3.
type TransactionID struct {
	PoolHash PoolHash
	Index    int32
}

// Valid reports whether the id could plausibly reference a stored
// transaction -- a non-empty pool hash and a non-negative index. Ported
// from original_source's TransactionID::is_valid().
func (id TransactionID) Valid() bool {
	return !id.PoolHash.Empty() && id.Index >= 0
}

// Transaction is a single transfer within a Pool.
type Transaction struct {
	Source   Address
	Target   Address
	Currency int32
	Amount   Amount
	Balance  Amount
	hasBalance bool

	InnerID  int64 // the source's own sequence number for this transaction
	Signed   bool
	fields   userFieldMap
}

// NewTransaction constructs a transaction with no user fields set.
func NewTransaction(source, target Address, currency int32, amount Amount, innerID int64) Transaction {
	return Transaction{
		Source:   source,
		Target:   target,
		Currency: currency,
		Amount:   amount,
		InnerID:  innerID,
		fields:   newUserFieldMap(),
	}
}

// SetBalance attaches the optional post-transaction balance.
func (t *Transaction) SetBalance(b Amount) { t.Balance = b; t.hasBalance = true }

// HasBalance reports whether a balance was attached.
func (t *Transaction) HasBalance() bool { return t.hasBalance }

// SetUserField attaches a tagged value under id.
func (t *Transaction) SetUserField(id int32, f UserField) {
	if t.fields.fields == nil {
		t.fields = newUserFieldMap()
	}
	t.fields.set(id, f)
}

// UserField retrieves a previously attached tagged value.
func (t *Transaction) UserField(id int32) (UserField, bool) { return t.fields.get(id) }

func (t Transaction) encode(dst []byte) []byte {
	dst = append(dst, t.Source[:]...)
	dst = append(dst, t.Target[:]...)
	dst = putVarint(dst, int64(t.Currency))
	dst = putVarint(dst, int64(t.Amount.Integral))
	dst = putUvarint(dst, t.Amount.Fraction)
	if t.hasBalance {
		dst = append(dst, 1)
		dst = putVarint(dst, int64(t.Balance.Integral))
		dst = putUvarint(dst, t.Balance.Fraction)
	} else {
		dst = append(dst, 0)
	}
	dst = putVarint(dst, t.InnerID)
	if t.Signed {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	dst = t.fields.encode(dst)
	return dst
}

// EncodeTransaction appends t's wire encoding to dst, the same codec used
// within a Pool's transaction list. Exposed standalone alongside
// DecodeTransaction for callers that build a bare transaction stream with
// no pool framing (spec §4.6.3's GetTransaction stream).
func EncodeTransaction(dst []byte, t Transaction) []byte {
	return t.encode(dst)
}

// DecodeTransaction decodes a single transaction from the front of src,
// returning the transaction and the number of bytes consumed. It is the
// same codec Pool uses for its transaction list, exposed standalone for
// streams that carry bare transactions with no pool framing (spec
// §4.6.3's GetTransaction stream).
func DecodeTransaction(src []byte) (Transaction, int, error) {
	return decodeTransaction(src)
}

func decodeTransaction(src []byte) (Transaction, int, error) {
	var t Transaction
	if len(src) < identity.PublicKeyLength*2 {
		return t, 0, errShortBuffer
	}
	off := 0
	copy(t.Source[:], src[off:off+identity.PublicKeyLength])
	off += identity.PublicKeyLength
	copy(t.Target[:], src[off:off+identity.PublicKeyLength])
	off += identity.PublicKeyLength

	currency, n := getVarint(src[off:])
	if n <= 0 {
		return t, 0, errShortBuffer
	}
	t.Currency = int32(currency)
	off += n

	integral, n := getVarint(src[off:])
	if n <= 0 {
		return t, 0, errShortBuffer
	}
	off += n
	fraction, n := getUvarint(src[off:])
	if n <= 0 {
		return t, 0, errShortBuffer
	}
	off += n
	amt, err := NewAmount(int32(integral), fraction)
	if err != nil {
		return t, 0, errMalformed
	}
	t.Amount = amt

	if len(src) <= off {
		return t, 0, errShortBuffer
	}
	hasBalance := src[off] == 1
	off++
	if hasBalance {
		bi, n := getVarint(src[off:])
		if n <= 0 {
			return t, 0, errShortBuffer
		}
		off += n
		bf, n := getUvarint(src[off:])
		if n <= 0 {
			return t, 0, errShortBuffer
		}
		off += n
		bal, err := NewAmount(int32(bi), bf)
		if err != nil {
			return t, 0, errMalformed
		}
		t.SetBalance(bal)
	}

	innerID, n := getVarint(src[off:])
	if n <= 0 {
		return t, 0, errShortBuffer
	}
	t.InnerID = innerID
	off += n

	if len(src) <= off {
		return t, 0, errShortBuffer
	}
	t.Signed = src[off] == 1
	off++

	fields, n, err := decodeUserFieldMap(src[off:])
	if err != nil {
		return t, 0, err
	}
	t.fields = fields
	off += n

	return t, off, nil
}
