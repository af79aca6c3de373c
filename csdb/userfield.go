package csdb

import "errors"

var errShortBuffer = errors.New("csdb: truncated binary data")
var errMalformed = errors.New("csdb: malformed binary data")

// UserFieldType tags the kind of value a UserField carries. Values are
// fixed by _examples/original_source's csdb_v2/include/csdb/user_field.h;
// there is no external wire partner for this module, but a stable tag is
// still needed for from_binary/to_binary round-tripping within itself.
type UserFieldType byte

const (
	FieldInteger UserFieldType = 1
	FieldString  UserFieldType = 2
	FieldAmount  UserFieldType = 3
)

// UserField is a tagged value attached to a Transaction or Pool by
// integer id (spec §3: "a user-field mapping from int32 id to tagged
// value").
type UserField struct {
	Type    UserFieldType
	Integer int64
	Str     string
	Amt     Amount
}

func IntegerField(v int64) UserField    { return UserField{Type: FieldInteger, Integer: v} }
func StringField(v string) UserField    { return UserField{Type: FieldString, Str: v} }
func AmountField(v Amount) UserField    { return UserField{Type: FieldAmount, Amt: v} }

func (f UserField) encode(dst []byte) []byte {
	dst = append(dst, byte(f.Type))
	switch f.Type {
	case FieldInteger:
		dst = putVarint(dst, f.Integer)
	case FieldString:
		dst = putBytes(dst, []byte(f.Str))
	case FieldAmount:
		dst = putVarint(dst, int64(f.Amt.Integral))
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(f.Amt.Fraction >> (8 * i))
		}
		dst = append(dst, buf[:]...)
	}
	return dst
}

func decodeUserField(src []byte) (UserField, int, error) {
	if len(src) < 1 {
		return UserField{}, 0, errShortBuffer
	}
	typ := UserFieldType(src[0])
	off := 1
	switch typ {
	case FieldInteger:
		v, n := getVarint(src[off:])
		if n <= 0 {
			return UserField{}, 0, errShortBuffer
		}
		return IntegerField(v), off + n, nil
	case FieldString:
		b, n, err := getBytes(src[off:])
		if err != nil {
			return UserField{}, 0, err
		}
		return StringField(string(b)), off + n, nil
	case FieldAmount:
		integral, n := getVarint(src[off:])
		if n <= 0 {
			return UserField{}, 0, errShortBuffer
		}
		off += n
		if len(src) < off+8 {
			return UserField{}, 0, errShortBuffer
		}
		var fraction uint64
		for i := 0; i < 8; i++ {
			fraction |= uint64(src[off+i]) << (8 * i)
		}
		off += 8
		amt, err := NewAmount(int32(integral), fraction)
		if err != nil {
			return UserField{}, 0, errMalformed
		}
		return AmountField(amt), off, nil
	default:
		return UserField{}, 0, errMalformed
	}
}

// userFieldMap is an ordered id->UserField mapping. Iteration order
// follows insertion order, matching Pool/Transaction's "insertion order"
// invariant for everything else they carry.
type userFieldMap struct {
	ids    []int32
	fields map[int32]UserField
}

func newUserFieldMap() userFieldMap {
	return userFieldMap{fields: make(map[int32]UserField)}
}

func (m *userFieldMap) set(id int32, f UserField) {
	if _, exists := m.fields[id]; !exists {
		m.ids = append(m.ids, id)
	}
	m.fields[id] = f
}

func (m *userFieldMap) get(id int32) (UserField, bool) {
	f, ok := m.fields[id]
	return f, ok
}

func (m *userFieldMap) len() int { return len(m.ids) }

func (m *userFieldMap) encode(dst []byte) []byte {
	dst = putUvarint(dst, uint64(len(m.ids)))
	for _, id := range m.ids {
		dst = putVarint(dst, int64(id))
		dst = m.fields[id].encode(dst)
	}
	return dst
}

func decodeUserFieldMap(src []byte) (userFieldMap, int, error) {
	m := newUserFieldMap()
	count, n := getUvarint(src)
	if n <= 0 {
		return m, 0, errShortBuffer
	}
	off := n
	for i := uint64(0); i < count; i++ {
		id, n := getVarint(src[off:])
		if n <= 0 {
			return m, 0, errShortBuffer
		}
		off += n
		f, n, err := decodeUserField(src[off:])
		if err != nil {
			return m, 0, err
		}
		off += n
		m.set(int32(id), f)
	}
	return m, off, nil
}

func (m *userFieldMap) clone() userFieldMap {
	cp := userFieldMap{ids: append([]int32(nil), m.ids...), fields: make(map[int32]UserField, len(m.fields))}
	for k, v := range m.fields {
		cp.fields[k] = v
	}
	return cp
}
