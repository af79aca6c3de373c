package csdb

import "encoding/binary"

// putUvarint appends a varint-encoded uint64 to dst in encoding/binary's
// unsigned varint format: 7 value bits per byte, so a u64 takes from 1 up
// to binary.MaxVarintLen64 (10) bytes. There is no third-party varint codec
// anywhere in the example corpus, so this stays on encoding/binary.
func putUvarint(dst []byte, v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return append(dst, buf[:n]...)
}

// getUvarint reads a varint-encoded uint64 from the front of src,
// returning the value and the number of bytes consumed (0 on error).
func getUvarint(src []byte) (uint64, int) {
	return binary.Uvarint(src)
}

func putVarint(dst []byte, v int64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutVarint(buf[:], v)
	return append(dst, buf[:n]...)
}

func getVarint(src []byte) (int64, int) {
	return binary.Varint(src)
}

// putBytes writes a length-prefixed (varint) byte string.
func putBytes(dst []byte, b []byte) []byte {
	dst = putUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

// getBytes reads a length-prefixed (varint) byte string.
func getBytes(src []byte) ([]byte, int, error) {
	n, consumed := getUvarint(src)
	if consumed <= 0 {
		return nil, 0, errShortBuffer
	}
	total := consumed + int(n)
	if total > len(src) || int(n) < 0 {
		return nil, 0, errShortBuffer
	}
	return src[consumed:total], total, nil
}
