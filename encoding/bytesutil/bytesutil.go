// Package bytesutil provides small byte-slice conversion helpers used
// throughout the SSZ codec and chain-spec helpers, mirroring the
// teacher's shared/bytesutil package.
package bytesutil

import "encoding/binary"

// ToBytes32 copies b into the start of a fixed 32-byte array, padding
// the end with zeroes or truncating as needed.
func ToBytes32(b []byte) [32]byte {
	var out [32]byte
	copy(out[:], b)
	return out
}

// ToBytes4 copies b into a fixed 4-byte array.
func ToBytes4(b []byte) [4]byte {
	var out [4]byte
	copy(out[:], b)
	return out
}

// Bytes8 little-endian encodes x into a new 8-byte slice.
func Bytes8(x uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, x)
	return b
}

// FromBytes8 decodes a little-endian uint64 from b, which must be at
// least 8 bytes.
func FromBytes8(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

// Bytes4 little-endian encodes x into a new 4-byte slice.
func Bytes4(x uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, x)
	return b
}

// Trunc returns the first 6 bytes of b, for compact logging of roots.
func Trunc(b []byte) []byte {
	if len(b) > 6 {
		return b[:6]
	}
	return b
}

// SafeCopyRootAtIndex copies the 32-byte root located at index i from a
// flat slice-of-roots list without panicking on an out-of-range index.
func SafeCopyRootAtIndex(roots [][32]byte, i uint64) [32]byte {
	if i >= uint64(len(roots)) {
		return [32]byte{}
	}
	return roots[i]
}

// XorBytes32 xors a and b byte-wise into a new 32-byte array.
func XorBytes32(a, b [32]byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}
