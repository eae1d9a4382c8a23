// Package ssz implements the merkleization half of the SSZ codec: basic
// value packing, vector/list/bitlist root computation, and container
// field-root merkleization. Concrete types (consensus-types/...) each
// implement HashTreeRoot by building their field-root slice and handing
// it to ContainerRoot; Marshal/Unmarshal use github.com/ferranbt/fastssz
// leaf helpers directly, the same split the teacher's fastssz-generated
// code uses (hand-written here since no code generator runs in this
// repo).
package ssz

import (
	"fmt"

	fastssz "github.com/ferranbt/fastssz"
	bitfield "github.com/prysmaticlabs/go-bitfield"

	"github.com/lumenchain/beacon-node/crypto/hash"
	"github.com/lumenchain/beacon-node/crypto/merkle"
)

// Sentinel decode errors, matching the taxonomy in spec.md §4.1.
var (
	ErrUnexpectedEOF     = fmt.Errorf("ssz: unexpected end of input")
	ErrOffsetOutOfRange  = fmt.Errorf("ssz: offset out of range")
	ErrLengthExceedsBound = fmt.Errorf("ssz: length exceeds declared maximum")
	ErrMissingDelimiter  = fmt.Errorf("ssz: bitlist missing delimiter bit")
	ErrTrailingBytes     = fmt.Errorf("ssz: trailing bytes after decode")
	ErrSchemaMismatch    = fmt.Errorf("ssz: value does not match expected schema")
)

// MarshalUint64 appends the little-endian encoding of x to dst.
func MarshalUint64(dst []byte, x uint64) []byte {
	return fastssz.MarshalUint64(dst, x)
}

// UnmarshalUint64 decodes a little-endian uint64 from the first 8 bytes
// of src.
func UnmarshalUint64(src []byte) (uint64, error) {
	if len(src) < 8 {
		return 0, ErrUnexpectedEOF
	}
	return fastssz.UnmarshallUint64(src), nil
}

// PackChunks packs raw bytes into 32-byte chunks, zero-padding the
// final chunk, the basic-type packing rule hash_tree_root uses before
// Merkleizing a vector or list of basic elements.
func PackChunks(data []byte) [][32]byte {
	n := (len(data) + 31) / 32
	if n == 0 {
		n = 1
	}
	chunks := make([][32]byte, n)
	for i := 0; i < n; i++ {
		start := i * 32
		end := start + 32
		if end > len(data) {
			end = len(data)
		}
		copy(chunks[i][:], data[start:end])
	}
	return chunks
}

// ContainerRoot merkleizes a container's field roots in declared
// field order. This is the normative container hashing rule: no
// length mixin, just a binary Merkle tree over fieldRoots padded to the
// next power of two.
func ContainerRoot(fieldRoots [][32]byte) [32]byte {
	return merkle.Merkleize(fieldRoots)
}

// VectorRoot merkleizes a fixed-length vector's element roots. The
// caller is responsible for having exactly the vector's declared
// length in elementRoots; padding to the next power of two for
// Merkleization happens here.
func VectorRoot(elementRoots [][32]byte) [32]byte {
	return merkle.Merkleize(elementRoots)
}

// ListRoot merkleizes a variable-length list's element roots padded
// out (conceptually) to limit entries, then mixes in the true length —
// the rule that distinguishes a list's root from a same-contents
// vector's root.
func ListRoot(elementRoots [][32]byte, limit uint64) [32]byte {
	capacity := elementRoots
	root := merkleizeLimited(capacity, limit)
	return merkle.MixInLength(root, uint64(len(elementRoots)))
}

// merkleizeLimited merkleizes chunks as though the tree had limit
// leaves (padding with zero hashes) without materializing limit-sized
// slices for large limits.
func merkleizeLimited(chunks [][32]byte, limit uint64) [32]byte {
	if limit == 0 {
		return merkle.ZeroHashAtDepth(0)
	}
	depth := 0
	for uint64(1)<<depth < limit {
		depth++
	}
	return merkleizeAtDepth(chunks, depth)
}

func merkleizeAtDepth(chunks [][32]byte, depth int) [32]byte {
	if depth == 0 {
		if len(chunks) == 0 {
			return [32]byte{}
		}
		return chunks[0]
	}
	half := 1 << (depth - 1)
	var left, right [32]byte
	if len(chunks) <= half {
		left = merkleizeAtDepth(chunks, depth-1)
		right = merkle.ZeroHashAtDepth(depth - 1)
	} else {
		left = merkleizeAtDepth(chunks[:half], depth-1)
		right = merkleizeAtDepth(chunks[half:], depth-1)
	}
	return hash.HashPair(left, right)
}

// BitlistRoot computes hash_tree_root for an SSZ Bitlist[maxLen]: pack
// the bits (without the trailing delimiter) into chunks, Merkleize as
// though there were maxLen bits worth of chunk capacity, then mix in
// the true bit length.
func BitlistRoot(bits bitfield.Bitlist, maxLen uint64) [32]byte {
	length := bits.Len()
	packed := packBitsNoDelimiter(bits, length)
	chunkLimit := (maxLen + 255) / 256
	root := merkleizeLimited(packed, chunkLimit)
	return merkle.MixInLength(root, length)
}

// BitvectorRoot computes hash_tree_root for an SSZ Bitvector[n]: pack
// the bits into chunks and Merkleize; bitvectors carry no length mixin
// because their length is fixed by the schema.
func BitvectorRoot(bits bitfield.Bitvector64, n uint64) [32]byte {
	byteLen := (n + 7) / 8
	raw := bits.Bytes()
	if uint64(len(raw)) < byteLen {
		padded := make([]byte, byteLen)
		copy(padded, raw)
		raw = padded
	}
	return merkle.Merkleize(PackChunks(raw[:byteLen]))
}

func packBitsNoDelimiter(bits bitfield.Bitlist, length uint64) [][32]byte {
	byteLen := (length + 7) / 8
	raw := bits.Bytes()
	if uint64(len(raw)) > byteLen {
		raw = raw[:byteLen]
	}
	return PackChunks(raw)
}
