// Package merkle implements binary Merkle tree construction and branch
// verification over SHA-256, grounded on the teacher's
// shared/trieutil.VerifyMerkleBranch (see
// other_examples/...block_operations.go.go, which calls it to verify
// deposits against the eth1 deposit root).
package merkle

import "github.com/lumenchain/beacon-node/crypto/hash"

// VerifyMerkleBranch returns true if leaf, combined with branch at the
// given index, hashes up to root after depth levels.
func VerifyMerkleBranch(leaf [32]byte, branch [][32]byte, depth uint64, index uint64, root [32]byte) bool {
	if uint64(len(branch)) < depth {
		return false
	}
	value := leaf
	for i := uint64(0); i < depth; i++ {
		if (index>>i)&1 == 1 {
			value = hash.HashPair(branch[i], value)
		} else {
			value = hash.HashPair(value, branch[i])
		}
	}
	return value == root
}

// zeroHashes[i] is the root of a fully-zeroed Merkle subtree of depth i.
var zeroHashes = computeZeroHashes(64)

func computeZeroHashes(n int) [][32]byte {
	out := make([][32]byte, n)
	for i := 1; i < n; i++ {
		out[i] = hash.HashPair(out[i-1], out[i-1])
	}
	return out
}

// ZeroHashAtDepth returns the canonical root of an all-zero subtree of
// the given depth, used to pad lists/vectors out to power-of-two leaf
// counts without materializing the padding.
func ZeroHashAtDepth(depth int) [32]byte {
	if depth < 0 {
		return [32]byte{}
	}
	if depth >= len(zeroHashes) {
		depth = len(zeroHashes) - 1
	}
	return zeroHashes[depth]
}

// Merkleize computes the root of a binary Merkle tree over chunks,
// padding with zero hashes up to the next power of two. This is the
// core of SSZ hash_tree_root for vectors, lists, and containers.
func Merkleize(chunks [][32]byte) [32]byte {
	if len(chunks) == 0 {
		return ZeroHashAtDepth(0)
	}
	count := nextPowerOfTwo(len(chunks))
	layer := make([][32]byte, count)
	copy(layer, chunks)
	depth := 0
	for 1<<depth < count {
		depth++
	}
	for d := 0; d < depth; d++ {
		next := make([][32]byte, len(layer)/2)
		for i := range next {
			next[i] = hash.HashPair(layer[2*i], layer[2*i+1])
		}
		layer = next
	}
	return layer[0]
}

// MixInLength computes hash(root || length_as_32_le_bytes), the
// operation SSZ lists and bitlists use to bind their length into the
// hash tree root.
func MixInLength(root [32]byte, length uint64) [32]byte {
	var lengthBytes [32]byte
	le := length
	for i := 0; i < 8; i++ {
		lengthBytes[i] = byte(le)
		le >>= 8
	}
	return hash.HashPair(root, lengthBytes)
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
