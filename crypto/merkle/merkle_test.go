package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenchain/beacon-node/crypto/hash"
)

func TestZeroHashAtDepth(t *testing.T) {
	assert.Equal(t, [32]byte{}, ZeroHashAtDepth(0))
	assert.Equal(t, hash.HashPair(ZeroHashAtDepth(0), ZeroHashAtDepth(0)), ZeroHashAtDepth(1))
	// negative and out-of-range depths clamp rather than panic.
	assert.Equal(t, [32]byte{}, ZeroHashAtDepth(-1))
}

func TestMerkleizeEmpty(t *testing.T) {
	assert.Equal(t, ZeroHashAtDepth(0), Merkleize(nil))
}

func TestMerkleizeSingleLeaf(t *testing.T) {
	leaf := hash.Hash([]byte("x"))
	assert.Equal(t, leaf, Merkleize([][32]byte{leaf}))
}

func TestMerkleizePowerOfTwo(t *testing.T) {
	a := hash.Hash([]byte("a"))
	b := hash.Hash([]byte("b"))
	c := hash.Hash([]byte("c"))
	d := hash.Hash([]byte("d"))

	want := hash.HashPair(hash.HashPair(a, b), hash.HashPair(c, d))
	got := Merkleize([][32]byte{a, b, c, d})
	assert.Equal(t, want, got)
}

func TestMerkleizePadsWithZeroHashes(t *testing.T) {
	a := hash.Hash([]byte("a"))
	b := hash.Hash([]byte("b"))
	c := hash.Hash([]byte("c"))

	want := hash.HashPair(hash.HashPair(a, b), hash.HashPair(c, ZeroHashAtDepth(0)))
	got := Merkleize([][32]byte{a, b, c})
	assert.Equal(t, want, got)
}

func TestMixInLength(t *testing.T) {
	var root [32]byte
	root[0] = 9
	got := MixInLength(root, 3)

	var lengthBytes [32]byte
	lengthBytes[0] = 3
	want := hash.HashPair(root, lengthBytes)
	assert.Equal(t, want, got)
}

func TestVerifyMerkleBranch(t *testing.T) {
	leaf := hash.Hash([]byte("leaf"))
	sibling := hash.Hash([]byte("sibling"))

	// index 0 (left child): parent = hash(leaf, sibling).
	root := hash.HashPair(leaf, sibling)
	require.True(t, VerifyMerkleBranch(leaf, [][32]byte{sibling}, 1, 0, root))

	// Wrong root fails.
	assert.False(t, VerifyMerkleBranch(leaf, [][32]byte{sibling}, 1, 0, hash.Hash([]byte("not-root"))))

	// Branch shorter than claimed depth fails closed.
	assert.False(t, VerifyMerkleBranch(leaf, nil, 1, 0, root))
}

func TestVerifyMerkleBranchRightChild(t *testing.T) {
	leaf := hash.Hash([]byte("leaf"))
	sibling := hash.Hash([]byte("sibling"))

	// index 1 (right child): parent = hash(sibling, leaf).
	root := hash.HashPair(sibling, leaf)
	assert.True(t, VerifyMerkleBranch(leaf, [][32]byte{sibling}, 1, 1, root))
}
