// Package deposit implements the eth1 deposit cache: an
// index-ordered log of observed deposits plus the incremental Merkle
// tree (depth DEPOSIT_CONTRACT_TREE_DEPTH, matching the eth1 deposit
// contract's own accumulator) needed to produce the inclusion proof
// each Deposit container carries. Grounded on crypto/merkle's
// VerifyMerkleBranch/ZeroHashAtDepth, the verification half of the
// same tree shape this cache builds the writing half of.
package deposit

import (
	"sync"

	"github.com/pkg/errors"

	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/config/params"
	"github.com/lumenchain/beacon-node/crypto/hash"
	"github.com/lumenchain/beacon-node/crypto/merkle"
)

// ErrAlreadyInserted is returned when a deposit is inserted a second
// time at an index the cache already holds.
var ErrAlreadyInserted = errors.New("deposit: index already present in cache")

// Cache accumulates eth1 deposits in index order and exposes the
// Merkle proof an inclusion into a Deposit container needs.
type Cache struct {
	mu     sync.RWMutex
	leaves [][32]byte
	data   []*blockspb.DepositData
	depth  int
}

// NewCache builds an empty deposit cache sized to the chain config's
// deposit contract tree depth.
func NewCache() *Cache {
	return &Cache{depth: int(params.BeaconConfig().DepositContractTreeDepth)}
}

// Insert appends data as the deposit at index, which must equal the
// cache's current length: eth1 deposit indices are assigned
// sequentially by the deposit contract and the cache mirrors that
// order exactly.
func (c *Cache) Insert(index uint64, data *blockspb.DepositData) error {
	leaf, err := data.HashTreeRoot()
	if err != nil {
		return errors.Wrap(err, "could not compute deposit data root")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if index != uint64(len(c.leaves)) {
		if index < uint64(len(c.leaves)) {
			return ErrAlreadyInserted
		}
		return errors.Errorf("deposit: out-of-order index %d, expected %d", index, len(c.leaves))
	}
	c.leaves = append(c.leaves, leaf)
	c.data = append(c.data, data)
	return nil
}

// NumDeposits reports how many deposits the cache has recorded.
func (c *Cache) NumDeposits() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.leaves))
}

// Root computes the deposit tree root over every deposit the cache
// has recorded so far, mixing in the deposit count the way the eth1
// deposit contract's own root does.
func (c *Cache) Root() [32]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rootLocked(uint64(len(c.leaves)))
}

func (c *Cache) rootLocked(count uint64) [32]byte {
	node := c.subtreeRoot(0, 0, count)
	return merkle.MixInLength(node, count)
}

// subtreeRoot computes the root of the subtree starting at depth d
// covering leaf range [start, start+2^(depth-d)) intersected with
// [0, count), recursing down to depth c.depth.
func (c *Cache) subtreeRoot(d int, start, count uint64) [32]byte {
	span := uint64(1) << uint(c.depth-d)
	if start >= count {
		return merkle.ZeroHashAtDepth(c.depth - d)
	}
	if d == c.depth {
		return c.leaves[start]
	}
	half := span / 2
	left := c.subtreeRoot(d+1, start, count)
	right := c.subtreeRoot(d+1, start+half, count)
	return hash.HashPair(left, right)
}

// Proof returns the Merkle branch proving the deposit at index
// against the tree root formed by the first upTo deposits (upTo is
// typically the eth1 block's deposit count at proof time, which may
// lag the cache's full length).
func (c *Cache) Proof(index uint64, upTo uint64) ([][32]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index >= uint64(len(c.leaves)) || index >= upTo {
		return nil, errors.Errorf("deposit: index %d out of range", index)
	}

	// VerifyMerkleBranch combines the leaf with branch[0] first (the
	// leaf's immediate sibling) and works up to the root, so the
	// top-down descent below fills the branch back-to-front: the split
	// nearest the root lands at the highest index.
	branch := make([][32]byte, c.depth+1)
	pos := index
	span := uint64(1) << uint(c.depth)
	start := uint64(0)
	for d := 0; d < c.depth; d++ {
		half := span / 2
		if pos < half {
			branch[c.depth-1-d] = c.subtreeRoot(d+1, start+half, upTo)
			span = half
		} else {
			branch[c.depth-1-d] = c.subtreeRoot(d+1, start, upTo)
			start += half
			pos -= half
			span = half
		}
	}
	branch[c.depth] = depositCountBytes(upTo)
	return branch, nil
}

func depositCountBytes(count uint64) [32]byte {
	var out [32]byte
	v := count
	for i := 0; i < 8; i++ {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// DepositAt builds the full Deposit container (data + proof) for
// index against the root formed by the first upTo deposits.
func (c *Cache) DepositAt(index uint64, upTo uint64) (*blockspb.Deposit, error) {
	c.mu.RLock()
	data := c.data[index]
	c.mu.RUnlock()

	proof, err := c.Proof(index, upTo)
	if err != nil {
		return nil, err
	}
	return &blockspb.Deposit{Proof: proof, Data: data}, nil
}

// AllUpTo returns every DepositData observed with index < upTo, in
// index order, the slice ProcessDeposit consumes block by block.
func (c *Cache) AllUpTo(upTo uint64) []*blockspb.DepositData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if upTo > uint64(len(c.data)) {
		upTo = uint64(len(c.data))
	}
	out := make([]*blockspb.DepositData, upTo)
	copy(out, c.data[:upTo])
	return out
}
