// Package cache holds the epoch-keyed side tables the state-transition
// function's helpers would otherwise recompute on every call: the
// shuffled-committee assignment per (seed, slot, index) and the total
// active balance per (state root, epoch). Both are backed by
// github.com/hashicorp/golang-lru, matching the teacher's
// beacon-chain/cache package convention of one bounded LRU per derived
// quantity rather than one global cache keyed by composite strings.
package cache

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/lumenchain/beacon-node/consensus-types/primitives"
)

const defaultCommitteeCacheSize = 2048

// CommitteeCache memoizes BeaconCommittee results so repeated duty
// computation across an epoch's 32 slots only shuffles each committee
// once.
type CommitteeCache struct {
	lru *lru.Cache
}

// NewCommitteeCache builds an empty committee cache bounded to
// defaultCommitteeCacheSize entries.
func NewCommitteeCache() *CommitteeCache {
	c, err := lru.New(defaultCommitteeCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which never
		// happens with the constant above.
		panic(err)
	}
	return &CommitteeCache{lru: c}
}

type committeeKey struct {
	seed  [32]byte
	slot  primitives.Slot
	index primitives.CommitteeIndex
}

// Get returns the cached committee for (seed, slot, index), if present.
func (c *CommitteeCache) Get(seed [32]byte, slot primitives.Slot, index primitives.CommitteeIndex) ([]primitives.ValidatorIndex, bool) {
	v, ok := c.lru.Get(committeeKey{seed, slot, index})
	if !ok {
		return nil, false
	}
	return v.([]primitives.ValidatorIndex), true
}

// Put records the committee computed for (seed, slot, index).
func (c *CommitteeCache) Put(seed [32]byte, slot primitives.Slot, index primitives.CommitteeIndex, committee []primitives.ValidatorIndex) {
	c.lru.Add(committeeKey{seed, slot, index}, committee)
}

const defaultBalanceCacheSize = 256

// ActiveBalanceCache memoizes TotalActiveBalance per (state root,
// epoch), the quantity recomputed once per block in proposer-index
// selection and again per attestation validated against the same
// state.
type ActiveBalanceCache struct {
	lru *lru.Cache
}

// NewActiveBalanceCache builds an empty active-balance cache.
func NewActiveBalanceCache() *ActiveBalanceCache {
	c, err := lru.New(defaultBalanceCacheSize)
	if err != nil {
		panic(err)
	}
	return &ActiveBalanceCache{lru: c}
}

type balanceKey struct {
	stateRoot [32]byte
	epoch     primitives.Epoch
}

// Get returns the cached total active balance for (stateRoot, epoch).
func (c *ActiveBalanceCache) Get(stateRoot [32]byte, epoch primitives.Epoch) (primitives.Gwei, bool) {
	v, ok := c.lru.Get(balanceKey{stateRoot, epoch})
	if !ok {
		return 0, false
	}
	return v.(primitives.Gwei), true
}

// Put records the total active balance computed for (stateRoot, epoch).
func (c *ActiveBalanceCache) Put(stateRoot [32]byte, epoch primitives.Epoch, balance primitives.Gwei) {
	c.lru.Add(balanceKey{stateRoot, epoch}, balance)
}
