package sync

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
)

const maxPendingParents = 4096

// PendingBlocksQueue buffers gossip blocks that arrived before their
// parent, keyed by parent_root, and releases them once the parent is
// accepted — spec.md section 4.9's short-sync behavior. Blocks are
// released in the order Enqueue received them for a given parent. The
// by-parent index is bounded by an LRU, matching the teacher's
// beacon-chain/cache convention, so an unbounded flood of orphans
// can't grow the queue without limit.
type PendingBlocksQueue struct {
	mu        sync.Mutex
	byParent  *lru.Cache
	seenRoots map[[32]byte]bool
}

// NewPendingBlocksQueue builds an empty queue.
func NewPendingBlocksQueue() *PendingBlocksQueue {
	c, err := lru.New(maxPendingParents)
	if err != nil {
		panic(err)
	}
	return &PendingBlocksQueue{byParent: c, seenRoots: make(map[[32]byte]bool)}
}

// Enqueue buffers signed under its parent_root, reporting false
// (and doing nothing) if an identical root was already buffered.
func (q *PendingBlocksQueue) Enqueue(signed *blockspb.SignedBeaconBlock) bool {
	root, err := signed.Block.HashTreeRoot()
	if err != nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.seenRoots[root] {
		return false
	}
	q.seenRoots[root] = true

	parent := [32]byte(signed.Block.ParentRoot)
	var children []*blockspb.SignedBeaconBlock
	if v, ok := q.byParent.Get(parent); ok {
		children = v.([]*blockspb.SignedBeaconBlock)
	}
	q.byParent.Add(parent, append(children, signed))
	return true
}

// Release returns and removes every block buffered under parentRoot,
// in arrival order, called once parentRoot has been accepted into the
// chain so its descendants can now be fed to the state-transition
// function in turn.
func (q *PendingBlocksQueue) Release(parentRoot [32]byte) []*blockspb.SignedBeaconBlock {
	q.mu.Lock()
	defer q.mu.Unlock()

	v, ok := q.byParent.Get(parentRoot)
	if !ok {
		return nil
	}
	q.byParent.Remove(parentRoot)
	children := v.([]*blockspb.SignedBeaconBlock)
	for _, c := range children {
		if root, err := c.Block.HashTreeRoot(); err == nil {
			delete(q.seenRoots, root)
		}
	}
	return children
}

// Len reports the total number of buffered blocks across all parents.
func (q *PendingBlocksQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.seenRoots)
}
