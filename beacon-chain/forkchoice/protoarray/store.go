package protoarray

import (
	"bytes"
	"sync"

	"github.com/pkg/errors"

	"github.com/lumenchain/beacon-node/consensus-types/primitives"
)

// Vote is a validator's latest attested-to block, the LMD half of
// LMD-GHOST: only a validator's single most recent message counts
// towards a block's weight, so a new vote simply relocates the
// validator's balance from its previous target to its new one.
type Vote struct {
	currentRoot  [32]byte
	nextRoot     [32]byte
	currentEpoch primitives.Epoch
}

// Store holds every known block's Node plus the root-to-index lookup
// and parent/child adjacency needed to walk the tree.
type Store struct {
	mu             sync.RWMutex
	justifiedEpoch primitives.Epoch
	finalizedEpoch primitives.Epoch
	nodes          []*Node
	nodeByRoot     map[[32]byte]uint64
	children       map[uint64][]uint64
	currentSlot    primitives.Slot
}

// ForkChoice is the protoArray LMD-GHOST engine: a Store of known
// blocks plus the validator votes and balances driving each block's
// weight, matching spec.md section 9's on_block/on_attestation/
// on_tick/get_head/get_ancestor surface.
type ForkChoice struct {
	store    *Store
	votes    []Vote
	balances []uint64
}

// New builds an empty ForkChoice rooted at nothing; the first
// ProcessBlock call (the finalized checkpoint's block, by convention)
// seeds the tree.
func New(justifiedEpoch, finalizedEpoch primitives.Epoch) *ForkChoice {
	return &ForkChoice{
		store: &Store{
			justifiedEpoch: justifiedEpoch,
			finalizedEpoch: finalizedEpoch,
			nodeByRoot:     make(map[[32]byte]uint64),
			children:       make(map[uint64][]uint64),
		},
	}
}

// ErrUnknownParent is returned when ProcessBlock references a parent
// root the store has never seen.
var ErrUnknownParent = errors.New("protoarray: unknown parent root")

// ErrUnknownRoot is returned when a lookup references a root the
// store has never seen.
var ErrUnknownRoot = errors.New("protoarray: unknown root")

// HasNode reports whether root is already known to the store.
func (f *ForkChoice) HasNode(root [32]byte) bool {
	f.store.mu.RLock()
	defer f.store.mu.RUnlock()
	_, ok := f.store.nodeByRoot[root]
	return ok
}

// ProcessBlock (on_block) inserts a newly processed block into the
// tree. The very first call (no known nodes yet) is treated as the
// tree's root and needs no known parent.
func (f *ForkChoice) ProcessBlock(slot primitives.Slot, root, parent [32]byte, justifiedEpoch, finalizedEpoch primitives.Epoch) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	if _, ok := f.store.nodeByRoot[root]; ok {
		return nil
	}

	var parentIndex *uint64
	if len(f.store.nodes) > 0 {
		idx, ok := f.store.nodeByRoot[parent]
		if !ok {
			return ErrUnknownParent
		}
		parentIndex = &idx
	}

	index := uint64(len(f.store.nodes))
	f.store.nodes = append(f.store.nodes, &Node{
		slot:           slot,
		root:           root,
		parent:         parentIndex,
		justifiedEpoch: justifiedEpoch,
		finalizedEpoch: finalizedEpoch,
	})
	f.store.nodeByRoot[root] = index
	if parentIndex != nil {
		f.store.children[*parentIndex] = append(f.store.children[*parentIndex], index)
	}
	f.balances = append(f.balances, 0)
	return nil
}

// OnTick (on_tick) advances the store's notion of the current slot,
// the clock fork choice weighs new attestations and blocks against.
func (f *ForkChoice) OnTick(slot primitives.Slot) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.currentSlot = slot
}

// ProcessAttestation (on_attestation) records that the validators in
// indices most recently attested to blockRoot as of targetEpoch,
// replacing whatever they previously voted for. The balance shift
// itself happens lazily in the next Head call's updateBalances pass.
func (f *ForkChoice) ProcessAttestation(indices []primitives.ValidatorIndex, blockRoot [32]byte, targetEpoch primitives.Epoch) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, idx := range indices {
		i := uint64(idx)
		for i >= uint64(len(f.votes)) {
			f.votes = append(f.votes, Vote{})
		}
		if f.votes[i].currentEpoch >= targetEpoch && f.votes[i].nextRoot != ([32]byte{}) {
			continue
		}
		f.votes[i].nextRoot = blockRoot
		f.votes[i].currentEpoch = targetEpoch
	}
}

// updateBalances moves each validator's balance delta from its
// previous vote target to its new one (or applies a pure balance
// change if the target didn't move), then recomputes every node's
// weight bottom-up.
func (f *ForkChoice) updateBalances(newBalances []uint64) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	for uint64(len(f.balances)) < uint64(len(newBalances)) {
		f.balances = append(f.balances, 0)
	}
	for uint64(len(f.votes)) < uint64(len(newBalances)) {
		f.votes = append(f.votes, Vote{})
	}

	for i := range f.votes {
		oldBalance := f.balances[i]
		var newBalance uint64
		if i < len(newBalances) {
			newBalance = newBalances[i]
		}

		oldRoot := f.votes[i].currentRoot
		newRoot := f.votes[i].nextRoot
		if newRoot == ([32]byte{}) {
			newRoot = oldRoot
		}

		if oldRoot != ([32]byte{}) && oldBalance > 0 {
			if idx, ok := f.store.nodeByRoot[oldRoot]; ok {
				f.store.nodes[idx].balance -= oldBalance
			}
		}
		if newRoot != ([32]byte{}) && newBalance > 0 {
			idx, ok := f.store.nodeByRoot[newRoot]
			if !ok {
				return ErrUnknownRoot
			}
			f.store.nodes[idx].balance += newBalance
		}

		f.votes[i].currentRoot = newRoot
		f.balances[i] = newBalance
	}

	f.applyWeightChangesLocked()
	return nil
}

// applyWeightChangesLocked recomputes every node's weight as its own
// balance plus every descendant's, in a single backward pass: a
// node's index is always greater than its parent's (nodes only ever
// append), so processing from the last-inserted node back to the
// first guarantees every child is folded into its parent before the
// parent is itself folded into its own parent.
func (f *ForkChoice) applyWeightChangesLocked() {
	nodes := f.store.nodes
	for i := len(nodes) - 1; i >= 0; i-- {
		nodes[i].weight = nodes[i].balance
	}
	for i := len(nodes) - 1; i >= 0; i-- {
		if nodes[i].parent != nil {
			nodes[*nodes[i].parent].weight += nodes[i].weight
		}
	}
}

// Head (get_head) walks from justifiedRoot down to a leaf, at each
// step taking the heaviest child and breaking ties by the
// lexicographically greater root, per spec.md's tie-break resolution.
func (f *ForkChoice) Head(justifiedRoot [32]byte) ([32]byte, error) {
	f.store.mu.RLock()
	defer f.store.mu.RUnlock()

	index, ok := f.store.nodeByRoot[justifiedRoot]
	if !ok {
		return [32]byte{}, ErrUnknownRoot
	}
	for {
		children := f.store.children[index]
		if len(children) == 0 {
			return f.store.nodes[index].root, nil
		}
		best := children[0]
		for _, c := range children[1:] {
			if nodes := f.store.nodes; nodes[c].weight > nodes[best].weight ||
				(nodes[c].weight == nodes[best].weight && bytes.Compare(nodes[c].root[:], nodes[best].root[:]) > 0) {
				best = c
			}
		}
		index = best
	}
}

// AncestorRoot (get_ancestor) returns the root of the ancestor of root
// at the given slot, walking up the parent chain.
func (f *ForkChoice) AncestorRoot(root [32]byte, slot primitives.Slot) ([32]byte, error) {
	f.store.mu.RLock()
	defer f.store.mu.RUnlock()

	index, ok := f.store.nodeByRoot[root]
	if !ok {
		return [32]byte{}, ErrUnknownRoot
	}
	for f.store.nodes[index].slot > slot {
		parent := f.store.nodes[index].parent
		if parent == nil {
			return [32]byte{}, ErrUnknownRoot
		}
		index = *parent
	}
	return f.store.nodes[index].root, nil
}

// UpdateBalances is the exported form of updateBalances, called by
// the observable state processor after each accepted block with that
// block's post-state balances before computing the new head.
func (f *ForkChoice) UpdateBalances(newBalances []uint64) error {
	return f.updateBalances(newBalances)
}

// Prune removes every node that is neither finalizedRoot nor one of
// its descendants (ancestors of finalizedRoot are removed too), the
// storage-pressure relief spec.md section 6 requires once a checkpoint
// finalizes. Descendants of finalizedRoot keep their parent pointers
// rewritten onto the surviving index space.
func (f *ForkChoice) Prune(finalizedRoot [32]byte) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	finalizedIndex, ok := f.store.nodeByRoot[finalizedRoot]
	if !ok {
		return ErrUnknownRoot
	}
	if finalizedIndex == 0 {
		return nil
	}

	keep := make(map[uint64]bool)
	var mark func(uint64)
	mark = func(i uint64) {
		if keep[i] {
			return
		}
		keep[i] = true
		for _, c := range f.store.children[i] {
			mark(c)
		}
	}
	mark(finalizedIndex)

	newNodes := make([]*Node, 0, len(keep))
	remap := make(map[uint64]uint64, len(keep))
	for i, n := range f.store.nodes {
		if !keep[uint64(i)] {
			continue
		}
		remap[uint64(i)] = uint64(len(newNodes))
		newNodes = append(newNodes, n)
	}
	for _, n := range newNodes {
		if n.parent == nil {
			continue
		}
		if newIdx, ok := remap[*n.parent]; ok {
			n.parent = &newIdx
		} else {
			n.parent = nil
		}
	}

	newByRoot := make(map[[32]byte]uint64, len(newNodes))
	newChildren := make(map[uint64][]uint64, len(newNodes))
	for newIdx, n := range newNodes {
		newByRoot[n.root] = uint64(newIdx)
		if n.parent != nil {
			newChildren[*n.parent] = append(newChildren[*n.parent], uint64(newIdx))
		}
	}

	f.store.nodes = newNodes
	f.store.nodeByRoot = newByRoot
	f.store.children = newChildren
	return nil
}
