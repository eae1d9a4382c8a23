// Package protoarray implements LMD-GHOST fork choice over a flat,
// append-only array of nodes indexed by integer position rather than
// pointers, the cache-friendly representation the teacher's own
// package name is grounded on (see node_test.go/forkchoice_test.go in
// the retrieved pack, which exercise this same Node/Store/ForkChoice/
// Vote shape; their own .go source wasn't part of this retrieval, so
// the algorithm below is written from the protoArray design directly:
// one best-child/best-descendant pointer per node, updated bottom-up
// after every balance or block-tree change, with ties between
// equal-weight children broken lexicographically greater, the
// resolution spec.md's design notes call for).
package protoarray

import (
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
)

// Node is one block in the fork-choice tree: its own identity, a link
// to its parent by array index, and the running LMD-GHOST weight
// (this node's own attesting balance plus every descendant's).
type Node struct {
	slot           primitives.Slot
	root           [32]byte
	parent         *uint64
	justifiedEpoch primitives.Epoch
	finalizedEpoch primitives.Epoch
	weight         uint64
	balance        uint64
	bestChild      *uint64
	bestDescendant *uint64
}

// Slot returns the node's slot.
func (n *Node) Slot() primitives.Slot { return n.slot }

// Root returns the node's block root.
func (n *Node) Root() [32]byte { return n.root }

// JustifiedEpoch returns the justified epoch n's state had.
func (n *Node) JustifiedEpoch() primitives.Epoch { return n.justifiedEpoch }

// FinalizedEpoch returns the finalized epoch n's state had.
func (n *Node) FinalizedEpoch() primitives.Epoch { return n.finalizedEpoch }

// Weight returns n's current LMD-GHOST weight.
func (n *Node) Weight() uint64 { return n.weight }
