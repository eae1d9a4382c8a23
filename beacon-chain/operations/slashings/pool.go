// Package slashings implements the proposer- and attester-slashing
// mempools: bounded sets keyed by canonical id, duplicates dropped, as
// spec.md section 4.8 prescribes for the non-attestation operation
// pools.
package slashings

import (
	"sync"

	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
)

const defaultCapacity = 4096

// ProposerPool is a bounded, deduplicated set of pending proposer
// slashings keyed by the slashed validator's index: a proposer can
// only be slashed once, so a second proof for the same index is
// redundant rather than a separate pool entry.
type ProposerPool struct {
	mu       sync.RWMutex
	byIndex  map[primitives.ValidatorIndex]*blockspb.ProposerSlashing
	capacity int
}

// NewProposerPool builds an empty proposer-slashing pool.
func NewProposerPool() *ProposerPool {
	return &ProposerPool{byIndex: make(map[primitives.ValidatorIndex]*blockspb.ProposerSlashing), capacity: defaultCapacity}
}

// Insert records ps, ignoring it if the pool is full or already holds
// a slashing for the same proposer.
func (p *ProposerPool) Insert(ps *blockspb.ProposerSlashing) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byIndex[ps.ProposerIndex]; ok {
		return false
	}
	if len(p.byIndex) >= p.capacity {
		return false
	}
	p.byIndex[ps.ProposerIndex] = ps
	return true
}

// Pending returns up to max pending proposer slashings for block
// inclusion.
func (p *ProposerPool) Pending(max int) []*blockspb.ProposerSlashing {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*blockspb.ProposerSlashing, 0, max)
	for _, ps := range p.byIndex {
		if len(out) >= max {
			break
		}
		out = append(out, ps)
	}
	return out
}

// MarkIncluded removes a slashing once its block has been accepted.
func (p *ProposerPool) MarkIncluded(ps *blockspb.ProposerSlashing) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byIndex, ps.ProposerIndex)
}

// AttesterPool is a bounded, deduplicated set of pending attester
// slashings keyed by the hash_tree_root of the slashing container
// itself (two distinct proofs against the same pair of attestations
// are the same slashing).
type AttesterPool struct {
	mu       sync.RWMutex
	byRoot   map[[32]byte]*blockspb.AttesterSlashing
	capacity int
}

// NewAttesterPool builds an empty attester-slashing pool.
func NewAttesterPool() *AttesterPool {
	return &AttesterPool{byRoot: make(map[[32]byte]*blockspb.AttesterSlashing), capacity: defaultCapacity}
}

// Insert records as, ignoring it if the pool is full or already holds
// an identical slashing.
func (p *AttesterPool) Insert(as *blockspb.AttesterSlashing) (bool, error) {
	root, err := as.HashTreeRoot()
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byRoot[root]; ok {
		return false, nil
	}
	if len(p.byRoot) >= p.capacity {
		return false, nil
	}
	p.byRoot[root] = as
	return true, nil
}

// Pending returns up to max pending attester slashings for block
// inclusion.
func (p *AttesterPool) Pending(max int) []*blockspb.AttesterSlashing {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*blockspb.AttesterSlashing, 0, max)
	for _, as := range p.byRoot {
		if len(out) >= max {
			break
		}
		out = append(out, as)
	}
	return out
}

// MarkIncluded removes a slashing once its block has been accepted.
func (p *AttesterPool) MarkIncluded(as *blockspb.AttesterSlashing) error {
	root, err := as.HashTreeRoot()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byRoot, root)
	return nil
}
