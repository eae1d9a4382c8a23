// Package voluntaryexits implements the pending voluntary-exit
// mempool: a bounded set keyed by validator index, since a validator
// can only have one exit in flight at a time.
package voluntaryexits

import (
	"sync"

	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
)

const defaultCapacity = 4096

// Pool is a bounded, deduplicated set of pending voluntary exits.
type Pool struct {
	mu       sync.RWMutex
	byIndex  map[primitives.ValidatorIndex]*blockspb.SignedVoluntaryExit
	capacity int
}

// NewPool builds an empty voluntary-exit pool.
func NewPool() *Pool {
	return &Pool{byIndex: make(map[primitives.ValidatorIndex]*blockspb.SignedVoluntaryExit), capacity: defaultCapacity}
}

// Insert records exit, ignoring it if the pool is full or already
// holds an exit for the same validator.
func (p *Pool) Insert(exit *blockspb.SignedVoluntaryExit) bool {
	idx := exit.Exit.ValidatorIndex
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byIndex[idx]; ok {
		return false
	}
	if len(p.byIndex) >= p.capacity {
		return false
	}
	p.byIndex[idx] = exit
	return true
}

// Pending returns up to max pending voluntary exits for block
// inclusion.
func (p *Pool) Pending(max int) []*blockspb.SignedVoluntaryExit {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*blockspb.SignedVoluntaryExit, 0, max)
	for _, exit := range p.byIndex {
		if len(out) >= max {
			break
		}
		out = append(out, exit)
	}
	return out
}

// MarkIncluded removes an exit once its block has been accepted.
func (p *Pool) MarkIncluded(exit *blockspb.SignedVoluntaryExit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byIndex, exit.Exit.ValidatorIndex)
}

// Len reports the number of pending exits held.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byIndex)
}
