// Package attestations implements the aggregated attestation mempool
// spec.md section 4.8 describes: attestations sharing the same
// AttestationData merge by OR-ing their aggregation bits and
// aggregating their signatures, rejecting an insert whose bits overlap
// any prior contributor. Grounded on the dataKey/byKey aggregation-map
// shape in other_examples/...eth2028-attestation_pool.go.go, restated
// over this repo's bitfield.Bitlist and crypto/bls aggregate signature
// types rather than a standalone signature hash placeholder.
package attestations

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/crypto/bls"
)

// ErrOverlappingBits is returned when an inserted attestation's
// aggregation bits overlap a signer already aggregated into the
// matching pool entry: the signature aggregate would become invalid if
// the same signer's contribution were folded in twice.
var ErrOverlappingBits = errors.New("attestations: aggregation bits overlap an existing contributor")

var poolSize = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "attestation_pool_aggregated_size",
	Help: "Number of distinct AttestationData entries held in the aggregated attestation pool.",
})

// aggregated is one AttestationData's accumulated aggregate: the
// OR-merged bitfield and its matching aggregate signature.
type aggregated struct {
	att     *blockspb.Attestation
	balance primitives.Gwei
}

// Pool aggregates attestations by AttestationData hash-tree-root,
// the mempool the validator duties engine and block proposer pull
// from when building a block's attestation list.
type Pool struct {
	mu      sync.RWMutex
	byData  map[[32]byte]*aggregated
}

// NewPool builds an empty aggregated attestation pool.
func NewPool() *Pool {
	return &Pool{byData: make(map[[32]byte]*aggregated)}
}

// AggregateBalance is supplied by the caller (the observable state
// processor, against the head state) so the pool can rank aggregates
// by attesting balance without holding a BeaconState reference itself.
type AggregateBalance func(att *blockspb.Attestation) (primitives.Gwei, error)

// Insert adds att to the pool, aggregating it into any existing entry
// for the same AttestationData. An insert whose bits overlap the
// existing aggregate's bits is rejected rather than silently
// double-counting a signer.
func (p *Pool) Insert(att *blockspb.Attestation, balance AggregateBalance) error {
	dataRoot, err := att.Data.HashTreeRoot()
	if err != nil {
		return errors.Wrap(err, "could not compute attestation data root")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	existing, ok := p.byData[dataRoot]
	if !ok {
		bal, err := balance(att)
		if err != nil {
			return err
		}
		p.byData[dataRoot] = &aggregated{att: cloneAttestation(att), balance: bal}
		poolSize.Set(float64(len(p.byData)))
		return nil
	}

	overlaps, err := existing.att.AggregationBits.Overlaps(att.AggregationBits)
	if err != nil {
		return err
	}
	if overlaps {
		return ErrOverlappingBits
	}

	merged, err := mergeAttestations(existing.att, att)
	if err != nil {
		return err
	}
	bal, err := balance(merged)
	if err != nil {
		return err
	}
	p.byData[dataRoot] = &aggregated{att: merged, balance: bal}
	return nil
}

func mergeAttestations(a, b *blockspb.Attestation) (*blockspb.Attestation, error) {
	sigA, err := bls.SignatureFromBytes(a.Signature[:])
	if err != nil {
		return nil, err
	}
	sigB, err := bls.SignatureFromBytes(b.Signature[:])
	if err != nil {
		return nil, err
	}
	agg, err := bls.AggregateSignatures([]*bls.Signature{sigA, sigB})
	if err != nil {
		return nil, err
	}
	var sig primitives.BLSSignature
	copy(sig[:], agg.Marshal())

	merged, err := a.AggregationBits.Or(b.AggregationBits)
	if err != nil {
		return nil, err
	}

	return &blockspb.Attestation{
		AggregationBits: merged,
		Data:            a.Data,
		Signature:       sig,
	}, nil
}

func cloneAttestation(a *blockspb.Attestation) *blockspb.Attestation {
	cp := *a
	cp.AggregationBits = append(cp.AggregationBits[:0:0], a.AggregationBits...)
	return &cp
}

// PeekAggregatedAttestations returns at most max aggregated
// attestations whose data slot is no later than minInclusionSlot,
// ranked by attesting balance descending (spec.md's "preferring higher
// aggregate balance").
func (p *Pool) PeekAggregatedAttestations(max int, minInclusionSlot primitives.Slot) []*blockspb.Attestation {
	p.mu.RLock()
	defer p.mu.RUnlock()

	candidates := make([]*aggregated, 0, len(p.byData))
	for _, a := range p.byData {
		if a.att.Data.Slot <= minInclusionSlot {
			candidates = append(candidates, a)
		}
	}
	sortByBalanceDesc(candidates)

	if len(candidates) > max {
		candidates = candidates[:max]
	}
	out := make([]*blockspb.Attestation, len(candidates))
	for i, c := range candidates {
		out[i] = c.att
	}
	return out
}

func sortByBalanceDesc(items []*aggregated) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].balance > items[j-1].balance; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// Prune drops every entry whose data slot is older than
// currentSlot-slotsPerEpoch, the inclusion-window the spec's
// MIN_ATTESTATION_INCLUSION_DELAY..SLOTS_PER_EPOCH range permits.
func (p *Pool) Prune(currentSlot primitives.Slot, slotsPerEpoch uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := currentSlot.SubSlot(primitives.Slot(slotsPerEpoch))
	for root, a := range p.byData {
		if a.att.Data.Slot < cutoff {
			delete(p.byData, root)
		}
	}
	poolSize.Set(float64(len(p.byData)))
}

// Len reports the number of distinct AttestationData entries held.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byData)
}
