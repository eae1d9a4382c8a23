// Package validator implements the validator duties engine spec.md
// section 4.10 describes: given an observable state and a set of
// local pubkeys, it computes each validator's per-epoch proposer and
// attester duties, and drives proposal/attestation at the right slot
// tick against an abstract, slashing-protected signer. Grounded on the
// teacher's rpc/validator duty-assignment shape (core/helpers'
// committee and proposer-index helpers, restated here as a standalone
// package since this pack's retrieval of beacon-chain/rpc kept only
// its tests).
package validator

import (
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/lumenchain/beacon-node/beacon-chain/core/helpers"
	"github.com/lumenchain/beacon-node/config/params"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
)

// ProposerDuty is the one slot per epoch, at most, a validator is
// assigned to propose at.
type ProposerDuty struct {
	ValidatorIndex primitives.ValidatorIndex
	Slot           primitives.Slot
}

// AttesterDuty is the single slot, committee, and position within that
// committee a validator is assigned to attest from during an epoch.
type AttesterDuty struct {
	ValidatorIndex      primitives.ValidatorIndex
	Slot                primitives.Slot
	CommitteeIndex      primitives.CommitteeIndex
	CommitteeLength     int
	PositionInCommittee int
}

// Duties is the full per-epoch assignment set for every active
// validator in the registry; callers narrow it to their own pubkeys
// with ForIndices.
type Duties struct {
	Epoch     primitives.Epoch
	Proposers []ProposerDuty
	Attesters []AttesterDuty
}

// ForIndices returns the subset of d naming one of the given validator
// indices.
func (d *Duties) ForIndices(indices map[primitives.ValidatorIndex]bool) *Duties {
	out := &Duties{Epoch: d.Epoch}
	for _, p := range d.Proposers {
		if indices[p.ValidatorIndex] {
			out.Proposers = append(out.Proposers, p)
		}
	}
	for _, a := range d.Attesters {
		if indices[a.ValidatorIndex] {
			out.Attesters = append(out.Attesters, a)
		}
	}
	return out
}

// dutiesCache memoizes the full epoch's duties per (state root,
// epoch) so the REST duties endpoint and the local duties engine,
// which both call ComputeDuties every slot, don't reshuffle every
// committee in the epoch from scratch on each call. Entries expire
// after two epochs' worth of wall-clock time, long enough to outlive
// a slot's worth of repeat callers without pinning stale shuffles
// forever.
var dutiesCache = cache.New(2*time.Duration(params.BeaconConfig().SlotsPerEpoch)*time.Duration(params.BeaconConfig().SecondsPerSlot)*time.Second, 10*time.Minute)

// ComputeDuties computes every active validator's proposer and
// attester duties for epoch against st, then narrows the result to
// validatorIndices (nil means "every validator"). st must already be
// advanced to (or past) the first slot of epoch so its active set and
// seed reflect that epoch's committees.
func ComputeDuties(st *state.BeaconState, epoch primitives.Epoch, validatorIndices map[primitives.ValidatorIndex]bool) (*Duties, error) {
	stateRoot, err := st.HashTreeRoot()
	if err != nil {
		return nil, errors.Wrap(err, "could not compute state root for duties cache key")
	}
	cacheKey := dutiesCacheKey(stateRoot, epoch)

	var full *Duties
	if cached, ok := dutiesCache.Get(cacheKey); ok {
		full = cached.(*Duties)
	} else {
		full, err = computeAllDuties(st, epoch)
		if err != nil {
			return nil, err
		}
		dutiesCache.SetDefault(cacheKey, full)
	}

	if validatorIndices == nil {
		return full, nil
	}
	return full.ForIndices(validatorIndices), nil
}

func computeAllDuties(st *state.BeaconState, epoch primitives.Epoch) (*Duties, error) {
	cfg := params.BeaconConfig()
	startSlot := helpers.StartSlot(epoch)

	full := &Duties{Epoch: epoch}
	for slot := startSlot; slot < startSlot+primitives.Slot(cfg.SlotsPerEpoch); slot++ {
		proposerAt, err := proposerIndexAtSlot(st, slot)
		if err != nil {
			return nil, err
		}
		full.Proposers = append(full.Proposers, ProposerDuty{ValidatorIndex: proposerAt, Slot: slot})

		committeeCount := helpers.CommitteeCountAtSlot(st, slot)
		for ci := uint64(0); ci < committeeCount; ci++ {
			committee, err := helpers.BeaconCommittee(st, slot, primitives.CommitteeIndex(ci))
			if err != nil {
				return nil, err
			}
			for pos, vi := range committee {
				full.Attesters = append(full.Attesters, AttesterDuty{
					ValidatorIndex:      vi,
					Slot:                slot,
					CommitteeIndex:      primitives.CommitteeIndex(ci),
					CommitteeLength:     len(committee),
					PositionInCommittee: pos,
				})
			}
		}
	}
	return full, nil
}

// proposerIndexAtSlot computes the proposer for slot by cloning st
// forward to that slot; BeaconProposerIndex is only defined against
// st.Slot itself.
func proposerIndexAtSlot(st *state.BeaconState, slot primitives.Slot) (primitives.ValidatorIndex, error) {
	if st.Slot == slot {
		return helpers.BeaconProposerIndex(st)
	}
	clone := st.Clone()
	clone.SetSlot(slot)
	return helpers.BeaconProposerIndex(clone)
}

func dutiesCacheKey(stateRoot [32]byte, epoch primitives.Epoch) string {
	return string(stateRoot[:]) + "/" + strconv.FormatUint(uint64(epoch), 10)
}

// IndexForPubkey resolves pubkey to its registry index in st, the step
// the engine performs once per local key before narrowing Duties to
// its own validators.
func IndexForPubkey(st *state.BeaconState, pubkey [48]byte) (primitives.ValidatorIndex, bool) {
	for i, v := range st.Validators {
		if v.Pubkey == pubkey {
			return primitives.ValidatorIndex(i), true
		}
	}
	return 0, false
}
