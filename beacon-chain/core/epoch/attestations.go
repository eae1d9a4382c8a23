// Package epoch implements the epoch sub-transition: justification and
// finalization, crosslinks, rewards and penalties, registry updates,
// slashings, and the final per-epoch housekeeping. Each file here
// mirrors one of spec.md section 4.4 step 6's named stages, grounded
// on the teacher lineage's core/epoch/epoch_processing.go (see
// other_examples/...skillful-alex-prysm__beacon-chain-core-epoch-epoch_processing.go.go)
// restated against this repo's BeaconState rather than a protobuf.
package epoch

import (
	"github.com/lumenchain/beacon-node/beacon-chain/core/helpers"
	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
)

// matchingSourceAttestations returns every pending attestation in the
// given epoch's attestation list (current or previous relative to
// st.Slot); the source checkpoint always matches by construction
// since ProcessAttestation already validated it against the right
// justified checkpoint at inclusion time.
func matchingSourceAttestations(st *state.BeaconState, epoch primitives.Epoch) []*blockspb.PendingAttestation {
	if epoch == helpers.CurrentEpoch(st) {
		return st.CurrentEpochAttestations
	}
	return st.PreviousEpochAttestations
}

// matchingTargetAttestations filters atts to those whose target root
// equals the epoch boundary block root.
func matchingTargetAttestations(st *state.BeaconState, atts []*blockspb.PendingAttestation, epoch primitives.Epoch) ([]*blockspb.PendingAttestation, error) {
	boundaryRoot, err := BlockRootAtEpochStart(st, epoch)
	if err != nil {
		return nil, err
	}
	out := make([]*blockspb.PendingAttestation, 0, len(atts))
	for _, a := range atts {
		if a.Data.Target.Root == boundaryRoot {
			out = append(out, a)
		}
	}
	return out, nil
}

// matchingHeadAttestations filters atts to those whose beacon block
// root matches the actual block root at the attested slot.
func matchingHeadAttestations(st *state.BeaconState, atts []*blockspb.PendingAttestation) ([]*blockspb.PendingAttestation, error) {
	out := make([]*blockspb.PendingAttestation, 0, len(atts))
	for _, a := range atts {
		root, err := BlockRootAtSlot(st, a.Data.Slot)
		if err != nil {
			return nil, err
		}
		if a.Data.BeaconBlockRoot == root {
			out = append(out, a)
		}
	}
	return out, nil
}

// BlockRootAtSlot returns the block root recorded for slot in st's
// ring buffer. slot must be within the last SlotsPerHistoricalRoot
// slots of st.Slot.
func BlockRootAtSlot(st *state.BeaconState, slot primitives.Slot) (primitives.Root, error) {
	n := uint64(len(st.BlockRoots))
	if uint64(st.Slot) > uint64(slot)+n || slot >= st.Slot {
		return primitives.Root{}, errOutOfRangeSlot(slot, st.Slot)
	}
	return st.BlockRoots[uint64(slot)%n], nil
}

// BlockRootAtEpochStart returns the block root at the first slot of
// epoch, the FFG checkpoint root.
func BlockRootAtEpochStart(st *state.BeaconState, epoch primitives.Epoch) (primitives.Root, error) {
	startSlot := helpers.StartSlot(epoch)
	if startSlot == st.Slot {
		return st.LatestBlockHeader.HashTreeRoot()
	}
	return BlockRootAtSlot(st, startSlot)
}

// unslashedAttestingIndices returns the union of attesting validator
// indices across atts, excluding already-slashed validators, sorted
// and deduplicated.
func unslashedAttestingIndices(st *state.BeaconState, atts []*blockspb.PendingAttestation) ([]primitives.ValidatorIndex, error) {
	seen := make(map[primitives.ValidatorIndex]bool)
	var out []primitives.ValidatorIndex
	for _, a := range atts {
		committee, err := helpers.BeaconCommittee(st, a.Data.Slot, a.Data.Index)
		if err != nil {
			return nil, err
		}
		for i, idx := range committee {
			if !a.AggregationBits.BitAt(uint64(i)) || seen[idx] {
				continue
			}
			if st.Validators[idx].Slashed {
				continue
			}
			seen[idx] = true
			out = append(out, idx)
		}
	}
	return out, nil
}

// attestingBalance sums effective balances of unslashedAttestingIndices(atts).
func attestingBalance(st *state.BeaconState, atts []*blockspb.PendingAttestation) (primitives.Gwei, error) {
	indices, err := unslashedAttestingIndices(st, atts)
	if err != nil {
		return 0, err
	}
	return helpers.TotalBalance(st, indices), nil
}

type outOfRangeSlotError struct {
	slot, stateSlot primitives.Slot
}

func (e *outOfRangeSlotError) Error() string {
	return "epoch: slot out of historical-root range"
}

func errOutOfRangeSlot(slot, stateSlot primitives.Slot) error {
	return &outOfRangeSlotError{slot: slot, stateSlot: stateSlot}
}
