package epoch

import (
	bitfield "github.com/prysmaticlabs/go-bitfield"

	"github.com/lumenchain/beacon-node/beacon-chain/core/helpers"
	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/state"
)

// ProcessJustificationAndFinalization implements Casper FFG bookkeeping:
// it shifts the justification bitfield, justifies the previous and/or
// current epoch if their boundary target won supermajority support, and
// applies the four finality rules over the last four bits, grounded on
// the teacher lineage's ProcessJustification
// (other_examples/...epoch_processing.go.go) restated over the
// two-checkpoint + bitfield representation later Prysm versions use.
func ProcessJustificationAndFinalization(st *state.BeaconState) error {
	currentEpoch := helpers.CurrentEpoch(st)
	if currentEpoch <= 1 {
		return nil
	}
	previousEpoch := helpers.PreviousEpoch(st)

	oldPreviousJustified := st.PreviousJustifiedCheckpoint
	oldCurrentJustified := st.CurrentJustifiedCheckpoint

	bits := append([]byte(nil), st.JustificationBits...)
	bits = shiftBitvector4(bits)

	st.SetPreviousJustifiedCheckpoint(oldCurrentJustified)

	prevAtts, err := matchingTargetAttestations(st, matchingSourceAttestations(st, previousEpoch), previousEpoch)
	if err != nil {
		return err
	}
	prevBalance, err := attestingBalance(st, prevAtts)
	if err != nil {
		return err
	}
	totalPrev := helpers.TotalActiveBalance(st, previousEpoch)
	if uint64(prevBalance)*3 >= uint64(totalPrev)*2 {
		root, err := BlockRootAtEpochStart(st, previousEpoch)
		if err != nil {
			return err
		}
		st.SetCurrentJustifiedCheckpoint(&blockspb.Checkpoint{Epoch: previousEpoch, Root: root})
		bits = setBit(bits, 1)
	}

	curAtts, err := matchingTargetAttestations(st, matchingSourceAttestations(st, currentEpoch), currentEpoch)
	if err != nil {
		return err
	}
	curBalance, err := attestingBalance(st, curAtts)
	if err != nil {
		return err
	}
	totalCurrent := helpers.TotalActiveBalance(st, currentEpoch)
	if uint64(curBalance)*3 >= uint64(totalCurrent)*2 {
		root, err := BlockRootAtEpochStart(st, currentEpoch)
		if err != nil {
			return err
		}
		st.SetCurrentJustifiedCheckpoint(&blockspb.Checkpoint{Epoch: currentEpoch, Root: root})
		bits = setBit(bits, 0)
	}

	st.SetJustificationBits(bitfield.Bitvector4(bits))

	// Rule 1: the 2nd/3rd/4th-oldest bits all set, old previous justified
	// three epochs back.
	if allSet(bits, 1, 4) && oldPreviousJustified.Epoch+3 == currentEpoch {
		st.SetFinalizedCheckpoint(oldPreviousJustified)
	}
	// Rule 2: the 2nd/3rd-oldest bits set, old previous justified two
	// epochs back.
	if allSet(bits, 1, 3) && oldPreviousJustified.Epoch+2 == currentEpoch {
		st.SetFinalizedCheckpoint(oldPreviousJustified)
	}
	// Rule 3: the 1st/2nd/3rd bits set, old current justified two epochs
	// back.
	if allSet(bits, 0, 3) && oldCurrentJustified.Epoch+2 == currentEpoch {
		st.SetFinalizedCheckpoint(oldCurrentJustified)
	}
	// Rule 4: the 1st/2nd bits set, old current justified one epoch back.
	if allSet(bits, 0, 2) && oldCurrentJustified.Epoch+1 == currentEpoch {
		st.SetFinalizedCheckpoint(oldCurrentJustified)
	}
	return nil
}

func shiftBitvector4(bits []byte) []byte {
	if len(bits) == 0 {
		bits = []byte{0}
	}
	v := bits[0]
	v = (v << 1) & 0x0f
	bits[0] = v
	return bits
}

func setBit(bits []byte, i uint) []byte {
	bits[0] |= 1 << i
	return bits
}

// allSet reports whether bits [lo, hi) are all 1 in the bitfield's
// single byte (bit 0 = most-recently-shifted-in epoch).
func allSet(bits []byte, lo, hi uint) bool {
	for i := lo; i < hi; i++ {
		if bits[0]&(1<<i) == 0 {
			return false
		}
	}
	return true
}
