// Package helpers implements the chain-spec pure functions the
// state-transition function and fork-choice build on: epoch
// arithmetic, committee shuffling, validator-set queries, seed
// derivation, and signing-domain computation. None of these read
// global state beyond the BeaconState and config.BeaconConfig()
// passed in; they are safe to call concurrently from any number of
// readers.
package helpers

import (
	"github.com/lumenchain/beacon-node/config/params"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
)

// SlotToEpoch returns the epoch containing slot.
func SlotToEpoch(slot primitives.Slot) primitives.Epoch {
	return primitives.Epoch(uint64(slot) / params.BeaconConfig().SlotsPerEpoch)
}

// StartSlot returns the first slot of epoch.
func StartSlot(epoch primitives.Epoch) primitives.Slot {
	return primitives.Slot(uint64(epoch) * params.BeaconConfig().SlotsPerEpoch)
}

// CurrentEpoch returns the epoch st's slot falls in.
func CurrentEpoch(st *state.BeaconState) primitives.Epoch {
	return SlotToEpoch(st.Slot)
}

// PreviousEpoch returns the epoch before CurrentEpoch, floored at the
// genesis epoch rather than wrapping.
func PreviousEpoch(st *state.BeaconState) primitives.Epoch {
	current := CurrentEpoch(st)
	if current == primitives.Epoch(params.BeaconConfig().GenesisEpoch) {
		return current
	}
	return current - 1
}

// NextEpoch returns the epoch after CurrentEpoch.
func NextEpoch(st *state.BeaconState) primitives.Epoch {
	return CurrentEpoch(st) + 1
}

// IsEpochStart reports whether slot is the first slot of its epoch.
func IsEpochStart(slot primitives.Slot) bool {
	return slot.Mod(params.BeaconConfig().SlotsPerEpoch) == 0
}

// IsEpochEnd reports whether slot is the last slot of its epoch.
func IsEpochEnd(slot primitives.Slot) bool {
	return IsEpochStart(slot + 1)
}
