// Package transition wires together the per-slot, per-epoch, and
// per-block sub-transitions into the top-level state-transition
// function, grounded on the teacher lineage's core/state ExecuteStateTransition
// (other_examples/...phoreproject-prysm__beacon-chain-core-blocks-block_operations.go.go
// and the epoch_processing.go ancestor feeding core/epoch) restated
// against this repo's BeaconState and Process* split.
package transition

import (
	"github.com/pkg/errors"

	"github.com/lumenchain/beacon-node/beacon-chain/core/blocks"
	"github.com/lumenchain/beacon-node/beacon-chain/core/epoch"
	"github.com/lumenchain/beacon-node/config/params"
	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
)

// ProcessSlot caches the pre-slot state and block roots into st's ring
// buffers before st.Slot advances, so later lookups (BlockRootAtSlot,
// the attestation source/target checks) can still resolve them.
func ProcessSlot(st *state.BeaconState) error {
	previousStateRoot, err := st.HashTreeRoot()
	if err != nil {
		return errors.Wrap(err, "could not compute state root")
	}
	st.UpdateStateRootAtIndex(uint64(st.Slot), previousStateRoot)

	if st.LatestBlockHeader.StateRoot == (primitives.Root{}) {
		st.LatestBlockHeader.StateRoot = previousStateRoot
	}
	previousBlockRoot, err := st.LatestBlockHeader.HashTreeRoot()
	if err != nil {
		return errors.Wrap(err, "could not compute latest block header root")
	}
	st.UpdateBlockRootAtIndex(uint64(st.Slot), previousBlockRoot)
	return nil
}

// ProcessSlots advances st slot by slot until st.Slot equals slot,
// running the epoch sub-transition whenever the advance crosses an
// epoch boundary. slot must be greater than st.Slot.
func ProcessSlots(st *state.BeaconState, slot primitives.Slot) error {
	if st.Slot >= slot {
		return errors.Errorf("core/transition: target slot %d not greater than current slot %d", slot, st.Slot)
	}
	cfg := params.BeaconConfig()
	for st.Slot < slot {
		if err := ProcessSlot(st); err != nil {
			return err
		}
		if (uint64(st.Slot)+1)%cfg.SlotsPerEpoch == 0 {
			if err := epoch.ProcessEpoch(st); err != nil {
				return errors.Wrap(err, "could not process epoch")
			}
		}
		st.SetSlot(st.Slot + 1)
	}
	return nil
}

// ProcessBlock runs the per-block sub-transition: header, randao,
// eth1 vote, then every operation the block body carries.
func ProcessBlock(st *state.BeaconState, block *blockspb.BeaconBlock) error {
	if err := blocks.ProcessBlockHeader(st, block); err != nil {
		return errors.Wrap(err, "could not process block header")
	}
	if err := blocks.ProcessRandao(st, block.Body); err != nil {
		return errors.Wrap(err, "could not process randao")
	}
	if err := blocks.ProcessEth1Data(st, block.Body); err != nil {
		return errors.Wrap(err, "could not process eth1 data")
	}
	if err := blocks.ProcessOperations(st, block.Body); err != nil {
		return errors.Wrap(err, "could not process block operations")
	}
	return nil
}

// ExecuteStateTransition runs the full phase-0 state-transition
// function over a copy of preState: advances slots up to the block's
// slot (running any crossed epoch transitions), optionally verifies
// the proposer signature, processes the block's own sub-transition,
// and — when validateResult is set — checks the resulting state root
// against the one the block claims. The returned state is always a
// fresh copy; preState is never mutated.
func ExecuteStateTransition(preState *state.BeaconState, signed *blockspb.SignedBeaconBlock, validateResult bool) (*state.BeaconState, error) {
	st := preState.Clone()
	block := signed.Block

	if st.Slot < block.Slot {
		if err := ProcessSlots(st, block.Slot); err != nil {
			return nil, err
		}
	}

	if validateResult {
		if err := blocks.VerifyBlockSignature(st, signed); err != nil {
			return nil, errors.Wrap(err, "could not verify block signature")
		}
	}

	if err := ProcessBlock(st, block); err != nil {
		return nil, errors.Wrap(err, "could not process block")
	}

	if validateResult {
		root, err := st.HashTreeRoot()
		if err != nil {
			return nil, errors.Wrap(err, "could not compute post-state root")
		}
		if root != block.StateRoot {
			return nil, errors.Errorf("core/transition: post-state root %#x does not match block's claimed root %#x", root, block.StateRoot)
		}
	}
	return st, nil
}

// CalculateStateRoot runs the transition without signature or
// state-root verification and returns only the resulting root, the
// helper a proposer calls to fill in its own block's StateRoot field
// before signing.
func CalculateStateRoot(preState *state.BeaconState, signed *blockspb.SignedBeaconBlock) ([32]byte, error) {
	st, err := ExecuteStateTransition(preState, signed, false)
	if err != nil {
		return [32]byte{}, err
	}
	return st.HashTreeRoot()
}
