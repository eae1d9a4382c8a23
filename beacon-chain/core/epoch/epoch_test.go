package epoch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenchain/beacon-node/config/params"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
)

// stateAtEpoch builds a state with n validators, all active since
// genesis with the maximum effective balance, advanced to the first
// slot of the given epoch with every historical block/state root
// populated so BlockRootAtSlot/BlockRootAtEpochStart have something
// to read.
func stateAtEpoch(t *testing.T, n int, epoch primitives.Epoch) *state.BeaconState {
	t.Helper()
	params.UseMinimalConfig()
	t.Cleanup(func() { params.OverrideBeaconConfig(params.MainnetConfig()) })

	st := state.New()
	cfg := params.BeaconConfig()
	for i := 0; i < n; i++ {
		v := &state.Validator{
			EffectiveBalance:           primitives.Gwei(cfg.MaxEffectiveBalance),
			ActivationEligibilityEpoch: 0,
			ActivationEpoch:            0,
			ExitEpoch:                  state.FarFutureEpoch,
			WithdrawableEpoch:          state.FarFutureEpoch,
		}
		st.AppendValidator(v, primitives.Gwei(cfg.MaxEffectiveBalance))
	}

	targetSlot := primitives.Slot(uint64(epoch) * cfg.SlotsPerEpoch)
	for s := primitives.Slot(0); s < targetSlot; s++ {
		var root [32]byte
		root[0] = byte(s + 1)
		st.UpdateBlockRootAtIndex(uint64(s)%uint64(len(st.BlockRoots)), root)
		st.UpdateStateRootAtIndex(uint64(s)%uint64(len(st.StateRoots)), root)
	}
	st.SetSlot(targetSlot)
	return st
}

func TestProcessEpochRunsEveryStageInOrder(t *testing.T) {
	st := stateAtEpoch(t, 8, 3)
	require.NoError(t, ProcessEpoch(st))
}

func TestProcessEpochIsANoOpBeforeEpochTwo(t *testing.T) {
	st := stateAtEpoch(t, 8, 1)
	require.NoError(t, ProcessEpoch(st))
	assert := require.New(t)
	assert.Equal(primitives.Epoch(0), st.CurrentJustifiedCheckpoint.Epoch)
}
