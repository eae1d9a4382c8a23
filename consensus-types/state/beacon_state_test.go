package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenchain/beacon-node/config/params"
	"github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
)

func testMinimalState(t *testing.T) *BeaconState {
	t.Helper()
	params.UseMinimalConfig()
	t.Cleanup(func() { params.OverrideBeaconConfig(params.MainnetConfig()) })
	return New()
}

func TestNewPreallocatesRingBuffersToConfigLengths(t *testing.T) {
	st := testMinimalState(t)
	cfg := params.BeaconConfig()

	require.Len(t, st.BlockRoots, int(cfg.SlotsPerHistoricalRoot))
	require.Len(t, st.StateRoots, int(cfg.SlotsPerHistoricalRoot))
	require.Len(t, st.RandaoMixes, int(cfg.EpochsPerHistoricalVector))
	require.Len(t, st.Slashings, int(cfg.EpochsPerSlashingsVector))
	require.Len(t, st.CurrentCrosslinks, int(cfg.ShardCount))
	require.Len(t, st.PreviousCrosslinks, int(cfg.ShardCount))
	for _, c := range st.CurrentCrosslinks {
		require.NotNil(t, c)
	}
}

func TestHashTreeRootIsStableAcrossRepeatedCalls(t *testing.T) {
	st := testMinimalState(t)
	a, err := st.HashTreeRoot()
	require.NoError(t, err)
	b, err := st.HashTreeRoot()
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestHashTreeRootChangesAfterSetSlot(t *testing.T) {
	st := testMinimalState(t)
	before, err := st.HashTreeRoot()
	require.NoError(t, err)

	st.SetSlot(7)
	after, err := st.HashTreeRoot()
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestHashTreeRootPicksUpAppendedValidator(t *testing.T) {
	st := testMinimalState(t)
	before, err := st.HashTreeRoot()
	require.NoError(t, err)

	st.AppendValidator(&Validator{EffectiveBalance: 32e9}, primitives.Gwei(32e9))
	after, err := st.HashTreeRoot()
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestHashTreeRootReflectsBalanceChanges(t *testing.T) {
	st := testMinimalState(t)
	st.AppendValidator(&Validator{}, primitives.Gwei(10))
	afterAppend, err := st.HashTreeRoot()
	require.NoError(t, err)

	st.IncreaseBalance(0, 5)
	afterIncrease, err := st.HashTreeRoot()
	require.NoError(t, err)
	require.NotEqual(t, afterAppend, afterIncrease)
	require.Equal(t, primitives.Gwei(15), st.Balances[0])

	st.DecreaseBalance(0, 100)
	require.Equal(t, primitives.Gwei(0), st.Balances[0], "balance should saturate at zero")
}

func TestUpdateBlockRootAtIndexWrapsAroundTheRingBuffer(t *testing.T) {
	st := testMinimalState(t)
	n := uint64(len(st.BlockRoots))
	root := [32]byte{7}

	st.UpdateBlockRootAtIndex(n+2, root)
	require.Equal(t, root, st.BlockRoots[2])
}

func TestRotateEpochAttestationsMovesCurrentToPrevious(t *testing.T) {
	st := testMinimalState(t)
	att := &blocks.PendingAttestation{Data: &blocks.AttestationData{}}
	st.AppendCurrentEpochAttestation(att)

	st.RotateEpochAttestations()
	require.Equal(t, []*blocks.PendingAttestation{att}, st.PreviousEpochAttestations)
	require.Nil(t, st.CurrentEpochAttestations)
}

func TestRotateCrosslinksMovesCurrentToPreviousAsAnIndependentCopy(t *testing.T) {
	st := testMinimalState(t)
	original := st.CurrentCrosslinks[0]

	st.RotateCrosslinks()
	require.Same(t, original, st.PreviousCrosslinks[0])

	st.SetCurrentCrosslink(0, &blocks.Crosslink{Shard: 9})
	require.NotSame(t, st.CurrentCrosslinks[0], st.PreviousCrosslinks[0])
}

func TestCloneSharesNoBackingArraysWithTheOriginal(t *testing.T) {
	st := testMinimalState(t)
	st.AppendValidator(&Validator{EffectiveBalance: 1}, primitives.Gwei(1))
	st.UpdateBlockRootAtIndex(0, [32]byte{1})

	cp := st.Clone()
	cp.SetBalance(0, primitives.Gwei(99))
	cp.UpdateBlockRootAtIndex(0, [32]byte{2})
	cp.Validators[0].EffectiveBalance = 42

	require.Equal(t, primitives.Gwei(1), st.Balances[0])
	require.Equal(t, [32]byte{1}, st.BlockRoots[0])
	require.Equal(t, primitives.Gwei(1), st.Validators[0].EffectiveBalance)
}

func TestCloneProducesTheSameHashTreeRootAsTheOriginal(t *testing.T) {
	st := testMinimalState(t)
	st.AppendValidator(&Validator{EffectiveBalance: 1}, primitives.Gwei(1))
	st.SetSlot(3)

	want, err := st.HashTreeRoot()
	require.NoError(t, err)

	cp := st.Clone()
	got, err := cp.HashTreeRoot()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSetJustificationBitsIsReflectedInTheRoot(t *testing.T) {
	st := testMinimalState(t)
	before, err := st.HashTreeRoot()
	require.NoError(t, err)

	bits := st.JustificationBits
	bits.SetBitAt(0, true)
	st.SetJustificationBits(bits)

	after, err := st.HashTreeRoot()
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}
