package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenchain/beacon-node/beacon-chain/core/helpers"
	"github.com/lumenchain/beacon-node/beacon-chain/db/kv"
	"github.com/lumenchain/beacon-node/beacon-chain/operations/attestations"
	"github.com/lumenchain/beacon-node/beacon-chain/operations/slashings"
	"github.com/lumenchain/beacon-node/beacon-chain/operations/voluntaryexits"
	"github.com/lumenchain/beacon-node/config/params"
	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
	"github.com/lumenchain/beacon-node/crypto/bls"
)

// fakeChain is a minimal Chain stub: ResolveLocalValidators/DutiesForEpoch
// and AttestIfDue only ever touch the head state/root, never
// FinalizedCheckpoint/JustifiedCheckpoint/ReceiveBlock in the paths
// these tests exercise.
type fakeChain struct {
	root  [32]byte
	state *state.BeaconState

	receivedBlocks []*blockspb.SignedBeaconBlock
}

func (f *fakeChain) HeadRoot(ctx context.Context) ([32]byte, error) { return f.root, nil }

func (f *fakeChain) HeadBlock(ctx context.Context) (*blockspb.SignedBeaconBlock, error) {
	return nil, nil
}

func (f *fakeChain) HeadState(ctx context.Context) (*state.BeaconState, error) {
	return f.state, nil
}

func (f *fakeChain) FinalizedCheckpoint() *blockspb.Checkpoint { return f.state.FinalizedCheckpoint }

func (f *fakeChain) JustifiedCheckpoint() *blockspb.Checkpoint {
	return f.state.CurrentJustifiedCheckpoint
}

func (f *fakeChain) ReceiveBlock(ctx context.Context, signed *blockspb.SignedBeaconBlock) error {
	f.receivedBlocks = append(f.receivedBlocks, signed)
	return nil
}

func testPools() Pools {
	return Pools{
		Attestations:      attestations.NewPool(),
		ProposerSlashings: slashings.NewProposerPool(),
		AttesterSlashings: slashings.NewAttesterPool(),
		VoluntaryExits:    voluntaryexits.NewPool(),
	}
}

// testStateWithKeys builds a state like testStateWithValidators but with
// real BLS keys backing each validator's pubkey, needed wherever a test
// signs through a real Signer.
func testStateWithKeys(t *testing.T, n int) (*state.BeaconState, []*bls.SecretKey) {
	t.Helper()
	params.UseMinimalConfig()
	t.Cleanup(func() { params.OverrideBeaconConfig(params.MainnetConfig()) })

	st := state.New()
	cfg := params.BeaconConfig()
	keys := make([]*bls.SecretKey, n)
	for i := 0; i < n; i++ {
		var raw [32]byte
		raw[31] = byte(i + 1)
		key, err := bls.SecretKeyFromBytes(raw[:])
		require.NoError(t, err)
		keys[i] = key

		var pub primitives.BLSPubkey
		copy(pub[:], key.PublicKey().Marshal())
		v := &state.Validator{
			Pubkey:                     pub,
			EffectiveBalance:           primitives.Gwei(cfg.MaxEffectiveBalance),
			ActivationEligibilityEpoch: 0,
			ActivationEpoch:            0,
			ExitEpoch:                  state.FarFutureEpoch,
			WithdrawableEpoch:          state.FarFutureEpoch,
		}
		st.AppendValidator(v, primitives.Gwei(cfg.MaxEffectiveBalance))
	}
	return st, keys
}

func pubkeyBytes(pub primitives.BLSPubkey) [48]byte {
	var out [48]byte
	copy(out[:], pub[:])
	return out
}

func TestEngineResolveLocalValidatorsMapsOwnedPubkeysToIndices(t *testing.T) {
	st := testStateWithValidators(t, 4)
	chain := &fakeChain{state: st}
	e := NewEngine(chain, testPools(), nil)

	pk := pubkeyBytes(st.Validators[2].Pubkey)
	e.ResolveLocalValidators(st, [][48]byte{pk})

	require.Len(t, e.localIndices, 1)
	require.Equal(t, pk, e.localIndices[2])
}

func TestEngineResolveLocalValidatorsSkipsUnknownPubkeys(t *testing.T) {
	st := testStateWithValidators(t, 4)
	chain := &fakeChain{state: st}
	e := NewEngine(chain, testPools(), nil)

	var unknown [48]byte
	unknown[0] = 0xaa
	e.ResolveLocalValidators(st, [][48]byte{unknown})
	require.Empty(t, e.localIndices)
}

func TestEngineDutiesForEpochIsNarrowedToLocalValidators(t *testing.T) {
	st := testStateWithValidators(t, 8)
	chain := &fakeChain{state: st}
	e := NewEngine(chain, testPools(), nil)

	pk := pubkeyBytes(st.Validators[0].Pubkey)
	e.ResolveLocalValidators(st, [][48]byte{pk})

	duties, err := e.DutiesForEpoch(st, 0)
	require.NoError(t, err)
	for _, a := range duties.Attesters {
		require.Equal(t, primitives.ValidatorIndex(0), a.ValidatorIndex)
	}
}

func TestEngineAttestIfDueSignsAndPoolsALocalAttesterDuty(t *testing.T) {
	st, keys := testStateWithKeys(t, 8)
	chain := &fakeChain{state: st, root: [32]byte{0x11}}
	pools := testPools()
	signer := NewDBSigner(kv.NewMemStore(), keys)
	e := NewEngine(chain, pools, signer)

	pk := pubkeyBytes(st.Validators[0].Pubkey)
	e.ResolveLocalValidators(st, [][48]byte{pk})

	duties, err := e.DutiesForEpoch(st, helpers.CurrentEpoch(st))
	require.NoError(t, err)
	require.NotEmpty(t, duties.Attesters)
	dutySlot := duties.Attesters[0].Slot

	produced, err := e.AttestIfDue(context.Background(), dutySlot)
	require.NoError(t, err)
	require.Len(t, produced, 1)
	require.Equal(t, dutySlot, produced[0].Data.Slot)
	require.Equal(t, 1, pools.Attestations.Len())
}

func TestEngineAttestIfDueIsANoOpWhenNoLocalValidatorIsDueAtSlot(t *testing.T) {
	st, keys := testStateWithKeys(t, 8)
	chain := &fakeChain{state: st, root: [32]byte{0x11}}
	pools := testPools()
	signer := NewDBSigner(kv.NewMemStore(), keys)
	e := NewEngine(chain, pools, signer)

	pk := pubkeyBytes(st.Validators[0].Pubkey)
	e.ResolveLocalValidators(st, [][48]byte{pk})

	duties, err := e.DutiesForEpoch(st, helpers.CurrentEpoch(st))
	require.NoError(t, err)
	require.NotEmpty(t, duties.Attesters)
	dutySlot := duties.Attesters[0].Slot

	cfg := params.BeaconConfig()
	epochStart := helpers.StartSlot(helpers.CurrentEpoch(st))
	otherSlot := epochStart + (dutySlot-epochStart+1)%primitives.Slot(cfg.SlotsPerEpoch)
	require.NotEqual(t, dutySlot, otherSlot, "the epoch has more than one slot to pick an off-duty one from")

	produced, err := e.AttestIfDue(context.Background(), otherSlot)
	require.NoError(t, err)
	require.Empty(t, produced)
	require.Equal(t, 0, pools.Attestations.Len())
}
