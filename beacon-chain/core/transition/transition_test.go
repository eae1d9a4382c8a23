package transition

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenchain/beacon-node/beacon-chain/core/helpers"
	"github.com/lumenchain/beacon-node/beacon-chain/core/signing"
	"github.com/lumenchain/beacon-node/config/params"
	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
	"github.com/lumenchain/beacon-node/crypto/bls"
)

func testState(t *testing.T, n int) (*state.BeaconState, []*bls.SecretKey) {
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

// signedNextBlock builds a block at st's current slot signed by the
// real proposer, with a genuine RANDAO reveal and (when sign is true)
// a genuine proposer signature and state root filled in via
// CalculateStateRoot.
func signedNextBlock(t *testing.T, st *state.BeaconState, keys []*bls.SecretKey, sign bool) *blockspb.SignedBeaconBlock {
	t.Helper()
	cfg := params.BeaconConfig()
	epoch := helpers.CurrentEpoch(st)
	proposer, err := helpers.BeaconProposerIndex(st)
	require.NoError(t, err)

	randaoDomain := helpers.Domain(st.Fork, epoch, cfg.DomainRandao)
	epochRoot := epochHashRoot(epoch)
	randaoSigningRoot, err := signing.ComputeSigningRoot(epochRoot, randaoDomain)
	require.NoError(t, err)
	randaoSig := keys[proposer].Sign(randaoSigningRoot[:])
	var randaoReveal primitives.BLSSignature
	copy(randaoReveal[:], randaoSig.Marshal())

	parentRoot, err := st.LatestBlockHeader.HashTreeRoot()
	require.NoError(t, err)
	if st.LatestBlockHeader.StateRoot == (primitives.Root{}) {
		root, err := st.HashTreeRoot()
		require.NoError(t, err)
		st.LatestBlockHeader.StateRoot = root
		parentRoot, err = st.LatestBlockHeader.HashTreeRoot()
		require.NoError(t, err)
	}

	block := &blockspb.BeaconBlock{
		Slot:          st.Slot,
		ProposerIndex: proposer,
		ParentRoot:    primitives.Root(parentRoot),
		Body: &blockspb.BeaconBlockBody{
			RandaoReveal: randaoReveal,
			Eth1Data:     &blockspb.Eth1Data{},
		},
	}
	signed := &blockspb.SignedBeaconBlock{Block: block}

	if !sign {
		return signed
	}

	root, err := CalculateStateRoot(st, signed)
	require.NoError(t, err)
	block.StateRoot = primitives.Root(root)

	proposerDomain := helpers.Domain(st.Fork, epoch, cfg.DomainBeaconProposer)
	signingRoot, err := signing.ComputeSigningRoot(block, proposerDomain)
	require.NoError(t, err)
	blockSig := keys[proposer].Sign(signingRoot[:])
	var sigBytes primitives.BLSSignature
	copy(sigBytes[:], blockSig.Marshal())
	signed.Signature = sigBytes
	return signed
}

type epochHashRoot primitives.Epoch

func (e epochHashRoot) HashTreeRoot() ([32]byte, error) {
	var out [32]byte
	v := uint64(e)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out, nil
}

func TestProcessSlotCachesStateAndBlockRoots(t *testing.T) {
	st, _ := testState(t, 4)
	require.NoError(t, ProcessSlot(st))
	require.NotEqual(t, primitives.Root{}, primitives.Root(st.BlockRoots[0]))
}

func TestProcessSlotsRejectsNonIncreasingTarget(t *testing.T) {
	st, _ := testState(t, 4)
	require.Error(t, ProcessSlots(st, st.Slot))
}

func TestProcessSlotsAdvancesAcrossAnEpochBoundary(t *testing.T) {
	st, _ := testState(t, 8)
	cfg := params.BeaconConfig()
	target := st.Slot + primitives.Slot(cfg.SlotsPerEpoch) + 1

	require.NoError(t, ProcessSlots(st, target))
	require.Equal(t, target, st.Slot)
}

func TestExecuteStateTransitionAcceptsAValidSignedBlock(t *testing.T) {
	st, keys := testState(t, 8)
	signed := signedNextBlock(t, st, keys, true)

	post, err := ExecuteStateTransition(st, signed, true)
	require.NoError(t, err)
	require.Equal(t, signed.Block.Slot, post.Slot)
	require.NotSame(t, st, post)
}

func TestExecuteStateTransitionRejectsMismatchedStateRoot(t *testing.T) {
	st, keys := testState(t, 8)
	signed := signedNextBlock(t, st, keys, true)
	signed.Block.StateRoot = primitives.Root{0xff}

	proposerDomain := helpers.Domain(st.Fork, helpers.CurrentEpoch(st), params.BeaconConfig().DomainBeaconProposer)
	signingRoot, err := signing.ComputeSigningRoot(signed.Block, proposerDomain)
	require.NoError(t, err)
	sig := keys[signed.Block.ProposerIndex].Sign(signingRoot[:])
	var sigBytes primitives.BLSSignature
	copy(sigBytes[:], sig.Marshal())
	signed.Signature = sigBytes

	_, err = ExecuteStateTransition(st, signed, true)
	require.Error(t, err)
}

func TestExecuteStateTransitionRejectsBadProposerSignature(t *testing.T) {
	st, keys := testState(t, 8)
	signed := signedNextBlock(t, st, keys, true)
	signed.Signature = primitives.BLSSignature{}

	_, err := ExecuteStateTransition(st, signed, true)
	require.Error(t, err)
}

func TestCalculateStateRootDoesNotMutatePreState(t *testing.T) {
	st, keys := testState(t, 8)
	before := st.Slot
	signed := signedNextBlock(t, st, keys, false)

	_, err := CalculateStateRoot(st, signed)
	require.NoError(t, err)
	require.Equal(t, before, st.Slot)
}
