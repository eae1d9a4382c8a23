package blocks

import (
	"testing"

	bitfield "github.com/prysmaticlabs/go-bitfield"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenchain/beacon-node/beacon-chain/core/helpers"
	"github.com/lumenchain/beacon-node/beacon-chain/core/signing"
	"github.com/lumenchain/beacon-node/config/params"
	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
	"github.com/lumenchain/beacon-node/crypto/bls"
	"github.com/lumenchain/beacon-node/crypto/hash"
	"github.com/lumenchain/beacon-node/crypto/merkle"
)

func TestProcessOperationsRejectsTooManyProposerSlashings(t *testing.T) {
	st, _ := stateWithValidators(t, 8)
	cfg := params.BeaconConfig()
	body := &blockspb.BeaconBlockBody{
		ProposerSlashings: make([]*blockspb.ProposerSlashing, cfg.MaxProposerSlashings+1),
	}
	assert.Error(t, ProcessOperations(st, body))
}

func TestProcessProposerSlashingRejectsDifferentSlots(t *testing.T) {
	st, _ := stateWithValidators(t, 8)
	h1 := &blockspb.BeaconBlockHeader{Slot: 1, ProposerIndex: 0}
	h2 := &blockspb.BeaconBlockHeader{Slot: 2, ProposerIndex: 0}
	slashing := &blockspb.ProposerSlashing{
		ProposerIndex: 0,
		Header1:       &blockspb.SignedBeaconBlockHeader{Header: h1},
		Header2:       &blockspb.SignedBeaconBlockHeader{Header: h2},
	}
	assert.Error(t, ProcessProposerSlashing(st, slashing))
}

func TestProcessProposerSlashingRejectsIdenticalHeaders(t *testing.T) {
	st, _ := stateWithValidators(t, 8)
	h1 := &blockspb.BeaconBlockHeader{Slot: 1, ProposerIndex: 0}
	h2 := &blockspb.BeaconBlockHeader{Slot: 1, ProposerIndex: 0}
	slashing := &blockspb.ProposerSlashing{
		ProposerIndex: 0,
		Header1:       &blockspb.SignedBeaconBlockHeader{Header: h1},
		Header2:       &blockspb.SignedBeaconBlockHeader{Header: h2},
	}
	assert.Error(t, ProcessProposerSlashing(st, slashing))
}

func TestProcessProposerSlashingRejectsOutOfRangeIndex(t *testing.T) {
	st, _ := stateWithValidators(t, 8)
	h1 := &blockspb.BeaconBlockHeader{Slot: 1, ProposerIndex: 99}
	h2 := &blockspb.BeaconBlockHeader{Slot: 1, ProposerIndex: 99, ParentRoot: primitives.Root{1}}
	slashing := &blockspb.ProposerSlashing{
		ProposerIndex: 99,
		Header1:       &blockspb.SignedBeaconBlockHeader{Header: h1},
		Header2:       &blockspb.SignedBeaconBlockHeader{Header: h2},
	}
	assert.Error(t, ProcessProposerSlashing(st, slashing))
}

func TestProcessProposerSlashingRejectsNonSlashableProposer(t *testing.T) {
	st, _ := stateWithValidators(t, 8)
	st.Validators[0].Slashed = true
	h1 := &blockspb.BeaconBlockHeader{Slot: 1, ProposerIndex: 0}
	h2 := &blockspb.BeaconBlockHeader{Slot: 1, ProposerIndex: 0, ParentRoot: primitives.Root{1}}
	slashing := &blockspb.ProposerSlashing{
		ProposerIndex: 0,
		Header1:       &blockspb.SignedBeaconBlockHeader{Header: h1},
		Header2:       &blockspb.SignedBeaconBlockHeader{Header: h2},
	}
	assert.Error(t, ProcessProposerSlashing(st, slashing))
}

func slashableAttestation(t *testing.T, st *state.BeaconState, keys []*bls.SecretKey, indices []primitives.ValidatorIndex, sourceEpoch, targetEpoch primitives.Epoch, dataRootTag byte) *blockspb.IndexedAttestation {
	t.Helper()
	data := &blockspb.AttestationData{
		Slot:   helpers.StartSlot(targetEpoch),
		Index:  0,
		Source: &blockspb.Checkpoint{Epoch: sourceEpoch},
		Target: &blockspb.Checkpoint{Epoch: targetEpoch},
		Crosslink: &blockspb.Crosslink{
			ParentRoot: primitives.Root{},
			DataRoot:   primitives.Root{dataRootTag},
		},
	}
	cfg := params.BeaconConfig()
	domain := helpers.Domain(st.Fork, targetEpoch, cfg.DomainBeaconAttester)
	root, err := signing.ComputeSigningRoot(data, domain)
	require.NoError(t, err)

	sigs := make([]*bls.Signature, len(indices))
	for i, idx := range indices {
		sigs[i] = keys[idx].Sign(root[:])
	}
	agg, err := bls.AggregateSignatures(sigs)
	require.NoError(t, err)
	var sigBytes primitives.BLSSignature
	copy(sigBytes[:], agg.Marshal())

	return &blockspb.IndexedAttestation{AttestingIndices: indices, Data: data, Signature: sigBytes}
}

func TestProcessAttesterSlashingDoubleVoteSlashesOverlap(t *testing.T) {
	st, keys := stateWithValidators(t, 8)
	indices := []primitives.ValidatorIndex{0, 1, 2}

	att1 := slashableAttestation(t, st, keys, indices, 0, 1, 1)
	att2 := slashableAttestation(t, st, keys, indices, 0, 1, 2)

	slashing := &blockspb.AttesterSlashing{Attestation1: att1, Attestation2: att2}
	require.NoError(t, ProcessAttesterSlashing(st, slashing))

	for _, idx := range indices {
		assert.True(t, st.Validators[idx].Slashed, "validator %d should be slashed", idx)
	}
}

func TestProcessAttesterSlashingRejectsNonSlashablePair(t *testing.T) {
	st, keys := stateWithValidators(t, 8)
	indices := []primitives.ValidatorIndex{0, 1, 2}

	att1 := slashableAttestation(t, st, keys, indices, 0, 1, 1)
	att2 := slashableAttestation(t, st, keys, indices, 1, 2, 1)

	slashing := &blockspb.AttesterSlashing{Attestation1: att1, Attestation2: att2}
	assert.Error(t, ProcessAttesterSlashing(st, slashing))
}

func TestIsSlashableAttestationDataDetectsSurroundVote(t *testing.T) {
	inner := &blockspb.AttestationData{
		Source: &blockspb.Checkpoint{Epoch: 2},
		Target: &blockspb.Checkpoint{Epoch: 3},
	}
	outer := &blockspb.AttestationData{
		Source: &blockspb.Checkpoint{Epoch: 1},
		Target: &blockspb.Checkpoint{Epoch: 4},
	}
	assert.True(t, isSlashableAttestationData(inner, outer))
	assert.True(t, isSlashableAttestationData(outer, inner))
}

func TestIsSlashableAttestationDataRejectsDisjointVotes(t *testing.T) {
	a := &blockspb.AttestationData{
		Source: &blockspb.Checkpoint{Epoch: 0},
		Target: &blockspb.Checkpoint{Epoch: 1},
	}
	b := &blockspb.AttestationData{
		Source: &blockspb.Checkpoint{Epoch: 1},
		Target: &blockspb.Checkpoint{Epoch: 2},
	}
	assert.False(t, isSlashableAttestationData(a, b))
}

func TestIntersectSortedReturnsSharedIndices(t *testing.T) {
	a := []primitives.ValidatorIndex{1, 3, 5, 7}
	b := []primitives.ValidatorIndex{2, 3, 4, 7, 9}
	got := intersectSorted(a, b)
	assert.Equal(t, []primitives.ValidatorIndex{3, 7}, got)
}

func attestationFixture(t *testing.T, st *state.BeaconState, keys []*bls.SecretKey, committee []primitives.ValidatorIndex, signerMask []bool, target primitives.Epoch, source *blockspb.Checkpoint) *blockspb.Attestation {
	t.Helper()
	cfg := params.BeaconConfig()
	data := &blockspb.AttestationData{
		Slot:   st.Slot,
		Index:  0,
		Source: source,
		Target: &blockspb.Checkpoint{Epoch: target},
		Crosslink: &blockspb.Crosslink{
			ParentRoot: primitives.Root{},
			DataRoot:   primitives.Root{},
		},
	}
	domain := helpers.Domain(st.Fork, target, cfg.DomainBeaconAttester)
	root, err := signing.ComputeSigningRoot(data, domain)
	require.NoError(t, err)

	bits := bitfield.NewBitlist(uint64(len(committee)))
	var sigs []*bls.Signature
	for i, signs := range signerMask {
		if signs {
			bits.SetBitAt(uint64(i), true)
			sigs = append(sigs, keys[committee[i]].Sign(root[:]))
		}
	}
	var sigBytes primitives.BLSSignature
	if len(sigs) > 0 {
		agg, err := bls.AggregateSignatures(sigs)
		require.NoError(t, err)
		copy(sigBytes[:], agg.Marshal())
	}

	return &blockspb.Attestation{AggregationBits: bits, Data: data, Signature: sigBytes}
}

func TestProcessAttestationRecordsCurrentEpochVote(t *testing.T) {
	st, keys := stateWithValidators(t, 8)
	cfg := params.BeaconConfig()

	committee, err := helpers.BeaconCommittee(st, 0, 0)
	require.NoError(t, err)

	att := attestationFixture(t, st, keys, committee, []bool{true, false, false, false, false, false, false, false}, helpers.CurrentEpoch(st), st.CurrentJustifiedCheckpoint)
	st.SetSlot(primitives.Slot(cfg.MinAttestationInclusionDelay))

	require.NoError(t, ProcessAttestation(st, att))
	assert.Len(t, st.CurrentEpochAttestations, 1)
}

func TestProcessAttestationRejectsBeforeInclusionDelay(t *testing.T) {
	st, keys := stateWithValidators(t, 8)
	committee, err := helpers.BeaconCommittee(st, 0, 0)
	require.NoError(t, err)

	att := attestationFixture(t, st, keys, committee, []bool{true, false, false, false, false, false, false, false}, helpers.CurrentEpoch(st), st.CurrentJustifiedCheckpoint)
	att.Data.Slot = st.Slot

	assert.Error(t, ProcessAttestation(st, att))
}

func TestProcessAttestationRejectsWrongSourceCheckpoint(t *testing.T) {
	st, keys := stateWithValidators(t, 8)
	cfg := params.BeaconConfig()
	st.SetSlot(primitives.Slot(cfg.MinAttestationInclusionDelay))

	committee, err := helpers.BeaconCommittee(st, 0, 0)
	require.NoError(t, err)

	wrongSource := &blockspb.Checkpoint{Epoch: 7, Root: primitives.Root{0xee}}
	att := attestationFixture(t, st, keys, committee, []bool{true, false, false, false, false, false, false, false}, helpers.CurrentEpoch(st), wrongSource)
	att.Data.Slot = 0

	assert.Error(t, ProcessAttestation(st, att))
}

func TestProcessAttestationRejectsMismatchedCommitteeSize(t *testing.T) {
	st, keys := stateWithValidators(t, 8)
	cfg := params.BeaconConfig()
	st.SetSlot(primitives.Slot(cfg.MinAttestationInclusionDelay))

	committee, err := helpers.BeaconCommittee(st, 0, 0)
	require.NoError(t, err)

	att := attestationFixture(t, st, keys, committee, []bool{true, false, false, false, false, false, false, false}, helpers.CurrentEpoch(st), st.CurrentJustifiedCheckpoint)
	att.Data.Slot = 0
	att.AggregationBits = bitfield.NewBitlist(uint64(len(committee)) + 1)
	att.AggregationBits.SetBitAt(0, true)

	assert.Error(t, ProcessAttestation(st, att))
}

func singleLeafDepositProof(t *testing.T, leaf [32]byte, depth int) ([][32]byte, [32]byte) {
	t.Helper()
	branch := make([][32]byte, depth)
	value := leaf
	for i := 0; i < depth; i++ {
		branch[i] = merkle.ZeroHashAtDepth(i)
		value = hash.HashPair(value, branch[i])
	}
	return branch, value
}

func TestProcessDepositEnrollsNewValidator(t *testing.T) {
	st, _ := stateWithValidators(t, 0)
	cfg := params.BeaconConfig()

	key := testKey(t, 77)
	var pub primitives.BLSPubkey
	copy(pub[:], key.PublicKey().Marshal())

	data := &blockspb.DepositData{
		Pubkey:                pub,
		WithdrawalCredentials: primitives.Root{1},
		Amount:                cfg.MaxEffectiveBalance,
	}
	unsigned := &blockspb.DepositData{Pubkey: data.Pubkey, WithdrawalCredentials: data.WithdrawalCredentials, Amount: data.Amount}
	msgRoot, err := unsigned.HashTreeRoot()
	require.NoError(t, err)
	sig := key.Sign(msgRoot[:])
	copy(data.Signature[:], sig.Marshal())

	leaf, err := data.HashTreeRoot()
	require.NoError(t, err)
	depth := int(cfg.DepositContractTreeDepth) + 1
	branch, root := singleLeafDepositProof(t, leaf, depth)
	st.Eth1Data.DepositRoot = root

	dep := &blockspb.Deposit{Proof: branch, Data: data}
	require.NoError(t, ProcessDeposit(st, dep))

	assert.Len(t, st.Validators, 1)
	assert.Equal(t, pub, st.Validators[0].Pubkey)
	assert.Equal(t, uint64(1), st.Eth1DepositIndex)
}

func TestProcessDepositToppsUpExistingValidator(t *testing.T) {
	st, keys := stateWithValidators(t, 1)
	cfg := params.BeaconConfig()
	before := st.Balances[0]

	data := &blockspb.DepositData{
		Pubkey:                st.Validators[0].Pubkey,
		WithdrawalCredentials: primitives.Root{2},
		Amount:                1000,
	}
	unsigned := &blockspb.DepositData{Pubkey: data.Pubkey, WithdrawalCredentials: data.WithdrawalCredentials, Amount: data.Amount}
	msgRoot, err := unsigned.HashTreeRoot()
	require.NoError(t, err)
	sig := keys[0].Sign(msgRoot[:])
	copy(data.Signature[:], sig.Marshal())

	leaf, err := data.HashTreeRoot()
	require.NoError(t, err)
	depth := int(cfg.DepositContractTreeDepth) + 1
	branch, root := singleLeafDepositProof(t, leaf, depth)
	st.Eth1Data.DepositRoot = root

	dep := &blockspb.Deposit{Proof: branch, Data: data}
	require.NoError(t, ProcessDeposit(st, dep))

	assert.Len(t, st.Validators, 1)
	assert.Equal(t, before+primitives.Gwei(1000), st.Balances[0])
}

func TestProcessDepositRejectsBadMerkleProof(t *testing.T) {
	st, _ := stateWithValidators(t, 0)
	key := testKey(t, 5)
	var pub primitives.BLSPubkey
	copy(pub[:], key.PublicKey().Marshal())
	data := &blockspb.DepositData{Pubkey: pub, Amount: 100}

	dep := &blockspb.Deposit{Proof: make([][32]byte, 33), Data: data}
	assert.Error(t, ProcessDeposit(st, dep))
}

func TestEffectiveBalanceForRoundsDownAndCaps(t *testing.T) {
	got := effectiveBalanceFor(32_500_000_001, 32_000_000_000, 1_000_000_000)
	assert.Equal(t, primitives.Gwei(32_000_000_000), got)

	got = effectiveBalanceFor(1_500_000_000, 32_000_000_000, 1_000_000_000)
	assert.Equal(t, primitives.Gwei(1_000_000_000), got)
}

func TestProcessVoluntaryExitAcceptsValidExit(t *testing.T) {
	st, keys := stateWithValidators(t, 8)
	cfg := params.BeaconConfig()
	st.SetSlot(helpers.StartSlot(primitives.Epoch(cfg.PersistentCommitteePeriod)))
	currentEpoch := helpers.CurrentEpoch(st)
	st.Validators[0].ActivationEpoch = currentEpoch - primitives.Epoch(cfg.PersistentCommitteePeriod)

	exit := &blockspb.VoluntaryExit{Epoch: currentEpoch, ValidatorIndex: 0}
	domain := helpers.Domain(st.Fork, exit.Epoch, cfg.DomainVoluntaryExit)
	root, err := signing.ComputeSigningRoot(exit, domain)
	require.NoError(t, err)
	sig := keys[0].Sign(root[:])
	var sigBytes primitives.BLSSignature
	copy(sigBytes[:], sig.Marshal())

	signed := &blockspb.SignedVoluntaryExit{Exit: exit, Signature: sigBytes}
	require.NoError(t, ProcessVoluntaryExit(st, signed))
	assert.NotEqual(t, state.FarFutureEpoch, st.Validators[0].ExitEpoch)
}

func TestProcessVoluntaryExitRejectsBeforeMinimumDuration(t *testing.T) {
	st, keys := stateWithValidators(t, 8)
	cfg := params.BeaconConfig()
	currentEpoch := helpers.CurrentEpoch(st)
	st.Validators[0].ActivationEpoch = currentEpoch

	exit := &blockspb.VoluntaryExit{Epoch: currentEpoch, ValidatorIndex: 0}
	domain := helpers.Domain(st.Fork, exit.Epoch, cfg.DomainVoluntaryExit)
	root, err := signing.ComputeSigningRoot(exit, domain)
	require.NoError(t, err)
	sig := keys[0].Sign(root[:])
	var sigBytes primitives.BLSSignature
	copy(sigBytes[:], sig.Marshal())

	signed := &blockspb.SignedVoluntaryExit{Exit: exit, Signature: sigBytes}
	assert.Error(t, ProcessVoluntaryExit(st, signed))
}

func TestProcessVoluntaryExitRejectsAlreadyExited(t *testing.T) {
	st, keys := stateWithValidators(t, 8)
	cfg := params.BeaconConfig()
	st.SetSlot(helpers.StartSlot(primitives.Epoch(cfg.PersistentCommitteePeriod)))
	currentEpoch := helpers.CurrentEpoch(st)
	st.Validators[0].ActivationEpoch = currentEpoch - primitives.Epoch(cfg.PersistentCommitteePeriod)
	st.Validators[0].ExitEpoch = currentEpoch + 1

	exit := &blockspb.VoluntaryExit{Epoch: currentEpoch, ValidatorIndex: 0}
	domain := helpers.Domain(st.Fork, exit.Epoch, cfg.DomainVoluntaryExit)
	root, err := signing.ComputeSigningRoot(exit, domain)
	require.NoError(t, err)
	sig := keys[0].Sign(root[:])
	var sigBytes primitives.BLSSignature
	copy(sigBytes[:], sig.Marshal())

	signed := &blockspb.SignedVoluntaryExit{Exit: exit, Signature: sigBytes}
	assert.Error(t, ProcessVoluntaryExit(st, signed))
}

func TestProcessVoluntaryExitRejectsFutureEpoch(t *testing.T) {
	st, keys := stateWithValidators(t, 8)
	cfg := params.BeaconConfig()
	st.SetSlot(helpers.StartSlot(primitives.Epoch(cfg.PersistentCommitteePeriod)))
	currentEpoch := helpers.CurrentEpoch(st)
	st.Validators[0].ActivationEpoch = currentEpoch - primitives.Epoch(cfg.PersistentCommitteePeriod)

	exit := &blockspb.VoluntaryExit{Epoch: currentEpoch + 10, ValidatorIndex: 0}
	domain := helpers.Domain(st.Fork, exit.Epoch, cfg.DomainVoluntaryExit)
	root, err := signing.ComputeSigningRoot(exit, domain)
	require.NoError(t, err)
	sig := keys[0].Sign(root[:])
	var sigBytes primitives.BLSSignature
	copy(sigBytes[:], sig.Marshal())

	signed := &blockspb.SignedVoluntaryExit{Exit: exit, Signature: sigBytes}
	assert.Error(t, ProcessVoluntaryExit(st, signed))
}
