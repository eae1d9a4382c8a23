package blocks

import (
	"testing"

	bitfield "github.com/prysmaticlabs/go-bitfield"
	"github.com/stretchr/testify/require"

	"github.com/lumenchain/beacon-node/consensus-types/primitives"
)

func testAttestationData() *AttestationData {
	return &AttestationData{
		Source:    &Checkpoint{},
		Target:    &Checkpoint{},
		Crosslink: &Crosslink{},
	}
}

func TestAttestationHashTreeRootChangesWithAggregationBits(t *testing.T) {
	a := &Attestation{AggregationBits: bitfield.NewBitlist(4), Data: testAttestationData()}
	b := &Attestation{AggregationBits: bitfield.NewBitlist(4), Data: testAttestationData()}
	b.AggregationBits.SetBitAt(0, true)

	rootA, err := a.HashTreeRoot()
	require.NoError(t, err)
	rootB, err := b.HashTreeRoot()
	require.NoError(t, err)
	require.NotEqual(t, rootA, rootB)
}

func TestPendingAttestationHashTreeRootChangesWithInclusionDelay(t *testing.T) {
	a := &PendingAttestation{AggregationBits: bitfield.NewBitlist(4), Data: testAttestationData(), InclusionDelay: 1}
	b := &PendingAttestation{AggregationBits: bitfield.NewBitlist(4), Data: testAttestationData(), InclusionDelay: 2}

	rootA, err := a.HashTreeRoot()
	require.NoError(t, err)
	rootB, err := b.HashTreeRoot()
	require.NoError(t, err)
	require.NotEqual(t, rootA, rootB)
}

func TestIndexedAttestationHashTreeRootChangesWithAttestingIndices(t *testing.T) {
	a := &IndexedAttestation{AttestingIndices: []primitives.ValidatorIndex{1, 2}, Data: testAttestationData()}
	b := &IndexedAttestation{AttestingIndices: []primitives.ValidatorIndex{1, 3}, Data: testAttestationData()}

	rootA, err := a.HashTreeRoot()
	require.NoError(t, err)
	rootB, err := b.HashTreeRoot()
	require.NoError(t, err)
	require.NotEqual(t, rootA, rootB)
}

func TestAttesterSlashingHashTreeRootCombinesBothAttestations(t *testing.T) {
	a1 := &IndexedAttestation{AttestingIndices: []primitives.ValidatorIndex{1}, Data: testAttestationData()}
	a2 := &IndexedAttestation{AttestingIndices: []primitives.ValidatorIndex{2}, Data: testAttestationData()}
	slashing := &AttesterSlashing{Attestation1: a1, Attestation2: a2}
	reordered := &AttesterSlashing{Attestation1: a2, Attestation2: a1}

	rootA, err := slashing.HashTreeRoot()
	require.NoError(t, err)
	rootB, err := reordered.HashTreeRoot()
	require.NoError(t, err)
	require.NotEqual(t, rootA, rootB, "swapping the two attestations must change the root")
}

func testHeader(slot primitives.Slot) *BeaconBlockHeader {
	return &BeaconBlockHeader{Slot: slot, ParentRoot: primitives.Root{1}, StateRoot: primitives.Root{2}, BodyRoot: primitives.Root{3}}
}

func TestSignedBeaconBlockHeaderHashTreeRootChangesWithSignature(t *testing.T) {
	base := testHeader(1)
	a := &SignedBeaconBlockHeader{Header: base, Signature: primitives.BLSSignature{1}}
	b := &SignedBeaconBlockHeader{Header: base, Signature: primitives.BLSSignature{2}}

	rootA, err := a.HashTreeRoot()
	require.NoError(t, err)
	rootB, err := b.HashTreeRoot()
	require.NoError(t, err)
	require.NotEqual(t, rootA, rootB)
}

func TestProposerSlashingHashTreeRootChangesWithProposerIndex(t *testing.T) {
	header1 := &SignedBeaconBlockHeader{Header: testHeader(1)}
	header2 := &SignedBeaconBlockHeader{Header: testHeader(2)}
	a := &ProposerSlashing{ProposerIndex: 1, Header1: header1, Header2: header2}
	b := &ProposerSlashing{ProposerIndex: 2, Header1: header1, Header2: header2}

	rootA, err := a.HashTreeRoot()
	require.NoError(t, err)
	rootB, err := b.HashTreeRoot()
	require.NoError(t, err)
	require.NotEqual(t, rootA, rootB)
}

func TestBeaconBlockHeaderHashTreeRootChangesWithStateRoot(t *testing.T) {
	a := testHeader(1)
	b := testHeader(1)
	b.StateRoot = primitives.Root{9, 9, 9}

	rootA, err := a.HashTreeRoot()
	require.NoError(t, err)
	rootB, err := b.HashTreeRoot()
	require.NoError(t, err)
	require.NotEqual(t, rootA, rootB)
}

func TestDepositDataHashTreeRootChangesWithAmount(t *testing.T) {
	a := &DepositData{Amount: 1}
	b := &DepositData{Amount: 2}

	rootA, err := a.HashTreeRoot()
	require.NoError(t, err)
	rootB, err := b.HashTreeRoot()
	require.NoError(t, err)
	require.NotEqual(t, rootA, rootB)
}

func TestDepositHashTreeRootChangesWithProof(t *testing.T) {
	data := &DepositData{Amount: 1}
	a := &Deposit{Data: data, Proof: make([][32]byte, 33)}
	b := &Deposit{Data: data, Proof: make([][32]byte, 33)}
	b.Proof[0] = [32]byte{1}

	rootA, err := a.HashTreeRoot()
	require.NoError(t, err)
	rootB, err := b.HashTreeRoot()
	require.NoError(t, err)
	require.NotEqual(t, rootA, rootB)
}

func TestVoluntaryExitHashTreeRootChangesWithValidatorIndex(t *testing.T) {
	a := &VoluntaryExit{Epoch: 1, ValidatorIndex: 1}
	b := &VoluntaryExit{Epoch: 1, ValidatorIndex: 2}

	rootA, err := a.HashTreeRoot()
	require.NoError(t, err)
	rootB, err := b.HashTreeRoot()
	require.NoError(t, err)
	require.NotEqual(t, rootA, rootB)
}

func TestSignedVoluntaryExitHashTreeRootIncludesSignature(t *testing.T) {
	exit := &VoluntaryExit{Epoch: 1, ValidatorIndex: 1}
	a := &SignedVoluntaryExit{Exit: exit, Signature: primitives.BLSSignature{1}}
	b := &SignedVoluntaryExit{Exit: exit, Signature: primitives.BLSSignature{2}}

	rootA, err := a.HashTreeRoot()
	require.NoError(t, err)
	rootB, err := b.HashTreeRoot()
	require.NoError(t, err)
	require.NotEqual(t, rootA, rootB)
}
