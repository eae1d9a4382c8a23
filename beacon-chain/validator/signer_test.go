package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenchain/beacon-node/beacon-chain/core/helpers"
	"github.com/lumenchain/beacon-node/beacon-chain/core/signing"
	"github.com/lumenchain/beacon-node/beacon-chain/db/kv"
	"github.com/lumenchain/beacon-node/config/params"
	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/crypto/bls"
)

func testSignerAndKey(t *testing.T) (*DBSigner, *bls.SecretKey, [48]byte) {
	t.Helper()
	var raw [32]byte
	raw[31] = 7
	key, err := bls.SecretKeyFromBytes(raw[:])
	require.NoError(t, err)

	var pub [48]byte
	copy(pub[:], key.PublicKey().Marshal())

	signer := NewDBSigner(kv.NewMemStore(), []*bls.SecretKey{key})
	return signer, key, pub
}

func TestDBSignerSignBlockProducesAVerifiableSignature(t *testing.T) {
	signer, key, pub := testSignerAndKey(t)
	fork := &blockspb.Fork{}
	block := &blockspb.BeaconBlock{Slot: 5, ProposerIndex: 0, Body: &blockspb.BeaconBlockBody{Eth1Data: &blockspb.Eth1Data{}}}

	sig, err := signer.SignBlock(context.Background(), pub, fork, block)
	require.NoError(t, err)

	domain := helpers.Domain(fork, helpers.SlotToEpoch(block.Slot), params.BeaconConfig().DomainBeaconProposer)
	root, err := signing.ComputeSigningRoot(block, domain)
	require.NoError(t, err)

	blsSig, err := bls.SignatureFromBytes(sig[:])
	require.NoError(t, err)
	require.True(t, blsSig.Verify(key.PublicKey(), root[:]))
}

func TestDBSignerSignBlockRejectsANonIncreasingSlot(t *testing.T) {
	signer, _, pub := testSignerAndKey(t)
	fork := &blockspb.Fork{}

	_, err := signer.SignBlock(context.Background(), pub, fork, &blockspb.BeaconBlock{Slot: 5, Body: &blockspb.BeaconBlockBody{Eth1Data: &blockspb.Eth1Data{}}})
	require.NoError(t, err)

	_, err = signer.SignBlock(context.Background(), pub, fork, &blockspb.BeaconBlock{Slot: 5, Body: &blockspb.BeaconBlockBody{Eth1Data: &blockspb.Eth1Data{}}})
	require.ErrorIs(t, err, ErrSlashableBlock)

	_, err = signer.SignBlock(context.Background(), pub, fork, &blockspb.BeaconBlock{Slot: 4, Body: &blockspb.BeaconBlockBody{Eth1Data: &blockspb.Eth1Data{}}})
	require.ErrorIs(t, err, ErrSlashableBlock)
}

func TestDBSignerSignAttestationProducesAVerifiableSignature(t *testing.T) {
	signer, key, pub := testSignerAndKey(t)
	fork := &blockspb.Fork{}
	data := &blockspb.AttestationData{
		Slot:   0,
		Source: &blockspb.Checkpoint{Epoch: 0},
		Target: &blockspb.Checkpoint{Epoch: 1},
		Crosslink: &blockspb.Crosslink{},
	}

	sig, err := signer.SignAttestation(context.Background(), pub, fork, data)
	require.NoError(t, err)

	domain := helpers.Domain(fork, data.Target.Epoch, params.BeaconConfig().DomainBeaconAttester)
	root, err := signing.ComputeSigningRoot(data, domain)
	require.NoError(t, err)

	blsSig, err := bls.SignatureFromBytes(sig[:])
	require.NoError(t, err)
	require.True(t, blsSig.Verify(key.PublicKey(), root[:]))
}

func TestDBSignerSignAttestationRejectsADoubleVote(t *testing.T) {
	signer, _, pub := testSignerAndKey(t)
	fork := &blockspb.Fork{}
	first := &blockspb.AttestationData{Source: &blockspb.Checkpoint{Epoch: 1}, Target: &blockspb.Checkpoint{Epoch: 2}, Crosslink: &blockspb.Crosslink{}}
	_, err := signer.SignAttestation(context.Background(), pub, fork, first)
	require.NoError(t, err)

	again := &blockspb.AttestationData{Source: &blockspb.Checkpoint{Epoch: 1}, Target: &blockspb.Checkpoint{Epoch: 2}, Crosslink: &blockspb.Crosslink{}}
	_, err = signer.SignAttestation(context.Background(), pub, fork, again)
	require.ErrorIs(t, err, ErrSlashableAttestation)
}

func TestDBSignerSignAttestationRejectsASurroundingVote(t *testing.T) {
	signer, _, pub := testSignerAndKey(t)
	fork := &blockspb.Fork{}
	inner := &blockspb.AttestationData{Source: &blockspb.Checkpoint{Epoch: 2}, Target: &blockspb.Checkpoint{Epoch: 3}, Crosslink: &blockspb.Crosslink{}}
	_, err := signer.SignAttestation(context.Background(), pub, fork, inner)
	require.NoError(t, err)

	surrounding := &blockspb.AttestationData{Source: &blockspb.Checkpoint{Epoch: 1}, Target: &blockspb.Checkpoint{Epoch: 4}, Crosslink: &blockspb.Crosslink{}}
	_, err = signer.SignAttestation(context.Background(), pub, fork, surrounding)
	require.ErrorIs(t, err, ErrSlashableAttestation)
}

func TestDBSignerSignAttestationRejectsASurroundedVote(t *testing.T) {
	signer, _, pub := testSignerAndKey(t)
	fork := &blockspb.Fork{}
	outer := &blockspb.AttestationData{Source: &blockspb.Checkpoint{Epoch: 1}, Target: &blockspb.Checkpoint{Epoch: 4}, Crosslink: &blockspb.Crosslink{}}
	_, err := signer.SignAttestation(context.Background(), pub, fork, outer)
	require.NoError(t, err)

	surrounded := &blockspb.AttestationData{Source: &blockspb.Checkpoint{Epoch: 2}, Target: &blockspb.Checkpoint{Epoch: 3}, Crosslink: &blockspb.Crosslink{}}
	_, err = signer.SignAttestation(context.Background(), pub, fork, surrounded)
	require.ErrorIs(t, err, ErrSlashableAttestation)
}

func TestDBSignerSignAttestationAllowsAnAdvancingChain(t *testing.T) {
	signer, _, pub := testSignerAndKey(t)
	fork := &blockspb.Fork{}
	first := &blockspb.AttestationData{Source: &blockspb.Checkpoint{Epoch: 1}, Target: &blockspb.Checkpoint{Epoch: 2}, Crosslink: &blockspb.Crosslink{}}
	_, err := signer.SignAttestation(context.Background(), pub, fork, first)
	require.NoError(t, err)

	next := &blockspb.AttestationData{Source: &blockspb.Checkpoint{Epoch: 2}, Target: &blockspb.Checkpoint{Epoch: 3}, Crosslink: &blockspb.Crosslink{}}
	_, err = signer.SignAttestation(context.Background(), pub, fork, next)
	require.NoError(t, err)
}

func TestDBSignerRejectsSigningForAnUnknownPubkey(t *testing.T) {
	signer, _, _ := testSignerAndKey(t)
	var unknown [48]byte
	unknown[0] = 0xee

	_, err := signer.SignBlock(context.Background(), unknown, &blockspb.Fork{}, &blockspb.BeaconBlock{Body: &blockspb.BeaconBlockBody{Eth1Data: &blockspb.Eth1Data{}}})
	require.Error(t, err)

	_, ok := signer.SecretKeyForPubkey(unknown)
	require.False(t, ok)
}
