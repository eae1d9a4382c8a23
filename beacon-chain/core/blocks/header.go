// Package blocks implements the per-block state-transition sub-steps:
// header verification, RANDAO mixing, the eth1 vote, and the five
// operation kinds a block body carries. Each Process* function mutates
// the passed BeaconState in place and returns an error the moment an
// invariant the spec requires is violated, grounded on the teacher
// lineage's block_operations.go (see other_examples/
// ...phoreproject-prysm__beacon-chain-core-blocks-block_operations.go.go).
package blocks

import (
	"github.com/pkg/errors"

	"github.com/lumenchain/beacon-node/beacon-chain/core/helpers"
	"github.com/lumenchain/beacon-node/beacon-chain/core/signing"
	"github.com/lumenchain/beacon-node/config/params"
	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
	"github.com/lumenchain/beacon-node/crypto/bls"
	"github.com/lumenchain/beacon-node/crypto/hash"
)

func configOf() *params.BeaconChainConfig { return params.BeaconConfig() }

// VerifySignatures gates whether ProcessBlockHeader and the operation
// processors check BLS signatures, the single switch
// crypto/bls.VerificationEnabled flips at compile time for test
// harnesses built with -tags skip_bls_verify.
var VerifySignatures = bls.VerificationEnabled

// ProcessBlockHeader validates block's slot, parent, and proposer
// against st, then records it as st's LatestBlockHeader with a zeroed
// state root (the transition fills the real state root back in once
// this slot's processing completes).
func ProcessBlockHeader(st *state.BeaconState, block *blockspb.BeaconBlock) error {
	if block.Slot != st.Slot {
		return errors.Errorf("core/blocks: block slot %d does not match state slot %d", block.Slot, st.Slot)
	}
	expectedParentRoot, err := st.LatestBlockHeader.HashTreeRoot()
	if err != nil {
		return err
	}
	if block.Slot <= st.LatestBlockHeader.Slot && st.LatestBlockHeader.Slot != 0 {
		return errors.New("core/blocks: block slot not greater than latest block header slot")
	}
	// A zeroed latest-block-header state root means the previous slot's
	// processing hasn't filled it in yet; fill it with the pre-state
	// root before comparing so genesis/first-block transitions work.
	if st.LatestBlockHeader.StateRoot == (primitives.Root{}) {
		stateRoot, err := st.HashTreeRoot()
		if err != nil {
			return err
		}
		st.LatestBlockHeader.StateRoot = stateRoot
		expectedParentRoot, err = st.LatestBlockHeader.HashTreeRoot()
		if err != nil {
			return err
		}
	}
	if block.ParentRoot != expectedParentRoot {
		return errors.New("core/blocks: block parent root does not match latest block header")
	}

	proposerIdx, err := helpers.BeaconProposerIndex(st)
	if err != nil {
		return err
	}
	if block.ProposerIndex != proposerIdx {
		return errors.Errorf("core/blocks: block proposer index %d does not match expected %d", block.ProposerIndex, proposerIdx)
	}
	proposer := st.Validators[proposerIdx]
	if proposer.Slashed {
		return errors.New("core/blocks: block proposer is slashed")
	}

	bodyRoot, err := block.Body.HashTreeRoot()
	if err != nil {
		return err
	}
	st.SetLatestBlockHeader(&blockspb.BeaconBlockHeader{
		Slot:          block.Slot,
		ProposerIndex: block.ProposerIndex,
		ParentRoot:    block.ParentRoot,
		StateRoot:     primitives.Root{},
		BodyRoot:      bodyRoot,
	})
	return nil
}

// VerifyBlockSignature checks a signed block's proposer signature.
func VerifyBlockSignature(st *state.BeaconState, signed *blockspb.SignedBeaconBlock) error {
	if !VerifySignatures {
		return nil
	}
	cfg := configOf()
	domain := helpers.Domain(st.Fork, helpers.SlotToEpoch(signed.Block.Slot), cfg.DomainBeaconProposer)
	root, err := signing.ComputeSigningRoot(signed.Block, domain)
	if err != nil {
		return err
	}
	proposer := st.Validators[signed.Block.ProposerIndex]
	pub, err := bls.PublicKeyFromBytes(proposer.Pubkey[:])
	if err != nil {
		return err
	}
	sig, err := bls.SignatureFromBytes(signed.Signature[:])
	if err != nil {
		return err
	}
	if !sig.Verify(pub, root[:]) {
		return errors.New("core/blocks: invalid block proposer signature")
	}
	return nil
}

// ProcessRandao verifies the proposer's RANDAO reveal against their
// public key and the epoch seed, then mixes it into st's randao mix
// for the current epoch.
func ProcessRandao(st *state.BeaconState, body *blockspb.BeaconBlockBody) error {
	cfg := configOf()
	epoch := helpers.CurrentEpoch(st)
	proposerIdx, err := helpers.BeaconProposerIndex(st)
	if err != nil {
		return err
	}
	proposer := st.Validators[proposerIdx]

	if VerifySignatures {
		domain := helpers.Domain(st.Fork, epoch, cfg.DomainRandao)
		signingRoot, err := signing.ComputeSigningRoot(epochRoot(epoch), domain)
		if err != nil {
			return err
		}
		pub, err := bls.PublicKeyFromBytes(proposer.Pubkey[:])
		if err != nil {
			return err
		}
		sig, err := bls.SignatureFromBytes(body.RandaoReveal[:])
		if err != nil {
			return err
		}
		if !sig.Verify(pub, signingRoot[:]) {
			return errors.New("core/blocks: invalid randao reveal")
		}
	}

	mix := helpers.RandaoMix(st, epoch)
	newMix := xorHash(mix, body.RandaoReveal)
	st.UpdateRandaoMixAtIndex(uint64(epoch)%cfg.EpochsPerHistoricalVector, newMix)
	return nil
}

type epochRoot primitives.Epoch

// HashTreeRoot satisfies signing.HashRoot for an epoch's numeric root,
// the RANDAO reveal's signed message.
func (e epochRoot) HashTreeRoot() ([32]byte, error) {
	var out [32]byte
	v := uint64(e)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out, nil
}

func xorHash(mix [32]byte, reveal primitives.BLSSignature) [32]byte {
	digest := hashSignature(reveal)
	var out [32]byte
	for i := range out {
		out[i] = mix[i] ^ digest[i]
	}
	return out
}

func hashSignature(sig primitives.BLSSignature) [32]byte {
	return hash.Hash(sig[:])
}

// ProcessEth1Data records block's eth1 vote, then adopts it as st's
// canonical Eth1Data if it has strictly more than half the votes in
// the current voting period.
func ProcessEth1Data(st *state.BeaconState, body *blockspb.BeaconBlockBody) error {
	st.AppendEth1DataVote(body.Eth1Data)
	cfg := configOf()
	period := cfg.EpochsPerEth1VotingPeriod * cfg.SlotsPerEpoch

	count := 0
	for _, vote := range st.Eth1DataVotes {
		if eth1DataEqual(vote, body.Eth1Data) {
			count++
		}
	}
	if uint64(count*2) > period {
		st.SetEth1Data(body.Eth1Data)
	}
	return nil
}

func eth1DataEqual(a, b *blockspb.Eth1Data) bool {
	return a.DepositRoot == b.DepositRoot && a.DepositCount == b.DepositCount && a.BlockHash == b.BlockHash
}
