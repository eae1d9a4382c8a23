package validator

import (
	"context"

	bitfield "github.com/prysmaticlabs/go-bitfield"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lumenchain/beacon-node/beacon-chain/blockchain"
	"github.com/lumenchain/beacon-node/beacon-chain/core/helpers"
	"github.com/lumenchain/beacon-node/beacon-chain/core/signing"
	"github.com/lumenchain/beacon-node/beacon-chain/core/transition"
	"github.com/lumenchain/beacon-node/beacon-chain/operations/attestations"
	"github.com/lumenchain/beacon-node/beacon-chain/operations/deposit"
	"github.com/lumenchain/beacon-node/beacon-chain/operations/slashings"
	"github.com/lumenchain/beacon-node/beacon-chain/operations/voluntaryexits"
	"github.com/lumenchain/beacon-node/config/params"
	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
)

var log = logrus.WithField("prefix", "validator")

// Chain is the slice of blockchain.Service the engine needs: the
// current head and finalization status, plus the single writer's
// block-ingress entry point so a locally-built block is applied and
// published through the same path a gossiped one would be.
type Chain interface {
	blockchain.HeadFetcher
	blockchain.FinalizationFetcher
	ReceiveBlock(ctx context.Context, signed *blockspb.SignedBeaconBlock) error
}

// Pools bundles the pending-operation pools a proposed block pulls
// from, each under its own per-block cap.
type Pools struct {
	Attestations      *attestations.Pool
	ProposerSlashings *slashings.ProposerPool
	AttesterSlashings *slashings.AttesterPool
	VoluntaryExits    *voluntaryexits.Pool
	Deposits          *deposit.Cache
}

// Engine is the validator duties engine spec.md section 4.10
// describes: it computes local proposer/attester duties from the
// observable state and, at the right slot tick, builds and signs a
// block or attestation through Signer, never producing two
// conflicting signatures for the same duty.
type Engine struct {
	chain  Chain
	pools  Pools
	signer Signer

	localIndices map[primitives.ValidatorIndex][48]byte
}

// NewEngine wires an Engine around chain, the pending-operation pools
// a proposer pulls from, and signer. The engine starts with no local
// validators; ResolveLocalValidators registers the pubkeys this
// process has signing authority for.
func NewEngine(chain Chain, pools Pools, signer Signer) *Engine {
	return &Engine{chain: chain, pools: pools, signer: signer, localIndices: make(map[primitives.ValidatorIndex][48]byte)}
}

// ResolveLocalValidators maps signer's local pubkeys to their registry
// indices in st, so later duty computations can be narrowed without
// repeating the pubkey→index scan every slot.
func (e *Engine) ResolveLocalValidators(st *state.BeaconState, pubkeys [][48]byte) {
	for _, pk := range pubkeys {
		if idx, ok := IndexForPubkey(st, pk); ok {
			e.localIndices[idx] = pk
		}
	}
}

// DutiesForEpoch returns this engine's local validators' duties for
// epoch, computed against st.
func (e *Engine) DutiesForEpoch(st *state.BeaconState, epoch primitives.Epoch) (*Duties, error) {
	want := make(map[primitives.ValidatorIndex]bool, len(e.localIndices))
	for idx := range e.localIndices {
		want[idx] = true
	}
	return ComputeDuties(st, epoch, want)
}

// ProposeIfDue builds, signs, and imports a block for slot if a local
// validator holds the proposer duty for it, returning the block it
// published or nil if no local validator is due.
func (e *Engine) ProposeIfDue(ctx context.Context, slot primitives.Slot) (*blockspb.SignedBeaconBlock, error) {
	headState, err := e.chain.HeadState(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch head state")
	}
	working := headState.Clone()
	if working.Slot < slot {
		if err := transition.ProcessSlots(working, slot); err != nil {
			return nil, errors.Wrap(err, "could not advance state to proposal slot")
		}
	}

	proposerIdx, err := helpers.BeaconProposerIndex(working)
	if err != nil {
		return nil, errors.Wrap(err, "could not compute proposer index")
	}
	pubkey, ours := e.localIndices[proposerIdx]
	if !ours {
		return nil, nil
	}

	headRoot, err := e.chain.HeadRoot(ctx)
	if err != nil {
		return nil, err
	}

	randaoReveal, err := e.signRandaoReveal(ctx, pubkey, working)
	if err != nil {
		return nil, err
	}

	body := &blockspb.BeaconBlockBody{
		RandaoReveal:      randaoReveal,
		Eth1Data:          working.Eth1Data,
		ProposerSlashings: e.pools.ProposerSlashings.Pending(int(params.BeaconConfig().MaxProposerSlashings)),
		AttesterSlashings: e.pools.AttesterSlashings.Pending(int(params.BeaconConfig().MaxAttesterSlashings)),
		Attestations:      e.pools.Attestations.PeekAggregatedAttestations(int(params.BeaconConfig().MaxAttestations), slot),
		Deposits:          pendingDeposits(working, e.pools.Deposits, int(params.BeaconConfig().MaxDeposits)),
		VoluntaryExits:    e.pools.VoluntaryExits.Pending(int(params.BeaconConfig().MaxVoluntaryExits)),
	}

	block := &blockspb.BeaconBlock{
		Slot:          slot,
		ProposerIndex: proposerIdx,
		ParentRoot:    headRoot,
		Body:          body,
	}

	trial := &blockspb.SignedBeaconBlock{Block: block}
	stateRoot, err := transition.CalculateStateRoot(headState, trial)
	if err != nil {
		return nil, errors.Wrap(err, "could not compute trial state root")
	}
	block.StateRoot = stateRoot

	sig, err := e.signer.SignBlock(ctx, pubkey, working.Fork, block)
	if err != nil {
		return nil, err
	}
	signed := &blockspb.SignedBeaconBlock{Block: block, Signature: sig}

	if err := e.chain.ReceiveBlock(ctx, signed); err != nil {
		return nil, errors.Wrap(err, "could not import own proposed block")
	}
	log.WithFields(logrus.Fields{"slot": slot, "proposer": proposerIdx}).Info("proposed block")
	return signed, nil
}

// signRandaoReveal signs the current epoch's numeric root under the
// RANDAO domain, the reveal ProcessRandao later verifies.
func (e *Engine) signRandaoReveal(ctx context.Context, pubkey [48]byte, st *state.BeaconState) (primitives.BLSSignature, error) {
	key, ok := e.signer.SecretKeyForPubkey(pubkey)
	if !ok {
		return primitives.BLSSignature{}, errors.New("validator: no secret key held for pubkey")
	}
	epoch := helpers.CurrentEpoch(st)
	domain := helpers.Domain(st.Fork, epoch, params.BeaconConfig().DomainRandao)
	root, err := epochSigningRoot(epoch, domain)
	if err != nil {
		return primitives.BLSSignature{}, err
	}
	sig := key.Sign(root[:])
	var out primitives.BLSSignature
	copy(out[:], sig.Marshal())
	return out, nil
}

// AttestIfDue builds and signs an attestation for every local
// validator whose attester duty slot is slot, inserting each into the
// attestation pool (the same path a gossiped attestation would reach
// it through).
func (e *Engine) AttestIfDue(ctx context.Context, slot primitives.Slot) ([]*blockspb.Attestation, error) {
	headState, err := e.chain.HeadState(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch head state")
	}
	headRoot, err := e.chain.HeadRoot(ctx)
	if err != nil {
		return nil, err
	}

	epoch := helpers.SlotToEpoch(slot)
	duties, err := e.DutiesForEpoch(headState, epoch)
	if err != nil {
		return nil, err
	}

	var produced []*blockspb.Attestation
	for _, duty := range duties.Attesters {
		if duty.Slot != slot {
			continue
		}
		pubkey, ours := e.localIndices[duty.ValidatorIndex]
		if !ours {
			continue
		}
		att, err := e.buildAndSignAttestation(ctx, pubkey, headState, headRoot, duty)
		if err != nil {
			log.WithError(err).WithField("validator", duty.ValidatorIndex).Warn("could not sign attestation")
			continue
		}
		if err := e.pools.Attestations.Insert(att, func(a *blockspb.Attestation) (primitives.Gwei, error) {
			committee, err := helpers.BeaconCommittee(headState, a.Data.Slot, a.Data.Index)
			if err != nil {
				return 0, err
			}
			return helpers.TotalBalance(headState, committee), nil
		}); err != nil {
			log.WithError(err).Warn("could not insert own attestation into pool")
		}
		produced = append(produced, att)
	}
	return produced, nil
}

func (e *Engine) buildAndSignAttestation(ctx context.Context, pubkey [48]byte, st *state.BeaconState, headRoot [32]byte, duty AttesterDuty) (*blockspb.Attestation, error) {
	epoch := helpers.CurrentEpoch(st)
	source := st.CurrentJustifiedCheckpoint
	target := &blockspb.Checkpoint{Epoch: epoch, Root: targetRoot(st, headRoot, epoch)}

	parent := st.CurrentCrosslinks[duty.CommitteeIndex]
	parentRoot, err := parent.HashTreeRoot()
	if err != nil {
		return nil, err
	}
	endEpoch := parent.EndEpoch + 1
	if endEpoch > epoch {
		endEpoch = epoch
	}
	crosslink := &blockspb.Crosslink{
		Shard:      primitives.ShardNumber(duty.CommitteeIndex),
		ParentRoot: parentRoot,
		StartEpoch: parent.EndEpoch,
		EndEpoch:   endEpoch,
	}

	data := &blockspb.AttestationData{
		Slot:            duty.Slot,
		Index:           duty.CommitteeIndex,
		BeaconBlockRoot: headRoot,
		Source:          source,
		Target:          target,
		Crosslink:       crosslink,
	}

	sig, err := e.signer.SignAttestation(ctx, pubkey, st.Fork, data)
	if err != nil {
		return nil, err
	}

	bits := newAggregationBits(duty.CommitteeLength, duty.PositionInCommittee)
	return &blockspb.Attestation{AggregationBits: bits, Data: data, Signature: sig}, nil
}

// targetRoot returns the root of the block that anchors epoch's FFG
// target: the most recently applied block at or before epoch's first
// slot, per st.BlockRoots' carry-forward semantics, or headRoot when
// epoch starts at st's own slot (its boundary root has not yet been
// cached into the ring buffer).
func targetRoot(st *state.BeaconState, headRoot [32]byte, epoch primitives.Epoch) [32]byte {
	startSlot := helpers.StartSlot(epoch)
	if startSlot >= st.Slot {
		return headRoot
	}
	cfg := params.BeaconConfig()
	return st.BlockRoots[uint64(startSlot)%cfg.SlotsPerHistoricalRoot]
}

// epochSigningRoot is the numeric hash-tree-root of an epoch value,
// the RANDAO reveal's signed message.
func epochSigningRoot(epoch primitives.Epoch, domain [8]byte) ([32]byte, error) {
	return signing.ComputeSigningRoot(epochRoot(epoch), domain)
}

type epochRoot primitives.Epoch

func (e epochRoot) HashTreeRoot() ([32]byte, error) {
	var out [32]byte
	v := uint64(e)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out, nil
}

func pendingDeposits(st *state.BeaconState, cache *deposit.Cache, max int) []*blockspb.Deposit {
	if cache == nil || st.Eth1Data.DepositCount <= st.Eth1DepositIndex {
		return nil
	}
	start := st.Eth1DepositIndex
	end := st.Eth1Data.DepositCount
	if end-start > uint64(max) {
		end = start + uint64(max)
	}
	out := make([]*blockspb.Deposit, 0, end-start)
	for i := start; i < end; i++ {
		dep, err := cache.DepositAt(i, st.Eth1Data.DepositCount)
		if err != nil {
			break
		}
		out = append(out, dep)
	}
	return out
}

func newAggregationBits(committeeLength, position int) bitfield.Bitlist {
	bits := bitfield.NewBitlist(uint64(committeeLength))
	bits.SetBitAt(uint64(position), true)
	return bits
}
