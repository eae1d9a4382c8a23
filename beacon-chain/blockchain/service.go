package blockchain

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lumenchain/beacon-node/beacon-chain/core/helpers"
	"github.com/lumenchain/beacon-node/beacon-chain/core/transition"
	"github.com/lumenchain/beacon-node/beacon-chain/db/kv"
	"github.com/lumenchain/beacon-node/beacon-chain/forkchoice/protoarray"
	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
)

var headSlotGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "beacon_head_slot",
	Help: "Slot of the current canonical head block.",
})

// HeadFetcher answers queries about the current canonical head,
// matching the teacher's chain.HeadFetcher interface.
type HeadFetcher interface {
	HeadRoot(ctx context.Context) ([32]byte, error)
	HeadBlock(ctx context.Context) (*blockspb.SignedBeaconBlock, error)
	HeadState(ctx context.Context) (*state.BeaconState, error)
}

// FinalizationFetcher answers queries about the justified/finalized
// checkpoints, matching the teacher's chain.FinalizationFetcher
// interface.
type FinalizationFetcher interface {
	FinalizedCheckpoint() *blockspb.Checkpoint
	JustifiedCheckpoint() *blockspb.Checkpoint
}

// GenesisFetcher answers queries about the genesis anchor, matching
// the teacher's chain.GenesisFetcher interface.
type GenesisFetcher interface {
	GenesisRoot() [32]byte
	GenesisTime() time.Time
}

// Service is the observable state processor: it owns the single
// writer that serializes block acceptance, attestation ingress, and
// slot ticks against the (store, fork-choice) pair, and publishes an
// Observation after each.
type Service struct {
	mu         sync.RWMutex
	db         kv.Database
	forkChoice *protoarray.ForkChoice
	notifier   *Notifier

	genesisRoot [32]byte
	genesisTime time.Time

	headRoot  [32]byte
	headState *state.BeaconState

	justified *blockspb.Checkpoint
	finalized *blockspb.Checkpoint

	pendingOpsLen func() int
}

var (
	_ HeadFetcher          = (*Service)(nil)
	_ FinalizationFetcher  = (*Service)(nil)
	_ GenesisFetcher       = (*Service)(nil)
)

// NewService wires a Service around an already-opened database; callers
// must call StartFromGenesis or StartFromSavedState before using it.
func NewService(db kv.Database) *Service {
	return &Service{db: db, notifier: NewNotifier()}
}

// StartFromGenesis seeds the store and fork-choice tree from a genesis
// state, the anchor every subsequent block and checkpoint traces back
// to.
func (s *Service) StartFromGenesis(ctx context.Context, genesis *state.BeaconState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	genesisBlock := &blockspb.BeaconBlock{Slot: genesis.Slot, Body: &blockspb.BeaconBlockBody{Eth1Data: &blockspb.Eth1Data{}}}
	genesisRoot, err := genesisBlock.HashTreeRoot()
	if err != nil {
		return errors.Wrap(err, "could not compute genesis block root")
	}
	signed := &blockspb.SignedBeaconBlock{Block: genesisBlock}

	if err := s.db.SaveBlock(ctx, signed); err != nil {
		return &StoreError{Reason: err.Error()}
	}
	if err := s.db.SaveState(ctx, genesis, genesisRoot); err != nil {
		return &StoreError{Reason: err.Error()}
	}
	if err := s.db.SaveGenesisBlockRoot(ctx, genesisRoot); err != nil {
		return &StoreError{Reason: err.Error()}
	}

	cp := &blockspb.Checkpoint{Epoch: 0, Root: genesisRoot}
	if err := s.db.SaveJustifiedCheckpoint(ctx, cp); err != nil {
		return &StoreError{Reason: err.Error()}
	}
	if err := s.db.SaveFinalizedCheckpoint(ctx, cp); err != nil {
		return &StoreError{Reason: err.Error()}
	}
	if err := s.db.SaveHeadBlockRoot(ctx, genesisRoot); err != nil {
		return &StoreError{Reason: err.Error()}
	}

	s.forkChoice = protoarray.New(0, 0)
	if err := s.forkChoice.ProcessBlock(genesis.Slot, genesisRoot, [32]byte{}, 0, 0); err != nil {
		return err
	}

	s.genesisRoot = genesisRoot
	s.genesisTime = time.Unix(int64(genesis.GenesisTime), 0)
	s.headRoot = genesisRoot
	s.headState = genesis.Clone()
	s.justified = cp
	s.finalized = cp

	s.publishLocked(ctx)
	return nil
}

// GenesisRoot returns the root of the genesis block.
func (s *Service) GenesisRoot() [32]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.genesisRoot
}

// GenesisTime returns the wall-clock genesis time.
func (s *Service) GenesisTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.genesisTime
}

// FinalizedCheckpoint returns the current finalized checkpoint.
func (s *Service) FinalizedCheckpoint() *blockspb.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalized
}

// JustifiedCheckpoint returns the current justified checkpoint.
func (s *Service) JustifiedCheckpoint() *blockspb.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.justified
}

// HeadRoot returns the root of the current canonical head block.
func (s *Service) HeadRoot(ctx context.Context) ([32]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headRoot, nil
}

// HeadBlock returns the current canonical head block.
func (s *Service) HeadBlock(ctx context.Context) (*blockspb.SignedBeaconBlock, error) {
	s.mu.RLock()
	root := s.headRoot
	s.mu.RUnlock()
	return s.db.Block(ctx, root)
}

// HeadState returns a clone of the post-state of the current canonical
// head block, advanced through any empty slots a later Tick crossed.
func (s *Service) HeadState(ctx context.Context) (*state.BeaconState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.headState == nil {
		return nil, errors.New("blockchain: head state not initialized")
	}
	return s.headState.Clone(), nil
}

// SetPendingOpsCounter wires a callback the notifier uses to populate
// Observation.PendingOpsLen, typically summing the lengths of the
// attestation/slashing/exit pools. Optional: a Service with no counter
// registered always publishes PendingOpsLen 0.
func (s *Service) SetPendingOpsCounter(fn func() int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingOpsLen = fn
}

// Subscribe registers obs as a subscriber of published Observations
// under the given overflow policy.
func (s *Service) Subscribe(policy SubscriberPolicy) (<-chan Observation, func()) {
	return s.notifier.Subscribe(policy)
}

// ReceiveBlock is the single writer's on_block entry point: it runs
// the block through the state-transition function against its
// claimed parent's post-state, commits the result to the store and
// fork-choice tree, advances the head, and publishes an Observation.
//
// Per spec.md section 5, on_block completes atomically with its
// fork-choice weight propagation before any later ReceiveAttestation
// or Tick call is processed; callers MUST serialize calls into this
// method themselves (a single goroutine owns the writer role).
func (s *Service) ReceiveBlock(ctx context.Context, signed *blockspb.SignedBeaconBlock) error {
	block := signed.Block
	parentRoot := block.ParentRoot

	s.mu.RLock()
	haveParent := s.db.HasBlock(ctx, parentRoot)
	s.mu.RUnlock()
	if !haveParent {
		return &ForkChoiceError{Kind: UnknownParent, Root: parentRoot}
	}

	preState, err := s.db.State(ctx, parentRoot)
	if err != nil || preState == nil {
		return &ForkChoiceError{Kind: UnknownParent, Root: parentRoot}
	}

	s.mu.RLock()
	finalizedSlot := helpers.StartSlot(s.finalized.Epoch)
	s.mu.RUnlock()
	if block.Slot <= finalizedSlot {
		root, _ := block.HashTreeRoot()
		if root != s.FinalizedCheckpoint().Root {
			return &ForkChoiceError{Kind: BelowFinalized, Root: root}
		}
	}

	postState, err := transition.ExecuteStateTransition(preState, signed, true)
	if err != nil {
		return &TransitionError{Kind: StateRootMismatch, Reason: err.Error()}
	}

	root, err := block.HashTreeRoot()
	if err != nil {
		return errors.Wrap(err, "could not compute block root")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.SaveBlock(ctx, signed); err != nil {
		return &StoreError{Reason: err.Error()}
	}
	if err := s.db.SaveState(ctx, postState, root); err != nil {
		return &StoreError{Reason: err.Error()}
	}

	justifiedEpoch := postState.CurrentJustifiedCheckpoint.Epoch
	finalizedEpoch := postState.FinalizedCheckpoint.Epoch
	if err := s.forkChoice.ProcessBlock(block.Slot, root, parentRoot, justifiedEpoch, finalizedEpoch); err != nil {
		return err
	}

	for _, att := range block.Body.Attestations {
		if err := s.applyAttestationWeightLocked(postState, att); err != nil {
			continue
		}
	}

	if postState.FinalizedCheckpoint.Epoch > s.finalized.Epoch {
		s.finalized = postState.FinalizedCheckpoint
		if err := s.db.SaveFinalizedCheckpoint(ctx, s.finalized); err != nil {
			return &StoreError{Reason: err.Error()}
		}
	}
	if postState.CurrentJustifiedCheckpoint.Epoch > s.justified.Epoch {
		s.justified = postState.CurrentJustifiedCheckpoint
		if err := s.db.SaveJustifiedCheckpoint(ctx, s.justified); err != nil {
			return &StoreError{Reason: err.Error()}
		}
	}

	if err := s.updateHeadLocked(ctx, postState); err != nil {
		return err
	}

	s.publishLocked(ctx)
	return nil
}

// ReceiveAttestation is the single writer's on_attestation entry
// point: after verifying the attestation is viable against its
// target's state, it records the attesting indices' votes in
// fork-choice.
func (s *Service) ReceiveAttestation(ctx context.Context, att *blockspb.Attestation) error {
	s.mu.RLock()
	targetState, err := s.db.State(ctx, att.Data.Target.Root)
	s.mu.RUnlock()
	if err != nil || targetState == nil {
		return &ForkChoiceError{Kind: UnknownParent, Root: att.Data.Target.Root}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyAttestationWeightLocked(targetState, att)
}

// applyAttestationWeightLocked resolves att's committee against st and
// records each attesting validator's vote in the fork-choice tree.
// Must be called with s.mu held.
func (s *Service) applyAttestationWeightLocked(st *state.BeaconState, att *blockspb.Attestation) error {
	committee, err := helpers.BeaconCommittee(st, att.Data.Slot, att.Data.Index)
	if err != nil {
		return err
	}
	indices := make([]primitives.ValidatorIndex, 0, len(committee))
	for i, vi := range committee {
		if att.AggregationBits.BitAt(uint64(i)) {
			indices = append(indices, vi)
		}
	}
	s.forkChoice.ProcessAttestation(indices, att.Data.BeaconBlockRoot, att.Data.Target.Epoch)
	return nil
}

// Tick is the single writer's on_tick entry point: it advances
// fork-choice's clock and republishes an Observation carrying the head
// state advanced by empty-slot transitions up to slot.
func (s *Service) Tick(ctx context.Context, slot primitives.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.forkChoice.OnTick(slot)

	if s.headState != nil && s.headState.Slot < slot {
		advanced := s.headState.Clone()
		if err := transition.ProcessSlots(advanced, slot); err != nil {
			return errors.Wrap(err, "could not advance head state to wall-clock slot")
		}
		s.headState = advanced
	}

	s.publishLocked(ctx)
	return nil
}

// updateHeadLocked recomputes the canonical head from fork-choice and
// caches its post-state; must be called with s.mu held.
func (s *Service) updateHeadLocked(ctx context.Context, newState *state.BeaconState) error {
	balances := make([]uint64, len(newState.Balances))
	for i, b := range newState.Balances {
		balances[i] = uint64(b)
	}
	if err := s.forkChoice.UpdateBalances(balances); err != nil {
		return errors.Wrap(err, "could not update fork choice balances")
	}

	head, err := s.forkChoice.Head(s.justified.Root)
	if err != nil {
		return errors.Wrap(err, "could not compute fork choice head")
	}

	s.headRoot = head

	headState, err := s.db.State(ctx, head)
	if err != nil || headState == nil {
		return &StoreError{Reason: "head state missing from store"}
	}
	s.headState = headState

	if err := s.db.SaveHeadBlockRoot(ctx, head); err != nil {
		return &StoreError{Reason: err.Error()}
	}
	headSlotGauge.Set(float64(headState.Slot))
	return nil
}

// publishLocked emits the current Observation to every subscriber;
// must be called with s.mu held.
func (s *Service) publishLocked(ctx context.Context) {
	var headBlock *blockspb.SignedBeaconBlock
	if s.headState != nil {
		headBlock, _ = s.db.Block(ctx, s.headRoot)
	}
	pending := 0
	if s.pendingOpsLen != nil {
		pending = s.pendingOpsLen()
	}
	s.notifier.Publish(Observation{
		HeadRoot:        s.headRoot,
		HeadBlock:       headBlock,
		LatestSlotState: s.headState,
		FinalizedEpoch:  s.finalized.Epoch,
		PendingOpsLen:   pending,
	})
}
