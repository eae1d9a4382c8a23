package kv

import (
	"context"
	"sync"

	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
)

// MemStore is an in-memory Database implementation: the same content-
// addressed contract as Store, without bbolt, for unit tests and the
// fork-choice/transition test harnesses that don't need durability.
type MemStore struct {
	mu sync.RWMutex

	blocks             map[[32]byte]*blockspb.SignedBeaconBlock
	blockSlotIdx       map[primitives.Slot][32]byte
	states             map[[32]byte]*state.BeaconState
	headRoot           [32]byte
	genesisRoot        [32]byte
	justifiedCP        *blockspb.Checkpoint
	finalizedCP        *blockspb.Checkpoint
	slashingProtection map[[48]byte]*SlashingProtectionRecord
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		blocks:             make(map[[32]byte]*blockspb.SignedBeaconBlock),
		blockSlotIdx:       make(map[primitives.Slot][32]byte),
		states:             make(map[[32]byte]*state.BeaconState),
		slashingProtection: make(map[[48]byte]*SlashingProtectionRecord),
	}
}

// SaveBlock persists signed under its block root and indexes it by slot.
func (m *MemStore) SaveBlock(ctx context.Context, signed *blockspb.SignedBeaconBlock) error {
	root, err := signed.Block.HashTreeRoot()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[root] = signed
	m.blockSlotIdx[signed.Block.Slot] = root
	return nil
}

// Block returns the block stored under root, or nil if none exists.
func (m *MemStore) Block(ctx context.Context, root [32]byte) (*blockspb.SignedBeaconBlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blocks[root], nil
}

// HasBlock reports whether root is known to the store.
func (m *MemStore) HasBlock(ctx context.Context, root [32]byte) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocks[root]
	return ok
}

// SaveState persists st under root.
func (m *MemStore) SaveState(ctx context.Context, st *state.BeaconState, root [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[root] = st
	return nil
}

// State returns the state stored under root, or nil if none exists.
func (m *MemStore) State(ctx context.Context, root [32]byte) (*state.BeaconState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[root], nil
}

// HasState reports whether root has a state saved against it.
func (m *MemStore) HasState(ctx context.Context, root [32]byte) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.states[root]
	return ok
}

// DeleteState removes the state saved under root.
func (m *MemStore) DeleteState(ctx context.Context, root [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, root)
	return nil
}

// SaveHeadBlockRoot records root as the current head of the chain.
func (m *MemStore) SaveHeadBlockRoot(ctx context.Context, root [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headRoot = root
	return nil
}

// HeadBlockRoot returns the stored head root.
func (m *MemStore) HeadBlockRoot(ctx context.Context) ([32]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.headRoot, nil
}

// SaveGenesisBlockRoot records root as the chain's genesis block.
func (m *MemStore) SaveGenesisBlockRoot(ctx context.Context, root [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.genesisRoot = root
	return nil
}

// GenesisBlockRoot returns the stored genesis root.
func (m *MemStore) GenesisBlockRoot(ctx context.Context) ([32]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.genesisRoot, nil
}

// SaveJustifiedCheckpoint records the current justified checkpoint.
func (m *MemStore) SaveJustifiedCheckpoint(ctx context.Context, cp *blockspb.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.justifiedCP = cp
	return nil
}

// JustifiedCheckpoint returns the stored justified checkpoint.
func (m *MemStore) JustifiedCheckpoint(ctx context.Context) (*blockspb.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.justifiedCP, nil
}

// SaveFinalizedCheckpoint records the current finalized checkpoint.
func (m *MemStore) SaveFinalizedCheckpoint(ctx context.Context, cp *blockspb.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalizedCP = cp
	return nil
}

// FinalizedCheckpoint returns the stored finalized checkpoint.
func (m *MemStore) FinalizedCheckpoint(ctx context.Context) (*blockspb.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.finalizedCP, nil
}

// DeleteBelow removes every indexed block below keepSlot except those
// rooted in keepRoots, mirroring Store's pruning contract.
func (m *MemStore) DeleteBelow(ctx context.Context, keepSlot primitives.Slot, keepRoots map[[32]byte]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for slot, root := range m.blockSlotIdx {
		if slot >= keepSlot || keepRoots[root] {
			continue
		}
		delete(m.blocks, root)
		delete(m.blockSlotIdx, slot)
		delete(m.states, root)
	}
	return nil
}

// SaveSlashingProtection persists rec under pubkey.
func (m *MemStore) SaveSlashingProtection(ctx context.Context, pubkey [48]byte, rec *SlashingProtectionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slashingProtection[pubkey] = rec
	return nil
}

// SlashingProtection returns the record stored for pubkey, or nil if none.
func (m *MemStore) SlashingProtection(ctx context.Context, pubkey [48]byte) (*SlashingProtectionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slashingProtection[pubkey], nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}
