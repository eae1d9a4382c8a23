package kv

import (
	"context"

	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
)

// Database is the content-addressed block/state store spec.md section
// 6 describes: every block and state is keyed by its own root, with a
// handful of named pointers layered on top, and deletion is always
// protected against a caller-supplied keep-set. Both Store (bbolt) and
// MemStore (in-memory, for tests) implement it.
type Database interface {
	SaveBlock(ctx context.Context, signed *blockspb.SignedBeaconBlock) error
	Block(ctx context.Context, root [32]byte) (*blockspb.SignedBeaconBlock, error)
	HasBlock(ctx context.Context, root [32]byte) bool

	SaveState(ctx context.Context, st *state.BeaconState, root [32]byte) error
	State(ctx context.Context, root [32]byte) (*state.BeaconState, error)
	HasState(ctx context.Context, root [32]byte) bool
	DeleteState(ctx context.Context, root [32]byte) error

	SaveHeadBlockRoot(ctx context.Context, root [32]byte) error
	HeadBlockRoot(ctx context.Context) ([32]byte, error)
	SaveGenesisBlockRoot(ctx context.Context, root [32]byte) error
	GenesisBlockRoot(ctx context.Context) ([32]byte, error)
	SaveJustifiedCheckpoint(ctx context.Context, cp *blockspb.Checkpoint) error
	JustifiedCheckpoint(ctx context.Context) (*blockspb.Checkpoint, error)
	SaveFinalizedCheckpoint(ctx context.Context, cp *blockspb.Checkpoint) error
	FinalizedCheckpoint(ctx context.Context) (*blockspb.Checkpoint, error)

	DeleteBelow(ctx context.Context, keepSlot primitives.Slot, keepRoots map[[32]byte]bool) error

	SaveSlashingProtection(ctx context.Context, pubkey [48]byte, rec *SlashingProtectionRecord) error
	SlashingProtection(ctx context.Context, pubkey [48]byte) (*SlashingProtectionRecord, error)

	Close() error
}

var (
	_ Database = (*Store)(nil)
	_ Database = (*MemStore)(nil)
)
