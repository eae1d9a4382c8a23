package kv

import (
	"context"

	bolt "go.etcd.io/bbolt"

	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
)

// SaveJustifiedCheckpoint records the current justified checkpoint.
func (s *Store) SaveJustifiedCheckpoint(ctx context.Context, cp *blockspb.Checkpoint) error {
	return s.saveCheckpoint(justifiedCheckpointKey, cp)
}

// JustifiedCheckpoint returns the stored justified checkpoint, or nil
// if none has been saved.
func (s *Store) JustifiedCheckpoint(ctx context.Context) (*blockspb.Checkpoint, error) {
	return s.checkpoint(justifiedCheckpointKey)
}

// SaveFinalizedCheckpoint records the current finalized checkpoint.
func (s *Store) SaveFinalizedCheckpoint(ctx context.Context, cp *blockspb.Checkpoint) error {
	return s.saveCheckpoint(finalizedCheckpointKey, cp)
}

// FinalizedCheckpoint returns the stored finalized checkpoint, or nil
// if none has been saved.
func (s *Store) FinalizedCheckpoint(ctx context.Context) (*blockspb.Checkpoint, error) {
	return s.checkpoint(finalizedCheckpointKey)
}

func (s *Store) saveCheckpoint(key []byte, cp *blockspb.Checkpoint) error {
	enc, err := encode(cp)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chainMetadataBucket).Put(key, enc)
	})
}

func (s *Store) checkpoint(key []byte) (*blockspb.Checkpoint, error) {
	var cp *blockspb.Checkpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(chainMetadataBucket).Get(key)
		if enc == nil {
			return nil
		}
		cp = &blockspb.Checkpoint{}
		return decode(enc, cp)
	})
	return cp, err
}
