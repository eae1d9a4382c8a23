package kv

import (
	"context"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
)

// SaveBlock persists signed under its block root and indexes it by
// slot so later range queries (the sync importer's batch backfill)
// don't need a full bucket scan.
func (s *Store) SaveBlock(ctx context.Context, signed *blockspb.SignedBeaconBlock) error {
	root, err := signed.Block.HashTreeRoot()
	if err != nil {
		return errors.Wrap(err, "could not compute block root")
	}
	enc, err := encode(signed)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(blocksBucket).Put(root[:], enc); err != nil {
			return err
		}
		return tx.Bucket(blockSlotIndexBucket).Put(uint64ToBigEndian(uint64(signed.Block.Slot)), root[:])
	})
}

// Block returns the block stored under root, or nil if none exists.
func (s *Store) Block(ctx context.Context, root [32]byte) (*blockspb.SignedBeaconBlock, error) {
	var signed *blockspb.SignedBeaconBlock
	err := s.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(blocksBucket).Get(root[:])
		if enc == nil {
			return nil
		}
		signed = &blockspb.SignedBeaconBlock{}
		return decode(enc, signed)
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch block")
	}
	return signed, nil
}

// HasBlock reports whether root is known to the store.
func (s *Store) HasBlock(ctx context.Context, root [32]byte) bool {
	var has bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		has = tx.Bucket(blocksBucket).Get(root[:]) != nil
		return nil
	})
	return has
}

// BlockRootsBySlot returns every block root indexed at slot; the
// index stores one root per slot (the last SaveBlock call for that
// slot wins), which is sufficient since fork-choice, not this index,
// is the source of truth for canonical-chain membership.
func (s *Store) BlockRootsBySlot(ctx context.Context, slot primitives.Slot) ([32]byte, bool, error) {
	var root [32]byte
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(blockSlotIndexBucket).Get(uint64ToBigEndian(uint64(slot)))
		if v == nil {
			return nil
		}
		found = true
		copy(root[:], v)
		return nil
	})
	return root, found, err
}

// SaveHeadBlockRoot records root as the current head of the chain.
func (s *Store) SaveHeadBlockRoot(ctx context.Context, root [32]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chainMetadataBucket).Put(headBlockRootKey, root[:])
	})
}

// HeadBlockRoot returns the stored head root, or the zero root if
// none has been saved yet.
func (s *Store) HeadBlockRoot(ctx context.Context) ([32]byte, error) {
	var root [32]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(chainMetadataBucket).Get(headBlockRootKey)
		copy(root[:], v)
		return nil
	})
	return root, err
}

// SaveGenesisBlockRoot records root as the chain's genesis block.
func (s *Store) SaveGenesisBlockRoot(ctx context.Context, root [32]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chainMetadataBucket).Put(genesisBlockRootKey, root[:])
	})
}

// GenesisBlockRoot returns the stored genesis root.
func (s *Store) GenesisBlockRoot(ctx context.Context) ([32]byte, error) {
	var root [32]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(chainMetadataBucket).Get(genesisBlockRootKey)
		copy(root[:], v)
		return nil
	})
	return root, err
}

// DeleteBelow removes every indexed block below keepSlot except those
// rooted in keepRoots, the finalization-driven pruning spec.md section
// 6 requires (delete_below(finalized_slot, keep_root)): once a
// checkpoint finalizes, every non-canonical block before it can never
// again be referenced by fork-choice or a sync request. keepRoots
// itself is never deleted regardless of slot, the store's protected-
// deletion guarantee.
func (s *Store) DeleteBelow(ctx context.Context, keepSlot primitives.Slot, keepRoots map[[32]byte]bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		slotIdx := tx.Bucket(blockSlotIndexBucket)
		blocksBkt := tx.Bucket(blocksBucket)
		c := slotIdx.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			slot := primitives.Slot(bigEndianToUint64(k))
			if slot >= keepSlot {
				break
			}
			var root [32]byte
			copy(root[:], v)
			if keepRoots[root] {
				continue
			}
			toDelete = append(toDelete, append([]byte(nil), k...))
			if err := blocksBkt.Delete(root[:]); err != nil {
				return err
			}
		}
		for _, k := range toDelete {
			if err := slotIdx.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func bigEndianToUint64(b []byte) uint64 {
	var x uint64
	for _, c := range b {
		x = x<<8 | uint64(c)
	}
	return x
}
