package kv

import (
	"context"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/lumenchain/beacon-node/consensus-types/state"
)

// SaveState persists st under root, its own hash_tree_root.
func (s *Store) SaveState(ctx context.Context, st *state.BeaconState, root [32]byte) error {
	enc, err := encode(st)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(statesBucket).Put(root[:], enc)
	})
}

// State returns the state stored under root, or nil if none exists.
func (s *Store) State(ctx context.Context, root [32]byte) (*state.BeaconState, error) {
	var st *state.BeaconState
	err := s.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(statesBucket).Get(root[:])
		if enc == nil {
			return nil
		}
		st = &state.BeaconState{}
		return decode(enc, st)
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch state")
	}
	return st, nil
}

// HasState reports whether root has a state saved against it.
func (s *Store) HasState(ctx context.Context, root [32]byte) bool {
	var has bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		has = tx.Bucket(statesBucket).Get(root[:]) != nil
		return nil
	})
	return has
}

// DeleteState removes the state saved under root, the storage half of
// the same finalization-driven pruning DeleteBelow performs:
// states are far larger than blocks, so forkchoice drops a
// non-canonical branch's states as soon as it prunes the branch,
// without waiting for the next DeleteBelow sweep.
func (s *Store) DeleteState(ctx context.Context, root [32]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(statesBucket).Delete(root[:])
	})
}
