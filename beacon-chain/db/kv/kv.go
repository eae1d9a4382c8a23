// Package kv implements the content-addressed block and state store
// over a single bbolt database file, grounded on the teacher's
// beacon-chain/db/kv package (its kv_test.go setupDB/NewKVStore
// contract, see beacon-chain/db/kv/kv_test.go in the retrieved pack;
// that package's own source wasn't part of this retrieval, so the
// bucket layout below is this repo's own, built the way bbolt
// consumers conventionally lay buckets out: one bucket per indexed
// collection, root-keyed).
package kv

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

const databaseFileName = "beaconchain.db"

var (
	blocksBucket             = []byte("blocks")
	blockSlotIndexBucket     = []byte("block-slot-index")
	statesBucket             = []byte("states")
	stateSummaryBucket       = []byte("state-summaries")
	chainMetadataBucket      = []byte("chain-metadata")
	slashingProtectionBucket = []byte("slashing-protection")
)

var (
	headBlockRootKey        = []byte("head-root")
	genesisBlockRootKey     = []byte("genesis-root")
	justifiedCheckpointKey  = []byte("justified-checkpoint")
	finalizedCheckpointKey  = []byte("finalized-checkpoint")
)

// Store is a bbolt-backed implementation of the block/state store
// spec.md section 6 describes: every block and state is addressed by
// its own root, with a handful of named pointers (head, genesis,
// justified/finalized checkpoints) layered on top.
type Store struct {
	db           *bolt.DB
	databasePath string
}

// NewKVStore opens (creating if necessary) the bbolt database under
// dirPath and ensures every bucket this store uses exists.
func NewKVStore(ctx context.Context, dirPath string) (*Store, error) {
	if err := os.MkdirAll(dirPath, 0700); err != nil {
		return nil, errors.Wrap(err, "could not create db directory")
	}
	datafile := filepath.Join(dirPath, databaseFileName)
	boltDB, err := bolt.Open(datafile, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "could not open bolt database")
	}
	s := &Store{db: boltDB, databasePath: dirPath}
	err = boltDB.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{
			blocksBucket, blockSlotIndexBucket, statesBucket,
			stateSummaryBucket, chainMetadataBucket, slashingProtectionBucket,
		} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not initialize buckets")
	}
	return s, nil
}

// Close shuts down the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DatabasePath returns the directory this store was opened against.
func (s *Store) DatabasePath() string {
	return s.databasePath
}

func uint64ToBigEndian(x uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, x)
	return b
}
