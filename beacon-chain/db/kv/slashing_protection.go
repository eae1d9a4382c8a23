package kv

import (
	"context"

	bolt "go.etcd.io/bbolt"

	"github.com/lumenchain/beacon-node/consensus-types/primitives"
)

// SlashingProtectionRecord is the persisted high-water mark a signer
// consults before producing a new signature, keyed by pubkey under
// spec.md section 6's slashing_protection:{pubkey} key space. It is
// the "prerequisite contract of the signer interface" section 4.10
// requires: a signer backed by one of these can refuse a second block
// at the same slot and a surrounding attestation without needing to
// replay history.
type SlashingProtectionRecord struct {
	LastSignedBlockSlot       primitives.Slot
	LastSignedAttestationSrc  primitives.Epoch
	LastSignedAttestationTrgt primitives.Epoch
}

// SaveSlashingProtection persists rec under pubkey, overwriting any
// prior record.
func (s *Store) SaveSlashingProtection(ctx context.Context, pubkey [48]byte, rec *SlashingProtectionRecord) error {
	enc, err := encode(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(slashingProtectionBucket).Put(pubkey[:], enc)
	})
}

// SlashingProtection returns the record stored for pubkey, or nil if
// the signer has never signed anything under it.
func (s *Store) SlashingProtection(ctx context.Context, pubkey [48]byte) (*SlashingProtectionRecord, error) {
	var rec *SlashingProtectionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(slashingProtectionBucket).Get(pubkey[:])
		if enc == nil {
			return nil
		}
		rec = &SlashingProtectionRecord{}
		return decode(enc, rec)
	})
	return rec, err
}
