package validator

import (
	"context"

	"github.com/pkg/errors"

	"github.com/lumenchain/beacon-node/beacon-chain/core/helpers"
	"github.com/lumenchain/beacon-node/beacon-chain/core/signing"
	"github.com/lumenchain/beacon-node/beacon-chain/db/kv"
	"github.com/lumenchain/beacon-node/config/params"
	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/crypto/bls"
)

// ErrSlashableBlock is returned when a proposer asks to sign a second
// block at a slot it has already signed one for.
var ErrSlashableBlock = errors.New("validator: refusing to sign a second block at an already-signed slot")

// ErrSlashableAttestation is returned when an attester asks to sign a
// vote that would double-vote or surround a previously signed one.
var ErrSlashableAttestation = errors.New("validator: refusing to sign a surrounding or double-voting attestation")

// Signer is the abstract interface the duties engine signs blocks and
// attestations through, spec.md section 4.10's "abstract signer"
// collaborator. A concrete Signer owns persistent slashing-protection
// state and MUST consult it before every signature it produces: that
// persistence is "a prerequisite contract of the signer interface",
// not an optional safety net layered on top.
type Signer interface {
	SecretKeyForPubkey(pubkey [48]byte) (*bls.SecretKey, bool)
	SignBlock(ctx context.Context, pubkey [48]byte, fork *blockspb.Fork, block *blockspb.BeaconBlock) (primitives.BLSSignature, error)
	SignAttestation(ctx context.Context, pubkey [48]byte, fork *blockspb.Fork, data *blockspb.AttestationData) (primitives.BLSSignature, error)
}

// DBSigner is a Signer backed by in-process secret keys and a
// persistent slashing-protection record per pubkey in db/kv, the
// key-value layout spec.md section 6 names as
// slashing_protection:{pubkey}.
type DBSigner struct {
	db   kv.Database
	keys map[[48]byte]*bls.SecretKey
}

// NewDBSigner builds a Signer over the given secret keys, persisting
// slashing-protection state through db.
func NewDBSigner(db kv.Database, keys []*bls.SecretKey) *DBSigner {
	byPubkey := make(map[[48]byte]*bls.SecretKey, len(keys))
	for _, k := range keys {
		var pk [48]byte
		copy(pk[:], k.PublicKey().Marshal())
		byPubkey[pk] = k
	}
	return &DBSigner{db: db, keys: byPubkey}
}

// SecretKeyForPubkey returns the local secret key for pubkey, if held.
func (s *DBSigner) SecretKeyForPubkey(pubkey [48]byte) (*bls.SecretKey, bool) {
	k, ok := s.keys[pubkey]
	return k, ok
}

// SignBlock signs block's root under the BEACON_PROPOSER domain,
// after checking that no block has already been signed for this
// pubkey at this slot.
func (s *DBSigner) SignBlock(ctx context.Context, pubkey [48]byte, fork *blockspb.Fork, block *blockspb.BeaconBlock) (primitives.BLSSignature, error) {
	key, ok := s.keys[pubkey]
	if !ok {
		return primitives.BLSSignature{}, errors.New("validator: no secret key held for pubkey")
	}

	rec, err := s.db.SlashingProtection(ctx, pubkey)
	if err != nil {
		return primitives.BLSSignature{}, err
	}
	if rec != nil && block.Slot <= rec.LastSignedBlockSlot {
		return primitives.BLSSignature{}, ErrSlashableBlock
	}

	domain := helpers.Domain(fork, helpers.SlotToEpoch(block.Slot), params.BeaconConfig().DomainBeaconProposer)
	root, err := signing.ComputeSigningRoot(block, domain)
	if err != nil {
		return primitives.BLSSignature{}, err
	}

	if rec == nil {
		rec = &kv.SlashingProtectionRecord{}
	}
	rec.LastSignedBlockSlot = block.Slot
	if err := s.db.SaveSlashingProtection(ctx, pubkey, rec); err != nil {
		return primitives.BLSSignature{}, err
	}

	sig := key.Sign(root[:])
	var out primitives.BLSSignature
	copy(out[:], sig.Marshal())
	return out, nil
}

// SignAttestation signs data under the BEACON_ATTESTER domain, after
// checking that the vote neither double-votes (same target epoch as a
// previously signed vote) nor surrounds/is-surrounded-by a previously
// signed source/target pair.
func (s *DBSigner) SignAttestation(ctx context.Context, pubkey [48]byte, fork *blockspb.Fork, data *blockspb.AttestationData) (primitives.BLSSignature, error) {
	key, ok := s.keys[pubkey]
	if !ok {
		return primitives.BLSSignature{}, errors.New("validator: no secret key held for pubkey")
	}

	rec, err := s.db.SlashingProtection(ctx, pubkey)
	if err != nil {
		return primitives.BLSSignature{}, err
	}
	if rec != nil && isSlashableAttestation(rec, data) {
		return primitives.BLSSignature{}, ErrSlashableAttestation
	}

	domain := helpers.Domain(fork, data.Target.Epoch, params.BeaconConfig().DomainBeaconAttester)
	root, err := signing.ComputeSigningRoot(data, domain)
	if err != nil {
		return primitives.BLSSignature{}, err
	}

	if rec == nil {
		rec = &kv.SlashingProtectionRecord{}
	}
	rec.LastSignedAttestationSrc = data.Source.Epoch
	rec.LastSignedAttestationTrgt = data.Target.Epoch
	if err := s.db.SaveSlashingProtection(ctx, pubkey, rec); err != nil {
		return primitives.BLSSignature{}, err
	}

	sig := key.Sign(root[:])
	var out primitives.BLSSignature
	copy(out[:], sig.Marshal())
	return out, nil
}

// isSlashableAttestation reports whether data double-votes (repeats a
// previously signed target epoch) or surrounds/is-surrounded-by the
// last signed (source, target) pair.
func isSlashableAttestation(rec *kv.SlashingProtectionRecord, data *blockspb.AttestationData) bool {
	if rec.LastSignedAttestationTrgt == 0 && rec.LastSignedAttestationSrc == 0 {
		return false
	}
	if data.Target.Epoch == rec.LastSignedAttestationTrgt {
		return true
	}
	surrounds := data.Source.Epoch < rec.LastSignedAttestationSrc && data.Target.Epoch > rec.LastSignedAttestationTrgt
	surrounded := data.Source.Epoch > rec.LastSignedAttestationSrc && data.Target.Epoch < rec.LastSignedAttestationTrgt
	return surrounds || surrounded
}
