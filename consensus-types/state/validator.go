// Package state defines BeaconState and its Validator registry entry,
// the mutable heart of the protocol. BeaconState tracks a dirtyFields
// side table so HashTreeRoot can skip re-merkleizing subtrees the
// current slot's transition didn't touch.
package state

import (
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/encoding/ssz"
)

// Validator is one registry entry: identity, balance-independent
// status thresholds, and the epochs at which that status last changed.
type Validator struct {
	Pubkey                     primitives.BLSPubkey
	WithdrawalCredentials      primitives.Root
	EffectiveBalance           primitives.Gwei
	Slashed                    bool
	ActivationEligibilityEpoch primitives.Epoch
	ActivationEpoch            primitives.Epoch
	ExitEpoch                  primitives.Epoch
	WithdrawableEpoch          primitives.Epoch
}

// FarFutureEpoch marks an epoch field as "not yet scheduled."
const FarFutureEpoch = primitives.Epoch(^uint64(0))

// IsActive reports whether v is active (eligible for committee duty)
// at the given epoch.
func (v *Validator) IsActive(epoch primitives.Epoch) bool {
	return v.ActivationEpoch <= epoch && epoch < v.ExitEpoch
}

// IsSlashable reports whether v can still be slashed at the given
// epoch: not already slashed, and not yet past its withdrawable epoch.
func (v *Validator) IsSlashable(epoch primitives.Epoch) bool {
	return !v.Slashed && v.ActivationEpoch <= epoch && epoch < v.WithdrawableEpoch
}

// IsEligibleForActivationQueue reports whether v qualifies to enter the
// activation queue: not yet queued, and deposited the full effective
// balance.
func (v *Validator) IsEligibleForActivationQueue(maxEffectiveBalance primitives.Gwei) bool {
	return v.ActivationEligibilityEpoch == FarFutureEpoch && v.EffectiveBalance == maxEffectiveBalance
}

func boolChunk(b bool) [32]byte {
	var chunk [32]byte
	if b {
		chunk[0] = 1
	}
	return chunk
}

// HashTreeRoot computes v's merkle root.
func (v *Validator) HashTreeRoot() ([32]byte, error) {
	fieldRoots := [][32]byte{
		ssz.VectorRoot(ssz.PackChunks(v.Pubkey[:])),
		v.WithdrawalCredentials,
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(v.EffectiveBalance)))[0],
		boolChunk(v.Slashed),
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(v.ActivationEligibilityEpoch)))[0],
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(v.ActivationEpoch)))[0],
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(v.ExitEpoch)))[0],
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(v.WithdrawableEpoch)))[0],
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

// Clone returns a deep copy of v, the unit BeaconState.Clone copies the
// validator registry at.
func (v *Validator) Clone() *Validator {
	cp := *v
	return &cp
}
