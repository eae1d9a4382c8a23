// Package blocks defines the SSZ container types that make up a
// BeaconBlock: the fork/eth1/checkpoint/crosslink support structures,
// attestations and their slashable counterparts, deposits, and
// voluntary exits, each with hand-written MarshalSSZ/UnmarshalSSZ/
// HashTreeRoot methods grounded on the fastssz-generated style the
// teacher ships.
package blocks

import (
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/encoding/ssz"
)

// Fork records the chain's current and previous version tags and the
// epoch the transition activates at.
type Fork struct {
	PreviousVersion [4]byte
	CurrentVersion  [4]byte
	Epoch           primitives.Epoch
}

// MarshalSSZ encodes f.
func (f *Fork) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 0, 16)
	buf = append(buf, f.PreviousVersion[:]...)
	buf = append(buf, f.CurrentVersion[:]...)
	buf = ssz.MarshalUint64(buf, uint64(f.Epoch))
	return buf, nil
}

// UnmarshalSSZ decodes f from buf.
func (f *Fork) UnmarshalSSZ(buf []byte) error {
	if len(buf) != 16 {
		return ssz.ErrSchemaMismatch
	}
	copy(f.PreviousVersion[:], buf[0:4])
	copy(f.CurrentVersion[:], buf[4:8])
	epoch, err := ssz.UnmarshalUint64(buf[8:16])
	if err != nil {
		return err
	}
	f.Epoch = primitives.Epoch(epoch)
	return nil
}

// HashTreeRoot computes f's merkle root.
func (f *Fork) HashTreeRoot() ([32]byte, error) {
	fieldRoots := make([][32]byte, 3)
	fieldRoots[0] = ssz.PackChunks(f.PreviousVersion[:])[0]
	fieldRoots[1] = ssz.PackChunks(f.CurrentVersion[:])[0]
	fieldRoots[2] = ssz.PackChunks(ssz.MarshalUint64(nil, uint64(f.Epoch)))[0]
	return ssz.ContainerRoot(fieldRoots), nil
}

// Eth1Data is a beacon block's vote on the eth1 chain's deposit state.
type Eth1Data struct {
	DepositRoot  primitives.Root
	DepositCount uint64
	BlockHash    primitives.Root
}

// MarshalSSZ encodes e.
func (e *Eth1Data) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 0, 72)
	buf = append(buf, e.DepositRoot[:]...)
	buf = ssz.MarshalUint64(buf, e.DepositCount)
	buf = append(buf, e.BlockHash[:]...)
	return buf, nil
}

// UnmarshalSSZ decodes e from buf.
func (e *Eth1Data) UnmarshalSSZ(buf []byte) error {
	if len(buf) != 72 {
		return ssz.ErrSchemaMismatch
	}
	copy(e.DepositRoot[:], buf[0:32])
	count, err := ssz.UnmarshalUint64(buf[32:40])
	if err != nil {
		return err
	}
	e.DepositCount = count
	copy(e.BlockHash[:], buf[40:72])
	return nil
}

// HashTreeRoot computes e's merkle root.
func (e *Eth1Data) HashTreeRoot() ([32]byte, error) {
	fieldRoots := [][32]byte{
		e.DepositRoot,
		ssz.PackChunks(ssz.MarshalUint64(nil, e.DepositCount))[0],
		e.BlockHash,
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

// Checkpoint pairs an epoch with the root of the block that starts it,
// the unit Casper FFG votes over.
type Checkpoint struct {
	Epoch primitives.Epoch
	Root  primitives.Root
}

// HashTreeRoot computes c's merkle root.
func (c *Checkpoint) HashTreeRoot() ([32]byte, error) {
	fieldRoots := [][32]byte{
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(c.Epoch)))[0],
		c.Root,
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

// MarshalSSZ encodes c.
func (c *Checkpoint) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 0, 40)
	buf = ssz.MarshalUint64(buf, uint64(c.Epoch))
	buf = append(buf, c.Root[:]...)
	return buf, nil
}

// UnmarshalSSZ decodes c from buf.
func (c *Checkpoint) UnmarshalSSZ(buf []byte) error {
	if len(buf) != 40 {
		return ssz.ErrSchemaMismatch
	}
	epoch, err := ssz.UnmarshalUint64(buf[0:8])
	if err != nil {
		return err
	}
	c.Epoch = primitives.Epoch(epoch)
	copy(c.Root[:], buf[8:40])
	return nil
}

// Crosslink is a shard's attestation target, carried inside
// AttestationData to bind a committee vote to a specific shard-chain
// extension.
type Crosslink struct {
	Shard      primitives.ShardNumber
	ParentRoot primitives.Root
	StartEpoch primitives.Epoch
	EndEpoch   primitives.Epoch
	DataRoot   primitives.Root
}

// HashTreeRoot computes c's merkle root.
func (c *Crosslink) HashTreeRoot() ([32]byte, error) {
	fieldRoots := [][32]byte{
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(c.Shard)))[0],
		c.ParentRoot,
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(c.StartEpoch)))[0],
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(c.EndEpoch)))[0],
		c.DataRoot,
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

// AttestationData is the subject of an attestation signature: the slot
// and committee being attested to, plus the FFG source/target
// checkpoints and the shard crosslink vote.
type AttestationData struct {
	Slot            primitives.Slot
	Index           primitives.CommitteeIndex
	BeaconBlockRoot primitives.Root
	Source          *Checkpoint
	Target          *Checkpoint
	Crosslink       *Crosslink
}

// HashTreeRoot computes a's merkle root.
func (a *AttestationData) HashTreeRoot() ([32]byte, error) {
	sourceRoot, err := a.Source.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	targetRoot, err := a.Target.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	crosslinkRoot, err := a.Crosslink.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	fieldRoots := [][32]byte{
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(a.Slot)))[0],
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(a.Index)))[0],
		a.BeaconBlockRoot,
		sourceRoot,
		targetRoot,
		crosslinkRoot,
	}
	return ssz.ContainerRoot(fieldRoots), nil
}
