package blocks

import (
	"github.com/lumenchain/beacon-node/config/params"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/encoding/ssz"
)

// BeaconBlockBody carries every operation list a block proposes for
// inclusion, plus the proposer's RANDAO reveal and eth1 vote.
type BeaconBlockBody struct {
	RandaoReveal      primitives.BLSSignature
	Eth1Data          *Eth1Data
	Graffiti          [32]byte
	ProposerSlashings []*ProposerSlashing
	AttesterSlashings []*AttesterSlashing
	Attestations      []*Attestation
	Deposits          []*Deposit
	VoluntaryExits    []*SignedVoluntaryExit
	Transfers         []*Transfer
}

// HashTreeRoot computes b's merkle root over its nine normative-order
// fields.
func (b *BeaconBlockBody) HashTreeRoot() ([32]byte, error) {
	cfg := params.BeaconConfig()

	eth1Root, err := b.Eth1Data.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}

	proposerSlashingRoots, err := hashRootList(b.ProposerSlashings, func(p *ProposerSlashing) ([32]byte, error) { return p.HashTreeRoot() })
	if err != nil {
		return [32]byte{}, err
	}
	attesterSlashingRoots, err := hashRootList(b.AttesterSlashings, func(a *AttesterSlashing) ([32]byte, error) { return a.HashTreeRoot() })
	if err != nil {
		return [32]byte{}, err
	}
	attestationRoots, err := hashRootList(b.Attestations, func(a *Attestation) ([32]byte, error) { return a.HashTreeRoot() })
	if err != nil {
		return [32]byte{}, err
	}
	depositRoots, err := hashRootList(b.Deposits, func(d *Deposit) ([32]byte, error) { return d.HashTreeRoot() })
	if err != nil {
		return [32]byte{}, err
	}
	exitRoots, err := hashRootList(b.VoluntaryExits, func(e *SignedVoluntaryExit) ([32]byte, error) { return e.HashTreeRoot() })
	if err != nil {
		return [32]byte{}, err
	}
	transferRoots := make([][32]byte, len(b.Transfers))
	for i, t := range b.Transfers {
		transferRoots[i] = transferRoot(t)
	}

	fieldRoots := [][32]byte{
		ssz.VectorRoot(ssz.PackChunks(b.RandaoReveal[:])),
		eth1Root,
		ssz.PackChunks(b.Graffiti[:])[0],
		ssz.ListRoot(proposerSlashingRoots, cfg.MaxProposerSlashings),
		ssz.ListRoot(attesterSlashingRoots, cfg.MaxAttesterSlashings),
		ssz.ListRoot(attestationRoots, cfg.MaxAttestations),
		ssz.ListRoot(depositRoots, cfg.MaxDeposits),
		ssz.ListRoot(exitRoots, cfg.MaxVoluntaryExits),
		ssz.ListRoot(transferRoots, cfg.MaxTransfers),
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

func hashRootList[T any](items []T, root func(T) ([32]byte, error)) ([][32]byte, error) {
	out := make([][32]byte, len(items))
	for i, item := range items {
		r, err := root(item)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func transferRoot(t *Transfer) [32]byte {
	fieldRoots := [][32]byte{
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(t.Sender)))[0],
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(t.Recipient)))[0],
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(t.Amount)))[0],
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(t.Fee)))[0],
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(t.Slot)))[0],
		ssz.VectorRoot(ssz.PackChunks(t.Pubkey[:])),
		ssz.VectorRoot(ssz.PackChunks(t.Signature[:])),
	}
	return ssz.ContainerRoot(fieldRoots)
}

// BeaconBlock is a full proposed block: the slot it's for, its
// proposer, its parent and (once computed) post-state root, and the
// body carrying all proposed operations.
type BeaconBlock struct {
	Slot          primitives.Slot
	ProposerIndex primitives.ValidatorIndex
	ParentRoot    primitives.Root
	StateRoot     primitives.Root
	Body          *BeaconBlockBody
}

// HashTreeRoot computes b's merkle root.
func (b *BeaconBlock) HashTreeRoot() ([32]byte, error) {
	bodyRoot, err := b.Body.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	fieldRoots := [][32]byte{
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(b.Slot)))[0],
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(b.ProposerIndex)))[0],
		b.ParentRoot,
		b.StateRoot,
		bodyRoot,
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

// Header reduces b to its BeaconBlockHeader form, the representation
// stored in BeaconState.LatestBlockHeader and carried inside
// ProposerSlashing.
func (b *BeaconBlock) Header() (*BeaconBlockHeader, error) {
	bodyRoot, err := b.Body.HashTreeRoot()
	if err != nil {
		return nil, err
	}
	return &BeaconBlockHeader{
		Slot:          b.Slot,
		ProposerIndex: b.ProposerIndex,
		ParentRoot:    b.ParentRoot,
		StateRoot:     b.StateRoot,
		BodyRoot:      bodyRoot,
	}, nil
}

// SignedBeaconBlock pairs a BeaconBlock with the proposer's signature
// over its root, the form gossiped and stored.
type SignedBeaconBlock struct {
	Block     *BeaconBlock
	Signature primitives.BLSSignature
}
