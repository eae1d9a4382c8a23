package blocks

import (
	bitfield "github.com/prysmaticlabs/go-bitfield"

	"github.com/lumenchain/beacon-node/config/params"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/encoding/ssz"
)

// Attestation is a committee member's vote, aggregated via its
// AggregationBits over however many signers the aggregate signature
// covers.
type Attestation struct {
	AggregationBits bitfield.Bitlist
	Data            *AttestationData
	Signature       primitives.BLSSignature
}

// HashTreeRoot computes a's merkle root.
func (a *Attestation) HashTreeRoot() ([32]byte, error) {
	dataRoot, err := a.Data.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	fieldRoots := [][32]byte{
		ssz.BitlistRoot(a.AggregationBits, params.BeaconConfig().MaxValidatorsPerCommittee),
		dataRoot,
		ssz.VectorRoot(ssz.PackChunks(a.Signature[:])),
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

// PendingAttestation is the form an attestation takes once recorded in
// BeaconState (no raw signature; inclusion delay and proposer index are
// recorded instead, for rewarding).
type PendingAttestation struct {
	AggregationBits bitfield.Bitlist
	Data            *AttestationData
	InclusionDelay  primitives.Slot
	ProposerIndex   primitives.ValidatorIndex
}

// HashTreeRoot computes p's merkle root.
func (p *PendingAttestation) HashTreeRoot() ([32]byte, error) {
	dataRoot, err := p.Data.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	fieldRoots := [][32]byte{
		ssz.BitlistRoot(p.AggregationBits, params.BeaconConfig().MaxValidatorsPerCommittee),
		dataRoot,
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(p.InclusionDelay)))[0],
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(p.ProposerIndex)))[0],
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

// IndexedAttestation is an attestation resolved to its signer indices,
// the form slashing proofs and aggregate-signature verification work
// against.
type IndexedAttestation struct {
	AttestingIndices []primitives.ValidatorIndex
	Data             *AttestationData
	Signature        primitives.BLSSignature
}

// HashTreeRoot computes i's merkle root.
func (i *IndexedAttestation) HashTreeRoot() ([32]byte, error) {
	dataRoot, err := i.Data.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	indexRoots := make([][32]byte, len(i.AttestingIndices))
	for j, idx := range i.AttestingIndices {
		indexRoots[j] = ssz.PackChunks(ssz.MarshalUint64(nil, uint64(idx)))[0]
	}
	fieldRoots := [][32]byte{
		ssz.ListRoot(indexRoots, params.BeaconConfig().MaxValidatorsPerCommittee),
		dataRoot,
		ssz.VectorRoot(ssz.PackChunks(i.Signature[:])),
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

// AttesterSlashing proves two IndexedAttestations made by an
// overlapping signer set that are mutually slashable (double vote or
// surround vote).
type AttesterSlashing struct {
	Attestation1 *IndexedAttestation
	Attestation2 *IndexedAttestation
}

// HashTreeRoot computes a's merkle root.
func (a *AttesterSlashing) HashTreeRoot() ([32]byte, error) {
	root1, err := a.Attestation1.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	root2, err := a.Attestation2.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	return ssz.ContainerRoot([][32]byte{root1, root2}), nil
}

// SignedBeaconBlockHeader pairs a BeaconBlockHeader with the
// proposer's signature over it, the form gossiped for light clients
// and carried inside ProposerSlashing.
type SignedBeaconBlockHeader struct {
	Header    *BeaconBlockHeader
	Signature primitives.BLSSignature
}

// HashTreeRoot computes s's merkle root.
func (s *SignedBeaconBlockHeader) HashTreeRoot() ([32]byte, error) {
	headerRoot, err := s.Header.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	fieldRoots := [][32]byte{
		headerRoot,
		ssz.VectorRoot(ssz.PackChunks(s.Signature[:])),
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

// ProposerSlashing proves a proposer signed two distinct block headers
// for the same slot.
type ProposerSlashing struct {
	ProposerIndex primitives.ValidatorIndex
	Header1       *SignedBeaconBlockHeader
	Header2       *SignedBeaconBlockHeader
}

// HashTreeRoot computes p's merkle root.
func (p *ProposerSlashing) HashTreeRoot() ([32]byte, error) {
	h1, err := p.Header1.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	h2, err := p.Header2.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	fieldRoots := [][32]byte{
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(p.ProposerIndex)))[0],
		h1,
		h2,
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

// BeaconBlockHeader is a block reduced to its identifying fields, the
// form carried inside ProposerSlashing and inside BeaconState as
// latest_block_header.
type BeaconBlockHeader struct {
	Slot          primitives.Slot
	ProposerIndex primitives.ValidatorIndex
	ParentRoot    primitives.Root
	StateRoot     primitives.Root
	BodyRoot      primitives.Root
}

// HashTreeRoot computes h's merkle root.
func (h *BeaconBlockHeader) HashTreeRoot() ([32]byte, error) {
	fieldRoots := [][32]byte{
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(h.Slot)))[0],
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(h.ProposerIndex)))[0],
		h.ParentRoot,
		h.StateRoot,
		h.BodyRoot,
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

// DepositData is the payload deposited to the eth1 deposit contract:
// the would-be validator's credentials and self-signed proof of
// possession.
type DepositData struct {
	Pubkey                primitives.BLSPubkey
	WithdrawalCredentials primitives.Root
	Amount                uint64
	Signature             primitives.BLSSignature
}

// HashTreeRoot computes d's merkle root.
func (d *DepositData) HashTreeRoot() ([32]byte, error) {
	pubkeyChunks := ssz.PackChunks(d.Pubkey[:])
	fieldRoots := [][32]byte{
		ssz.VectorRoot(pubkeyChunks),
		d.WithdrawalCredentials,
		ssz.PackChunks(ssz.MarshalUint64(nil, d.Amount))[0],
		ssz.VectorRoot(ssz.PackChunks(d.Signature[:])),
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

// Deposit is one eth1 deposit-contract entry, a DepositData plus its
// Merkle proof against the block's eth1_data.deposit_root.
type Deposit struct {
	Proof [][32]byte // length DEPOSIT_CONTRACT_TREE_DEPTH + 1
	Data  *DepositData
}

// HashTreeRoot computes d's merkle root, merkleizing the fixed-depth
// proof as a vector of roots alongside the deposit data's own root.
func (d *Deposit) HashTreeRoot() ([32]byte, error) {
	dataRoot, err := d.Data.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	fieldRoots := [][32]byte{
		ssz.VectorRoot(d.Proof),
		dataRoot,
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

// VoluntaryExit is a validator's signed request to begin exiting
// before ejection or slashing forces it.
type VoluntaryExit struct {
	Epoch          primitives.Epoch
	ValidatorIndex primitives.ValidatorIndex
}

// HashTreeRoot computes v's merkle root.
func (v *VoluntaryExit) HashTreeRoot() ([32]byte, error) {
	fieldRoots := [][32]byte{
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(v.Epoch)))[0],
		ssz.PackChunks(ssz.MarshalUint64(nil, uint64(v.ValidatorIndex)))[0],
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

// SignedVoluntaryExit pairs a VoluntaryExit with the exiting
// validator's signature over it.
type SignedVoluntaryExit struct {
	Exit      *VoluntaryExit
	Signature primitives.BLSSignature
}

// HashTreeRoot computes s's merkle root.
func (s *SignedVoluntaryExit) HashTreeRoot() ([32]byte, error) {
	exitRoot, err := s.Exit.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	fieldRoots := [][32]byte{
		exitRoot,
		ssz.VectorRoot(ssz.PackChunks(s.Signature[:])),
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

// Transfer moves a balance between two validator withdrawal accounts
// outside the deposit/exit lifecycle. Mainnet never activated
// transfers (MaxTransfers is 0 in config/params), but the type is kept
// so core/blocks' operation processing stays total over the container
// set the state-transition function is defined against.
type Transfer struct {
	Sender    primitives.ValidatorIndex
	Recipient primitives.ValidatorIndex
	Amount    primitives.Gwei
	Fee       primitives.Gwei
	Slot      primitives.Slot
	Pubkey    primitives.BLSPubkey
	Signature primitives.BLSSignature
}
