package state

import (
	"sync"

	bitfield "github.com/prysmaticlabs/go-bitfield"

	"github.com/lumenchain/beacon-node/config/params"
	"github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/encoding/ssz"
)

// Field names used as keys into BeaconState's dirty/cache tables. Kept
// as a closed set rather than reflected field names so a typo fails at
// compile time via the exported constants below, not silently at
// runtime.
type field string

const (
	fieldGenesisTime                 field = "genesis_time"
	fieldGenesisValidatorsRoot        field = "genesis_validators_root"
	fieldSlot                        field = "slot"
	fieldFork                        field = "fork"
	fieldLatestBlockHeader            field = "latest_block_header"
	fieldBlockRoots                  field = "block_roots"
	fieldStateRoots                  field = "state_roots"
	fieldHistoricalRoots              field = "historical_roots"
	fieldEth1Data                    field = "eth1_data"
	fieldEth1DataVotes                field = "eth1_data_votes"
	fieldEth1DepositIndex             field = "eth1_deposit_index"
	fieldValidators                  field = "validators"
	fieldBalances                    field = "balances"
	fieldRandaoMixes                 field = "randao_mixes"
	fieldSlashings                   field = "slashings"
	fieldPreviousEpochAttestations    field = "previous_epoch_attestations"
	fieldCurrentEpochAttestations     field = "current_epoch_attestations"
	fieldCurrentCrosslinks            field = "current_crosslinks"
	fieldPreviousCrosslinks           field = "previous_crosslinks"
	fieldJustificationBits            field = "justification_bits"
	fieldPreviousJustifiedCheckpoint  field = "previous_justified_checkpoint"
	fieldCurrentJustifiedCheckpoint   field = "current_justified_checkpoint"
	fieldFinalizedCheckpoint          field = "finalized_checkpoint"
)

// fieldOrder is the container's normative field order, the order
// ContainerRoot merkleizes fields in.
var fieldOrder = []field{
	fieldGenesisTime, fieldGenesisValidatorsRoot, fieldSlot, fieldFork,
	fieldLatestBlockHeader, fieldBlockRoots, fieldStateRoots, fieldHistoricalRoots,
	fieldEth1Data, fieldEth1DataVotes, fieldEth1DepositIndex,
	fieldValidators, fieldBalances, fieldRandaoMixes, fieldSlashings,
	fieldPreviousEpochAttestations, fieldCurrentEpochAttestations,
	fieldCurrentCrosslinks, fieldPreviousCrosslinks,
	fieldJustificationBits, fieldPreviousJustifiedCheckpoint,
	fieldCurrentJustifiedCheckpoint, fieldFinalizedCheckpoint,
}

// BeaconState is the full protocol state machine's state: the
// validator registry, balances, and chain-history side tables the
// state-transition function reads and writes.
//
// Every mutator (Set*, Append*) marks its field dirty instead of
// leaving HashTreeRoot to diff the whole struct; HashTreeRoot
// recomputes a field's root only if it is dirty or has never been
// computed, then clears the flag.
type BeaconState struct {
	GenesisTime          uint64
	GenesisValidatorsRoot primitives.Root
	Slot                 primitives.Slot
	Fork                 *blocks.Fork
	LatestBlockHeader    *blocks.BeaconBlockHeader
	BlockRoots           [][32]byte
	StateRoots           [][32]byte
	HistoricalRoots      [][32]byte
	Eth1Data             *blocks.Eth1Data
	Eth1DataVotes        []*blocks.Eth1Data
	Eth1DepositIndex     uint64
	Validators           []*Validator
	Balances             []primitives.Gwei
	RandaoMixes          [][32]byte
	Slashings            []primitives.Gwei
	PreviousEpochAttestations []*blocks.PendingAttestation
	CurrentEpochAttestations  []*blocks.PendingAttestation
	CurrentCrosslinks    []*blocks.Crosslink
	PreviousCrosslinks   []*blocks.Crosslink
	JustificationBits    bitfield.Bitvector4
	PreviousJustifiedCheckpoint *blocks.Checkpoint
	CurrentJustifiedCheckpoint  *blocks.Checkpoint
	FinalizedCheckpoint         *blocks.Checkpoint

	mu     sync.Mutex
	dirty  map[field]bool
	cached map[field][32]byte
}

// New builds an empty BeaconState with every list/vector preallocated
// to its schema-declared capacity, ready for genesis construction.
func New() *BeaconState {
	cfg := params.BeaconConfig()
	s := &BeaconState{
		Fork:                       &blocks.Fork{},
		LatestBlockHeader:          &blocks.BeaconBlockHeader{},
		BlockRoots:                 make([][32]byte, cfg.SlotsPerHistoricalRoot),
		StateRoots:                 make([][32]byte, cfg.SlotsPerHistoricalRoot),
		Eth1Data:                   &blocks.Eth1Data{},
		RandaoMixes:                make([][32]byte, cfg.EpochsPerHistoricalVector),
		Slashings:                  make([]primitives.Gwei, cfg.EpochsPerSlashingsVector),
		CurrentCrosslinks:          make([]*blocks.Crosslink, cfg.ShardCount),
		PreviousCrosslinks:         make([]*blocks.Crosslink, cfg.ShardCount),
		JustificationBits:          bitfield.NewBitvector4(),
		PreviousJustifiedCheckpoint: &blocks.Checkpoint{},
		CurrentJustifiedCheckpoint:  &blocks.Checkpoint{},
		FinalizedCheckpoint:         &blocks.Checkpoint{},
		dirty:                      make(map[field]bool, len(fieldOrder)),
		cached:                     make(map[field][32]byte, len(fieldOrder)),
	}
	for i := range s.CurrentCrosslinks {
		s.CurrentCrosslinks[i] = &blocks.Crosslink{}
		s.PreviousCrosslinks[i] = &blocks.Crosslink{}
	}
	s.markAllDirty()
	return s
}

func (s *BeaconState) markAllDirty() {
	for _, f := range fieldOrder {
		s.dirty[f] = true
	}
}

func (s *BeaconState) markDirty(f field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty == nil {
		s.dirty = make(map[field]bool, len(fieldOrder))
	}
	s.dirty[f] = true
}

// SetSlot advances the state's slot field.
func (s *BeaconState) SetSlot(slot primitives.Slot) {
	s.Slot = slot
	s.markDirty(fieldSlot)
}

// SetFork replaces the fork field.
func (s *BeaconState) SetFork(f *blocks.Fork) {
	s.Fork = f
	s.markDirty(fieldFork)
}

// SetLatestBlockHeader replaces the latest processed block header.
func (s *BeaconState) SetLatestBlockHeader(h *blocks.BeaconBlockHeader) {
	s.LatestBlockHeader = h
	s.markDirty(fieldLatestBlockHeader)
}

// UpdateBlockRootAtIndex writes a slot's block root into the ring
// buffer at index % SlotsPerHistoricalRoot.
func (s *BeaconState) UpdateBlockRootAtIndex(idx uint64, root [32]byte) {
	s.BlockRoots[idx%uint64(len(s.BlockRoots))] = root
	s.markDirty(fieldBlockRoots)
}

// UpdateStateRootAtIndex writes a slot's state root into the ring
// buffer at index % SlotsPerHistoricalRoot.
func (s *BeaconState) UpdateStateRootAtIndex(idx uint64, root [32]byte) {
	s.StateRoots[idx%uint64(len(s.StateRoots))] = root
	s.markDirty(fieldStateRoots)
}

// AppendHistoricalRoot appends to the (rarely updated) historical
// roots accumulator.
func (s *BeaconState) AppendHistoricalRoot(root [32]byte) {
	s.HistoricalRoots = append(s.HistoricalRoots, root)
	s.markDirty(fieldHistoricalRoots)
}

// SetEth1Data replaces the adopted eth1 vote.
func (s *BeaconState) SetEth1Data(e *blocks.Eth1Data) {
	s.Eth1Data = e
	s.markDirty(fieldEth1Data)
}

// AppendEth1DataVote records a block's eth1 vote for later tallying.
func (s *BeaconState) AppendEth1DataVote(e *blocks.Eth1Data) {
	s.Eth1DataVotes = append(s.Eth1DataVotes, e)
	s.markDirty(fieldEth1DataVotes)
}

// ClearEth1DataVotes resets the vote accumulator at a voting period
// boundary.
func (s *BeaconState) ClearEth1DataVotes() {
	s.Eth1DataVotes = nil
	s.markDirty(fieldEth1DataVotes)
}

// SetEth1DepositIndex advances the next-expected deposit index.
func (s *BeaconState) SetEth1DepositIndex(i uint64) {
	s.Eth1DepositIndex = i
	s.markDirty(fieldEth1DepositIndex)
}

// AppendValidator enrolls a new validator and its matching zero
// balance.
func (s *BeaconState) AppendValidator(v *Validator, balance primitives.Gwei) {
	s.Validators = append(s.Validators, v)
	s.Balances = append(s.Balances, balance)
	s.markDirty(fieldValidators)
	s.markDirty(fieldBalances)
}

// SetBalance overwrites a validator's balance.
func (s *BeaconState) SetBalance(idx primitives.ValidatorIndex, balance primitives.Gwei) {
	s.Balances[idx] = balance
	s.markDirty(fieldBalances)
}

// IncreaseBalance adds delta to a validator's balance, saturating.
func (s *BeaconState) IncreaseBalance(idx primitives.ValidatorIndex, delta primitives.Gwei) {
	s.Balances[idx] = s.Balances[idx].Add(delta)
	s.markDirty(fieldBalances)
}

// DecreaseBalance subtracts delta from a validator's balance,
// saturating at zero.
func (s *BeaconState) DecreaseBalance(idx primitives.ValidatorIndex, delta primitives.Gwei) {
	s.Balances[idx] = s.Balances[idx].SafeSub(delta)
	s.markDirty(fieldBalances)
}

// UpdateValidator replaces a registry entry in place (used by
// slashing, activation, and exit processing).
func (s *BeaconState) UpdateValidator(idx primitives.ValidatorIndex, v *Validator) {
	s.Validators[idx] = v
	s.markDirty(fieldValidators)
}

// UpdateRandaoMixAtIndex writes an epoch's randao mix into the ring
// buffer at index % EpochsPerHistoricalVector.
func (s *BeaconState) UpdateRandaoMixAtIndex(idx uint64, mix [32]byte) {
	s.RandaoMixes[idx%uint64(len(s.RandaoMixes))] = mix
	s.markDirty(fieldRandaoMixes)
}

// SetSlashedBalance records the total slashed balance for an epoch's
// slot in the slashings ring buffer.
func (s *BeaconState) SetSlashedBalance(idx uint64, amount primitives.Gwei) {
	s.Slashings[idx%uint64(len(s.Slashings))] = amount
	s.markDirty(fieldSlashings)
}

// AppendCurrentEpochAttestation records an attestation seen during the
// current epoch, for reward accounting at the epoch boundary.
func (s *BeaconState) AppendCurrentEpochAttestation(a *blocks.PendingAttestation) {
	s.CurrentEpochAttestations = append(s.CurrentEpochAttestations, a)
	s.markDirty(fieldCurrentEpochAttestations)
}

// AppendPreviousEpochAttestation records an attestation seen during
// the previous epoch (possible only just after rotation, for blocks
// attesting to the tail of the prior epoch).
func (s *BeaconState) AppendPreviousEpochAttestation(a *blocks.PendingAttestation) {
	s.PreviousEpochAttestations = append(s.PreviousEpochAttestations, a)
	s.markDirty(fieldPreviousEpochAttestations)
}

// RotateEpochAttestations moves current into previous and clears
// current, the per-epoch housekeeping step.
func (s *BeaconState) RotateEpochAttestations() {
	s.PreviousEpochAttestations = s.CurrentEpochAttestations
	s.CurrentEpochAttestations = nil
	s.markDirty(fieldPreviousEpochAttestations)
	s.markDirty(fieldCurrentEpochAttestations)
}

// SetCurrentCrosslink replaces a shard's current crosslink.
func (s *BeaconState) SetCurrentCrosslink(shard primitives.ShardNumber, c *blocks.Crosslink) {
	s.CurrentCrosslinks[shard] = c
	s.markDirty(fieldCurrentCrosslinks)
}

// RotateCrosslinks moves current into previous at the epoch boundary.
func (s *BeaconState) RotateCrosslinks() {
	s.PreviousCrosslinks = s.CurrentCrosslinks
	cp := make([]*blocks.Crosslink, len(s.CurrentCrosslinks))
	copy(cp, s.CurrentCrosslinks)
	s.CurrentCrosslinks = cp
	s.markDirty(fieldPreviousCrosslinks)
	s.markDirty(fieldCurrentCrosslinks)
}

// SetJustificationBits replaces the FFG justification bitfield.
func (s *BeaconState) SetJustificationBits(bits bitfield.Bitvector4) {
	s.JustificationBits = bits
	s.markDirty(fieldJustificationBits)
}

// SetPreviousJustifiedCheckpoint replaces the previous justified
// checkpoint.
func (s *BeaconState) SetPreviousJustifiedCheckpoint(c *blocks.Checkpoint) {
	s.PreviousJustifiedCheckpoint = c
	s.markDirty(fieldPreviousJustifiedCheckpoint)
}

// SetCurrentJustifiedCheckpoint replaces the current justified
// checkpoint.
func (s *BeaconState) SetCurrentJustifiedCheckpoint(c *blocks.Checkpoint) {
	s.CurrentJustifiedCheckpoint = c
	s.markDirty(fieldCurrentJustifiedCheckpoint)
}

// SetFinalizedCheckpoint replaces the finalized checkpoint.
func (s *BeaconState) SetFinalizedCheckpoint(c *blocks.Checkpoint) {
	s.FinalizedCheckpoint = c
	s.markDirty(fieldFinalizedCheckpoint)
}

// Clone returns a deep copy of s sharing no backing arrays with the
// original, built field-by-field rather than via reflection (per the
// copy-on-write discipline the store and fork-choice depend on: a
// clone must be safe to mutate while the original is still read by
// other goroutines).
func (s *BeaconState) Clone() *BeaconState {
	fork := *s.Fork
	header := *s.LatestBlockHeader
	eth1Data := *s.Eth1Data
	prevJustified := *s.PreviousJustifiedCheckpoint
	currJustified := *s.CurrentJustifiedCheckpoint
	finalized := *s.FinalizedCheckpoint

	cp := &BeaconState{
		GenesisTime:           s.GenesisTime,
		GenesisValidatorsRoot: s.GenesisValidatorsRoot,
		Slot:                  s.Slot,
		Fork:                  &fork,
		LatestBlockHeader:     &header,
		Eth1Data:              &eth1Data,
		Eth1DepositIndex:      s.Eth1DepositIndex,
		JustificationBits:     append(bitfield.Bitvector4{}, s.JustificationBits...),
		PreviousJustifiedCheckpoint: &prevJustified,
		CurrentJustifiedCheckpoint:  &currJustified,
		FinalizedCheckpoint:         &finalized,
		dirty:                       make(map[field]bool, len(fieldOrder)),
		cached:                      make(map[field][32]byte, len(fieldOrder)),
	}
	cp.BlockRoots = append([][32]byte(nil), s.BlockRoots...)
	cp.StateRoots = append([][32]byte(nil), s.StateRoots...)
	cp.HistoricalRoots = append([][32]byte(nil), s.HistoricalRoots...)
	cp.Eth1DataVotes = append([]*blocks.Eth1Data(nil), s.Eth1DataVotes...)
	cp.RandaoMixes = append([][32]byte(nil), s.RandaoMixes...)
	cp.Slashings = append([]primitives.Gwei(nil), s.Slashings...)
	cp.Balances = append([]primitives.Gwei(nil), s.Balances...)
	cp.PreviousEpochAttestations = append([]*blocks.PendingAttestation(nil), s.PreviousEpochAttestations...)
	cp.CurrentEpochAttestations = append([]*blocks.PendingAttestation(nil), s.CurrentEpochAttestations...)
	cp.CurrentCrosslinks = append([]*blocks.Crosslink(nil), s.CurrentCrosslinks...)
	cp.PreviousCrosslinks = append([]*blocks.Crosslink(nil), s.PreviousCrosslinks...)

	cp.Validators = make([]*Validator, len(s.Validators))
	for i, v := range s.Validators {
		cp.Validators[i] = v.Clone()
	}

	for f, r := range s.cached {
		if !s.dirty[f] {
			cp.cached[f] = r
		}
	}
	return cp
}

// HashTreeRoot computes the state's merkle root, recomputing only the
// fields marked dirty since the last call.
func (s *BeaconState) HashTreeRoot() ([32]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty == nil {
		s.dirty = make(map[field]bool, len(fieldOrder))
	}
	if s.cached == nil {
		s.cached = make(map[field][32]byte, len(fieldOrder))
	}
	cfg := params.BeaconConfig()

	for _, f := range fieldOrder {
		if !s.dirty[f] {
			if _, ok := s.cached[f]; ok {
				continue
			}
		}
		root, err := s.fieldRoot(f, cfg)
		if err != nil {
			return [32]byte{}, err
		}
		s.cached[f] = root
		s.dirty[f] = false
	}

	fieldRoots := make([][32]byte, len(fieldOrder))
	for i, f := range fieldOrder {
		fieldRoots[i] = s.cached[f]
	}
	return ssz.ContainerRoot(fieldRoots), nil
}

func (s *BeaconState) fieldRoot(f field, cfg *params.BeaconChainConfig) ([32]byte, error) {
	switch f {
	case fieldGenesisTime:
		return ssz.PackChunks(ssz.MarshalUint64(nil, s.GenesisTime))[0], nil
	case fieldGenesisValidatorsRoot:
		return s.GenesisValidatorsRoot, nil
	case fieldSlot:
		return ssz.PackChunks(ssz.MarshalUint64(nil, uint64(s.Slot)))[0], nil
	case fieldFork:
		return s.Fork.HashTreeRoot()
	case fieldLatestBlockHeader:
		return s.LatestBlockHeader.HashTreeRoot()
	case fieldBlockRoots:
		return ssz.VectorRoot(s.BlockRoots), nil
	case fieldStateRoots:
		return ssz.VectorRoot(s.StateRoots), nil
	case fieldHistoricalRoots:
		return ssz.ListRoot(s.HistoricalRoots, cfg.HistoricalRootsLimit), nil
	case fieldEth1Data:
		return s.Eth1Data.HashTreeRoot()
	case fieldEth1DataVotes:
		roots, err := hashRootList(s.Eth1DataVotes, func(e *blocks.Eth1Data) ([32]byte, error) { return e.HashTreeRoot() })
		if err != nil {
			return [32]byte{}, err
		}
		return ssz.ListRoot(roots, cfg.EpochsPerEth1VotingPeriod*cfg.SlotsPerEpoch), nil
	case fieldEth1DepositIndex:
		return ssz.PackChunks(ssz.MarshalUint64(nil, s.Eth1DepositIndex))[0], nil
	case fieldValidators:
		roots, err := hashRootList(s.Validators, func(v *Validator) ([32]byte, error) { return v.HashTreeRoot() })
		if err != nil {
			return [32]byte{}, err
		}
		return ssz.ListRoot(roots, cfg.ValidatorRegistryLimit), nil
	case fieldBalances:
		packed := make([]byte, 0, len(s.Balances)*8)
		for _, b := range s.Balances {
			packed = ssz.MarshalUint64(packed, uint64(b))
		}
		chunks := ssz.PackChunks(packed)
		limitChunks := (cfg.ValidatorRegistryLimit*8 + 31) / 32
		return ssz.ListRoot(chunks, limitChunks), nil
	case fieldRandaoMixes:
		return ssz.VectorRoot(s.RandaoMixes), nil
	case fieldSlashings:
		packed := make([]byte, 0, len(s.Slashings)*8)
		for _, b := range s.Slashings {
			packed = ssz.MarshalUint64(packed, uint64(b))
		}
		return ssz.VectorRoot(ssz.PackChunks(packed)), nil
	case fieldPreviousEpochAttestations:
		roots, err := hashRootList(s.PreviousEpochAttestations, func(a *blocks.PendingAttestation) ([32]byte, error) { return a.HashTreeRoot() })
		if err != nil {
			return [32]byte{}, err
		}
		return ssz.ListRoot(roots, cfg.MaxAttestations*cfg.SlotsPerEpoch), nil
	case fieldCurrentEpochAttestations:
		roots, err := hashRootList(s.CurrentEpochAttestations, func(a *blocks.PendingAttestation) ([32]byte, error) { return a.HashTreeRoot() })
		if err != nil {
			return [32]byte{}, err
		}
		return ssz.ListRoot(roots, cfg.MaxAttestations*cfg.SlotsPerEpoch), nil
	case fieldCurrentCrosslinks:
		roots, err := hashRootList(s.CurrentCrosslinks, func(c *blocks.Crosslink) ([32]byte, error) { return c.HashTreeRoot() })
		if err != nil {
			return [32]byte{}, err
		}
		return ssz.VectorRoot(roots), nil
	case fieldPreviousCrosslinks:
		roots, err := hashRootList(s.PreviousCrosslinks, func(c *blocks.Crosslink) ([32]byte, error) { return c.HashTreeRoot() })
		if err != nil {
			return [32]byte{}, err
		}
		return ssz.VectorRoot(roots), nil
	case fieldJustificationBits:
		return ssz.PackChunks(s.JustificationBits)[0], nil
	case fieldPreviousJustifiedCheckpoint:
		return s.PreviousJustifiedCheckpoint.HashTreeRoot()
	case fieldCurrentJustifiedCheckpoint:
		return s.CurrentJustifiedCheckpoint.HashTreeRoot()
	case fieldFinalizedCheckpoint:
		return s.FinalizedCheckpoint.HashTreeRoot()
	}
	return [32]byte{}, ssz.ErrSchemaMismatch
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
