package helpers

import (
	"github.com/pkg/errors"

	"github.com/lumenchain/beacon-node/beacon-chain/cache"
	"github.com/lumenchain/beacon-node/config/params"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
	"github.com/lumenchain/beacon-node/crypto/hash"
)

// committeeCache memoizes BeaconCommittee's shuffle so a validator's 32
// duty computations across an epoch don't reshuffle the same committee
// from scratch each time.
var committeeCache = cache.NewCommitteeCache()

// CommitteeCountAtSlot returns the number of committees active in
// slot's epoch, clamped between 1 and MaxCommitteesPerSlot per active
// validator count.
func CommitteeCountAtSlot(st *state.BeaconState, slot primitives.Slot) uint64 {
	cfg := params.BeaconConfig()
	epoch := SlotToEpoch(slot)
	activeCount := uint64(len(ActiveValidatorIndices(st, epoch)))
	perSlot := activeCount / cfg.SlotsPerEpoch / cfg.TargetCommitteeSize
	if perSlot > cfg.MaxCommitteesPerSlot {
		perSlot = cfg.MaxCommitteesPerSlot
	}
	if perSlot < 1 {
		perSlot = 1
	}
	return perSlot
}

// BeaconCommittee returns the shuffled committee assigned to
// (slot, committeeIndex): the slice of the epoch's active-index
// permutation belonging to that committee's slot and position.
func BeaconCommittee(st *state.BeaconState, slot primitives.Slot, committeeIndex primitives.CommitteeIndex) ([]primitives.ValidatorIndex, error) {
	cfg := params.BeaconConfig()
	epoch := SlotToEpoch(slot)
	seed := Seed(st, epoch, cfg.DomainBeaconAttester)

	if cached, ok := committeeCache.Get(seed, slot, committeeIndex); ok {
		return cached, nil
	}

	indices := ActiveValidatorIndices(st, epoch)
	committeesPerSlot := CommitteeCountAtSlot(st, slot)
	slotOffset := uint64(slot.Mod(cfg.SlotsPerEpoch))
	index := slotOffset*committeesPerSlot + uint64(committeeIndex)
	count := committeesPerSlot * cfg.SlotsPerEpoch

	committee, err := computeCommittee(indices, seed, index, count)
	if err != nil {
		return nil, err
	}
	committeeCache.Put(seed, slot, committeeIndex, committee)
	return committee, nil
}

func computeCommittee(indices []primitives.ValidatorIndex, seed [32]byte, index, count uint64) ([]primitives.ValidatorIndex, error) {
	if count == 0 {
		return nil, errors.New("helpers: zero committee count")
	}
	listSize := uint64(len(indices))
	start := (listSize * index) / count
	end := (listSize * (index + 1)) / count

	out := make([]primitives.ValidatorIndex, 0, end-start)
	for i := start; i < end; i++ {
		shuffled, err := ShuffledIndex(i, listSize, seed)
		if err != nil {
			return nil, err
		}
		out = append(out, indices[shuffled])
	}
	return out, nil
}

// BeaconProposerIndex returns the validator chosen to propose at the
// state's current slot, the RANDAO-seeded weighted-by-effective-
// balance selection.
func BeaconProposerIndex(st *state.BeaconState) (primitives.ValidatorIndex, error) {
	cfg := params.BeaconConfig()
	epoch := CurrentEpoch(st)
	seedInput := Seed(st, epoch, cfg.DomainBeaconProposer)

	buf := append(seedInput[:], uint64ToBytes8(uint64(st.Slot))...)
	seed := hash.Hash(buf)

	indices := ActiveValidatorIndices(st, epoch)
	if len(indices) == 0 {
		return 0, errors.New("helpers: no active validators to propose")
	}
	return computeProposerIndex(st, indices, seed)
}

func computeProposerIndex(st *state.BeaconState, indices []primitives.ValidatorIndex, seed [32]byte) (primitives.ValidatorIndex, error) {
	cfg := params.BeaconConfig()
	listSize := uint64(len(indices))
	i := uint64(0)
	for {
		shuffledIdx, err := ShuffledIndex(i%listSize, listSize, seed)
		if err != nil {
			return 0, err
		}
		candidate := indices[shuffledIdx]
		randomByte := randaoByteForAttempt(seed, i)
		effectiveBalance := st.Validators[candidate].EffectiveBalance
		if uint64(effectiveBalance)*255 >= cfg.MaxEffectiveBalance*uint64(randomByte) {
			return candidate, nil
		}
		i++
	}
}

func randaoByteForAttempt(seed [32]byte, attempt uint64) byte {
	buf := append(seed[:], uint64ToBytes8(attempt/32)...)
	digest := hash.Hash(buf)
	return digest[attempt%32]
}
