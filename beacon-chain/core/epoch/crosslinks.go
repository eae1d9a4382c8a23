package epoch

import (
	"bytes"

	"github.com/lumenchain/beacon-node/beacon-chain/core/helpers"
	"github.com/lumenchain/beacon-node/config/params"
	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
)

// ProcessCrosslinks adopts, for every shard, the crosslink with the
// most attesting balance among the previous and current epoch's
// attestations, ties broken by lexicographically greater data root, as
// long as it carries supermajority support; otherwise the shard's
// current crosslink carries over unchanged. Grounded on the teacher
// lineage's ProcessCrosslinks (other_examples/...epoch_processing.go.go),
// restated against this repo's fixed ShardCount crosslink vector.
func ProcessCrosslinks(st *state.BeaconState) error {
	st.RotateCrosslinks()
	cfg := params.BeaconConfig()
	previousEpoch := helpers.PreviousEpoch(st)
	currentEpoch := helpers.CurrentEpoch(st)

	for shard := primitives.ShardNumber(0); shard < primitives.ShardNumber(cfg.ShardCount); shard++ {
		for _, epoch := range []primitives.Epoch{previousEpoch, currentEpoch} {
			atts := crosslinkAttestations(st, epoch, shard)
			if len(atts) == 0 {
				continue
			}
			winner, attestingBal, err := winningCrosslink(st, atts)
			if err != nil {
				return err
			}
			if winner == nil {
				continue
			}
			committee, err := crosslinkCommittee(st, epoch, shard)
			if err != nil {
				return err
			}
			total := helpers.TotalBalance(st, committee)
			if uint64(attestingBal)*3 >= uint64(total)*2 {
				st.SetCurrentCrosslink(shard, winner)
			}
		}
	}
	return nil
}

func crosslinkCommittee(st *state.BeaconState, epoch primitives.Epoch, shard primitives.ShardNumber) ([]primitives.ValidatorIndex, error) {
	startSlot := helpers.StartSlot(epoch)
	cfg := params.BeaconConfig()
	for slot := startSlot; slot < startSlot+primitives.Slot(cfg.SlotsPerEpoch); slot++ {
		count := helpers.CommitteeCountAtSlot(st, slot)
		for ci := uint64(0); ci < count; ci++ {
			committee, err := helpers.BeaconCommittee(st, slot, primitives.CommitteeIndex(ci))
			if err != nil {
				return nil, err
			}
			if shardForCommittee(st, slot, ci) == shard {
				return committee, nil
			}
		}
	}
	return nil, nil
}

// shardForCommittee derives the shard a (slot, committeeIndex) pair
// crosslinks against. Phase-0 crosslinks are a deterministic
// placeholder (per the glossary), so rather than thread a persisted,
// rotating start-shard counter through BeaconState (dropped from this
// repo's state container, see DESIGN.md), the shard is derived
// directly from the committee's absolute position since genesis — a
// pure function of (slot, committeeIndex) instead of mutable state,
// simpler to reason about and reorg-safe by construction.
func shardForCommittee(st *state.BeaconState, slot primitives.Slot, committeeIndex uint64) primitives.ShardNumber {
	cfg := params.BeaconConfig()
	committeesPerSlot := helpers.CommitteeCountAtSlot(st, slot)
	offset := uint64(slot)*committeesPerSlot + committeeIndex
	return primitives.ShardNumber(offset % cfg.ShardCount)
}

func crosslinkAttestations(st *state.BeaconState, epoch primitives.Epoch, shard primitives.ShardNumber) []*blockspb.PendingAttestation {
	source := matchingSourceAttestations(st, epoch)
	out := make([]*blockspb.PendingAttestation, 0)
	for _, a := range source {
		if a.Data.Crosslink != nil && a.Data.Crosslink.Shard == shard {
			out = append(out, a)
		}
	}
	return out
}

// winningCrosslink picks the candidate crosslink data root with the
// most unslashed attesting balance among atts, breaking ties
// lexicographically greater (matching the fork-choice tie-break
// adopted per spec.md design note §9).
func winningCrosslink(st *state.BeaconState, atts []*blockspb.PendingAttestation) (*blockspb.Crosslink, primitives.Gwei, error) {
	byRoot := make(map[primitives.Root]*blockspb.Crosslink)
	var bestRoot primitives.Root
	var bestBalance primitives.Gwei
	haveBest := false

	grouped := make(map[primitives.Root][]*blockspb.PendingAttestation)
	for _, a := range atts {
		byRoot[a.Data.Crosslink.DataRoot] = a.Data.Crosslink
		grouped[a.Data.Crosslink.DataRoot] = append(grouped[a.Data.Crosslink.DataRoot], a)
	}
	for root, group := range grouped {
		bal, err := attestingBalance(st, group)
		if err != nil {
			return nil, 0, err
		}
		if !haveBest || bal > bestBalance || (bal == bestBalance && bytes.Compare(root[:], bestRoot[:]) > 0) {
			bestRoot = root
			bestBalance = bal
			haveBest = true
		}
	}
	if !haveBest {
		return nil, 0, nil
	}
	return byRoot[bestRoot], bestBalance, nil
}
