package epoch

import (
	"math"

	"github.com/lumenchain/beacon-node/beacon-chain/core/helpers"
	"github.com/lumenchain/beacon-node/config/params"
	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
)

// baseRewardsPerEpoch is the number of independent reward components
// (source, target, head, inclusion-delay/proposer) a base reward is
// divided across.
const baseRewardsPerEpoch = 4

// baseReward returns a validator's base reward for a single epoch:
// effective_balance * BASE_REWARD_FACTOR / integer_sqrt(total_active_balance) / BASE_REWARDS_PER_EPOCH,
// grounded on the teacher lineage's precompute.BaseReward formula
// (beacon-chain/core/epoch/precompute).
func baseReward(st *state.BeaconState, idx primitives.ValidatorIndex, totalActiveBalance primitives.Gwei) primitives.Gwei {
	cfg := params.BeaconConfig()
	effectiveBalance := uint64(st.Validators[idx].EffectiveBalance)
	sqrtTotal := integerSqrt(uint64(totalActiveBalance))
	if sqrtTotal == 0 {
		return 0
	}
	return primitives.Gwei(effectiveBalance * cfg.BaseRewardFactor / sqrtTotal / baseRewardsPerEpoch)
}

func integerSqrt(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	x := uint64(math.Sqrt(float64(n)))
	for x*x > n {
		x--
	}
	for (x+1)*(x+1) <= n {
		x++
	}
	return x
}

// inclusionInfo records, per attesting validator, the earliest
// inclusion delay among its included attestations and the proposer
// that earned the matching inclusion reward.
type inclusionInfo struct {
	delay    primitives.Slot
	proposer primitives.ValidatorIndex
}

func earliestInclusions(st *state.BeaconState, atts []*blockspb.PendingAttestation) (map[primitives.ValidatorIndex]inclusionInfo, error) {
	out := make(map[primitives.ValidatorIndex]inclusionInfo)
	for _, a := range atts {
		committee, err := helpers.BeaconCommittee(st, a.Data.Slot, a.Data.Index)
		if err != nil {
			return nil, err
		}
		for i, idx := range committee {
			if !a.AggregationBits.BitAt(uint64(i)) {
				continue
			}
			prev, ok := out[idx]
			if !ok || a.InclusionDelay < prev.delay {
				out[idx] = inclusionInfo{delay: a.InclusionDelay, proposer: a.ProposerIndex}
			}
		}
	}
	return out, nil
}

// ProcessRewardsAndPenalties computes, for every active validator, the
// source/target/head attestation rewards (or penalties for absence),
// the inclusion-delay proposer reward, and the inactivity leak when the
// chain has gone more than MinEpochsToInactivityPenalty epochs without
// finalizing, then applies every delta to st.Balances in one pass, the
// same "compute deltas then apply" split the teacher's
// precompute.ProcessRewardsAndPenaltiesPrecompute uses to keep state
// reads and writes from interleaving.
func ProcessRewardsAndPenalties(st *state.BeaconState) error {
	currentEpoch := helpers.CurrentEpoch(st)
	if currentEpoch <= 1 {
		return nil
	}
	previousEpoch := helpers.PreviousEpoch(st)
	cfg := params.BeaconConfig()
	totalActive := helpers.TotalActiveBalance(st, previousEpoch)

	sourceAtts := matchingSourceAttestations(st, previousEpoch)
	targetAtts, err := matchingTargetAttestations(st, sourceAtts, previousEpoch)
	if err != nil {
		return err
	}
	headAtts, err := matchingHeadAttestations(st, sourceAtts)
	if err != nil {
		return err
	}

	sourceIndices, err := unslashedAttestingIndices(st, sourceAtts)
	if err != nil {
		return err
	}
	targetIndices, err := unslashedAttestingIndices(st, targetAtts)
	if err != nil {
		return err
	}
	headIndices, err := unslashedAttestingIndices(st, headAtts)
	if err != nil {
		return err
	}
	sourceBalance := helpers.TotalBalance(st, sourceIndices)
	targetBalance := helpers.TotalBalance(st, targetIndices)
	headBalance := helpers.TotalBalance(st, headIndices)

	sourceSet := toSet(sourceIndices)
	targetSet := toSet(targetIndices)
	headSet := toSet(headIndices)

	inclusions, err := earliestInclusions(st, sourceAtts)
	if err != nil {
		return err
	}

	finalityDelay := uint64(previousEpoch) - uint64(st.FinalizedCheckpoint.Epoch)
	leaking := finalityDelay > cfg.MinEpochsToInactivityPenalty

	rewards := make([]primitives.Gwei, len(st.Validators))
	penalties := make([]primitives.Gwei, len(st.Validators))

	for _, idx := range helpers.ActiveValidatorIndices(st, previousEpoch) {
		base := baseReward(st, idx, totalActive)

		if sourceSet[idx] {
			if leaking {
				rewards[idx] = rewards[idx].Add(base)
			} else {
				rewards[idx] = rewards[idx].Add(weighted(base, sourceBalance, totalActive))
			}
			if info, ok := inclusions[idx]; ok && info.delay > 0 {
				proposerReward := base / primitives.Gwei(cfg.ProposerRewardQuotient)
				rewards[info.proposer] = rewards[info.proposer].Add(proposerReward)
				rewards[idx] = rewards[idx].Add(primitives.Gwei(uint64(base) * cfg.MinAttestationInclusionDelay / uint64(info.delay)))
			}
		} else {
			penalties[idx] = penalties[idx].Add(base)
		}

		if targetSet[idx] {
			if leaking {
				rewards[idx] = rewards[idx].Add(base)
			} else {
				rewards[idx] = rewards[idx].Add(weighted(base, targetBalance, totalActive))
			}
		} else {
			penalties[idx] = penalties[idx].Add(base)
		}

		if headSet[idx] {
			rewards[idx] = rewards[idx].Add(weighted(base, headBalance, totalActive))
		} else {
			penalties[idx] = penalties[idx].Add(base)
		}

		if leaking {
			inactivityPenalty := primitives.Gwei(uint64(st.Validators[idx].EffectiveBalance) * finalityDelay / cfg.InactivityPenaltyQuotient)
			penalties[idx] = penalties[idx].Add(inactivityPenalty)
		}
	}

	for i := range st.Validators {
		idx := primitives.ValidatorIndex(i)
		if rewards[idx] > 0 {
			st.IncreaseBalance(idx, rewards[idx])
		}
		if penalties[idx] > 0 {
			st.DecreaseBalance(idx, penalties[idx])
		}
	}
	return nil
}

func weighted(base, matchingBalance, totalBalance primitives.Gwei) primitives.Gwei {
	if totalBalance == 0 {
		return 0
	}
	return primitives.Gwei(uint64(base) * uint64(matchingBalance) / uint64(totalBalance))
}

func toSet(indices []primitives.ValidatorIndex) map[primitives.ValidatorIndex]bool {
	set := make(map[primitives.ValidatorIndex]bool, len(indices))
	for _, idx := range indices {
		set[idx] = true
	}
	return set
}
