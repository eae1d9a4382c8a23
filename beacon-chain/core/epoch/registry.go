package epoch

import (
	"sort"

	"github.com/lumenchain/beacon-node/beacon-chain/core/blocks"
	"github.com/lumenchain/beacon-node/beacon-chain/core/helpers"
	"github.com/lumenchain/beacon-node/config/params"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
	"github.com/lumenchain/beacon-node/crypto/hash"
	"github.com/lumenchain/beacon-node/encoding/ssz"
)

// ProcessRegistryUpdates activates eligible queued validators (up to
// the churn limit, earliest-eligibility-epoch first) and initiates
// exit for any active validator whose effective balance has fallen to
// or below EjectionBalance, grounded on the teacher lineage's
// ProcessEjections (other_examples/...epoch_processing.go.go) plus the
// activation-queue half later Prysm versions fold into the same
// registry-update stage.
func ProcessRegistryUpdates(st *state.BeaconState) error {
	cfg := params.BeaconConfig()
	currentEpoch := helpers.CurrentEpoch(st)

	for i, v := range st.Validators {
		idx := primitives.ValidatorIndex(i)
		if v.IsActive(currentEpoch) && v.EffectiveBalance <= primitives.Gwei(cfg.EjectionBalance) {
			if err := blocks.InitiateValidatorExit(st, idx); err != nil {
				return err
			}
		}
	}

	var eligible []primitives.ValidatorIndex
	for i, v := range st.Validators {
		if v.IsEligibleForActivationQueue(primitives.Gwei(cfg.MaxEffectiveBalance)) {
			cp := v.Clone()
			cp.ActivationEligibilityEpoch = currentEpoch + 1
			st.UpdateValidator(primitives.ValidatorIndex(i), cp)
		}
	}
	activeCount := uint64(len(helpers.ActiveValidatorIndices(st, currentEpoch)))
	limit := activeCount / cfg.ChurnLimitQuotient
	if limit < cfg.MinPerEpochChurnLimit {
		limit = cfg.MinPerEpochChurnLimit
	}
	for i, v := range st.Validators {
		if isEligibleForActivation(st, v) {
			eligible = append(eligible, primitives.ValidatorIndex(i))
		}
	}
	sort.Slice(eligible, func(a, b int) bool {
		va, vb := st.Validators[eligible[a]], st.Validators[eligible[b]]
		if va.ActivationEligibilityEpoch != vb.ActivationEligibilityEpoch {
			return va.ActivationEligibilityEpoch < vb.ActivationEligibilityEpoch
		}
		return eligible[a] < eligible[b]
	})
	if uint64(len(eligible)) > limit {
		eligible = eligible[:limit]
	}
	for _, idx := range eligible {
		cp := st.Validators[idx].Clone()
		cp.ActivationEpoch = blocks.DelayedActivationExitEpoch(currentEpoch, cfg)
		st.UpdateValidator(idx, cp)
	}
	return nil
}

func isEligibleForActivation(st *state.BeaconState, v *state.Validator) bool {
	return v.ActivationEligibilityEpoch != state.FarFutureEpoch &&
		v.ActivationEpoch == state.FarFutureEpoch &&
		v.ActivationEligibilityEpoch <= st.FinalizedCheckpoint.Epoch
}

// ProcessSlashings applies the pro-rated slashing penalty accumulated
// in the slashings vector: every slashed validator whose withdrawable
// epoch is exactly EpochsPerSlashingsVector/2 epochs after the current
// epoch is penalized in proportion to its share of the total
// slashed balance over the lookback window, capped at its effective
// balance.
func ProcessSlashings(st *state.BeaconState) error {
	cfg := params.BeaconConfig()
	currentEpoch := helpers.CurrentEpoch(st)
	totalBalance := helpers.TotalActiveBalance(st, currentEpoch)

	var totalSlashed primitives.Gwei
	for _, s := range st.Slashings {
		totalSlashed = totalSlashed.Add(s)
	}
	adjusted := totalSlashed
	if cap := totalBalance; uint64(adjusted)*3 > uint64(cap) {
		adjusted = primitives.Gwei(uint64(cap) / 3)
	}

	withdrawableLookback := primitives.Epoch(cfg.EpochsPerSlashingsVector / 2)
	for i, v := range st.Validators {
		if !v.Slashed {
			continue
		}
		if v.WithdrawableEpoch != currentEpoch+withdrawableLookback {
			continue
		}
		increment := primitives.Gwei(cfg.EffectiveBalanceIncrement)
		penaltyNumerator := (v.EffectiveBalance / increment) * minGwei(adjusted*primitives.Gwei(cfg.ProportionalSlashingMultiplier), totalBalance)
		penalty := penaltyNumerator / (totalBalance / increment)
		st.DecreaseBalance(primitives.ValidatorIndex(i), penalty)
	}
	return nil
}

func minGwei(a, b primitives.Gwei) primitives.Gwei {
	if a < b {
		return a
	}
	return b
}

// ProcessFinalUpdates runs the per-epoch housekeeping that doesn't fit
// any other named stage: resetting the eth1 vote pool at a voting
// period boundary, decaying effective balances that have drifted from
// their quantized value, rotating historical roots, seeding next
// epoch's randao mix and slashings bucket, and rotating the
// attestation lists.
func ProcessFinalUpdates(st *state.BeaconState) error {
	cfg := params.BeaconConfig()
	currentEpoch := helpers.CurrentEpoch(st)
	nextEpoch := currentEpoch + 1

	hysteresisIncrement := cfg.EffectiveBalanceIncrement / 4
	downwardThreshold := primitives.Gwei(hysteresisIncrement * 1)
	upwardThreshold := primitives.Gwei(hysteresisIncrement * 5)
	for i, v := range st.Validators {
		balance := st.Balances[i]
		if balance.SafeSub(v.EffectiveBalance) > upwardThreshold || v.EffectiveBalance.SafeSub(balance) > downwardThreshold {
			newEffective := balance - balance%primitives.Gwei(cfg.EffectiveBalanceIncrement)
			if newEffective > primitives.Gwei(cfg.MaxEffectiveBalance) {
				newEffective = primitives.Gwei(cfg.MaxEffectiveBalance)
			}
			cp := v.Clone()
			cp.EffectiveBalance = newEffective
			st.UpdateValidator(primitives.ValidatorIndex(i), cp)
		}
	}

	if uint64(nextEpoch)%cfg.EpochsPerEth1VotingPeriod == 0 {
		st.ClearEth1DataVotes()
	}

	st.UpdateRandaoMixAtIndex(uint64(nextEpoch)%cfg.EpochsPerHistoricalVector, helpers.RandaoMix(st, currentEpoch))
	st.SetSlashedBalance(uint64(nextEpoch)%cfg.EpochsPerSlashingsVector, 0)

	if uint64(nextEpoch)%(cfg.SlotsPerHistoricalRoot/cfg.SlotsPerEpoch) == 0 {
		batchRoots := append([][32]byte(nil), st.BlockRoots...)
		stateRoots := append([][32]byte(nil), st.StateRoots...)
		historicalRoot := combinedHistoricalRoot(batchRoots, stateRoots)
		st.AppendHistoricalRoot(historicalRoot)
	}

	st.RotateEpochAttestations()
	return nil
}

// combinedHistoricalRoot merkleizes the period's block-root and
// state-root vectors into the single root historical_roots
// accumulates, the HistoricalBatch hashing rule.
func combinedHistoricalRoot(blockRoots, stateRoots [][32]byte) [32]byte {
	left := ssz.VectorRoot(blockRoots)
	right := ssz.VectorRoot(stateRoots)
	return hash.HashPair(left, right)
}
