package blocks

import (
	"github.com/lumenchain/beacon-node/beacon-chain/core/helpers"
	"github.com/lumenchain/beacon-node/config/params"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
)

// initiateValidatorExit schedules idx to exit, assigning it the
// earliest exit epoch not already crowded past the per-epoch churn
// limit.
func initiateValidatorExit(st *state.BeaconState, idx primitives.ValidatorIndex) error {
	validator := st.Validators[idx]
	if validator.ExitEpoch != state.FarFutureEpoch {
		return nil
	}
	cfg := configOf()
	currentEpoch := helpers.CurrentEpoch(st)

	exitEpochs := make([]primitives.Epoch, 0)
	for _, v := range st.Validators {
		if v.ExitEpoch != state.FarFutureEpoch {
			exitEpochs = append(exitEpochs, v.ExitEpoch)
		}
	}
	exitQueueEpoch := delayedActivationExitEpoch(currentEpoch, cfg)
	for _, e := range exitEpochs {
		if e > exitQueueEpoch {
			exitQueueEpoch = e
		}
	}

	limit := churnLimit(st, cfg)
	countAtEpoch := uint64(0)
	for _, e := range exitEpochs {
		if e == exitQueueEpoch {
			countAtEpoch++
		}
	}
	if countAtEpoch >= limit {
		exitQueueEpoch++
	}

	cp := validator.Clone()
	cp.ExitEpoch = exitQueueEpoch
	cp.WithdrawableEpoch = exitQueueEpoch + primitives.Epoch(cfg.MinValidatorWithdrawabilityDelay)
	st.UpdateValidator(idx, cp)
	return nil
}

func delayedActivationExitEpoch(epoch primitives.Epoch, cfg *params.BeaconChainConfig) primitives.Epoch {
	return epoch + 1 + primitives.Epoch(cfg.MaxSeedLookahead)
}

// InitiateValidatorExit is the exported form of initiateValidatorExit,
// for core/epoch's registry-update stage (which schedules ejections the
// same churn-limited way a voluntary exit or slashing does).
func InitiateValidatorExit(st *state.BeaconState, idx primitives.ValidatorIndex) error {
	return initiateValidatorExit(st, idx)
}

// DelayedActivationExitEpoch is the exported form of
// delayedActivationExitEpoch, for core/epoch's activation-queue stage.
func DelayedActivationExitEpoch(epoch primitives.Epoch, cfg *params.BeaconChainConfig) primitives.Epoch {
	return delayedActivationExitEpoch(epoch, cfg)
}

func churnLimit(st *state.BeaconState, cfg *params.BeaconChainConfig) uint64 {
	activeCount := uint64(len(helpers.ActiveValidatorIndices(st, helpers.CurrentEpoch(st))))
	limit := activeCount / cfg.ChurnLimitQuotient
	if limit < cfg.MinPerEpochChurnLimit {
		return cfg.MinPerEpochChurnLimit
	}
	return limit
}

// slashValidator applies the slashing penalty to idx: marks it
// slashed, schedules its withdrawal, immediately burns the minimum
// slashing penalty, and pays the whistleblower reward to the block
// proposer.
func slashValidator(st *state.BeaconState, idx primitives.ValidatorIndex) error {
	cfg := configOf()
	currentEpoch := helpers.CurrentEpoch(st)
	if err := initiateValidatorExit(st, idx); err != nil {
		return err
	}

	validator := st.Validators[idx].Clone()
	validator.Slashed = true
	withdrawable := currentEpoch + primitives.Epoch(cfg.EpochsPerSlashingsVector)
	if validator.WithdrawableEpoch > withdrawable || validator.WithdrawableEpoch == state.FarFutureEpoch {
		validator.WithdrawableEpoch = withdrawable
	}
	st.UpdateValidator(idx, validator)

	slotIdx := uint64(currentEpoch) % cfg.EpochsPerSlashingsVector
	st.SetSlashedBalance(slotIdx, st.Slashings[slotIdx].Add(validator.EffectiveBalance))

	penalty := validator.EffectiveBalance / primitives.Gwei(cfg.MinSlashingPenaltyQuotient)
	st.DecreaseBalance(idx, penalty)

	proposerIdx, err := helpers.BeaconProposerIndex(st)
	if err != nil {
		return err
	}
	whistleblowerReward := validator.EffectiveBalance / primitives.Gwei(cfg.WhistleblowerRewardQuotient)
	proposerReward := whistleblowerReward / primitives.Gwei(cfg.ProposerRewardQuotient)
	st.IncreaseBalance(proposerIdx, proposerReward)
	st.IncreaseBalance(proposerIdx, whistleblowerReward-proposerReward)
	return nil
}
