package helpers

import (
	"github.com/lumenchain/beacon-node/config/params"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
)

// ActiveValidatorIndices returns the registry indices of every
// validator active at epoch, in registry order.
func ActiveValidatorIndices(st *state.BeaconState, epoch primitives.Epoch) []primitives.ValidatorIndex {
	indices := make([]primitives.ValidatorIndex, 0, len(st.Validators))
	for i, v := range st.Validators {
		if v.IsActive(epoch) {
			indices = append(indices, primitives.ValidatorIndex(i))
		}
	}
	return indices
}

// TotalBalance sums the effective balances of the given indices.
func TotalBalance(st *state.BeaconState, indices []primitives.ValidatorIndex) primitives.Gwei {
	var total primitives.Gwei
	for _, idx := range indices {
		total = total.Add(st.Validators[idx].EffectiveBalance)
	}
	return total
}

// TotalActiveBalance sums the effective balances of every validator
// active at epoch, floored at EffectiveBalanceIncrement so fork-choice
// weight math never divides by zero.
func TotalActiveBalance(st *state.BeaconState, epoch primitives.Epoch) primitives.Gwei {
	total := TotalBalance(st, ActiveValidatorIndices(st, epoch))
	minBalance := primitives.Gwei(params.BeaconConfig().EffectiveBalanceIncrement)
	if total < minBalance {
		return minBalance
	}
	return total
}
