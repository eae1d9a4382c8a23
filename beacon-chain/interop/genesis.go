// Package interop builds a deterministic local-devnet genesis state:
// a fixed validator count signing with keys derived from a seed
// string, so the same --interop-num-validators count and seed always
// produce the same chain. There is no deposit contract or eth1 follow distance
// here, just the "minimal genesis" shortcut real devnets use to skip
// waiting on a live eth1 chain.
package interop

import (
	"github.com/pkg/errors"

	"github.com/lumenchain/beacon-node/config/params"
	"github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
	"github.com/lumenchain/beacon-node/crypto/bls"
	"github.com/lumenchain/beacon-node/crypto/hash"
)

// Keys deterministically derives numValidators BLS secret keys from
// seed, in registry order. The same (seed, numValidators) always
// yields the same keys, which is the point: every node in a local
// devnet derives an identical genesis without exchanging deposits.
func Keys(seed string, numValidators uint64) ([]*bls.SecretKey, error) {
	out := make([]*bls.SecretKey, numValidators)
	for i := uint64(0); i < numValidators; i++ {
		attempt := hash.Hash([]byte(seed + ":" + primitives.ValidatorIndex(i).String()))
		for {
			key, err := bls.SecretKeyFromBytes(attempt[:])
			if err == nil {
				out[i] = key
				break
			}
			attempt = hash.Hash(attempt[:])
		}
	}
	return out, nil
}

// GenesisState builds a BeaconState with one validator per key in
// keys, each fully active as of epoch 0 and funded at
// MaxEffectiveBalance, and genesisTime as its GENESIS_TIME.
func GenesisState(keys []*bls.SecretKey, genesisTime uint64) (*state.BeaconState, error) {
	if len(keys) == 0 {
		return nil, errors.New("interop: at least one validator key is required")
	}
	cfg := params.BeaconConfig()

	st := state.New()
	st.GenesisTime = genesisTime
	st.SetFork(&blocks.Fork{
		PreviousVersion: cfg.GenesisForkVersion,
		CurrentVersion:  cfg.GenesisForkVersion,
		Epoch:           0,
	})

	for _, key := range keys {
		var pubkey [48]byte
		copy(pubkey[:], key.PublicKey().Marshal())
		v := &state.Validator{
			Pubkey:                     pubkey,
			EffectiveBalance:           primitives.Gwei(cfg.MaxEffectiveBalance),
			ActivationEligibilityEpoch: 0,
			ActivationEpoch:            0,
			ExitEpoch:                  state.FarFutureEpoch,
			WithdrawableEpoch:          state.FarFutureEpoch,
		}
		st.AppendValidator(v, primitives.Gwei(cfg.MaxEffectiveBalance))
	}

	genesisRoot, err := st.HashTreeRoot()
	if err != nil {
		return nil, errors.Wrap(err, "could not compute genesis validators root")
	}
	st.GenesisValidatorsRoot = genesisRoot
	return st, nil
}
