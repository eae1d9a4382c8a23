package blocks

import (
	"github.com/pkg/errors"

	"github.com/lumenchain/beacon-node/beacon-chain/core/helpers"
	"github.com/lumenchain/beacon-node/beacon-chain/core/signing"
	blockspb "github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
	"github.com/lumenchain/beacon-node/crypto/bls"
	"github.com/lumenchain/beacon-node/crypto/merkle"
)

// ProcessOperations runs every operation list in body against st, in
// the block body's normative field order: proposer slashings, attester
// slashings, attestations, deposits, then voluntary exits.
func ProcessOperations(st *state.BeaconState, body *blockspb.BeaconBlockBody) error {
	cfg := configOf()
	if uint64(len(body.ProposerSlashings)) > cfg.MaxProposerSlashings {
		return errors.New("core/blocks: too many proposer slashings")
	}
	if uint64(len(body.AttesterSlashings)) > cfg.MaxAttesterSlashings {
		return errors.New("core/blocks: too many attester slashings")
	}
	if uint64(len(body.Attestations)) > cfg.MaxAttestations {
		return errors.New("core/blocks: too many attestations")
	}
	if uint64(len(body.Deposits)) > cfg.MaxDeposits {
		return errors.New("core/blocks: too many deposits")
	}
	if uint64(len(body.VoluntaryExits)) > cfg.MaxVoluntaryExits {
		return errors.New("core/blocks: too many voluntary exits")
	}

	for _, ps := range body.ProposerSlashings {
		if err := ProcessProposerSlashing(st, ps); err != nil {
			return err
		}
	}
	for _, as := range body.AttesterSlashings {
		if err := ProcessAttesterSlashing(st, as); err != nil {
			return err
		}
	}
	for _, att := range body.Attestations {
		if err := ProcessAttestation(st, att); err != nil {
			return err
		}
	}
	for _, dep := range body.Deposits {
		if err := ProcessDeposit(st, dep); err != nil {
			return err
		}
	}
	for _, exit := range body.VoluntaryExits {
		if err := ProcessVoluntaryExit(st, exit); err != nil {
			return err
		}
	}
	return nil
}

// ProcessProposerSlashing validates a proof that a proposer double-
// proposed at the same slot and, if valid, slashes them.
func ProcessProposerSlashing(st *state.BeaconState, slashing *blockspb.ProposerSlashing) error {
	h1, h2 := slashing.Header1, slashing.Header2
	if h1.Header.Slot != h2.Header.Slot {
		return errors.New("core/blocks: proposer slashing headers have different slots")
	}
	if *h1.Header == *h2.Header {
		return errors.New("core/blocks: proposer slashing headers are identical")
	}
	if int(slashing.ProposerIndex) >= len(st.Validators) {
		return errors.New("core/blocks: proposer slashing index out of range")
	}
	proposer := st.Validators[slashing.ProposerIndex]
	epoch := helpers.SlotToEpoch(h1.Header.Slot)
	if !proposer.IsSlashable(epoch) {
		return errors.New("core/blocks: proposer is not slashable")
	}

	if VerifySignatures {
		pub, err := bls.PublicKeyFromBytes(proposer.Pubkey[:])
		if err != nil {
			return err
		}
		for _, h := range []*blockspb.SignedBeaconBlockHeader{h1, h2} {
			domain := helpers.Domain(st.Fork, helpers.SlotToEpoch(h.Header.Slot), configOf().DomainBeaconProposer)
			root, err := signing.ComputeSigningRoot(h.Header, domain)
			if err != nil {
				return err
			}
			sig, err := bls.SignatureFromBytes(h.Signature[:])
			if err != nil {
				return err
			}
			if !sig.Verify(pub, root[:]) {
				return errors.New("core/blocks: invalid proposer slashing header signature")
			}
		}
	}

	return slashValidator(st, slashing.ProposerIndex)
}

// ProcessAttesterSlashing validates a proof that two attestations from
// an overlapping signer set are mutually slashable, then slashes every
// index both attestations share.
func ProcessAttesterSlashing(st *state.BeaconState, slashing *blockspb.AttesterSlashing) error {
	att1, att2 := slashing.Attestation1, slashing.Attestation2
	if !isSlashableAttestationData(att1.Data, att2.Data) {
		return errors.New("core/blocks: attestations are not slashable against each other")
	}
	if err := validateIndexedAttestation(st, att1); err != nil {
		return err
	}
	if err := validateIndexedAttestation(st, att2); err != nil {
		return err
	}

	slashableIndices := intersectSorted(att1.AttestingIndices, att2.AttestingIndices)
	if len(slashableIndices) == 0 {
		return errors.New("core/blocks: no overlapping attesting indices")
	}
	slashedAny := false
	epoch := helpers.CurrentEpoch(st)
	for _, idx := range slashableIndices {
		if st.Validators[idx].IsSlashable(epoch) {
			if err := slashValidator(st, idx); err != nil {
				return err
			}
			slashedAny = true
		}
	}
	if !slashedAny {
		return errors.New("core/blocks: no slashable validators among overlapping indices")
	}
	return nil
}

// isSlashableAttestationData reports whether a and b are a double vote
// (same target epoch, different data) or a surround vote (one's source/
// target interval strictly contains the other's).
func isSlashableAttestationData(a, b *blockspb.AttestationData) bool {
	doubleVote := a.Target.Epoch == b.Target.Epoch && !attestationDataEqual(a, b)
	surroundVote := a.Source.Epoch < b.Source.Epoch && b.Target.Epoch < a.Target.Epoch ||
		b.Source.Epoch < a.Source.Epoch && a.Target.Epoch < b.Target.Epoch
	return doubleVote || surroundVote
}

func attestationDataEqual(a, b *blockspb.AttestationData) bool {
	ra, err1 := a.HashTreeRoot()
	rb, err2 := b.HashTreeRoot()
	if err1 != nil || err2 != nil {
		return false
	}
	return ra == rb
}

func intersectSorted(a, b []primitives.ValidatorIndex) []primitives.ValidatorIndex {
	set := make(map[primitives.ValidatorIndex]bool, len(a))
	for _, idx := range a {
		set[idx] = true
	}
	var out []primitives.ValidatorIndex
	for _, idx := range b {
		if set[idx] {
			out = append(out, idx)
		}
	}
	return out
}

func validateIndexedAttestation(st *state.BeaconState, att *blockspb.IndexedAttestation) error {
	if len(att.AttestingIndices) == 0 {
		return errors.New("core/blocks: indexed attestation has no signers")
	}
	if uint64(len(att.AttestingIndices)) > configOf().MaxValidatorsPerCommittee {
		return errors.New("core/blocks: indexed attestation has too many signers")
	}
	for i := 1; i < len(att.AttestingIndices); i++ {
		if att.AttestingIndices[i] <= att.AttestingIndices[i-1] {
			return errors.New("core/blocks: indexed attestation indices are not strictly increasing")
		}
	}
	if !VerifySignatures {
		return nil
	}
	pubs := make([]*bls.PublicKey, len(att.AttestingIndices))
	for i, idx := range att.AttestingIndices {
		if int(idx) >= len(st.Validators) {
			return errors.New("core/blocks: indexed attestation index out of range")
		}
		pub, err := bls.PublicKeyFromBytes(st.Validators[idx].Pubkey[:])
		if err != nil {
			return err
		}
		pubs[i] = pub
	}
	domain := helpers.Domain(st.Fork, att.Data.Target.Epoch, configOf().DomainBeaconAttester)
	root, err := signing.ComputeSigningRoot(att.Data, domain)
	if err != nil {
		return err
	}
	sig, err := bls.SignatureFromBytes(att.Signature[:])
	if err != nil {
		return err
	}
	if !sig.FastAggregateVerify(pubs, root[:]) {
		return errors.New("core/blocks: invalid indexed attestation signature")
	}
	return nil
}

// ProcessAttestation validates an attestation against st and records it
// as a PendingAttestation for reward accounting at the next epoch
// boundary.
func ProcessAttestation(st *state.BeaconState, att *blockspb.Attestation) error {
	data := att.Data
	cfg := configOf()

	if data.Slot.SubSlot(0)+primitives.Slot(cfg.MinAttestationInclusionDelay) > st.Slot {
		return errors.New("core/blocks: attestation included before minimum inclusion delay")
	}
	if st.Slot > data.Slot+primitives.Slot(cfg.SlotsPerEpoch) {
		return errors.New("core/blocks: attestation too old")
	}

	currentEpoch := helpers.CurrentEpoch(st)
	previousEpoch := helpers.PreviousEpoch(st)
	switch data.Target.Epoch {
	case currentEpoch:
		if data.Source.Epoch != st.CurrentJustifiedCheckpoint.Epoch || data.Source.Root != st.CurrentJustifiedCheckpoint.Root {
			return errors.New("core/blocks: attestation source does not match current justified checkpoint")
		}
	case previousEpoch:
		if data.Source.Epoch != st.PreviousJustifiedCheckpoint.Epoch || data.Source.Root != st.PreviousJustifiedCheckpoint.Root {
			return errors.New("core/blocks: attestation source does not match previous justified checkpoint")
		}
	default:
		return errors.New("core/blocks: attestation target epoch is neither current nor previous")
	}

	committee, err := helpers.BeaconCommittee(st, data.Slot, data.Index)
	if err != nil {
		return err
	}
	if uint64(att.AggregationBits.Len()) != uint64(len(committee)) {
		return errors.New("core/blocks: attestation aggregation bits length does not match committee size")
	}

	indices, err := attestingIndices(committee, att.AggregationBits)
	if err != nil {
		return err
	}
	if VerifySignatures {
		indexed := &blockspb.IndexedAttestation{AttestingIndices: indices, Data: data, Signature: att.Signature}
		if err := validateIndexedAttestation(st, indexed); err != nil {
			return err
		}
	}

	proposerIdx, err := helpers.BeaconProposerIndex(st)
	if err != nil {
		return err
	}
	pending := &blockspb.PendingAttestation{
		AggregationBits: att.AggregationBits,
		Data:            data,
		InclusionDelay:  st.Slot - data.Slot,
		ProposerIndex:   proposerIdx,
	}
	if data.Target.Epoch == currentEpoch {
		st.AppendCurrentEpochAttestation(pending)
	} else {
		st.AppendPreviousEpochAttestation(pending)
	}
	return nil
}

func attestingIndices(committee []primitives.ValidatorIndex, bits interface{ BitAt(uint64) bool }) ([]primitives.ValidatorIndex, error) {
	var out []primitives.ValidatorIndex
	for i, idx := range committee {
		if bits.BitAt(uint64(i)) {
			out = append(out, idx)
		}
	}
	return out, nil
}

// ProcessDeposit verifies dep's Merkle proof against st.Eth1Data and
// either tops up an existing validator's balance or enrolls a new one.
func ProcessDeposit(st *state.BeaconState, dep *blockspb.Deposit) error {
	leaf, err := dep.Data.HashTreeRoot()
	if err != nil {
		return err
	}
	cfg := configOf()
	if !merkle.VerifyMerkleBranch(leaf, dep.Proof, cfg.DepositContractTreeDepth+1, st.Eth1DepositIndex, st.Eth1Data.DepositRoot) {
		return errors.New("core/blocks: invalid deposit merkle proof")
	}
	st.SetEth1DepositIndex(st.Eth1DepositIndex + 1)

	for i, v := range st.Validators {
		if v.Pubkey == dep.Data.Pubkey {
			st.IncreaseBalance(primitives.ValidatorIndex(i), primitives.Gwei(dep.Data.Amount))
			return nil
		}
	}

	if VerifySignatures {
		pub, err := bls.PublicKeyFromBytes(dep.Data.Pubkey[:])
		if err == nil {
			sig, sigErr := bls.SignatureFromBytes(dep.Data.Signature[:])
			if sigErr == nil {
				root, rootErr := depositMessageRoot(dep.Data)
				if rootErr == nil && !sig.Verify(pub, root[:]) {
					// An invalid deposit proof-of-possession does not
					// revert the transition; it only skips enrollment,
					// matching the protocol's "ignore, don't slash" rule
					// for unverifiable deposits.
					return nil
				}
			}
		}
	}

	validator := &state.Validator{
		Pubkey:                     dep.Data.Pubkey,
		WithdrawalCredentials:      dep.Data.WithdrawalCredentials,
		EffectiveBalance:           effectiveBalanceFor(dep.Data.Amount, cfg.MaxEffectiveBalance, cfg.EffectiveBalanceIncrement),
		ActivationEligibilityEpoch: state.FarFutureEpoch,
		ActivationEpoch:            state.FarFutureEpoch,
		ExitEpoch:                  state.FarFutureEpoch,
		WithdrawableEpoch:          state.FarFutureEpoch,
	}
	st.AppendValidator(validator, primitives.Gwei(dep.Data.Amount))
	return nil
}

func depositMessageRoot(data *blockspb.DepositData) ([32]byte, error) {
	unsigned := &blockspb.DepositData{
		Pubkey:                data.Pubkey,
		WithdrawalCredentials: data.WithdrawalCredentials,
		Amount:                data.Amount,
	}
	return unsigned.HashTreeRoot()
}

// effectiveBalanceFor rounds amount down to the nearest increment and
// caps it at MaxEffectiveBalance, the quantization new validators'
// starting effective balance follows.
func effectiveBalanceFor(amount, maxEffectiveBalance, increment uint64) primitives.Gwei {
	capped := amount
	if capped > maxEffectiveBalance {
		capped = maxEffectiveBalance
	}
	return primitives.Gwei(capped - capped%increment)
}

// ProcessVoluntaryExit validates a validator's signed exit request and
// marks their exit epoch.
func ProcessVoluntaryExit(st *state.BeaconState, signed *blockspb.SignedVoluntaryExit) error {
	exit := signed.Exit
	if int(exit.ValidatorIndex) >= len(st.Validators) {
		return errors.New("core/blocks: voluntary exit index out of range")
	}
	validator := st.Validators[exit.ValidatorIndex]
	currentEpoch := helpers.CurrentEpoch(st)
	cfg := configOf()

	if !validator.IsActive(currentEpoch) {
		return errors.New("core/blocks: validator is not active")
	}
	if validator.ExitEpoch != state.FarFutureEpoch {
		return errors.New("core/blocks: validator has already initiated exit")
	}
	if currentEpoch < exit.Epoch {
		return errors.New("core/blocks: voluntary exit epoch is in the future")
	}
	if currentEpoch < validator.ActivationEpoch+primitives.Epoch(cfg.PersistentCommitteePeriod) {
		return errors.New("core/blocks: validator has not served minimum active duration")
	}

	if VerifySignatures {
		domain := helpers.Domain(st.Fork, exit.Epoch, cfg.DomainVoluntaryExit)
		root, err := signing.ComputeSigningRoot(exit, domain)
		if err != nil {
			return err
		}
		pub, err := bls.PublicKeyFromBytes(validator.Pubkey[:])
		if err != nil {
			return err
		}
		sig, err := bls.SignatureFromBytes(signed.Signature[:])
		if err != nil {
			return err
		}
		if !sig.Verify(pub, root[:]) {
			return errors.New("core/blocks: invalid voluntary exit signature")
		}
	}

	return initiateValidatorExit(st, exit.ValidatorIndex)
}
