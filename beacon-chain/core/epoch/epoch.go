package epoch

import (
	"github.com/pkg/errors"

	"github.com/lumenchain/beacon-node/consensus-types/state"
)

// ProcessEpoch runs the full epoch sub-transition against st, which
// must already sit at the last slot of the epoch being closed out.
// Stage order matches spec.md section 4.4 step 6: justification and
// finalization first (it reads the about-to-be-rotated attestation
// lists), then crosslinks and rewards and penalties (both also read
// the current attestation lists), then registry updates and
// slashings, and finally the per-epoch housekeeping that rotates
// those same lists away.
func ProcessEpoch(st *state.BeaconState) error {
	if err := ProcessJustificationAndFinalization(st); err != nil {
		return errors.Wrap(err, "could not process justification")
	}
	if err := ProcessCrosslinks(st); err != nil {
		return errors.Wrap(err, "could not process crosslinks")
	}
	if err := ProcessRewardsAndPenalties(st); err != nil {
		return errors.Wrap(err, "could not process rewards and penalties")
	}
	if err := ProcessRegistryUpdates(st); err != nil {
		return errors.Wrap(err, "could not process registry updates")
	}
	if err := ProcessSlashings(st); err != nil {
		return errors.Wrap(err, "could not process slashings")
	}
	if err := ProcessFinalUpdates(st); err != nil {
		return errors.Wrap(err, "could not process final updates")
	}
	return nil
}
