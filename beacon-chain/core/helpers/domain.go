package helpers

import (
	"github.com/lumenchain/beacon-node/consensus-types/blocks"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
)

// Domain returns the 8-byte signing domain for domainType at epoch,
// selecting fork.PreviousVersion or fork.CurrentVersion depending on
// which side of the fork epoch falls.
func Domain(fork *blocks.Fork, epoch primitives.Epoch, domainType [4]byte) [8]byte {
	version := fork.CurrentVersion
	if epoch < fork.Epoch {
		version = fork.PreviousVersion
	}
	var domain [8]byte
	copy(domain[0:4], domainType[:])
	copy(domain[4:8], version[:])
	return domain
}
