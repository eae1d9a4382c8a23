package helpers

import (
	"github.com/lumenchain/beacon-node/config/params"
	"github.com/lumenchain/beacon-node/consensus-types/primitives"
	"github.com/lumenchain/beacon-node/consensus-types/state"
	"github.com/lumenchain/beacon-node/crypto/hash"
)

// RandaoMix returns the randao mix recorded for epoch, read from the
// ring buffer at epoch % EpochsPerHistoricalVector.
func RandaoMix(st *state.BeaconState, epoch primitives.Epoch) [32]byte {
	n := uint64(len(st.RandaoMixes))
	return st.RandaoMixes[uint64(epoch)%n]
}

// Seed derives the committee-shuffling seed for epoch under the given
// domain type: the randao mix from MinSeedLookahead+1 epochs back,
// domain type, and epoch, all hashed together.
func Seed(st *state.BeaconState, epoch primitives.Epoch, domainType [4]byte) [32]byte {
	cfg := params.BeaconConfig()
	lookback := epoch + primitives.Epoch(cfg.EpochsPerHistoricalVector) - primitives.Epoch(cfg.MinSeedLookahead) - 1
	mix := RandaoMix(st, lookback%primitives.Epoch(cfg.EpochsPerHistoricalVector))

	buf := make([]byte, 0, 4+8+32)
	buf = append(buf, domainType[:]...)
	buf = append(buf, uint64ToBytes8(uint64(epoch))...)
	buf = append(buf, mix[:]...)
	return hash.Hash(buf)
}

func uint64ToBytes8(x uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(x >> (8 * i))
	}
	return b
}
