package helpers

import (
	"github.com/pkg/errors"

	"github.com/lumenchain/beacon-node/config/params"
	"github.com/lumenchain/beacon-node/crypto/hash"
)

// ShuffledIndex applies the swap-or-not shuffle to return the index
// that listSize-entry list position `index` moves to under the given
// seed. ShuffleList below computes the whole permutation in one pass;
// this single-index form exists for callers (committee assignment
// lookups) that need just one position without materializing the full
// list.
func ShuffledIndex(index, listSize uint64, seed [32]byte) (uint64, error) {
	if index >= listSize {
		return 0, errors.New("helpers: index out of range for list size")
	}
	rounds := params.BeaconConfig().ShuffleRoundCount
	for round := uint64(0); round < rounds; round++ {
		index = shuffleRound(index, listSize, seed, round)
	}
	return index, nil
}

// UnshuffledIndex inverts ShuffledIndex, walking the swap-or-not rounds
// in reverse. Used to recover a committee member's original registry
// index from its shuffled position.
func UnshuffledIndex(index, listSize uint64, seed [32]byte) (uint64, error) {
	if index >= listSize {
		return 0, errors.New("helpers: index out of range for list size")
	}
	rounds := params.BeaconConfig().ShuffleRoundCount
	for round := rounds; round > 0; round-- {
		index = shuffleRound(index, listSize, seed, round-1)
	}
	return index, nil
}

func shuffleRound(index, listSize uint64, seed [32]byte, round uint64) uint64 {
	pivot := pivotForRound(seed, round, listSize)
	flip := (pivot + listSize - index) % listSize
	position := index
	if index < flip {
		position = flip
	}
	source := seedSource(seed, round, position/256)
	byteVal := source[(position%256)/8]
	bitVal := (byteVal >> (position % 8)) & 1
	if bitVal == 1 {
		return flip
	}
	return index
}

func pivotForRound(seed [32]byte, round, listSize uint64) uint64 {
	buf := make([]byte, 0, 33)
	buf = append(buf, seed[:]...)
	buf = append(buf, byte(round))
	digest := hash.Hash(buf)
	return bytesToUint64(digest[:8]) % listSize
}

func seedSource(seed [32]byte, round, positionChunk uint64) [32]byte {
	buf := make([]byte, 0, 33+4)
	buf = append(buf, seed[:]...)
	buf = append(buf, byte(round))
	buf = append(buf, uint32ToBytes(uint32(positionChunk))...)
	return hash.Hash(buf)
}

func bytesToUint64(b []byte) uint64 {
	var x uint64
	for i := 0; i < 8 && i < len(b); i++ {
		x |= uint64(b[i]) << (8 * i)
	}
	return x
}

func uint32ToBytes(x uint32) []byte {
	b := make([]byte, 4)
	for i := 0; i < 4; i++ {
		b[i] = byte(x >> (8 * i))
	}
	return b
}

// ShuffleList returns the permutation of indices [0, listSize) under
// seed, the form committee assignment consumes when it needs every
// position rather than one lookup at a time.
func ShuffleList(listSize uint64, seed [32]byte) ([]uint64, error) {
	out := make([]uint64, listSize)
	for i := uint64(0); i < listSize; i++ {
		shuffled, err := ShuffledIndex(i, listSize, seed)
		if err != nil {
			return nil, err
		}
		out[i] = shuffled
	}
	return out, nil
}
