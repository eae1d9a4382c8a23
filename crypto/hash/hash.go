// Package hash wraps the single hash function the protocol uses,
// mirroring the teacher's shared/hashutil package: every call site in
// SSZ and the chain-spec helpers goes through here rather than calling
// crypto/sha256 directly, so the implementation (minio's assembly-
// optimized sha256-simd) is swapped in one place.
package hash

import (
	"github.com/minio/sha256-simd"
)

// Hash returns the SHA-256 digest of data.
func Hash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// HashPair returns SHA-256(a || b), the binary Merkle tree's internal
// node hash.
func HashPair(a, b [32]byte) [32]byte {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return sha256.Sum256(buf[:])
}

// New returns a fresh streaming SHA-256 hasher, for callers that need
// to feed data incrementally (e.g. the RANDAO repeat-hash helper).
func New() *hasher {
	return &hasher{h: sha256.New()}
}

type hasher struct {
	h interface {
		Write(p []byte) (int, error)
		Sum(b []byte) []byte
		Reset()
	}
}

// Write feeds more data into the running hash.
func (h *hasher) Write(p []byte) {
	_, _ = h.h.Write(p)
}

// Sum32 finalizes and returns the 32-byte digest.
func (h *hasher) Sum32() [32]byte {
	var out [32]byte
	copy(out[:], h.h.Sum(nil))
	return out
}

// RepeatHash applies Hash to x n times in sequence, the primitive the
// RANDAO reveal-chain verification is built from.
func RepeatHash(x [32]byte, n uint64) [32]byte {
	for i := uint64(0); i < n; i++ {
		x = Hash(x[:])
	}
	return x
}
