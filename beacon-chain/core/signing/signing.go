// Package signing computes the signed message bytes for any SSZ
// hash-tree-rootable object: the object's root paired with its signing
// domain, itself hashed into the 32 bytes BLS actually signs.
package signing

import "github.com/lumenchain/beacon-node/crypto/hash"

// HashRoot is implemented by every SSZ container a signature is
// computed over (blocks, attestation data, voluntary exits, ...).
type HashRoot interface {
	HashTreeRoot() ([32]byte, error)
}

// ComputeSigningRoot combines obj's root with domain into the message
// BLS signs: sha256(object_root || domain), the domain-separation step
// that keeps a signature valid for only the fork and purpose it was
// produced for.
func ComputeSigningRoot(obj HashRoot, domain [8]byte) ([32]byte, error) {
	objRoot, err := obj.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	buf := make([]byte, 0, 64)
	buf = append(buf, objRoot[:]...)
	buf = append(buf, domain[:]...)
	buf = append(buf, make([]byte, 24)...)
	return hash.Hash(buf), nil
}
