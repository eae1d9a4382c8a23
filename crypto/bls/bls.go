// Package bls wraps BLS12-381 signing and verification behind a narrow
// interface, backed by github.com/supranational/blst (the teacher's
// production signature library). Verification is constant-time with
// respect to the signature bytes at this API boundary: every Verify*
// call here goes straight into blst's native verify, never branching on
// signature content before calling it.
package bls

import (
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
)

const dstMinPk = "BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_"

// PubkeyLength is the compressed encoding length of a G1 public key.
const PubkeyLength = 48

// SecretKey is a BLS12-381 private scalar.
type SecretKey struct {
	k *blst.SecretKey
}

// PublicKey is a compressed BLS12-381 public key on the G1 curve.
type PublicKey struct {
	p *blst.P1Affine
}

// Signature is a compressed BLS12-381 signature on the G2 curve.
type Signature struct {
	s *blst.P2Affine
}

// SecretKeyFromBytes parses a 32-byte big-endian scalar into a SecretKey.
func SecretKeyFromBytes(b []byte) (*SecretKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("bls: secret key must be 32 bytes, got %d", len(b))
	}
	k := new(blst.SecretKey).Deserialize(b)
	if k == nil {
		return nil, fmt.Errorf("bls: invalid secret key bytes")
	}
	return &SecretKey{k: k}, nil
}

// PublicKey derives the public key corresponding to s.
func (s *SecretKey) PublicKey() *PublicKey {
	p := new(blst.P1Affine).From(s.k)
	return &PublicKey{p: p}
}

// Sign produces a signature over message under domain-separation tag
// dst, using the standard min-pubkey-size ciphersuite.
func (s *SecretKey) Sign(message []byte) *Signature {
	sig := new(blst.P2Affine).Sign(s.k, message, []byte(dstMinPk))
	return &Signature{s: sig}
}

// PublicKeyFromBytes parses a 48-byte compressed G1 point.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	if len(b) != PubkeyLength {
		return nil, fmt.Errorf("bls: public key must be %d bytes, got %d", PubkeyLength, len(b))
	}
	p := new(blst.P1Affine).Uncompress(b)
	if p == nil || !p.KeyValidate() {
		return nil, fmt.Errorf("bls: invalid public key bytes")
	}
	return &PublicKey{p: p}, nil
}

// Marshal returns the 48-byte compressed encoding of the public key.
func (p *PublicKey) Marshal() []byte {
	return p.p.Compress()
}

// SignatureFromBytes parses a 96-byte compressed G2 point.
func SignatureFromBytes(b []byte) (*Signature, error) {
	if len(b) != 96 {
		return nil, fmt.Errorf("bls: signature must be 96 bytes, got %d", len(b))
	}
	s := new(blst.P2Affine).Uncompress(b)
	if s == nil {
		return nil, fmt.Errorf("bls: invalid signature bytes")
	}
	return &Signature{s: s}, nil
}

// Marshal returns the 96-byte compressed encoding of the signature.
func (s *Signature) Marshal() []byte {
	return s.s.Compress()
}

// Verify checks a single (pubkey, message, signature) triple.
func (s *Signature) Verify(pub *PublicKey, message []byte) bool {
	return s.s.Verify(true, pub.p, true, message, []byte(dstMinPk))
}

// AggregateVerify checks an aggregate signature against one distinct
// message per pubkey, in matching order.
func (s *Signature) AggregateVerify(pubs []*PublicKey, messages [][]byte) bool {
	if len(pubs) != len(messages) || len(pubs) == 0 {
		return false
	}
	rawPubs := make([]*blst.P1Affine, len(pubs))
	for i, p := range pubs {
		rawPubs[i] = p.p
	}
	return s.s.AggregateVerify(true, rawPubs, true, messages, []byte(dstMinPk))
}

// FastAggregateVerify checks an aggregate signature where every signer
// signed the same message, as committee attestations do.
func (s *Signature) FastAggregateVerify(pubs []*PublicKey, message []byte) bool {
	if len(pubs) == 0 {
		return false
	}
	rawPubs := make([]*blst.P1Affine, len(pubs))
	for i, p := range pubs {
		rawPubs[i] = p.p
	}
	return s.s.FastAggregateVerify(true, rawPubs, message, []byte(dstMinPk))
}

// AggregateSignatures combines multiple signatures into one.
func AggregateSignatures(sigs []*Signature) (*Signature, error) {
	if len(sigs) == 0 {
		return nil, fmt.Errorf("bls: cannot aggregate zero signatures")
	}
	raw := make([]*blst.P2Affine, len(sigs))
	for i, s := range sigs {
		raw[i] = s.s
	}
	agg := new(blst.P2Aggregate)
	if !agg.Aggregate(raw, true) {
		return nil, fmt.Errorf("bls: signature aggregation failed")
	}
	return &Signature{s: agg.ToAffine()}, nil
}

// AggregatePublicKeys combines multiple public keys into one, used to
// verify a committee's joint signature over a single message.
func AggregatePublicKeys(pubs []*PublicKey) (*PublicKey, error) {
	if len(pubs) == 0 {
		return nil, fmt.Errorf("bls: cannot aggregate zero public keys")
	}
	raw := make([]*blst.P1Affine, len(pubs))
	for i, p := range pubs {
		raw[i] = p.p
	}
	agg := new(blst.P1Aggregate)
	if !agg.Aggregate(raw, true) {
		return nil, fmt.Errorf("bls: public key aggregation failed")
	}
	return &PublicKey{p: agg.ToAffine()}, nil
}
