//go:build !skip_bls_verify

package bls

// VerificationEnabled reports whether signature checks are active. This
// is the default build: every block and attestation signature is
// verified.
const VerificationEnabled = true
