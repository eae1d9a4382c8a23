//go:build skip_bls_verify

// This file is only compiled into binaries built with
// `-tags skip_bls_verify`, used by local spec-test harnesses that feed
// fixtures without real signatures. It must never be linked into a
// release build and has no effect on hash_tree_root: callers still
// compute and check state_root normally, only the signature check
// itself is bypassed.
package bls

// VerificationEnabled reports whether signature checks are active. Call
// sites in core/blocks gate bls_verify calls on this so the bypass is a
// single compile-time switch rather than a runtime config flag.
const VerificationEnabled = false
