// Package blockchain owns the observable state processor spec.md
// section 4.7 describes: the service that sits between block/attestation
// ingress and fork-choice, derives the (head block, latest slot state,
// pending operation pool) tuple on every accepted block or slot tick, and
// publishes it to subscribers. Grounded on the teacher's
// beacon-chain/blockchain package (Service.Start's run loop and the
// HeadFetcher/FinalizationFetcher/GenesisFetcher interface split visible
// in other_examples/...chain_info.go.go).
package blockchain

import "fmt"

// TransitionErrorKind classifies why the state-transition function
// rejected a block, matching spec.md section 7's TransitionError taxonomy.
type TransitionErrorKind int

const (
	InvalidHeader TransitionErrorKind = iota
	BadRandao
	BadOperation
	StateRootMismatch
)

func (k TransitionErrorKind) String() string {
	switch k {
	case InvalidHeader:
		return "InvalidHeader"
	case BadRandao:
		return "BadRandao"
	case BadOperation:
		return "BadOperation"
	case StateRootMismatch:
		return "StateRootMismatch"
	default:
		return "Unknown"
	}
}

// TransitionError reports a block the state-transition function
// rejected; the pre-state the caller held is guaranteed unmodified.
type TransitionError struct {
	Kind   TransitionErrorKind
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("blockchain: transition rejected (%s): %s", e.Kind, e.Reason)
}

// Temporary reports false: a transition rejection is never retryable
// against the same block without a different parent state.
func (e *TransitionError) Temporary() bool { return false }

// ForkChoiceErrorKind classifies why fork-choice could not place a
// block, matching spec.md section 7.
type ForkChoiceErrorKind int

const (
	UnknownParent ForkChoiceErrorKind = iota
	BelowFinalized
)

func (k ForkChoiceErrorKind) String() string {
	switch k {
	case UnknownParent:
		return "UnknownParent"
	case BelowFinalized:
		return "BelowFinalized"
	default:
		return "Unknown"
	}
}

// ForkChoiceError reports that a block could not be placed in the
// fork-choice tree. UnknownParent is temporary (the sync layer should
// buffer and retry once the parent arrives); BelowFinalized is not.
type ForkChoiceError struct {
	Kind ForkChoiceErrorKind
	Root [32]byte
}

func (e *ForkChoiceError) Error() string {
	return fmt.Sprintf("blockchain: fork choice %s for root %#x", e.Kind, e.Root)
}

// Temporary reports whether the caller should retry once more blocks
// have arrived, rather than discarding the block outright.
func (e *ForkChoiceError) Temporary() bool {
	return e.Kind == UnknownParent
}

// StoreError wraps a failure in the block/state store. Per spec.md
// section 7 this is the one fatal class below assertion panics: the
// writer goroutine treats it as cause for orderly shutdown rather than
// a per-block rejection.
type StoreError struct {
	Reason string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("blockchain: store error: %s", e.Reason)
}

// Temporary always reports false: a store error triggers shutdown, not
// a retry of the same operation.
func (e *StoreError) Temporary() bool { return false }
