package cryptopals

import (
	"errors"
	"fmt"
)

// ErrModelViolation matches every error reporting that an oracle behaves in
// a way the attack cannot account for. Retrying against the same oracle
// gives the same answer.
var ErrModelViolation = errors.New("oracle does not match expected model")

var (
	// ErrNotECB is returned when the oracle output shows no ECB determinism.
	ErrNotECB = &ModelViolation{Invariant: InvariantECBDeterminism, Detail: "ECB mode not detected"}

	// ErrInvalidCiphertext is returned when a padding oracle hands out an IV
	// or ciphertext that cannot be split into blocks.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrInvalidProbe is returned when a ProbeResult cannot drive a recovery.
	ErrInvalidProbe = errors.New("invalid probe result")
)

// Invariants reported by ModelViolation.
const (
	InvariantUniformBlockSize   = "uniform block size"
	InvariantECBDeterminism     = "ECB determinism"
	InvariantPrefixAgreement    = "prefix length agreement"
	InvariantCandidateMatch     = "candidate match"
	InvariantCandidateCollision = "candidate uniqueness"
	InvariantPaddingBoundary    = "padding boundary"
	InvariantPaddingCandidate   = "padding candidate"
)

// ModelViolation names the invariant an oracle broke.
type ModelViolation struct {
	Invariant string
	Detail    string
}

func (e *ModelViolation) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrModelViolation, e.Invariant, e.Detail)
}

func (e *ModelViolation) Is(target error) bool {
	if target == ErrModelViolation {
		return true
	}
	t, ok := target.(*ModelViolation)
	return ok && t.Invariant == e.Invariant
}

func violation(invariant, format string, args ...any) error {
	return &ModelViolation{Invariant: invariant, Detail: fmt.Sprintf(format, args...)}
}
