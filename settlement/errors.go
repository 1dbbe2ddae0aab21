package settlement

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBatch is returned when a settlement call carries no claims.
	ErrEmptyBatch = errors.New("settle: no claims supplied")
	// ErrInvalidAmount is returned when a transaction group sums to zero; a
	// group must represent strictly positive minting.
	ErrInvalidAmount = errors.New("settle: group amount must be positive")
)

// BatchTooLargeError rejects claim lists above the absolute ceiling before
// any grouping is attempted.
type BatchTooLargeError struct {
	Size int
	Max  int
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("settle: batch of %d claims exceeds ceiling %d", e.Size, e.Max)
}

// FailureKind classifies per-claim failure outcomes.
type FailureKind string

const (
	FailInvalidClaim      FailureKind = "invalid_claim"
	FailInvalidAmount     FailureKind = "invalid_amount"
	FailAccountResolution FailureKind = "account_resolution"
	FailSubmission        FailureKind = "submission"
	FailCanceled          FailureKind = "canceled"
)
