package chain

import (
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy for ledger calls.
type ErrorCategory string

const (
	// ErrorTimeout means the node did not answer within the call timeout.
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorProviderOutage covers transport failures, 5xx answers and an open breaker.
	ErrorProviderOutage ErrorCategory = "provider_outage"

	// ErrorRateLimited means the node answered 429.
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorBadData means the answer could not be decoded into the expected shape.
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorNotFound means the node reported the transaction as unknown.
	ErrorNotFound ErrorCategory = "not_found"
)

// VerificationError is returned for every failed lookup. Nothing is written
// by callers when they receive one.
type VerificationError struct {
	Category    ErrorCategory
	TxReference string
	Message     string
	Underlying  error
	Retryable   bool
}

func (e *VerificationError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("verify %s [%s]: %s: %v", e.TxReference, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("verify %s [%s]: %s", e.TxReference, e.Category, e.Message)
}

func (e *VerificationError) Unwrap() error {
	return e.Underlying
}

// NewVerificationError derives Retryable from the category.
func NewVerificationError(category ErrorCategory, txReference, message string, underlying error) *VerificationError {
	retryable := category == ErrorTimeout ||
		category == ErrorProviderOutage ||
		category == ErrorRateLimited

	return &VerificationError{
		Category:    category,
		TxReference: txReference,
		Message:     message,
		Underlying:  underlying,
		Retryable:   retryable,
	}
}

// IsRetryable reports whether err is a VerificationError worth retrying.
func IsRetryable(err error) bool {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return ve.Retryable
	}
	return false
}

// AsVerificationError extracts a VerificationError from err's chain.
func AsVerificationError(err error) (*VerificationError, bool) {
	var ve *VerificationError
	ok := errors.As(err, &ve)
	return ve, ok
}
