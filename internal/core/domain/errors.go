package domain

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfigInvalid indicates a source or pipeline cannot run with its configuration.
	// This is the only class of error allowed to abort the process.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrUnsupportedStrategy indicates an unknown collection strategy.
	ErrUnsupportedStrategy = errors.New("unsupported collection strategy")

	// ErrIngestInProgress indicates a source is already being collected.
	ErrIngestInProgress = errors.New("ingestion in progress")

	// ErrCollectorClosed indicates the collector has been closed.
	ErrCollectorClosed = errors.New("collector closed")

	// Collection Errors.

	// ErrTransientNetwork indicates a timeout, connection failure or 5xx response.
	ErrTransientNetwork = errors.New("transient network error")

	// ErrRateLimited indicates the origin answered 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrAuthentication indicates the origin rejected the credentials (401/403).
	ErrAuthentication = errors.New("authentication error")

	// ErrBadRequest indicates any other 4xx response.
	ErrBadRequest = errors.New("bad request")

	// ErrProtocolState indicates the stateful session is corrupt or out of order.
	ErrProtocolState = errors.New("protocol state error")

	// ErrActionNotFound indicates a UI action could not be located in the markup.
	ErrActionNotFound = fmt.Errorf("%w: action not found", ErrProtocolState)

	// ErrExportFailed indicates the server re-rendered the page instead of streaming a file.
	ErrExportFailed = errors.New("export not delivered")

	// ErrMalformedPayload indicates a corrupt archive or an unparseable row.
	ErrMalformedPayload = errors.New("malformed payload")

	// Normalisation Errors.

	// ErrValidation indicates a field failed normalisation. The record is kept.
	ErrValidation = errors.New("validation error")

	// ErrInvalidIdentifier indicates a national or organisation id failed validation.
	ErrInvalidIdentifier = fmt.Errorf("%w: invalid identifier", ErrValidation)

	// Workflow Errors.

	// ErrInvalidTransition indicates a forbidden insight status change.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// RowError reports a single row, or a whole archive member, that was
// skipped. Collection continues.
type RowError struct {
	Row int
	// Member names the archive file the row came from, if any. A RowError
	// with a Member and no Row skips the whole member.
	Member string
	Err    error
}

func (e *RowError) Error() string {
	switch {
	case e.Member != "" && e.Row > 0:
		return fmt.Sprintf("member %s row %d: %v", e.Member, e.Row, e.Err)
	case e.Member != "":
		return fmt.Sprintf("member %s: %v", e.Member, e.Err)
	default:
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// IsRowError reports whether err is a skip-and-continue row failure.
func IsRowError(err error) (*RowError, bool) {
	var rowErr *RowError
	if errors.As(err, &rowErr) {
		return rowErr, true
	}
	return nil, false
}

// FailureClass tells callers what to do with an error.
type FailureClass int

const (
	// FailureUnknown is an unclassified error. Treated as fatal for the unit.
	FailureUnknown FailureClass = iota
	// FailureRetryable is retried with exponential backoff.
	FailureRetryable
	// FailureCooldown is retried after a fixed cooldown, outside the backoff budget.
	FailureCooldown
	// FailureFatal stops the current source run without retry.
	FailureFatal
	// FailureSkip drops the offending row or file and continues.
	FailureSkip
)

// String returns the class name used in reports.
func (c FailureClass) String() string {
	switch c {
	case FailureRetryable:
		return "retryable"
	case FailureCooldown:
		return "cooldown"
	case FailureFatal:
		return "fatal"
	case FailureSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Classify maps an error onto the failure policy.
func Classify(err error) FailureClass {
	switch {
	case err == nil:
		return FailureUnknown
	case errors.Is(err, ErrRateLimited):
		return FailureCooldown
	case errors.Is(err, ErrTransientNetwork):
		return FailureRetryable
	case errors.Is(err, ErrMalformedPayload), errors.Is(err, ErrValidation):
		return FailureSkip
	case errors.Is(err, ErrAuthentication),
		errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrProtocolState),
		errors.Is(err, ErrExportFailed),
		errors.Is(err, ErrConfigInvalid),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return FailureFatal
	default:
		return FailureUnknown
	}
}
