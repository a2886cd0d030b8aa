// Package jsf drives server-rendered JavaServer Faces pages that expose no
// data API. A Session walks the page the way a browser would: load the page
// and its view state, apply filter components over partial ajax requests,
// then trigger the export control or page through the server datatable.
//
// Every request must echo the view state produced by the previous response,
// so a session is strictly sequential.
package jsf

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// State is a session's position in the protocol.
type State int

const (
	StateInit State = iota
	StatePageLoaded
	StateFilterApplied
	StateExportTriggered
	StateDownloaded
	StateFailed
)

// String returns the state name used in errors and logs.
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StatePageLoaded:
		return "PAGE_LOADED"
	case StateFilterApplied:
		return "FILTER_APPLIED"
	case StateExportTriggered:
		return "EXPORT_TRIGGERED"
	case StateDownloaded:
		return "DOWNLOADED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ready reports whether the session holds a usable view state.
func (s State) ready() bool {
	return s == StatePageLoaded || s == StateFilterApplied
}

// StateError is a failed protocol step. Every step before the download
// unwraps to domain.ErrProtocolState; a download the server refused to stream
// unwraps to domain.ErrExportFailed. Cause is kept for the message only, so
// a stale session is never classified as retryable.
type StateError struct {
	State State
	Step  string
	Cause error
}

func (e *StateError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("jsf %s in state %s", e.Step, e.State)
	}
	return fmt.Sprintf("jsf %s in state %s: %v", e.Step, e.State, e.Cause)
}

// Unwrap returns the protocol sentinel.
func (e *StateError) Unwrap() error {
	switch {
	case errors.Is(e.Cause, context.Canceled):
		return context.Canceled
	case errors.Is(e.Cause, context.DeadlineExceeded):
		return context.DeadlineExceeded
	}
	if errors.Is(e.Cause, domain.ErrExportFailed) {
		return domain.ErrExportFailed
	}
	if errors.Is(e.Cause, domain.ErrActionNotFound) {
		return domain.ErrActionNotFound
	}
	return domain.ErrProtocolState
}
