// Package errors provides structured error types for the modmail bridge.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected domain outcomes. These are surfaced to the
// invoking actor as a reply and never abort the event loop.
var (
	ErrBlocked         = errors.New("user is blacklisted")
	ErrQuotaExceeded   = errors.New("open ticket quota exceeded")
	ErrSessionNotFound = errors.New("no session for channel")
	ErrAlreadyClaimed  = errors.New("ticket already claimed")
	ErrNotClaimed      = errors.New("ticket not claimed")
	ErrInvalidPriority = errors.New("invalid priority level")
	ErrForbidden       = errors.New("admin privileges required")
	ErrNoChange        = errors.New("no change")
)

// ExternalCallError wraps a failed collaborator capability call
// (channel creation, message delivery, user lookup, ...).
type ExternalCallError struct {
	Capability string
	Err        error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Capability, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

// External wraps err as an ExternalCallError for the named capability.
func External(capability string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalCallError{Capability: capability, Err: err}
}

// IsDomain reports whether err is one of the expected domain outcomes,
// as opposed to an external-call or programming failure.
func IsDomain(err error) bool {
	for _, sentinel := range []error{
		ErrBlocked, ErrQuotaExceeded, ErrSessionNotFound,
		ErrAlreadyClaimed, ErrNotClaimed, ErrInvalidPriority,
		ErrForbidden, ErrNoChange,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
