package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned while another dispatch of the same controller is in flight.
	ErrBusy = errors.New("a message is already being sent")
	// ErrNoLanguage is returned when sending before a language was chosen.
	ErrNoLanguage = errors.New("no language selected")
	// ErrQueueEmpty is returned by Resend when nothing was queued offline.
	ErrQueueEmpty = errors.New("no queued messages")
)

// Validation failure reasons.
const (
	ReasonEmpty               = "empty"
	ReasonTooLong             = "too_long"
	ReasonUnsupportedLanguage = "unsupported_language"
)

// ValidationError reports input rejected before any dispatch.
type ValidationError struct {
	Reason string
	Limit  int
}

func (e *ValidationError) Error() string {
	if e.Reason == ReasonTooLong {
		return fmt.Sprintf("invalid message: longer than %d characters", e.Limit)
	}
	return "invalid message: " + e.Reason
}

// OfflineError reports a send refused because the client is known to be offline.
// The text was queued for Resend.
type OfflineError struct {
	Queued int
}

func (e *OfflineError) Error() string {
	return fmt.Sprintf("offline: %d message(s) queued", e.Queued)
}
