package dispatch

import (
	"fmt"
	"time"
)

// TransportError reports that the endpoint could not be reached or kept
// answering with a non-2xx status.
type TransportError struct {
	Attempts int
	Status   int // last HTTP status, 0 when no response was received
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("dispatch failed after %d attempt(s): status %d", e.Attempts, e.Status)
	}
	return fmt.Sprintf("dispatch failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports that the last attempt exceeded its deadline.
// It unwraps to the underlying TransportError.
type TimeoutError struct {
	Timeout   time.Duration
	Transport *TransportError
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("dispatch timed out after %s: %v", e.Timeout, e.Transport)
}

func (e *TimeoutError) Unwrap() error { return e.Transport }

// MalformedResponseError reports a 2xx reply without a usable output.
type MalformedResponseError struct {
	Body string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed reply: %v", e.Err)
	}
	return "malformed reply: missing output"
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
