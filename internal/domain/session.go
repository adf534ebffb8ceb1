// Package domain contains core domain types for the Aran Respon widget.
package domain

import (
	"time"
)

// DefaultSessionMaxAge is how long a persisted session stays eligible for restoration.
const DefaultSessionMaxAge = 24 * time.Hour

// Session binds a sequence of messages to one visitor's active conversation.
type Session struct {
	SessionID string    `json:"sessionId"`
	Language  Language  `json:"language"`
	CreatedAt time.Time `json:"timestamp"`
}

// Fresh reports whether the session is younger than maxAge at now.
// A session exactly maxAge old is already stale.
func (s *Session) Fresh(now time.Time, maxAge time.Duration) bool {
	if s == nil || s.SessionID == "" {
		return false
	}
	return now.Sub(s.CreatedAt) < maxAge
}
