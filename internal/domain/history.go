package domain

import "time"

// Role identifies who authored a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HistoryEntry is a persisted chat message.
type HistoryEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// HasUserEntry reports whether any entry was authored by the visitor.
func HasUserEntry(entries []HistoryEntry) bool {
	for _, e := range entries {
		if e.Role == RoleUser {
			return true
		}
	}
	return false
}
