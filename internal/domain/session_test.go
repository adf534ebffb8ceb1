package domain

import (
	"testing"
	"time"
)

func TestSessionFresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"just created", 0, true},
		{"23h59m", 23*time.Hour + 59*time.Minute, true},
		{"exactly 24h", 24 * time.Hour, false},
		{"25h", 25 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{SessionID: "s-1", Language: Catalan, CreatedAt: now.Add(-tt.age)}
			if got := s.Fresh(now, DefaultSessionMaxAge); got != tt.want {
				t.Errorf("Fresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionFreshRequiresID(t *testing.T) {
	var nilSession *Session
	if nilSession.Fresh(time.Now(), DefaultSessionMaxAge) {
		t.Error("nil session must not be fresh")
	}
	s := &Session{Language: Spanish, CreatedAt: time.Now()}
	if s.Fresh(time.Now(), DefaultSessionMaxAge) {
		t.Error("session without id must not be fresh")
	}
}

func TestLanguageTag(t *testing.T) {
	if got := Catalan.Tag(); got != "català" {
		t.Errorf("Catalan.Tag() = %q", got)
	}
	if got := Aranese.Tag(); got != "aranès" {
		t.Errorf("Aranese.Tag() = %q", got)
	}
	if got := Language("fr").Tag(); got != "fr" {
		t.Errorf("unknown tag should fall back to code, got %q", got)
	}
}

func TestParseLanguage(t *testing.T) {
	l, err := ParseLanguage(" ES ")
	if err != nil || l != Spanish {
		t.Fatalf("ParseLanguage(ES) = %q, %v", l, err)
	}
	if _, err := ParseLanguage("fr"); err == nil {
		t.Fatal("expected error for unsupported language")
	}
}

func TestHasUserEntry(t *testing.T) {
	if HasUserEntry(nil) {
		t.Error("empty history has no user entries")
	}
	entries := []HistoryEntry{{Role: RoleAssistant, Content: "hola"}}
	if HasUserEntry(entries) {
		t.Error("assistant-only history has no user entries")
	}
	entries = append(entries, HistoryEntry{Role: RoleUser, Content: "bon dia"})
	if !HasUserEntry(entries) {
		t.Error("expected user entry")
	}
}
