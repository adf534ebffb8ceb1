// Package session persists the active conversation and its message history.
//
// Records are JSON blobs kept in a store.Store under a fixed namespace, one
// scope per visitor. Persistence is best effort: failures are logged and
// swallowed, corrupt or missing records read as empty.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ashureev/aran-respon/internal/domain"
	"github.com/ashureev/aran-respon/internal/store"
)

// Record keys inside a visitor scope.
const (
	Namespace  = "aran-chat-widget"
	SessionKey = Namespace + "-session"
	HistoryKey = Namespace + "-history"
)

// DefaultMaxHistory is the history cap used when none is configured.
const DefaultMaxHistory = 50

// Options configures a Store.
type Options struct {
	Enabled    bool
	MaxHistory int
	Logger     *slog.Logger
	Now        func() time.Time
}

// Store reads and writes one visitor's session and history records.
type Store struct {
	backend    store.Store
	scope      string
	enabled    bool
	maxHistory int
	logger     *slog.Logger
	now        func() time.Time
}

// New binds a Store to a visitor scope.
func New(backend store.Store, scope string, opts Options) *Store {
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		backend:    backend,
		scope:      scope,
		enabled:    opts.Enabled && backend != nil,
		maxHistory: opts.MaxHistory,
		logger:     opts.Logger.With("scope", scope),
		now:        opts.Now,
	}
}

// Enabled reports whether persistence is active.
func (s *Store) Enabled() bool { return s.enabled }

// SaveSession overwrites the session record, stamped with the current time.
func (s *Store) SaveSession(ctx context.Context, id string, lang domain.Language) {
	if !s.enabled {
		return
	}
	s.write(ctx, SessionKey, domain.Session{SessionID: id, Language: lang, CreatedAt: s.now()})
}

// Session returns the persisted session, or nil when missing or unreadable.
// Staleness is left to the caller.
func (s *Store) Session(ctx context.Context) *domain.Session {
	if !s.enabled {
		return nil
	}
	var sess domain.Session
	if !s.read(ctx, SessionKey, &sess) || sess.SessionID == "" {
		return nil
	}
	return &sess
}

// SaveMessage stamps and appends an entry, dropping the oldest entries beyond the cap.
func (s *Store) SaveMessage(ctx context.Context, role domain.Role, content string) {
	if !s.enabled {
		return
	}
	history := s.History(ctx)
	history = append(history, domain.HistoryEntry{Role: role, Content: content, Timestamp: s.now()})
	if over := len(history) - s.maxHistory; over > 0 {
		history = history[over:]
	}
	s.write(ctx, HistoryKey, history)
}

// History returns the persisted entries oldest first.
func (s *Store) History(ctx context.Context) []domain.HistoryEntry {
	if !s.enabled {
		return []domain.HistoryEntry{}
	}
	var history []domain.HistoryEntry
	if !s.read(ctx, HistoryKey, &history) || history == nil {
		return []domain.HistoryEntry{}
	}
	return history
}

// ClearHistory removes both the session and the history records.
func (s *Store) ClearHistory(ctx context.Context) {
	if !s.enabled {
		return
	}
	if err := s.backend.Delete(ctx, s.scope, SessionKey, HistoryKey); err != nil {
		s.logger.Warn("Failed to clear chat history", "error", err)
	}
}

func (s *Store) write(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("Failed to encode record", "key", key, "error", err)
		return
	}
	if err := s.backend.Set(ctx, s.scope, key, string(data)); err != nil {
		s.logger.Warn("Failed to save record", "key", key, "error", err)
	}
}

func (s *Store) read(ctx context.Context, key string, v any) bool {
	raw, ok, err := s.backend.Get(ctx, s.scope, key)
	if err != nil {
		s.logger.Warn("Failed to load record", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.logger.Warn("Discarding unreadable record", "key", key, "error", err)
		return false
	}
	return true
}
