package conversation

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ashureev/aran-respon/internal/domain"
	"github.com/ashureev/aran-respon/internal/navigation"
	"github.com/ashureev/aran-respon/internal/topics"
)

// EventKind names a render event.
type EventKind string

const (
	EventLanguage   EventKind = "language"
	EventMessage    EventKind = "message"
	EventNavigation EventKind = "navigation"
	EventNotice     EventKind = "notice"
	EventTyping     EventKind = "typing"
	EventInput      EventKind = "input"
	EventNetwork    EventKind = "network"
)

// Event is one pure-data instruction for the presentation adapter.
// Exactly one payload field is set, matching Kind.
type Event struct {
	Kind     EventKind          `json:"type"`
	Language *LanguageInfo      `json:"language,omitempty"`
	Message  *Message           `json:"message,omitempty"`
	Screen   *navigation.Screen `json:"screen,omitempty"`
	Notice   *Notice            `json:"notice,omitempty"`
	Typing   *Typing            `json:"typing,omitempty"`
	Input    *Input             `json:"input,omitempty"`
	Network  *NetworkStatus     `json:"network,omitempty"`
}

// LanguageInfo carries the widget texts of the active language.
type LanguageInfo struct {
	Code  domain.Language `json:"code"`
	Label string          `json:"label"`
	Tag   string          `json:"tag"`
	Texts topics.Texts    `json:"texts"`
}

// Message is a chat bubble.
type Message struct {
	Role      domain.Role `json:"role"`
	Text      string      `json:"text"`
	HTML      string      `json:"html"`
	Label     string      `json:"label"`
	Greeting  bool        `json:"greeting,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Notice is a transient alert that the adapter removes after DismissAfter.
type Notice struct {
	Text         string
	DismissAfter time.Duration
}

// MarshalJSON encodes DismissAfter as milliseconds.
func (n Notice) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Text           string `json:"text"`
		DismissAfterMS int64  `json:"dismissAfterMs"`
	}{n.Text, n.DismissAfter.Milliseconds()})
}

// Typing toggles the typing indicator.
type Typing struct {
	Active bool `json:"active"`
}

// Input toggles the composer. Label is the localized send button text.
type Input struct {
	Enabled bool   `json:"enabled"`
	Label   string `json:"label"`
}

// NetworkStatus reports the known network state.
type NetworkStatus struct {
	Online bool   `json:"online"`
	Status string `json:"status,omitempty"`
}

// Sink receives render events in emission order.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Recorder collects events. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events.
func (r *Recorder) Kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
