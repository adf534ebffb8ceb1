// Package conversation drives one widget instance: language selection,
// topic navigation, free-text dispatch and history persistence.
//
// A Controller emits render events to the Sink passed with each call and
// never touches presentation concerns. At most one dispatch runs at a time;
// navigation and snapshots stay available while it is in flight.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ashureev/aran-respon/internal/dispatch"
	"github.com/ashureev/aran-respon/internal/domain"
	"github.com/ashureev/aran-respon/internal/format"
	"github.com/ashureev/aran-respon/internal/navigation"
	"github.com/ashureev/aran-respon/internal/topics"
)

const (
	DefaultMaxMessageLength = 1000
	DefaultNoticeTTL        = 5 * time.Second
)

// Phase is the controller lifecycle state.
type Phase string

const (
	PhaseIdle   Phase = "idle"
	PhaseActive Phase = "active"
)

// Dispatcher delivers a message to the assistant endpoint.
type Dispatcher interface {
	Send(ctx context.Context, sessionID, text string, meta dispatch.Metadata) (string, error)
}

// Persistence stores the session and history of one visitor.
type Persistence interface {
	SaveSession(ctx context.Context, id string, lang domain.Language)
	Session(ctx context.Context) *domain.Session
	SaveMessage(ctx context.Context, role domain.Role, content string)
	History(ctx context.Context) []domain.HistoryEntry
	ClearHistory(ctx context.Context)
}

// Config holds the controller limits.
type Config struct {
	MaxMessageLength int
	NoticeTTL        time.Duration
	SessionMaxAge    time.Duration
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Catalog      *topics.Catalog
	Dispatcher   Dispatcher
	Sessions     Persistence
	Network      *Connectivity
	Formatter    *format.Formatter
	Logger       *slog.Logger
	Now          func() time.Time
	NewSessionID func() string
}

// Snapshot is a read-only view of the controller state.
type Snapshot struct {
	Phase             Phase            `json:"phase"`
	Language          domain.Language  `json:"language,omitempty"`
	SessionID         string           `json:"sessionId,omitempty"`
	HasUserInteracted bool             `json:"hasUserInteracted"`
	Navigation        navigation.State `json:"navigation"`
	Queued            int              `json:"queued"`
	Online            bool             `json:"online"`
	Busy              bool             `json:"busy"`
}

// Controller is the conversation state machine of one widget instance.
type Controller struct {
	cfg        Config
	catalog    *topics.Catalog
	dispatcher Dispatcher
	sessions   Persistence
	network    *Connectivity
	formatter  *format.Formatter
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string

	// slot is held for the whole dispatch, backoff waits included.
	slot sync.Mutex

	mu         sync.Mutex
	phase      Phase
	locale     *topics.Locale
	sessionID  string
	interacted bool
	nav        *navigation.Engine
	queue      []string
	inFlight   bool
}

// New creates an idle controller.
func New(cfg Config, deps Deps) *Controller {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	if cfg.NoticeTTL <= 0 {
		cfg.NoticeTTL = DefaultNoticeTTL
	}
	if cfg.SessionMaxAge <= 0 {
		cfg.SessionMaxAge = domain.DefaultSessionMaxAge
	}
	if deps.Network == nil {
		deps.Network = NewConnectivity()
	}
	if deps.Formatter == nil {
		deps.Formatter = format.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewSessionID == nil {
		deps.NewSessionID = uuid.NewString
	}
	return &Controller{
		cfg:        cfg,
		catalog:    deps.Catalog,
		dispatcher: deps.Dispatcher,
		sessions:   deps.Sessions,
		network:    deps.Network,
		formatter:  deps.Formatter,
		logger:     deps.Logger,
		now:        deps.Now,
		newID:      deps.NewSessionID,
		phase:      PhaseIdle,
	}
}

// Start begins a new conversation in lang. The previous history is cleared.
func (c *Controller) Start(ctx context.Context, lang domain.Language, sink Sink) error {
	locale, ok := c.catalog.Locale(lang)
	if !ok {
		c.notice(sink, c.catalog.StartFailedNotice())
		return &ValidationError{Reason: ReasonUnsupportedLanguage}
	}
	if !c.slot.TryLock() {
		return ErrBusy
	}
	defer c.slot.Unlock()

	id := c.newID()
	c.sessions.ClearHistory(ctx)
	c.sessions.SaveSession(ctx, id, lang)

	c.mu.Lock()
	c.phase = PhaseActive
	c.locale = locale
	c.sessionID = id
	c.interacted = false
	c.nav = navigation.New(locale)
	screen := c.nav.Screen()
	c.mu.Unlock()

	c.logger.Info("Conversation started", "session_id", id, "language", lang)

	sink.Emit(languageEvent(locale))
	sink.Emit(c.greeting(locale))
	sink.Emit(Event{Kind: EventNavigation, Screen: &screen})
	return nil
}

// Restore adopts a persisted session younger than the configured max age.
// It reports whether the controller became active.
func (c *Controller) Restore(ctx context.Context) bool {
	sess := c.sessions.Session(ctx)
	if !sess.Fresh(c.now(), c.cfg.SessionMaxAge) {
		return false
	}
	locale, ok := c.catalog.Locale(sess.Language)
	if !ok {
		return false
	}
	interacted := domain.HasUserEntry(c.sessions.History(ctx))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseActive
	c.locale = locale
	c.sessionID = sess.SessionID
	c.interacted = interacted
	c.nav = navigation.New(locale)

	c.logger.Info("Conversation restored", "session_id", sess.SessionID, "language", sess.Language)
	return true
}

// Send validates text and dispatches it to the assistant.
func (c *Controller) Send(ctx context.Context, text string, sink Sink) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return &ValidationError{Reason: ReasonEmpty}
	}

	c.mu.Lock()
	phase, texts := c.phase, c.textsLocked()
	c.mu.Unlock()

	if n := utf8.RuneCountInString(text); n > c.cfg.MaxMessageLength {
		c.notice(sink, fmt.Sprintf(texts.Notices.TooLong, c.cfg.MaxMessageLength))
		return &ValidationError{Reason: ReasonTooLong, Limit: c.cfg.MaxMessageLength}
	}
	if phase != PhaseActive {
		c.notice(sink, c.catalog.SelectLanguageNotice())
		return ErrNoLanguage
	}
	if !c.network.Online() {
		c.mu.Lock()
		c.queue = append(c.queue, text)
		queued := len(c.queue)
		c.mu.Unlock()
		c.notice(sink, texts.Notices.Offline)
		return &OfflineError{Queued: queued}
	}

	return c.dispatch(ctx, text, sink)
}

func (c *Controller) dispatch(ctx context.Context, text string, sink Sink) error {
	if !c.slot.TryLock() {
		return ErrBusy
	}
	defer c.slot.Unlock()

	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return ErrNoLanguage
	}
	locale, sessionID := c.locale, c.sessionID
	outgoing := text
	if !c.interacted {
		outgoing = "[IDIOMA:" + locale.Language.Tag() + "] " + text
		c.interacted = true
	}
	c.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
		sink.Emit(Event{Kind: EventInput, Input: &Input{Enabled: true, Label: locale.Texts.Send}})
	}()

	sink.Emit(c.message(domain.RoleUser, text, false))
	sink.Emit(Event{Kind: EventTyping, Typing: &Typing{Active: true}})
	sink.Emit(Event{Kind: EventInput, Input: &Input{Enabled: false, Label: locale.Texts.Sending}})

	reply, err := c.dispatcher.Send(ctx, sessionID, outgoing, dispatch.Metadata{
		UserID:            "",
		PreferredLanguage: string(locale.Language),
		IsInitialMessage:  false,
	})
	sink.Emit(Event{Kind: EventTyping, Typing: &Typing{Active: false}})
	if err != nil {
		c.logger.Warn("Failed to dispatch message", "session_id", sessionID, "error", err)
		var timeout *dispatch.TimeoutError
		if errors.As(err, &timeout) {
			c.notice(sink, locale.Texts.Notices.Timeout)
		} else {
			c.notice(sink, locale.Texts.Notices.Connection)
		}
		return err
	}

	sink.Emit(c.message(domain.RoleAssistant, reply, false))
	c.sessions.SaveMessage(ctx, domain.RoleUser, text)
	c.sessions.SaveMessage(ctx, domain.RoleAssistant, reply)
	return nil
}

// SelectOption sends the literal message of an option on the current menu.
func (c *Controller) SelectOption(ctx context.Context, key string, sink Sink) error {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		c.notice(sink, c.catalog.SelectLanguageNotice())
		return ErrNoLanguage
	}
	msg, err := c.nav.Option(key)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.Send(ctx, msg, sink)
}

// Navigate moves through the topic menus and emits the resulting screen.
func (c *Controller) Navigate(action navigation.Action, sink Sink) error {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return ErrNoLanguage
	}
	screen, err := c.nav.Apply(action)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	sink.Emit(Event{Kind: EventNavigation, Screen: &screen})
	return nil
}

// Resend dispatches the oldest message queued while offline.
func (c *Controller) Resend(ctx context.Context, sink Sink) error {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return ErrQueueEmpty
	}
	texts := c.textsLocked()
	c.mu.Unlock()

	if !c.network.Online() {
		c.notice(sink, texts.Notices.Offline)
		return &OfflineError{Queued: c.Queued()}
	}

	c.mu.Lock()
	text := c.queue[0]
	c.queue = c.queue[1:]
	c.mu.Unlock()

	err := c.Send(ctx, text, sink)
	var verr *ValidationError
	var oerr *OfflineError
	if err != nil && !errors.As(err, &verr) && !errors.As(err, &oerr) && !errors.Is(err, ErrNoLanguage) {
		c.mu.Lock()
		c.queue = append([]string{text}, c.queue...)
		c.mu.Unlock()
	}
	return err
}

// Queued returns the number of messages waiting for Resend.
func (c *Controller) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// SetOnline records the client's network state and emits it when it changed.
func (c *Controller) SetOnline(online bool, sink Sink) {
	if !c.network.Set(online) {
		return
	}
	c.mu.Lock()
	texts := c.textsLocked()
	c.mu.Unlock()
	sink.Emit(networkEvent(online, texts))
}

// Replay re-emits everything an adapter needs to redraw an active conversation.
func (c *Controller) Replay(ctx context.Context, sink Sink) {
	c.mu.Lock()
	if c.phase != PhaseActive {
		texts := c.textsLocked()
		c.mu.Unlock()
		if !c.network.Online() {
			sink.Emit(networkEvent(false, texts))
		}
		return
	}
	locale := c.locale
	screen := c.nav.Screen()
	inFlight := c.inFlight
	c.mu.Unlock()

	sink.Emit(languageEvent(locale))
	sink.Emit(c.greeting(locale))
	for _, entry := range c.sessions.History(ctx) {
		ev := c.message(entry.Role, entry.Content, false)
		ev.Message.Timestamp = entry.Timestamp
		sink.Emit(ev)
	}
	sink.Emit(Event{Kind: EventNavigation, Screen: &screen})
	if inFlight {
		sink.Emit(Event{Kind: EventTyping, Typing: &Typing{Active: true}})
		sink.Emit(Event{Kind: EventInput, Input: &Input{Enabled: false, Label: locale.Texts.Sending}})
	}
	if !c.network.Online() {
		sink.Emit(networkEvent(false, locale.Texts))
	}
}

// Reset clears the persisted conversation and returns to idle.
func (c *Controller) Reset(ctx context.Context) error {
	if !c.slot.TryLock() {
		return ErrBusy
	}
	defer c.slot.Unlock()

	c.sessions.ClearHistory(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseIdle
	c.locale = nil
	c.sessionID = ""
	c.interacted = false
	c.nav = nil
	c.queue = nil
	return nil
}

// Snapshot reports the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Phase:             c.phase,
		SessionID:         c.sessionID,
		HasUserInteracted: c.interacted,
		Navigation:        navigation.State{Level: navigation.LevelCategories},
		Queued:            len(c.queue),
		Online:            c.network.Online(),
		Busy:              c.inFlight,
	}
	if c.locale != nil {
		s.Language = c.locale.Language
	}
	if c.nav != nil {
		s.Navigation = c.nav.State()
	}
	return s
}

// textsLocked returns the active texts, or the first locale's while idle.
func (c *Controller) textsLocked() topics.Texts {
	if c.locale != nil {
		return c.locale.Texts
	}
	if locales := c.catalog.Locales(); len(locales) > 0 {
		return locales[0].Texts
	}
	return topics.Texts{}
}

func (c *Controller) notice(sink Sink, text string) {
	sink.Emit(Event{Kind: EventNotice, Notice: &Notice{Text: text, DismissAfter: c.cfg.NoticeTTL}})
}

func (c *Controller) greeting(locale *topics.Locale) Event {
	return c.message(domain.RoleAssistant, locale.Texts.Greeting, true)
}

func (c *Controller) message(role domain.Role, text string, greeting bool) Event {
	m := &Message{Role: role, Text: text, Greeting: greeting, Timestamp: c.now()}
	if role == domain.RoleAssistant {
		m.HTML = c.formatter.Format(text)
	} else {
		m.HTML = format.Paragraphs(format.Escape(text))
	}
	m.Label = format.PlainText(m.HTML)
	return Event{Kind: EventMessage, Message: m}
}

func languageEvent(locale *topics.Locale) Event {
	return Event{Kind: EventLanguage, Language: &LanguageInfo{
		Code:  locale.Language,
		Label: locale.Label,
		Tag:   locale.Language.Tag(),
		Texts: locale.Texts,
	}}
}

func networkEvent(online bool, texts topics.Texts) Event {
	status := &NetworkStatus{Online: online}
	if !online {
		status.Status = texts.OfflineStatus
	}
	return Event{Kind: EventNetwork, Network: status}
}
