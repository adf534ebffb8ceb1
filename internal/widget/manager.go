// Package widget owns the conversation controllers of all open widget instances.
//
// One controller exists per visitor tab. Controllers are created on first use,
// restored from the visitor's persisted session and evicted once idle.
package widget

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ashureev/aran-respon/internal/conversation"
	"github.com/ashureev/aran-respon/internal/session"
	"github.com/ashureev/aran-respon/internal/store"
	"github.com/ashureev/aran-respon/internal/topics"
)

// DefaultSendDebounce is the minimum gap between two accepted sends of one tab.
const DefaultSendDebounce = 300 * time.Millisecond

// Options configures a Manager.
type Options struct {
	Catalog        *topics.Catalog
	Store          store.Store
	Dispatcher     conversation.Dispatcher
	Conversation   conversation.Config
	PersistHistory bool
	MaxHistory     int
	SendDebounce   time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
}

type instance struct {
	ctrl     *conversation.Controller
	limiter  *rate.Limiter
	lastUsed time.Time
	attached int // open connections pinning the instance
}

// Manager is the registry of live controllers keyed by visitor and tab.
type Manager struct {
	opts Options

	mu        sync.Mutex
	instances map[string]map[string]*instance
}

// NewManager creates an empty registry.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SendDebounce < 0 {
		opts.SendDebounce = 0
	}
	return &Manager{
		opts:      opts,
		instances: make(map[string]map[string]*instance),
	}
}

// Get returns the controller of a visitor tab, creating and restoring it on first use.
func (m *Manager) Get(ctx context.Context, visitorID, tabID string) *conversation.Controller {
	return m.resolve(ctx, visitorID, tabID, false).ctrl
}

// Attach is Get for long-lived connections. The instance is never evicted
// until the returned release func is called.
func (m *Manager) Attach(ctx context.Context, visitorID, tabID string) (*conversation.Controller, func()) {
	inst := m.resolve(ctx, visitorID, tabID, true)
	var once sync.Once
	return inst.ctrl, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			inst.attached--
			inst.lastUsed = m.opts.Now()
		})
	}
}

// resolve finds or builds the instance of a tab and marks it used.
// Restore runs outside the registry lock; a concurrent builder that loses the
// insert race drops its instance.
func (m *Manager) resolve(ctx context.Context, visitorID, tabID string, attach bool) *instance {
	if inst := m.touch(visitorID, tabID, attach); inst != nil {
		return inst
	}

	fresh, restored := m.newInstance(ctx, visitorID, tabID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if inst := m.touchLocked(visitorID, tabID, attach); inst != nil {
		return inst
	}
	if _, exists := m.instances[visitorID]; !exists {
		m.instances[visitorID] = make(map[string]*instance)
	}
	if attach {
		fresh.attached++
	}
	m.instances[visitorID][tabID] = fresh
	m.opts.Logger.Info("Widget instance created", "visitor_id", visitorID, "tab_id", tabID, "restored", restored)
	return fresh
}

func (m *Manager) touch(visitorID, tabID string, attach bool) *instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touchLocked(visitorID, tabID, attach)
}

func (m *Manager) touchLocked(visitorID, tabID string, attach bool) *instance {
	inst, ok := m.instances[visitorID][tabID]
	if !ok {
		return nil
	}
	inst.lastUsed = m.opts.Now()
	if attach {
		inst.attached++
	}
	return inst
}

func (m *Manager) newInstance(ctx context.Context, visitorID, tabID string) (*instance, bool) {
	logger := m.opts.Logger.With("visitor_id", visitorID, "tab_id", tabID)
	sessions := session.New(m.opts.Store, visitorID, session.Options{
		Enabled:    m.opts.PersistHistory,
		MaxHistory: m.opts.MaxHistory,
		Logger:     logger,
		Now:        m.opts.Now,
	})
	ctrl := conversation.New(m.opts.Conversation, conversation.Deps{
		Catalog:    m.opts.Catalog,
		Dispatcher: m.opts.Dispatcher,
		Sessions:   sessions,
		Network:    conversation.NewConnectivity(),
		Logger:     logger,
		Now:        m.opts.Now,
	})
	restored := ctrl.Restore(ctx)

	limit := rate.Inf
	if m.opts.SendDebounce > 0 {
		limit = rate.Every(m.opts.SendDebounce)
	}
	return &instance{
		ctrl:     ctrl,
		limiter:  rate.NewLimiter(limit, 1),
		lastUsed: m.opts.Now(),
	}, restored
}

// Allow reports whether a send from the tab may proceed and marks the tab used.
// A send arriving sooner than SendDebounce after the previous accepted one is refused.
// A tab without an instance gets one, so the gate always applies to the live controller.
func (m *Manager) Allow(ctx context.Context, visitorID, tabID string) bool {
	inst := m.resolve(ctx, visitorID, tabID, false)
	m.mu.Lock()
	defer m.mu.Unlock()
	return inst.limiter.AllowN(m.opts.Now(), 1)
}

// Len returns the number of live controllers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, tabs := range m.instances {
		n += len(tabs)
	}
	return n
}

// EvictIdle drops controllers unused for longer than ttl and returns how many were dropped.
// Attached and busy controllers are kept. Persisted records are kept too, so an
// evicted tab restores on its next request.
func (m *Manager) EvictIdle(ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.opts.Now().Add(-ttl)
	evicted := 0
	for visitorID, tabs := range m.instances {
		for tabID, inst := range tabs {
			if inst.attached == 0 && inst.lastUsed.Before(cutoff) && !inst.ctrl.Snapshot().Busy {
				delete(tabs, tabID)
				evicted++
			}
		}
		if len(tabs) == 0 {
			delete(m.instances, visitorID)
		}
	}
	return evicted
}
