package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/aran-respon/internal/conversation"
	"github.com/ashureev/aran-respon/internal/dispatch"
	"github.com/ashureev/aran-respon/internal/identity"
	"github.com/ashureev/aran-respon/internal/store"
	"github.com/ashureev/aran-respon/internal/topics"
	"github.com/ashureev/aran-respon/internal/widget"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeDispatcher) Send(_ context.Context, _, text string, _ dispatch.Metadata) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return "", f.err
	}
	return "Resposta", nil
}

func (f *fakeDispatcher) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type testEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Role     string `json:"role"`
		Text     string `json:"text"`
		Greeting bool   `json:"greeting"`
	} `json:"message"`
	Screen *struct {
		Level string   `json:"level"`
		Path  []string `json:"path"`
	} `json:"screen"`
	Notice *struct {
		Text string `json:"text"`
	} `json:"notice"`
	Network *struct {
		Online bool `json:"online"`
	} `json:"network"`
}

type testResponse struct {
	Snapshot *conversation.Snapshot `json:"snapshot"`
	Events   []testEvent            `json:"events"`
	Error    string                 `json:"error"`
}

func (r testResponse) types() []string {
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Type)
	}
	return out
}

func newTestHandler(t *testing.T, d *fakeDispatcher, debounce time.Duration) (*Handler, *widget.Manager) {
	t.Helper()
	catalog, err := topics.Default()
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}
	widgets := widget.NewManager(widget.Options{
		Catalog:        catalog,
		Store:          store.NewMemory(),
		Dispatcher:     d,
		PersistHistory: true,
		MaxHistory:     50,
		SendDebounce:   debounce,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return NewHandler(widgets, catalog, Limits{MaxMessageLength: 1000}), widgets
}

// withTestIdentity stands in for the cookie middleware.
func withTestIdentity(visitorID, tabID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tab := tabID
			if h := r.Header.Get(identity.TabHeaderName); h != "" {
				tab = h
			}
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), visitorID, tab)))
		})
	}
}

func newChatRouter(base *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(withTestIdentity("v_test", "tab-1"))
	NewChatHandler(base).RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, testResponse) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp testResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode %s %s response: %v", method, path, err)
	}
	return w.Code, resp
}

func TestGetConfig(t *testing.T) {
	base, _ := newTestHandler(t, &fakeDispatcher{}, 0)
	router := newChatRouter(base)

	req := httptest.NewRequest(http.MethodGet, "/api/widget/config", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var got struct {
		Languages []struct {
			Code string `json:"code"`
			Tag  string `json:"tag"`
		} `json:"languages"`
		Limits Limits `json:"limits"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(got.Languages) != 3 || got.Languages[0].Code != "ca" || got.Languages[0].Tag != "català" {
		t.Errorf("Unexpected languages: %+v", got.Languages)
	}
	if got.Limits.MaxMessageLength != 1000 {
		t.Errorf("Expected max length 1000, got %d", got.Limits.MaxMessageLength)
	}
}

func TestStartAndSend(t *testing.T) {
	d := &fakeDispatcher{}
	base, _ := newTestHandler(t, d, 0)
	router := newChatRouter(base)

	code, resp := do(t, router, http.MethodPost, "/api/chat/start", `{"language":"ca"}`)
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%s)", code, resp.Error)
	}
	if got := strings.Join(resp.types(), ","); got != "language,message,navigation" {
		t.Errorf("Unexpected start events: %s", got)
	}
	if !resp.Events[1].Message.Greeting {
		t.Error("Expected greeting message")
	}

	code, resp = do(t, router, http.MethodPost, "/api/chat/messages", `{"text":"Hola"}`)
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%s)", code, resp.Error)
	}
	if got := strings.Join(resp.types(), ","); got != "message,typing,input,typing,message,input" {
		t.Errorf("Unexpected send events: %s", got)
	}
	if resp.Events[4].Message.Role != "assistant" || resp.Events[4].Message.Text != "Resposta" {
		t.Errorf("Unexpected assistant message: %+v", resp.Events[4].Message)
	}
	if sent := d.sent(); len(sent) != 1 || sent[0] != "[IDIOMA:català] Hola" {
		t.Errorf("Unexpected dispatched texts: %v", sent)
	}

	code, resp = do(t, router, http.MethodGet, "/api/chat/state", "")
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}
	if resp.Snapshot == nil || resp.Snapshot.Phase != conversation.PhaseActive || !resp.Snapshot.HasUserInteracted {
		t.Errorf("Unexpected snapshot: %+v", resp.Snapshot)
	}
	if got := strings.Join(resp.types(), ","); got != "language,message,message,message,navigation" {
		t.Errorf("Unexpected replay events: %s", got)
	}
}

func TestSendWithoutLanguage(t *testing.T) {
	base, _ := newTestHandler(t, &fakeDispatcher{}, 0)
	router := newChatRouter(base)

	code, resp := do(t, router, http.MethodPost, "/api/chat/messages", `{"text":"Hola"}`)
	if code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d", code)
	}
	if len(resp.Events) != 1 || resp.Events[0].Notice == nil {
		t.Fatalf("Expected one notice, got %v", resp.types())
	}
}

func TestStartUnsupportedLanguage(t *testing.T) {
	base, _ := newTestHandler(t, &fakeDispatcher{}, 0)
	router := newChatRouter(base)

	code, resp := do(t, router, http.MethodPost, "/api/chat/start", `{"language":"fr"}`)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d", code)
	}
	if len(resp.Events) != 1 || resp.Events[0].Type != "notice" {
		t.Errorf("Expected start failure notice, got %v", resp.types())
	}
}

func TestInvalidBody(t *testing.T) {
	base, _ := newTestHandler(t, &fakeDispatcher{}, 0)
	router := newChatRouter(base)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/start", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestNavigateAndOption(t *testing.T) {
	d := &fakeDispatcher{}
	base, _ := newTestHandler(t, d, 0)
	router := newChatRouter(base)
	do(t, router, http.MethodPost, "/api/chat/start", `{"language":"ca"}`)

	code, resp := do(t, router, http.MethodPost, "/api/chat/navigate", `{"action":"category","category":"citas"}`)
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%s)", code, resp.Error)
	}
	if resp.Events[0].Screen == nil || resp.Events[0].Screen.Level != "subcategories" {
		t.Fatalf("Unexpected screen: %+v", resp.Events[0].Screen)
	}

	code, _ = do(t, router, http.MethodPost, "/api/chat/navigate", `{"action":"subcategory","subcategory":"pedir"}`)
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}

	code, resp = do(t, router, http.MethodPost, "/api/chat/options", `{"key":"pediatria"}`)
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%s)", code, resp.Error)
	}
	if sent := d.sent(); len(sent) != 1 || sent[0] != "[IDIOMA:català] Vull demanar una cita de pediatria" {
		t.Errorf("Unexpected dispatched texts: %v", sent)
	}

	code, _ = do(t, router, http.MethodPost, "/api/chat/navigate", `{"action":"category","category":"nope"}`)
	if code != http.StatusConflict {
		t.Errorf("Expected status 409 for an unknown key, got %d", code)
	}
}

func TestTransportFailure(t *testing.T) {
	d := &fakeDispatcher{err: &dispatch.TransportError{Attempts: 3, Status: 500}}
	base, _ := newTestHandler(t, d, 0)
	router := newChatRouter(base)
	do(t, router, http.MethodPost, "/api/chat/start", `{"language":"es"}`)

	code, resp := do(t, router, http.MethodPost, "/api/chat/messages", `{"text":"Hola"}`)
	if code != http.StatusBadGateway {
		t.Fatalf("Expected status 502, got %d", code)
	}
	if resp.Error == "" {
		t.Error("Expected an error message")
	}
}

func TestSendDebounced(t *testing.T) {
	base, _ := newTestHandler(t, &fakeDispatcher{}, time.Hour)
	router := newChatRouter(base)
	do(t, router, http.MethodPost, "/api/chat/start", `{"language":"ca"}`)

	if code, _ := do(t, router, http.MethodPost, "/api/chat/messages", `{"text":"u"}`); code != http.StatusOK {
		t.Fatalf("Expected first send to pass, got %d", code)
	}
	if code, _ := do(t, router, http.MethodPost, "/api/chat/messages", `{"text":"dos"}`); code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", code)
	}
}

func TestOfflineQueueAndResend(t *testing.T) {
	d := &fakeDispatcher{}
	base, _ := newTestHandler(t, d, 0)
	router := newChatRouter(base)
	do(t, router, http.MethodPost, "/api/chat/start", `{"language":"ca"}`)

	code, resp := do(t, router, http.MethodPost, "/api/chat/connectivity", `{"online":false}`)
	if code != http.StatusOK || len(resp.Events) != 1 || resp.Events[0].Network.Online {
		t.Fatalf("Unexpected connectivity response: %d %v", code, resp.types())
	}

	if code, _ := do(t, router, http.MethodPost, "/api/chat/messages", `{"text":"Hola"}`); code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", code)
	}
	if len(d.sent()) != 0 {
		t.Fatal("Expected nothing dispatched while offline")
	}

	do(t, router, http.MethodPost, "/api/chat/connectivity", `{"online":true}`)
	if code, resp := do(t, router, http.MethodPost, "/api/chat/resend", ""); code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%s)", code, resp.Error)
	}
	if len(d.sent()) != 1 {
		t.Errorf("Expected the queued message to be dispatched, got %v", d.sent())
	}
	if code, _ := do(t, router, http.MethodPost, "/api/chat/resend", ""); code != http.StatusConflict {
		t.Errorf("Expected status 409 on an empty queue, got %d", code)
	}
}

func TestClearHistory(t *testing.T) {
	base, _ := newTestHandler(t, &fakeDispatcher{}, 0)
	router := newChatRouter(base)
	do(t, router, http.MethodPost, "/api/chat/start", `{"language":"oc"}`)

	if code, _ := do(t, router, http.MethodDelete, "/api/chat/history", ""); code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}
	_, resp := do(t, router, http.MethodGet, "/api/chat/state", "")
	if resp.Snapshot.Phase != conversation.PhaseIdle {
		t.Errorf("Expected idle phase, got %s", resp.Snapshot.Phase)
	}
}

func TestTabsAreIsolated(t *testing.T) {
	base, widgets := newTestHandler(t, &fakeDispatcher{}, 0)
	router := newChatRouter(base)
	do(t, router, http.MethodPost, "/api/chat/start", `{"language":"ca"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/navigate", bytes.NewBufferString(`{"action":"category","category":"citas"}`))
	req.Header.Set(identity.TabHeaderName, "tab-2")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// tab-2 restores the visitor's session, so it starts at the top menu.
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if widgets.Len() != 2 {
		t.Errorf("Expected two controllers, got %d", widgets.Len())
	}
}
