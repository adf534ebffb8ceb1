package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/aran-respon/internal/conversation"
	"github.com/ashureev/aran-respon/internal/domain"
	"github.com/ashureev/aran-respon/internal/identity"
	"github.com/ashureev/aran-respon/internal/navigation"
)

// maxBodyBytes bounds request bodies; message length itself is checked by the controller.
const maxBodyBytes = 64 << 10

// ChatHandler serves the REST surface of the widget.
type ChatHandler struct {
	*Handler
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(base *Handler) *ChatHandler {
	return &ChatHandler{Handler: base}
}

// eventsResponse is the body of every chat endpoint.
type eventsResponse struct {
	Snapshot *conversation.Snapshot `json:"snapshot,omitempty"`
	Events   []conversation.Event   `json:"events"`
	Error    string                 `json:"error,omitempty"`
}

type languageInfo struct {
	Code  domain.Language `json:"code"`
	Label string          `json:"label"`
	Tag   string          `json:"tag"`
}

type startRequest struct {
	Language string `json:"language"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type optionRequest struct {
	Key string `json:"key"`
}

type connectivityRequest struct {
	Online bool `json:"online"`
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/widget/config", h.GetConfig)
	r.Route("/api/chat", func(r chi.Router) {
		r.Get("/state", h.State)
		r.Post("/start", h.Start)
		r.Post("/messages", h.SendMessage)
		r.Post("/options", h.SelectOption)
		r.Post("/navigate", h.Navigate)
		r.Post("/resend", h.Resend)
		r.Post("/connectivity", h.Connectivity)
		r.Delete("/history", h.ClearHistory)
	})
}

// GetConfig returns the selectable languages and the widget limits.
func (h *ChatHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	locales := h.catalog.Locales()
	languages := make([]languageInfo, 0, len(locales))
	for _, l := range locales {
		languages = append(languages, languageInfo{Code: l.Language, Label: l.Label, Tag: l.Language.Tag()})
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"languages":      languages,
		"limits":         h.limits,
		"selectLanguage": h.catalog.SelectLanguageNotice(),
	})
}

// State returns the snapshot of the caller's controller with the events needed to redraw it.
func (h *ChatHandler) State(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(r)
	var rec conversation.Recorder
	ctrl.Replay(r.Context(), &rec)
	snap := ctrl.Snapshot()
	JSON(w, http.StatusOK, eventsResponse{Snapshot: &snap, Events: nonNil(rec.Events())})
}

// Start begins a conversation in the requested language.
func (h *ChatHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decode(w, r, &req) {
		return
	}
	ctrl := h.controller(r)
	var rec conversation.Recorder
	err := ctrl.Start(r.Context(), parseLanguage(req.Language), &rec)
	respond(w, &rec, err)
}

// SendMessage dispatches free text.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decode(w, r, &req) {
		return
	}
	ctrl := h.controller(r)
	if !h.allow(r) {
		respond(w, &conversation.Recorder{}, errDebounced)
		return
	}
	var rec conversation.Recorder
	err := ctrl.Send(r.Context(), req.Text, &rec)
	respond(w, &rec, err)
}

// SelectOption sends the message of a topic option.
func (h *ChatHandler) SelectOption(w http.ResponseWriter, r *http.Request) {
	var req optionRequest
	if !decode(w, r, &req) {
		return
	}
	ctrl := h.controller(r)
	if !h.allow(r) {
		respond(w, &conversation.Recorder{}, errDebounced)
		return
	}
	var rec conversation.Recorder
	err := ctrl.SelectOption(r.Context(), req.Key, &rec)
	respond(w, &rec, err)
}

// Navigate moves through the topic menus.
func (h *ChatHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req navigation.Action
	if !decode(w, r, &req) {
		return
	}
	ctrl := h.controller(r)
	var rec conversation.Recorder
	err := ctrl.Navigate(req, &rec)
	respond(w, &rec, err)
}

// Resend dispatches the oldest message queued while offline.
func (h *ChatHandler) Resend(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(r)
	var rec conversation.Recorder
	err := ctrl.Resend(r.Context(), &rec)
	respond(w, &rec, err)
}

// Connectivity records the client's network state.
func (h *ChatHandler) Connectivity(w http.ResponseWriter, r *http.Request) {
	var req connectivityRequest
	if !decode(w, r, &req) {
		return
	}
	ctrl := h.controller(r)
	var rec conversation.Recorder
	ctrl.SetOnline(req.Online, &rec)
	respond(w, &rec, nil)
}

// ClearHistory resets the caller's conversation.
func (h *ChatHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(r)
	var rec conversation.Recorder
	err := ctrl.Reset(r.Context())
	respond(w, &rec, err)
}

func (h *Handler) controller(r *http.Request) *conversation.Controller {
	ctx := r.Context()
	return h.widgets.Get(ctx, identity.VisitorIDFromContext(ctx), identity.TabIDFromContext(ctx))
}

func (h *Handler) allow(r *http.Request) bool {
	ctx := r.Context()
	return h.widgets.Allow(ctx, identity.VisitorIDFromContext(ctx), identity.TabIDFromContext(ctx))
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func respond(w http.ResponseWriter, rec *conversation.Recorder, err error) {
	resp := eventsResponse{Events: nonNil(rec.Events())}
	status := statusFor(err)
	if err != nil {
		resp.Error = err.Error()
		if status == http.StatusInternalServerError {
			slog.Error("Chat request failed", "error", err)
		}
	}
	JSON(w, status, resp)
}

func nonNil(events []conversation.Event) []conversation.Event {
	if events == nil {
		return []conversation.Event{}
	}
	return events
}
