// Package api provides the HTTP and websocket transports of the widget.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ashureev/aran-respon/internal/conversation"
	"github.com/ashureev/aran-respon/internal/dispatch"
	"github.com/ashureev/aran-respon/internal/domain"
	"github.com/ashureev/aran-respon/internal/navigation"
	"github.com/ashureev/aran-respon/internal/topics"
	"github.com/ashureev/aran-respon/internal/widget"
)

// errDebounced is reported when a send follows the previous one too closely.
var errDebounced = errors.New("message sent too quickly")

// Limits are the widget limits published to clients.
type Limits struct {
	MaxMessageLength int   `json:"maxMessageLength"`
	SendDebounceMs   int64 `json:"sendDebounceMs"`
	NoticeTTLMs      int64 `json:"noticeTtlMs"`
}

// Handler provides common handler utilities.
type Handler struct {
	widgets *widget.Manager
	catalog *topics.Catalog
	limits  Limits
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(widgets *widget.Manager, catalog *topics.Catalog, limits Limits) *Handler {
	return &Handler{
		widgets: widgets,
		catalog: catalog,
		limits:  limits,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// statusFor maps an engine error to the HTTP status reported to clients.
func statusFor(err error) int {
	var (
		verr    *conversation.ValidationError
		oerr    *conversation.OfflineError
		timeout *dispatch.TimeoutError
		terr    *dispatch.TransportError
		merr    *dispatch.MalformedResponseError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errDebounced):
		return http.StatusTooManyRequests
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, conversation.ErrNoLanguage),
		errors.Is(err, conversation.ErrBusy),
		errors.Is(err, conversation.ErrQueueEmpty),
		errors.Is(err, navigation.ErrUnknownKey),
		errors.Is(err, navigation.ErrInvalidTransition):
		return http.StatusConflict
	case errors.As(err, &oerr):
		return http.StatusServiceUnavailable
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &terr), errors.As(err, &merr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseLanguage lowercases a client language code. Unknown codes are passed
// through so the controller can emit its start failure notice.
func parseLanguage(code string) domain.Language {
	return domain.Language(strings.ToLower(strings.TrimSpace(code)))
}
