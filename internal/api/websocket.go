package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/aran-respon/internal/conversation"
	"github.com/ashureev/aran-respon/internal/identity"
	"github.com/ashureev/aran-respon/internal/navigation"
)

const wsWriteTimeout = 10 * time.Second

// WebSocketHandler streams render events of one widget instance over a websocket.
type WebSocketHandler struct {
	*Handler
	allowedOrigins []string
	isDev          bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(base *Handler, allowedOrigins []string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		Handler:        base,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// wsMessage represents a client frame.
type wsMessage struct {
	Type        string                `json:"type"`
	Language    string                `json:"language,omitempty"`
	Text        string                `json:"text,omitempty"`
	Key         string                `json:"key,omitempty"`
	Action      navigation.ActionType `json:"action,omitempty"`
	Category    string                `json:"category,omitempty"`
	Subcategory string                `json:"subcategory,omitempty"`
	Online      *bool                 `json:"online,omitempty"`
}

type wsError struct {
	Type   string `json:"type"`
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// wsSink writes every event as one text frame.
type wsSink struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger *slog.Logger
}

func (s *wsSink) Emit(e conversation.Event) {
	s.write(e)
}

func (s *wsSink) write(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode websocket frame", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.logger.Debug("WebSocket write error", "error", err)
	}
}

func (s *wsSink) fail(err error) {
	if err == nil {
		return
	}
	s.write(wsError{Type: "error", Error: err.Error(), Status: statusFor(err)})
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	tabID := identity.TabIDFromContext(r.Context())
	logger := slog.With("visitor_id", visitorID, "tab_id", tabID)
	logger.Info("WebSocket connection request", "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The open connection pins the instance so the sweeper never evicts it mid-chat.
	ctrl, release := h.widgets.Attach(ctx, visitorID, tabID)
	defer release()
	sink := &wsSink{conn: ws, logger: logger}
	ctrl.Replay(ctx, sink)

	// Dispatches run off the read loop so pings and connectivity frames keep flowing.
	var wg sync.WaitGroup
	async := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.fail(fn())
		}()
	}

	h.inputLoop(ctx, ws, logger, func(msg wsMessage) {
		switch msg.Type {
		case "start":
			sink.fail(ctrl.Start(ctx, parseLanguage(msg.Language), sink))
		case "send":
			if !h.widgets.Allow(ctx, visitorID, tabID) {
				sink.fail(errDebounced)
				return
			}
			async(func() error { return ctrl.Send(ctx, msg.Text, sink) })
		case "option":
			if !h.widgets.Allow(ctx, visitorID, tabID) {
				sink.fail(errDebounced)
				return
			}
			async(func() error { return ctrl.SelectOption(ctx, msg.Key, sink) })
		case "navigate":
			sink.fail(ctrl.Navigate(navigation.Action{
				Type:        msg.Action,
				Category:    msg.Category,
				Subcategory: msg.Subcategory,
			}, sink))
		case "resend":
			async(func() error { return ctrl.Resend(ctx, sink) })
		case "connectivity":
			if msg.Online != nil {
				ctrl.SetOnline(*msg.Online, sink)
			}
		case "replay":
			ctrl.Replay(ctx, sink)
		case "ping":
			sink.write(map[string]string{"type": "pong"})
		default:
			logger.Debug("Unknown websocket frame", "type", msg.Type)
		}
	})
	cancel()
	wg.Wait()
	logger.Info("Widget session ended")
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, logger *slog.Logger, handle func(wsMessage)) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				logger.Debug("WebSocket closed by client")
			} else {
				logger.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Debug("Ignoring malformed websocket frame", "error", err)
			continue
		}
		handle(msg)
	}
}
