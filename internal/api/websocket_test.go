package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

func dialChat(t *testing.T, base *Handler) (*websocket.Conn, context.Context) {
	t.Helper()
	r := chi.NewRouter()
	r.Use(withTestIdentity("v_ws", "tab-1"))
	r.Handle("/ws/chat", NewWebSocketHandler(base, nil, true))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chat", nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func writeFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to encode frame: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	var frame map[string]json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Failed to decode frame %s: %v", data, err)
	}
	return frame
}

func frameType(frame map[string]json.RawMessage) string {
	var s string
	_ = json.Unmarshal(frame["type"], &s)
	return s
}

func TestWebSocketPing(t *testing.T) {
	base, _ := newTestHandler(t, &fakeDispatcher{}, 0)
	conn, ctx := dialChat(t, base)

	// An idle controller replays nothing, so the first frame is the pong.
	writeFrame(t, ctx, conn, map[string]string{"type": "ping"})
	if got := frameType(readFrame(t, ctx, conn)); got != "pong" {
		t.Errorf("Expected pong, got %q", got)
	}
}

func TestWebSocketConversation(t *testing.T) {
	d := &fakeDispatcher{}
	base, _ := newTestHandler(t, d, 0)
	conn, ctx := dialChat(t, base)

	writeFrame(t, ctx, conn, map[string]string{"type": "start", "language": "ca"})
	for _, want := range []string{"language", "message", "navigation"} {
		if got := frameType(readFrame(t, ctx, conn)); got != want {
			t.Fatalf("Expected %s frame, got %q", want, got)
		}
	}

	writeFrame(t, ctx, conn, map[string]string{"type": "send", "text": "Bon dia"})
	for _, want := range []string{"message", "typing", "input", "typing", "message", "input"} {
		if got := frameType(readFrame(t, ctx, conn)); got != want {
			t.Fatalf("Expected %s frame, got %q", want, got)
		}
	}
	if sent := d.sent(); len(sent) != 1 || sent[0] != "[IDIOMA:català] Bon dia" {
		t.Errorf("Unexpected dispatched texts: %v", sent)
	}

	writeFrame(t, ctx, conn, map[string]string{"type": "navigate", "action": "category", "category": "unknown"})
	frame := readFrame(t, ctx, conn)
	if frameType(frame) != "error" {
		t.Fatalf("Expected error frame, got %q", frameType(frame))
	}
	var status int
	_ = json.Unmarshal(frame["status"], &status)
	if status != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", status)
	}
}

func TestWebSocketOriginRejected(t *testing.T) {
	base, _ := newTestHandler(t, &fakeDispatcher{}, 0)
	h := NewWebSocketHandler(base, []string{"https://salut.example"}, false)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	req.Header.Set("Origin", "https://evil.example")
	if h.checkOrigin(req) {
		t.Error("Expected origin to be rejected")
	}
	req.Header.Set("Origin", "https://salut.example")
	if !h.checkOrigin(req) {
		t.Error("Expected origin to be allowed")
	}
}
