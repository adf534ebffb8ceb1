// Package dispatch delivers chat messages to the remote assistant endpoint.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3

	actionSendMessage = "sendMessage"
	maxReplyBytes     = 1 << 20
)

// Config describes the remote endpoint.
type Config struct {
	URL        string
	Route      string
	Timeout    time.Duration // per attempt
	MaxRetries int           // total attempts
}

// Metadata travels with every outgoing message.
type Metadata struct {
	UserID            string `json:"userId"`
	PreferredLanguage string `json:"preferredLanguage"`
	IsInitialMessage  bool   `json:"isInitialMessage"`
}

// Request is the JSON body posted to the endpoint.
type Request struct {
	Action    string   `json:"action"`
	SessionID string   `json:"sessionId"`
	Route     string   `json:"route"`
	ChatInput string   `json:"chatInput"`
	Metadata  Metadata `json:"metadata"`
}

type reply struct {
	Output *string `json:"output"`
}

// Dispatcher posts messages with bounded retries and exponential backoff.
// It holds no per-conversation state and is safe for concurrent use.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	sleep  Sleeper
	logger *slog.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithSleeper replaces the wall-clock backoff wait.
func WithSleeper(s Sleeper) Option {
	return func(d *Dispatcher) { d.sleep = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher, filling zero config values with defaults.
func New(cfg Config, opts ...Option) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	d := &Dispatcher{
		cfg:    cfg,
		client: &http.Client{},
		sleep:  sleepContext,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send posts text for sessionID and returns the assistant's reply.
//
// Network errors, per-attempt timeouts and non-2xx statuses are retried until
// MaxRetries attempts have been made. A 2xx reply that cannot be parsed is
// returned immediately as a *MalformedResponseError.
func (d *Dispatcher) Send(ctx context.Context, sessionID, text string, meta Metadata) (string, error) {
	body, err := json.Marshal(Request{
		Action:    actionSendMessage,
		SessionID: sessionID,
		Route:     d.cfg.Route,
		ChatInput: text,
		Metadata:  meta,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	attempt := 0
	var lastErr error
	for wait := range Schedule(d.cfg.MaxRetries) {
		if wait > 0 {
			d.logger.Warn("Retrying dispatch",
				"session_id", sessionID,
				"attempt", attempt+1,
				"delay", wait,
				"error", lastErr)
			if err := d.sleep(ctx, wait); err != nil {
				return "", &TransportError{Attempts: attempt, Err: err}
			}
		}
		attempt++

		out, err := d.post(ctx, body)
		if err == nil {
			d.logger.Debug("Dispatch succeeded", "session_id", sessionID, "attempt", attempt)
			return out, nil
		}

		var malformed *MalformedResponseError
		if errors.As(err, &malformed) {
			return "", err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return "", d.wrapFailure(ctx, attempt, lastErr)
}

// attemptError is the outcome of one failed round trip.
type attemptError struct {
	status  int
	timeout bool
	err     error
}

func (e *attemptError) Error() string {
	if e.status != 0 {
		return fmt.Sprintf("unexpected status %d", e.status)
	}
	return e.err.Error()
}

func (e *attemptError) Unwrap() error { return e.err }

func (d *Dispatcher) post(ctx context.Context, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", &attemptError{err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", &attemptError{timeout: errors.Is(ctx.Err(), context.DeadlineExceeded), err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", &attemptError{timeout: errors.Is(ctx.Err(), context.DeadlineExceeded), err: fmt.Errorf("read reply: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &attemptError{status: resp.StatusCode, err: fmt.Errorf("server error: %s", resp.Status)}
	}
	return parseReply(data)
}

func (d *Dispatcher) wrapFailure(ctx context.Context, attempts int, err error) error {
	te := &TransportError{Attempts: attempts, Err: err}
	var ae *attemptError
	if errors.As(err, &ae) {
		te.Status = ae.status
		te.Err = ae.err
		if ae.timeout && ctx.Err() == nil {
			return &TimeoutError{Timeout: d.cfg.Timeout, Transport: te}
		}
	}
	if ctx.Err() != nil {
		te.Err = fmt.Errorf("%w: %v", ctx.Err(), te.Err)
	}
	return te
}

// parseReply accepts {"output": "..."} or a list whose first element has that shape.
func parseReply(data []byte) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []reply
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return "", &MalformedResponseError{Body: string(data), Err: err}
		}
		if len(list) == 0 || list[0].Output == nil {
			return "", &MalformedResponseError{Body: string(data)}
		}
		return *list[0].Output, nil
	}

	var r reply
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return "", &MalformedResponseError{Body: string(data), Err: err}
	}
	if r.Output == nil {
		return "", &MalformedResponseError{Body: string(data)}
	}
	return *r.Output, nil
}
