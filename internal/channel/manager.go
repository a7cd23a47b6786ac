// Package channel is the per-session bidirectional conduit between the
// editing loop and the interactive front end.
package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Event is an outbound message published to the front end.
type Event struct {
	Type      string `json:"type"`
	HTML      string `json:"html,omitempty"`
	Message   string `json:"message"`
	Iteration int    `json:"iteration,omitempty"`
}

// ApplyEdit builds the event published after each successful edit.
func ApplyEdit(html, message string, iteration int) Event {
	return Event{Type: "apply_edit", HTML: html, Message: message, Iteration: iteration}
}

// Completed builds the terminal success event.
func Completed(message string) Event {
	return Event{Type: "completed", Message: message}
}

// Error builds the terminal failure event.
func Error(message string) Event {
	return Event{Type: "error", Message: message}
}

// Observation is front-end feedback collected after an edit is published.
type Observation struct {
	Summary    string `json:"summary"`
	Screenshot string `json:"screenshot,omitempty"`
}

type inboundMessage struct {
	Type string      `json:"type"`
	Data Observation `json:"data"`
}

// conn is one registered websocket with its per-session send lock and
// inbound pump.
type conn struct {
	ws     *websocket.Conn
	sendMu sync.Mutex
	inbox  chan inboundMessage
	cancel context.CancelFunc
}

// Manager tracks the active websocket per session. Outbound sends are
// serialized per session; cross-session operations are independent.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*conn
}

// NewManager creates an empty channel manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*conn)}
}

// Connect registers an accepted websocket for a session and starts pumping
// inbound messages. A previous connection for the same session is replaced.
func (m *Manager) Connect(sessionID string, ws *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{ws: ws, inbox: make(chan inboundMessage, 8), cancel: cancel}

	m.mu.Lock()
	if existing, ok := m.sessions[sessionID]; ok {
		existing.cancel()
	}
	m.sessions[sessionID] = c
	m.mu.Unlock()

	go m.readLoop(ctx, sessionID, c)
	slog.Info("Channel connected", "session_id", sessionID)
}

// Disconnect releases all per-session channel resources. Idempotent; the
// websocket itself is closed by its owning handler.
func (m *Manager) Disconnect(sessionID string) {
	m.mu.Lock()
	c, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if ok {
		c.cancel()
		slog.Info("Channel disconnected", "session_id", sessionID)
	}
}

// Connected reports whether the session has an active connection.
func (m *Manager) Connected(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[sessionID]
	return ok
}

// Send publishes an event to the session's front end. Concurrent sends for
// one session never interleave. A write failure auto-disconnects the
// session and returns false rather than propagating the error.
func (m *Manager) Send(ctx context.Context, sessionID string, event Event) bool {
	m.mu.RLock()
	c, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		slog.Warn("No channel connection for session", "session_id", sessionID)
		return false
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := wsjson.Write(ctx, c.ws, event); err != nil {
		slog.Error("Channel send failed", "session_id", sessionID, "error", err)
		m.Disconnect(sessionID)
		return false
	}
	return true
}

// ReceiveWithTimeout waits for one observation from the front end. It
// returns (nil, false) on timeout, when no connection exists, or when the
// next inbound message is not an observation. The loop issues at most one
// outstanding receive per session.
func (m *Manager) ReceiveWithTimeout(ctx context.Context, sessionID string, timeout time.Duration) (*Observation, bool) {
	m.mu.RLock()
	c, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-c.inbox:
		if msg.Type != "observation" {
			slog.Info("Ignoring non-observation message", "session_id", sessionID, "type", msg.Type)
			return nil, false
		}
		return &msg.Data, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// readLoop pumps inbound frames into the session inbox until the
// connection errors or the session is disconnected.
func (m *Manager) readLoop(ctx context.Context, sessionID string, c *conn) {
	for {
		var msg inboundMessage
		if err := wsjson.Read(ctx, c.ws, &msg); err != nil {
			if ctx.Err() == nil {
				slog.Debug("Channel read ended", "session_id", sessionID, "error", err)
				m.Disconnect(sessionID)
			}
			return
		}
		select {
		case c.inbox <- msg:
		case <-ctx.Done():
			return
		}
	}
}
