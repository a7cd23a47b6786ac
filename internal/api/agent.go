package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/lemurlabs/lemur-agent/internal/agent"
)

// StartAgentRequest is the payload for creating a new editing session.
type StartAgentRequest struct {
	HTML              string `json:"html"`
	Query             string `json:"query"`
	ModelType         string `json:"model_type,omitempty"`
	InitialScreenshot string `json:"initial_screenshot,omitempty"`
}

// StartAgentResponse carries the new session's ID.
type StartAgentResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// StartAgent creates a new agent session. The editing loop itself starts
// when the front end connects to the session's websocket.
func (h *Handler) StartAgent(w http.ResponseWriter, r *http.Request) {
	var req StartAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.HTML == "" || req.Query == "" {
		Error(w, http.StatusBadRequest, "html and query are required")
		return
	}

	backend := req.ModelType
	if backend == "" {
		backend = h.cfg.Oracle.Backend
	}
	if _, err := h.oracles.Resolve(backend); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := agent.CreateSession(r.Context(), h.repo, req.HTML, req.Query, backend, req.InitialScreenshot, h.cfg.MaxIterations)
	if err != nil {
		slog.Error("Failed to create agent session", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	slog.Info("Agent session created", "session_id", sess.ID, "backend", backend)
	JSON(w, http.StatusOK, StartAgentResponse{
		SessionID: sess.ID,
		Message:   "Agent session created. Connect via WebSocket.",
	})
}

// AgentWebSocket upgrades the connection, binds it to the session's
// channel, and runs the session loop until a terminal state or until the
// connection drops.
func (h *Handler) AgentWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	slog.Info("WebSocket connection request", "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	sess, err := h.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	h.channels.Connect(sessionID, ws)
	defer h.channels.Disconnect(sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.runner.Run(ctx, sessionID)
	slog.Info("Agent session loop ended", "session_id", sessionID)
}
