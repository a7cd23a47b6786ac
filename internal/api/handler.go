// Package api provides HTTP handlers for the Lemur Agent API.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lemurlabs/lemur-agent/internal/agent"
	"github.com/lemurlabs/lemur-agent/internal/channel"
	"github.com/lemurlabs/lemur-agent/internal/config"
	"github.com/lemurlabs/lemur-agent/internal/oracle"
	"github.com/lemurlabs/lemur-agent/internal/store"
)

// Handler serves the agent and sharing endpoints.
type Handler struct {
	repo     store.Repository
	runner   *agent.Runner
	channels *channel.Manager
	oracles  *oracle.Registry
	cfg      *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, runner *agent.Runner, channels *channel.Manager, oracles *oracle.Registry, cfg *config.Config) *Handler {
	return &Handler{
		repo:     repo,
		runner:   runner,
		channels: channels,
		oracles:  oracles,
		cfg:      cfg,
	}
}

// RegisterRoutes attaches all API routes to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/agent/start", h.StartAgent)
	r.Get("/agent/{sessionID}/ws", h.AgentWebSocket)
	r.Post("/api/share", h.CreateShare)
	r.Get("/api/share/{shareID}", h.GetShare)
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

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDevelopment() {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.FrontendURL == "" {
		return true
	}
	return strings.HasPrefix(origin, h.cfg.FrontendURL)
}
