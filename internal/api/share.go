package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lemurlabs/lemur-agent/internal/domain"
	"github.com/lemurlabs/lemur-agent/internal/shared"
)

const defaultShareExpiryDays = 30

// CreateShareRequest is the payload for publishing a modified page.
// ExpiresInDays defaults to 30 when omitted; zero or negative disables
// expiry.
type CreateShareRequest struct {
	URL           string `json:"url"`
	HTML          string `json:"html"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	ExpiresInDays *int   `json:"expires_in_days,omitempty"`
}

// CreateShareResponse carries the share ID and the URL to hand out.
type CreateShareResponse struct {
	ShareID      string `json:"share_id"`
	ShareableURL string `json:"shareable_url"`
	Message      string `json:"message"`
}

// GetShareResponse is the public view of a shared configuration.
type GetShareResponse struct {
	OriginalURL  string    `json:"original_url"`
	ModifiedHTML string    `json:"modified_html"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateShare publishes a modified page under a short ID reachable via the
// original URL with an aid query parameter.
func (h *Handler) CreateShare(w http.ResponseWriter, r *http.Request) {
	var req CreateShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" || req.HTML == "" || req.Title == "" {
		Error(w, http.StatusBadRequest, "url, html and title are required")
		return
	}

	// Short IDs keep shareable URLs readable.
	shareID := uuid.NewString()[:8]

	expiryDays := defaultShareExpiryDays
	if req.ExpiresInDays != nil {
		expiryDays = *req.ExpiresInDays
	}
	var expiresAt *time.Time
	if expiryDays > 0 {
		exp := time.Now().AddDate(0, 0, expiryDays)
		expiresAt = &exp
	}

	share := &domain.SharedConfiguration{
		ID:           shareID,
		OriginalURL:  req.URL,
		ModifiedHTML: req.HTML,
		Title:        req.Title,
		Description:  req.Description,
		CreatedAt:    time.Now(),
		ExpiresAt:    expiresAt,
	}

	if err := h.repo.PutShare(r.Context(), share); err != nil {
		slog.Error("Failed to store share", "share_id", shareID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create shareable URL")
		return
	}

	shareableURL, err := appendShareParam(req.URL, shareID)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid url")
		return
	}

	slog.Info("Share created", "share_id", shareID, "url", req.URL)
	JSON(w, http.StatusOK, CreateShareResponse{
		ShareID:      shareID,
		ShareableURL: shareableURL,
		Message:      "Shareable URL created successfully",
	})
}

// GetShare retrieves a shared configuration, expiring it lazily and
// counting the view.
func (h *Handler) GetShare(w http.ResponseWriter, r *http.Request) {
	shareID := chi.URLParam(r, "shareID")

	share, err := h.repo.GetShare(r.Context(), shareID)
	if err != nil {
		slog.Error("Failed to load share", "share_id", shareID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to retrieve shared configuration")
		return
	}
	if share == nil {
		Error(w, http.StatusNotFound, "shared configuration not found")
		return
	}

	if share.Expired(time.Now()) {
		if err := h.repo.DeleteShare(r.Context(), shareID); err != nil {
			slog.Warn("Failed to delete expired share", "share_id", shareID, "error", err)
		}
		Error(w, http.StatusGone, "shared configuration has expired")
		return
	}

	share.ViewCount++
	if err := h.putShareWithRetry(r, share); err != nil {
		// The view counter is best effort; the share itself is still served.
		slog.Warn("Failed to bump share view count", "share_id", shareID, "error", err)
	}

	JSON(w, http.StatusOK, GetShareResponse{
		OriginalURL:  share.OriginalURL,
		ModifiedHTML: share.ModifiedHTML,
		Title:        share.Title,
		Description:  share.Description,
		CreatedAt:    share.CreatedAt,
	})
}

// putShareWithRetry retries view-count writes that lose a race with the
// share sweeper on SQLITE_BUSY.
func (h *Handler) putShareWithRetry(r *http.Request, share *domain.SharedConfiguration) error {
	var err error
	delay := 50 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		err = h.repo.PutShare(r.Context(), share)
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}

// appendShareParam returns the original URL with the aid query parameter
// set to the share ID.
func appendShareParam(rawURL, shareID string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set("aid", shareID)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
