package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lemurlabs/lemur-agent/internal/domain"
	"github.com/lemurlabs/lemur-agent/internal/shield"
	"github.com/lemurlabs/lemur-agent/internal/store"
)

// CreateSession shields the document, builds the session record, and
// persists it. The placeholder map is created here, once; it is never
// regenerated on later turns.
func CreateSession(ctx context.Context, repo store.Repository, html, query, backend, initialScreenshot string, maxIterations int) (*domain.Session, error) {
	shielded, placeholders := shield.Protect(html)

	now := time.Now()
	sess := &domain.Session{
		ID:                  uuid.NewString(),
		Status:              domain.StatusCreated,
		MaxIterations:       maxIterations,
		OriginalHTML:        html,
		CurrentHTML:         html,
		ShieldedHTML:        shielded,
		CurrentShieldedHTML: shielded,
		Placeholders:        placeholders,
		OriginalQuery:       query,
		Backend:             backend,
		InitialScreenshot:   initialScreenshot,
		Turns:               []domain.Turn{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := repo.PutSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist new session: %w", err)
	}
	return sess, nil
}
