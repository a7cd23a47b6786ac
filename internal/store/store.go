// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/lemurlabs/lemur-agent/internal/domain"
)

// Repository persists editing sessions and shared configurations. Callers
// may assume read-your-own-write consistency and per-key independence;
// operations on different keys never contend on a global lock.
type Repository interface {
	// GetSession retrieves a session by ID. Returns (nil, nil) when absent.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// PutSession creates or fully replaces a session record.
	PutSession(ctx context.Context, session *domain.Session) error

	// GetShare retrieves a shared configuration by ID. Returns (nil, nil)
	// when absent.
	GetShare(ctx context.Context, id string) (*domain.SharedConfiguration, error)

	// PutShare creates or fully replaces a shared configuration.
	PutShare(ctx context.Context, share *domain.SharedConfiguration) error

	// DeleteShare removes a shared configuration.
	DeleteShare(ctx context.Context, id string) error

	// CleanupExpiredShares removes shares whose expiry has passed.
	CleanupExpiredShares(ctx context.Context, now time.Time) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
