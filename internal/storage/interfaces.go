package storage

import (
	"context"
	"io"

	"github.com/gbsoe/FiLotV2-sub001/internal/models"
)

// AttemptCache fans attempt events out to live subscribers and keeps a short
// per-user history.
type AttemptCache interface {
	// PublishAttempt pushes an event to the user's channel and the global
	// channel and records it in the user's recent list.
	PublishAttempt(ctx context.Context, ev *models.AttemptEvent) error

	// GetRecentAttempts returns the newest events for a user, newest first.
	GetRecentAttempts(ctx context.Context, userID string, limit int64) ([]*models.AttemptEvent, error)

	// SubscribeAttempts streams events for one user, or for everyone when
	// userID is empty.
	SubscribeAttempts(ctx context.Context, userID string) (<-chan *models.AttemptEvent, error)

	Ping(ctx context.Context) error
	io.Closer
}

// AttemptStore is the append-only analytics sink for finished attempts.
type AttemptStore interface {
	InsertAttempt(ctx context.Context, ev *models.AttemptEvent) error
	Ping(ctx context.Context) error
	io.Closer
}
