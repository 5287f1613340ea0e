package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("store: not found")

// Store is the durable record of sessions and segments.
// Implementations serialize writes; callers may use it from many goroutines.
type Store interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// DeleteSession removes the session and every segment it owns.
	DeleteSession(ctx context.Context, id string) error
	// ListSessions returns sessions newest first with segment counts.
	ListSessions(ctx context.Context) ([]SessionSummary, error)

	InsertSegment(ctx context.Context, segment *Segment) error
	// UpdateSegment persists status, transcription, retries and source.
	UpdateSegment(ctx context.Context, segment *Segment) error
	GetSegment(ctx context.Context, id string) (*Segment, error)
	// SessionSegments returns the session's segments in capture order.
	SessionSegments(ctx context.Context, sessionID string) ([]Segment, error)
	// PendingSegments returns all pending segments across sessions, oldest first.
	PendingSegments(ctx context.Context) ([]Segment, error)

	Close() error
}
