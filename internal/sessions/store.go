// Package sessions persists chat transcripts for the interactive mode.
package sessions

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Session is one conversation.
type Session struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TranscriptMessage is one persisted message.
type TranscriptMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the transcript persistence contract.
type Store interface {
	// CreateSession records a new session.
	CreateSession(ctx context.Context, session *Session) error

	// GetSession returns a session by id.
	GetSession(ctx context.Context, id string) (*Session, error)

	// ListSessions returns sessions newest first.
	ListSessions(ctx context.Context, limit int) ([]*Session, error)

	// AppendMessage adds one message to a session transcript.
	AppendMessage(ctx context.Context, msg *TranscriptMessage) error

	// History returns a session's messages in append order, up to limit
	// (0 means all).
	History(ctx context.Context, sessionID string, limit int) ([]*TranscriptMessage, error)

	// Close releases the store.
	Close() error
}
