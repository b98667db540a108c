// ABOUTME: Store interface and data types for awal-relay session transcripts
// ABOUTME: Defines Session, Message structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a requested session does not exist
var ErrSessionNotFound = errors.New("session not found")

// ErrDuplicateSession is returned when trying to create a session that already exists
var ErrDuplicateSession = errors.New("session already exists")

// Sender role constants for messages
const (
	SenderUser  = "user"
	SenderAgent = "agent"
)

// Session represents one chat conversation between a caller and a fixed agent.
// The target agent is set at creation time and never changes.
type Session struct {
	ID        string
	AgentID   string
	CreatedAt time.Time
}

// Message represents a single message within a session transcript.
// Messages are immutable once stored and strictly append-ordered.
type Message struct {
	ID        string
	SessionID string
	Sender    string // "user" or "agent"
	Content   string
	ReplyTo   string // for agent replies: id of the originating user message
	CreatedAt time.Time
}

// Store defines the interface for session and message persistence
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)

	// Messages (append-only transcript)
	SaveMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)

	// Close releases any resources held by the store
	Close() error
}
