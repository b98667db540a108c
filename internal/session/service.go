// ABOUTME: Session service and correlation engine for awal-relay.
// ABOUTME: Brokers one outbound request to exactly one inbound reply per message id.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/awalbot/relay/internal/directory"
	"github.com/awalbot/relay/internal/store"
)

// ErrAgentTimeout indicates the forwarded request's deadline elapsed with no
// matching reply. The session remains usable for further messages.
var ErrAgentTimeout = errors.New("agent did not reply before the deadline")

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	CreateSession(ctx context.Context, session *store.Session) error
	GetSession(ctx context.Context, id string) (*store.Session, error)
	SaveMessage(ctx context.Context, msg *store.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]*store.Message, error)
}

// Presence defines what the service needs from the directory layer
type Presence interface {
	WhileOnline(agentID string, fn func(conn directory.Conn) error) error
	ConnOf(agentID string) (directory.Conn, error)
}

// Service owns chat sessions and the pending-reply correlation table.
// It is safe for concurrent use; unrelated sessions and in-flight messages
// never serialize on each other.
type Service struct {
	store        ConversationStore
	presence     Presence
	pending      *pendingSlots
	replyTimeout time.Duration
	logger       *slog.Logger
}

// New creates a session Service. replyTimeout is the default deadline used
// when Post is called without an explicit one.
func New(s ConversationStore, presence Presence, replyTimeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session")
	return &Service{
		store:        s,
		presence:     presence,
		pending:      newPendingSlots(logger),
		replyTimeout: replyTimeout,
		logger:       logger,
	}
}

// Create starts a new session targeting agentID.
// The presence check and the session insert happen as one atomic step
// (under the directory read lock), so the target agent was verifiably
// online at creation time. The agent is notified that the session started.
//
// Returns directory.ErrNotFound for unknown agents and
// directory.ErrAgentOffline when the agent has no live connection.
func (s *Service) Create(ctx context.Context, agentID string) (*store.Session, error) {
	sess := &store.Session{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		CreatedAt: time.Now(),
	}

	err := s.presence.WhileOnline(agentID, func(conn directory.Conn) error {
		if err := s.store.CreateSession(ctx, sess); err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		if err := conn.SessionStarted(ctx, sess.ID); err != nil {
			// The session exists regardless; the agent just missed the heads-up
			s.logger.Warn("session start notification failed",
				"session_id", sess.ID,
				"agent_id", agentID,
				"error", err,
			)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session created", "session_id", sess.ID, "agent_id", agentID)
	return sess, nil
}

// Post records a user message, forwards it to the session's agent, and
// suspends the caller until the matching reply arrives or timeout elapses.
// A timeout of zero means the service default.
//
// The user message is persisted before the reply is awaited, so a failure
// while waiting still leaves the outbound leg recorded. On success both
// messages are returned; on ErrAgentTimeout only the user message is, and
// nothing is appended for the missing reply.
//
// If the agent disconnects after the forward but before the reply, the slot
// is left to expire by timeout rather than failed immediately.
func (s *Service) Post(ctx context.Context, sessionID, content string, timeout time.Duration) (userMsg, agentMsg *store.Message, err error) {
	if timeout <= 0 {
		timeout = s.replyTimeout
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	// Presence is volatile: re-checked here, not only at session creation
	conn, err := s.presence.ConnOf(sess.AgentID)
	if err != nil {
		return nil, nil, err
	}

	userMsg = &store.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Sender:    store.SenderUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveMessage(ctx, userMsg); err != nil {
		return nil, nil, fmt.Errorf("recording user message: %w", err)
	}

	replyCh := s.pending.add(userMsg.ID)

	if err := conn.Forward(ctx, sessionID, userMsg.ID, content); err != nil {
		s.pending.remove(userMsg.ID)
		s.logger.Warn("forward failed", "session_id", sessionID, "message_id", userMsg.ID, "error", err)
		return userMsg, nil, directory.ErrAgentOffline
	}

	s.logger.Debug("message forwarded, awaiting reply",
		"session_id", sessionID,
		"message_id", userMsg.ID,
		"timeout", timeout,
	)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var reply string
	select {
	case reply = <-replyCh:
		// Slot already removed by Resolve

	case <-timer.C:
		if s.pending.remove(userMsg.ID) {
			s.logger.Info("reply deadline elapsed", "session_id", sessionID, "message_id", userMsg.ID)
			return userMsg, nil, ErrAgentTimeout
		}
		// Lost the race: a reply resolved the slot concurrently
		reply = <-replyCh

	case <-ctx.Done():
		if s.pending.remove(userMsg.ID) {
			return userMsg, nil, ctx.Err()
		}
		reply = <-replyCh
	}

	agentMsg = &store.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Sender:    store.SenderAgent,
		Content:   reply,
		ReplyTo:   userMsg.ID,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveMessage(ctx, agentMsg); err != nil {
		return userMsg, nil, fmt.Errorf("recording agent reply: %w", err)
	}

	return userMsg, agentMsg, nil
}

// Resolve routes an inbound reply event to the pending slot for messageID.
// Returns false when no live slot exists: late or duplicate replies are
// logged and silently dropped, never surfaced as an error.
func (s *Service) Resolve(messageID, content string) bool {
	if s.pending.resolve(messageID, content) {
		return true
	}
	s.logger.Warn("dropping reply with no pending slot", "message_id", messageID)
	return false
}

// Messages returns the session's transcript in append order.
// Returns store.ErrSessionNotFound for unknown sessions; an existing but
// empty session yields an empty slice.
func (s *Service) Messages(ctx context.Context, sessionID string) ([]*store.Message, error) {
	return s.store.ListMessages(ctx, sessionID)
}

// PendingCount reports the number of in-flight requests awaiting a reply.
func (s *Service) PendingCount() int {
	return s.pending.size()
}
