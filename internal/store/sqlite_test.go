// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers session CRUD, message persistence, and transcript ordering

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := &Session{
		ID:        "sess-1",
		AgentID:   "agent-1",
		CreatedAt: time.Now(),
	}

	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.ID != "sess-1" {
		t.Errorf("ID = %q, want %q", got.ID, "sess-1")
	}
	if got.AgentID != "agent-1" {
		t.Errorf("AgentID = %q, want %q", got.AgentID, "agent-1")
	}
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSession(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestCreateSession_Duplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := &Session{ID: "sess-dup", AgentID: "agent-1", CreatedAt: time.Now()}
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("first CreateSession failed: %v", err)
	}

	err := s.CreateSession(ctx, session)
	if !errors.Is(err, ErrDuplicateSession) {
		t.Errorf("err = %v, want ErrDuplicateSession", err)
	}
}

func TestSaveMessage_UnknownSession(t *testing.T) {
	s := newTestStore(t)

	msg := &Message{
		ID:        "msg-1",
		SessionID: "missing",
		Sender:    SenderUser,
		Content:   "hi",
		CreatedAt: time.Now(),
	}

	err := s.SaveMessage(context.Background(), msg)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestListMessages_EmptySession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := &Session{ID: "sess-empty", AgentID: "agent-1", CreatedAt: time.Now()}
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	msgs, err := s.ListMessages(ctx, "sess-empty")
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if msgs == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(msgs) != 0 {
		t.Errorf("expected 0 messages, got %d", len(msgs))
	}
}

func TestListMessages_UnknownSession(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ListMessages(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestListMessages_AppendOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := &Session{ID: "sess-order", AgentID: "agent-1", CreatedAt: time.Now()}
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// Same timestamp for every message: only the seq column can order these
	now := time.Now()
	for i := 0; i < 10; i++ {
		msg := &Message{
			ID:        fmt.Sprintf("msg-%d", i),
			SessionID: "sess-order",
			Sender:    SenderUser,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: now,
		}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage %d failed: %v", i, err)
		}
	}

	msgs, err := s.ListMessages(ctx, "sess-order")
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(msgs))
	}
	for i, msg := range msgs {
		want := fmt.Sprintf("msg-%d", i)
		if msg.ID != want {
			t.Errorf("message %d: ID = %q, want %q", i, msg.ID, want)
		}
	}
}

func TestSaveMessage_ReplyToRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := &Session{ID: "sess-reply", AgentID: "agent-1", CreatedAt: time.Now()}
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	userMsg := &Message{
		ID:        "msg-user",
		SessionID: "sess-reply",
		Sender:    SenderUser,
		Content:   "hi",
		CreatedAt: time.Now(),
	}
	agentMsg := &Message{
		ID:        "msg-agent",
		SessionID: "sess-reply",
		Sender:    SenderAgent,
		Content:   "hello",
		ReplyTo:   "msg-user",
		CreatedAt: time.Now(),
	}

	if err := s.SaveMessage(ctx, userMsg); err != nil {
		t.Fatalf("SaveMessage user failed: %v", err)
	}
	if err := s.SaveMessage(ctx, agentMsg); err != nil {
		t.Fatalf("SaveMessage agent failed: %v", err)
	}

	msgs, err := s.ListMessages(ctx, "sess-reply")
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ReplyTo != "" {
		t.Errorf("user message ReplyTo = %q, want empty", msgs[0].ReplyTo)
	}
	if msgs[1].ReplyTo != "msg-user" {
		t.Errorf("agent message ReplyTo = %q, want %q", msgs[1].ReplyTo, "msg-user")
	}
	if msgs[1].Sender != SenderAgent {
		t.Errorf("agent message Sender = %q, want %q", msgs[1].Sender, SenderAgent)
	}
}

func TestMessages_IsolatedPerSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"sess-a", "sess-b"} {
		if err := s.CreateSession(ctx, &Session{ID: id, AgentID: "agent-1", CreatedAt: time.Now()}); err != nil {
			t.Fatalf("CreateSession %s failed: %v", id, err)
		}
	}

	if err := s.SaveMessage(ctx, &Message{ID: "m-a", SessionID: "sess-a", Sender: SenderUser, Content: "a", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	msgs, err := s.ListMessages(ctx, "sess-b")
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected 0 messages in sess-b, got %d", len(msgs))
	}
}
