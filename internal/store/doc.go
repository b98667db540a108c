// Package store provides session and message transcript persistence for awal-relay.
//
// # Overview
//
// The store records every chat session and its append-only transcript. It is
// deliberately small: two tables, no updates, no deletes. Messages are
// immutable once stored and ordered by a monotonic sequence number, so
// transcript order is exactly arrival order.
//
// # Data Model
//
// Session:
//
//	type Session struct {
//	    ID        string    // generated, unique per conversation
//	    AgentID   string    // fixed target agent for the session's lifetime
//	    CreatedAt time.Time
//	}
//
// Message:
//
//	type Message struct {
//	    ID        string // generated, unique
//	    SessionID string
//	    Sender    string // "user" or "agent"
//	    Content   string
//	    ReplyTo   string // agent replies reference the originating user message
//	    CreatedAt time.Time
//	}
//
// # SQLite Backend
//
// SQLiteStore uses modernc.org/sqlite (pure Go, no cgo). The default
// configuration points it at ":memory:", which keeps retention bounded by
// process lifetime. Pointing it at a file is a deployment choice.
//
//	s, err := store.NewSQLiteStore(":memory:")
//
// # Error Conventions
//
// Lookups against unknown sessions return ErrSessionNotFound. An existing
// session with no messages yields an empty slice, not an error.
package store
