// Package session brokers chat sessions and correlates requests to replies.
//
// # Overview
//
// The Service is the relay's correlation engine. A user message posted to a
// session is recorded, forwarded over the target agent's live connection,
// and held open until the agent's reply — arriving later on a different
// logical channel — is matched back by message id, or the deadline elapses.
//
// # Pending Slots
//
// Every forwarded message registers a pending slot keyed by its message id:
//
//	pending map[string]chan string
//
// A slot resolves exactly once. The reply path and the timeout path race to
// compare-and-remove the slot under one mutex; whichever observes it present
// performs the resolution and the loser is a no-op. Replies bearing an id
// with no live slot (late, duplicate, or from a demoted connection) are
// logged and dropped.
//
// # Ordering
//
// Replies are matched strictly by message id, not arrival order, so
// out-of-order replies route correctly. Slots are independent: one slow
// agent never delays another session's traffic.
//
// # Failure Semantics
//
//   - Agent offline at post time: directory.ErrAgentOffline, nothing recorded.
//   - Deadline elapsed: ErrAgentTimeout; the user message stays in the
//     transcript, no agent message is appended, and the session remains
//     usable.
//   - Agent disconnects mid-wait: the slot is left to expire by timeout
//     rather than failed eagerly.
package session
