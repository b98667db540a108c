// ABOUTME: Wire protocol for the agent websocket link.
// ABOUTME: A flat JSON envelope tagged by event type; connectors speak the same shape.

package gateway

// Event types carried in Envelope.Type.
//
// Inbound (agent -> relay):
//   - auth: first frame on every connection, carries the credential
//   - reply: the agent's answer to a previously forwarded message
//
// Outbound (relay -> agent):
//   - auth_ok / auth_error: handshake outcome
//   - session_start: a new session now targets this agent
//   - message: a user message awaiting the agent's reply
const (
	EventAuth         = "auth"
	EventAuthOK       = "auth_ok"
	EventAuthError    = "auth_error"
	EventSessionStart = "session_start"
	EventMessage      = "message"
	EventReply        = "reply"
)

// Envelope is the single frame shape used in both directions. Fields not
// meaningful for a given event type are omitted on the wire.
type Envelope struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Message   string `json:"message,omitempty"`
}
