// Package gateway is the relay's connection layer.
//
// # Surfaces
//
// Two surfaces share one HTTP server:
//
//   - a REST API for users: register and list agents, open sessions, post
//     messages and read transcripts;
//   - a websocket endpoint (/ws/agent) where agent connectors attach.
//
// # Connection lifecycle
//
// Every agent connection moves through three states, never backward:
//
//	Unauthenticated -> Authenticated -> Closed
//
// The first frame must be an auth event with a valid credential. Success
// attaches the connection to the directory (making the agent online) and
// answers auth_ok; failure answers auth_error and closes without the
// connection ever being visible as presence. A transport disconnect from any
// state runs a guarded detach, so a stale close never knocks a reconnected
// agent offline.
//
// Frames are flat JSON envelopes (see Envelope). Outbound writes are
// serialized per connection; inbound reply events route to the session
// service's correlation table.
package gateway
