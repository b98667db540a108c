// Package directory manages registered agents and their presence.
//
// # Overview
//
// The directory is the in-memory registry mapping agent ids and credentials
// to agent identities, and the presence tracker recording which connection
// (if any) currently represents each agent. It is the single source of truth
// for "is this agent reachable right now".
//
// # Registration
//
// Register generates a fresh id and an unguessable credential:
//
//	agent := dir.Register("Support Bot", "answers questions")
//	// agent.ID:         8-char identifier, stable for the agent's lifetime
//	// agent.Credential: "agt_" + 24 hex chars, shown once, presented at connect
//
// # Presence
//
// At most one live connection represents an agent at any instant. A new
// successful Attach supersedes the previous connection's claim to the
// identity: the old connection is demoted, not closed, and its eventual
// Detach is a guarded no-op. This avoids the race between hunting down a
// dying connection and accepting a fresh one.
//
// Presence changes are visible immediately: there is no caching or staleness
// window between Attach/Detach and List, IsOnline, or routing decisions.
//
// # Atomic presence-dependent work
//
// WhileOnline runs a callback under the directory read lock so that presence
// cannot change while the callback executes. The session layer uses it to
// make "check agent online, then create session" a single atomic step.
//
// # Thread Safety
//
// All Directory methods are safe for concurrent use. A single RWMutex
// protects the registry; operations are linearizable per key.
package directory
