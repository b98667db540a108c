// ABOUTME: In-memory registry of agents and their presence state.
// ABOUTME: Tracks which connection currently represents each agent.

package directory

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound indicates the specified agent was not found.
var ErrNotFound = errors.New("agent not found")

// ErrAgentOffline indicates the agent has no live connection.
var ErrAgentOffline = errors.New("agent is offline")

// Conn is the directory's view of an agent's live connection.
// The gateway's websocket wrapper implements it.
type Conn interface {
	// Forward delivers a chat message addressed to the agent.
	Forward(ctx context.Context, sessionID, messageID, content string) error

	// SessionStarted notifies the agent that a new session targets it.
	SessionStarted(ctx context.Context, sessionID string) error

	// Kick forcibly closes the connection.
	Kick(reason string)
}

// Agent is a registered agent. Credential is the one-time-issued secret
// the agent presents at connection time; it is returned only from Register.
type Agent struct {
	ID          string
	Credential  string
	Name        string
	Description string
}

// Info is the public listing view of an agent. Online is derived from
// presence at call time, never stored.
type Info struct {
	ID          string
	Name        string
	Description string
	Online      bool
}

// record is the directory's internal entry: registration data plus the
// connection (if any) currently representing the agent.
type record struct {
	agent Agent
	conn  Conn
}

// Directory is the in-memory agent registry and presence tracker.
// All operations are safe for concurrent use; presence changes are
// visible immediately to List, IsOnline, and WhileOnline.
type Directory struct {
	mu     sync.RWMutex
	agents map[string]*record // agent id -> record
	creds  map[string]string  // credential -> agent id
	logger *slog.Logger
}

// New creates an empty Directory.
func New(logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		agents: make(map[string]*record),
		creds:  make(map[string]string),
		logger: logger.With("component", "directory"),
	}
}

// Register creates a new agent with a fresh id and credential and stores it
// with no connection. The returned Agent includes the credential; it is shown
// once to the registering party and must be treated as a secret.
func (d *Directory) Register(name, description string) *Agent {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := uuid.New().String()[:8]
	for _, exists := d.agents[id]; exists; _, exists = d.agents[id] {
		id = uuid.New().String()[:8]
	}

	agent := Agent{
		ID:          id,
		Credential:  newCredential(),
		Name:        name,
		Description: description,
	}
	d.agents[id] = &record{agent: agent}
	d.creds[agent.Credential] = id

	d.logger.Info("agent registered", "agent_id", id, "name", name)
	return &agent
}

// newCredential generates an unguessable agent credential.
// Format: "agt_" followed by 24 hex characters.
func newCredential() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "agt_" + raw[:24]
}

// Get retrieves an agent by id.
func (d *Directory) Get(id string) (*Agent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.agents[id]
	if !ok {
		return nil, false
	}
	agent := rec.agent
	return &agent, true
}

// LookupCredential retrieves an agent by its secret credential.
func (d *Directory) LookupCredential(credential string) (*Agent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.creds[credential]
	if !ok {
		return nil, false
	}
	agent := d.agents[id].agent
	return &agent, true
}

// List returns public information about all registered agents.
func (d *Directory) List() []Info {
	d.mu.RLock()
	defer d.mu.RUnlock()

	infos := make([]Info, 0, len(d.agents))
	for _, rec := range d.agents {
		infos = append(infos, Info{
			ID:          rec.agent.ID,
			Name:        rec.agent.Name,
			Description: rec.agent.Description,
			Online:      rec.conn != nil,
		})
	}
	return infos
}

// Remove deregisters an agent. If the agent currently has a live connection,
// that connection is forcibly closed as a side effect.
// Returns ErrNotFound for unknown ids.
func (d *Directory) Remove(id string) error {
	d.mu.Lock()
	rec, ok := d.agents[id]
	if !ok {
		d.mu.Unlock()
		return ErrNotFound
	}
	conn := rec.conn
	delete(d.creds, rec.agent.Credential)
	delete(d.agents, id)
	d.mu.Unlock()

	d.logger.Info("agent removed", "agent_id", id, "name", rec.agent.Name)

	// Kick outside the lock: the connection's close path detaches, and a
	// synchronous callback into the directory must not deadlock.
	if conn != nil {
		conn.Kick("agent deregistered")
	}
	return nil
}

// Attach records conn as the agent's current representative. If the agent
// already had a different live connection, that earlier connection is demoted:
// its future detach is a no-op and its events no longer speak for the agent.
// The demoted connection is not closed here.
func (d *Directory) Attach(agentID string, conn Conn) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.agents[agentID]
	if !ok {
		return ErrNotFound
	}

	if rec.conn != nil && rec.conn != conn {
		d.logger.Info("superseding previous connection", "agent_id", agentID)
	}
	rec.conn = conn

	d.logger.Info("agent online", "agent_id", agentID, "name", rec.agent.Name)
	return nil
}

// Detach clears presence for whichever agent conn currently represents.
// It is a guarded no-op when conn has been superseded by a newer attach,
// so stale disconnects never knock a freshly reconnected agent offline.
// Returns the affected agent id when presence was actually cleared.
func (d *Directory) Detach(conn Conn) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, rec := range d.agents {
		if rec.conn == conn {
			rec.conn = nil
			d.logger.Info("agent offline", "agent_id", id, "name", rec.agent.Name)
			return id, true
		}
	}
	return "", false
}

// IsOnline reports whether the agent currently has a live connection.
func (d *Directory) IsOnline(agentID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.agents[agentID]
	return ok && rec.conn != nil
}

// ConnOf returns the agent's current connection.
// Returns ErrNotFound for unknown agents and ErrAgentOffline when the agent
// is registered but has no live connection.
func (d *Directory) ConnOf(agentID string) (Conn, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.agents[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.conn == nil {
		return nil, ErrAgentOffline
	}
	return rec.conn, nil
}

// WhileOnline runs fn with the agent's current connection while holding the
// directory read lock, so presence cannot change mid-callback. This closes
// the check-online-then-act race: anything fn records happened while the
// agent was verifiably online.
//
// fn must not call back into Directory methods that take the write lock.
func (d *Directory) WhileOnline(agentID string, fn func(conn Conn) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	if rec.conn == nil {
		return ErrAgentOffline
	}
	return fn(rec.conn)
}
