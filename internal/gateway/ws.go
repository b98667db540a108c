// ABOUTME: Agent websocket endpoint and per-connection lifecycle.
// ABOUTME: Connections move Unauthenticated -> Authenticated -> Closed, never backward.

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/awalbot/relay/internal/directory"
)

const (
	// authDeadline bounds how long a connection may sit unauthenticated.
	authDeadline = 10 * time.Second

	// writeTimeout bounds any single outbound frame.
	writeTimeout = 10 * time.Second
)

// agentSocket wraps a websocket connection as the directory's Conn.
// Writes are serialized by a mutex: forwards, session notifications, and
// handshake frames may originate from different goroutines.
type agentSocket struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (s *agentSocket) send(ctx context.Context, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.ws.Write(ctx, websocket.MessageText, data)
}

// Forward delivers a user message awaiting the agent's reply.
func (s *agentSocket) Forward(ctx context.Context, sessionID, messageID, content string) error {
	return s.send(ctx, &Envelope{
		Type:      EventMessage,
		SessionID: sessionID,
		MessageID: messageID,
		Content:   content,
	})
}

// SessionStarted notifies the agent that a new session targets it.
func (s *agentSocket) SessionStarted(ctx context.Context, sessionID string) error {
	return s.send(ctx, &Envelope{Type: EventSessionStart, SessionID: sessionID})
}

// Kick forcibly closes the connection. The read loop observes the close and
// runs the normal disconnect path.
func (s *agentSocket) Kick(reason string) {
	_ = s.ws.Close(websocket.StatusNormalClosure, reason)
}

// handleAgentSocket upgrades the request and walks the connection through its
// lifecycle: authenticate, attach, pump events, detach.
func (g *Gateway) handleAgentSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		g.logger.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	sock := &agentSocket{ws: ws}

	agent, ok := g.authenticate(r.Context(), sock)
	if !ok {
		_ = ws.Close(websocket.StatusPolicyViolation, "authentication failed")
		return
	}

	if err := g.directory.Attach(agent.ID, sock); err != nil {
		// Agent was deregistered between credential lookup and attach
		_ = sock.send(r.Context(), &Envelope{Type: EventAuthError, Message: "agent no longer registered"})
		_ = ws.Close(websocket.StatusPolicyViolation, "agent no longer registered")
		return
	}

	if err := sock.send(r.Context(), &Envelope{Type: EventAuthOK, AgentID: agent.ID, Name: agent.Name}); err != nil {
		g.logger.Warn("auth_ok write failed", "agent_id", agent.ID, "error", err)
	}

	g.logger.Info("agent connected", "agent_id", agent.ID, "name", agent.Name, "remote", r.RemoteAddr)

	g.readLoop(r.Context(), sock, agent.ID)

	// Guarded: a no-op if a newer connection superseded this one
	if id, cleared := g.directory.Detach(sock); cleared {
		g.logger.Info("agent disconnected", "agent_id", id)
	}
	_ = ws.Close(websocket.StatusNormalClosure, "")
}

// authenticate reads the first frame, which must be an auth event carrying a
// valid credential. Anything else closes the connection without it ever
// becoming visible as presence.
func (g *Gateway) authenticate(ctx context.Context, sock *agentSocket) (*directory.Agent, bool) {
	ctx, cancel := context.WithTimeout(ctx, authDeadline)
	defer cancel()

	_, data, err := sock.ws.Read(ctx)
	if err != nil {
		g.logger.Debug("connection dropped before auth", "error", err)
		return nil, false
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != EventAuth {
		_ = sock.send(ctx, &Envelope{Type: EventAuthError, Message: "expected auth"})
		g.logger.Warn("non-auth frame on unauthenticated connection")
		return nil, false
	}

	agent, ok := g.directory.LookupCredential(env.Token)
	if !ok {
		_ = sock.send(ctx, &Envelope{Type: EventAuthError, Message: "invalid token"})
		g.logger.Warn("agent auth failed: invalid credential")
		return nil, false
	}
	return agent, true
}

// readLoop pumps inbound events until the connection closes. Reply events
// route to the correlation engine; everything else is logged and dropped.
func (g *Gateway) readLoop(ctx context.Context, sock *agentSocket, agentID string) {
	for {
		_, data, err := sock.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				g.logger.Debug("agent closed connection", "agent_id", agentID)
			} else {
				g.logger.Debug("agent read ended", "agent_id", agentID, "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.logger.Warn("dropping malformed frame", "agent_id", agentID, "error", err)
			continue
		}

		switch env.Type {
		case EventReply:
			g.session.Resolve(env.MessageID, env.Content)
		default:
			g.logger.Warn("dropping unexpected event", "agent_id", agentID, "type", env.Type)
		}
	}
}
