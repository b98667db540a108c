// ABOUTME: HTTP API handlers for agent registration and chat sessions.
// ABOUTME: JSON in, JSON out; errors map to a small set of status codes.

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/awalbot/relay/internal/directory"
	"github.com/awalbot/relay/internal/session"
	"github.com/awalbot/relay/internal/store"
)

// RegisterAgentRequest is the JSON request body for POST /agents.
type RegisterAgentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RegisterAgentResponse is the JSON response for POST /agents. Token is shown
// exactly once; Command is a ready-to-run connector invocation.
type RegisterAgentResponse struct {
	ID      string `json:"id"`
	Token   string `json:"token"`
	Command string `json:"command"`
}

// AgentResponse is one entry in the GET /agents listing.
type AgentResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Online      bool   `json:"online"`
}

// CreateSessionRequest is the JSON request body for POST /sessions.
type CreateSessionRequest struct {
	AgentID string `json:"agent_id"`
}

// CreateSessionResponse is the JSON response for POST /sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
}

// PostMessageRequest is the JSON request body for POST /sessions/{id}/messages.
// Timeout is an optional Go duration string overriding the configured default.
type PostMessageRequest struct {
	Content string `json:"content"`
	Timeout string `json:"timeout,omitempty"`
}

// MessageResponse is the JSON view of one transcript message.
type MessageResponse struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	ReplyTo   string `json:"reply_to,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ExchangeResponse is the JSON response for POST /sessions/{id}/messages.
type ExchangeResponse struct {
	UserMessage  MessageResponse  `json:"user_message"`
	AgentMessage *MessageResponse `json:"agent_message,omitempty"`
}

// TranscriptResponse is the JSON response for GET /sessions/{id}/messages.
type TranscriptResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []MessageResponse `json:"messages"`
}

// handleRegisterAgent handles POST /agents.
func (g *Gateway) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		g.sendJSONError(w, http.StatusBadRequest, "name is required")
		return
	}

	agent := g.directory.Register(req.Name, req.Description)

	g.writeJSON(w, http.StatusCreated, RegisterAgentResponse{
		ID:      agent.ID,
		Token:   agent.Credential,
		Command: fmt.Sprintf("awal-agent --token %s", agent.Credential),
	})
}

// handleListAgents handles GET /agents.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	infos := g.directory.List()
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	response := make([]AgentResponse, len(infos))
	for i, info := range infos {
		response[i] = AgentResponse{
			ID:          info.ID,
			Name:        info.Name,
			Description: info.Description,
			Online:      info.Online,
		}
	}
	g.writeJSON(w, http.StatusOK, response)
}

// handleDeleteAgent handles DELETE /agents/{id}. A live connection is kicked
// as a side effect of removal.
func (g *Gateway) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := g.directory.Remove(id); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "agent not found")
			return
		}
		g.logger.Error("failed to remove agent", "agent_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleCreateSession handles POST /sessions. The target agent must be online
// at creation time.
func (g *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AgentID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	sess, err := g.session.Create(r.Context(), req.AgentID)
	if err != nil {
		g.sendSessionError(w, err)
		return
	}

	agent, _ := g.directory.Get(req.AgentID)
	agentName := ""
	if agent != nil {
		agentName = agent.Name
	}

	g.writeJSON(w, http.StatusCreated, CreateSessionResponse{
		SessionID: sess.ID,
		AgentID:   sess.AgentID,
		AgentName: agentName,
	})
}

// handlePostMessage handles POST /sessions/{id}/messages. The request blocks
// until the agent replies or the deadline elapses.
func (g *Gateway) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		g.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}

	var timeout time.Duration
	if req.Timeout != "" {
		parsed, err := time.ParseDuration(req.Timeout)
		if err != nil || parsed <= 0 {
			g.sendJSONError(w, http.StatusBadRequest, "timeout must be a positive duration")
			return
		}
		timeout = parsed
	}

	userMsg, agentMsg, err := g.session.Post(r.Context(), sessionID, req.Content, timeout)
	if err != nil {
		g.sendSessionError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, ExchangeResponse{
		UserMessage:  toMessageResponse(userMsg),
		AgentMessage: toMessageResponsePtr(agentMsg),
	})
}

// handleListMessages handles GET /sessions/{id}/messages.
func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	msgs, err := g.session.Messages(r.Context(), sessionID)
	if err != nil {
		g.sendSessionError(w, err)
		return
	}

	response := TranscriptResponse{
		SessionID: sessionID,
		Messages:  make([]MessageResponse, len(msgs)),
	}
	for i, msg := range msgs {
		response.Messages[i] = toMessageResponse(msg)
	}
	g.writeJSON(w, http.StatusOK, response)
}

// sendSessionError maps session/directory/store errors to HTTP status codes.
func (g *Gateway) sendSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		g.sendJSONError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, directory.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, directory.ErrAgentOffline):
		g.sendJSONError(w, http.StatusServiceUnavailable, "agent unavailable")
	case errors.Is(err, session.ErrAgentTimeout):
		g.sendJSONError(w, http.StatusGatewayTimeout, "agent did not reply in time")
	default:
		g.logger.Error("request failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once at least one agent is online.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	online := 0
	for _, info := range g.directory.List() {
		if info.Online {
			online++
		}
	}
	if online == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no agents online"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agents online)", online)
}

func toMessageResponse(msg *store.Message) MessageResponse {
	return MessageResponse{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		Sender:    msg.Sender,
		Content:   msg.Content,
		ReplyTo:   msg.ReplyTo,
		CreatedAt: msg.CreatedAt.Format(time.RFC3339),
	}
}

func toMessageResponsePtr(msg *store.Message) *MessageResponse {
	if msg == nil {
		return nil
	}
	resp := toMessageResponse(msg)
	return &resp
}

// writeJSON writes a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}
