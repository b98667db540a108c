// ABOUTME: Websocket integration tests for the agent endpoint.
// ABOUTME: Dials real connections through httptest and walks the auth lifecycle.

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/agent"
}

func dialAgent(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "test done") })
	return c
}

func writeEnvelope(t *testing.T, ctx context.Context, c *websocket.Conn, env Envelope) {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

func readEnvelope(t *testing.T, ctx context.Context, c *websocket.Conn) Envelope {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

// authAgent dials and completes the handshake, returning the live connection.
func authAgent(t *testing.T, ctx context.Context, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	c := dialAgent(t, ctx, srv)
	writeEnvelope(t, ctx, c, Envelope{Type: EventAuth, Token: token})
	env := readEnvelope(t, ctx, c)
	require.Equal(t, EventAuthOK, env.Type)
	return c
}

func TestHandshake(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("valid credential", func(t *testing.T) {
		g, srv := newTestGateway(t)
		agent := g.directory.Register("Echo", "")

		c := dialAgent(t, ctx, srv)
		writeEnvelope(t, ctx, c, Envelope{Type: EventAuth, Token: agent.Credential})

		env := readEnvelope(t, ctx, c)
		assert.Equal(t, EventAuthOK, env.Type)
		assert.Equal(t, agent.ID, env.AgentID)
		assert.Equal(t, "Echo", env.Name)
		assert.True(t, g.directory.IsOnline(agent.ID))
	})

	t.Run("invalid credential", func(t *testing.T) {
		g, srv := newTestGateway(t)
		agent := g.directory.Register("Echo", "")

		c := dialAgent(t, ctx, srv)
		writeEnvelope(t, ctx, c, Envelope{Type: EventAuth, Token: "agt_000000000000000000000000"})

		env := readEnvelope(t, ctx, c)
		assert.Equal(t, EventAuthError, env.Type)
		assert.False(t, g.directory.IsOnline(agent.ID))

		// Connection is closed after the error frame
		_, _, err := c.Read(ctx)
		assert.Error(t, err)
	})

	t.Run("first frame must be auth", func(t *testing.T) {
		g, srv := newTestGateway(t)
		agent := g.directory.Register("Echo", "")

		c := dialAgent(t, ctx, srv)
		writeEnvelope(t, ctx, c, Envelope{Type: EventReply, MessageID: "m1", Content: "sneaky"})

		env := readEnvelope(t, ctx, c)
		assert.Equal(t, EventAuthError, env.Type)
		assert.False(t, g.directory.IsOnline(agent.ID))

		_, _, err := c.Read(ctx)
		assert.Error(t, err)
	})
}

func TestEndToEndExchange(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, srv := newTestGateway(t)
	agent := g.directory.Register("Echo", "")
	c := authAgent(t, ctx, srv, agent.Credential)

	// Drive the connector side: session_start, then echo the first message
	connectorDone := make(chan error, 1)
	go func() {
		defer close(connectorDone)
		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				connectorDone <- err
				return
			}
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				connectorDone <- err
				return
			}
			if env.Type != EventMessage {
				continue
			}
			reply, _ := json.Marshal(Envelope{
				Type:      EventReply,
				MessageID: env.MessageID,
				Content:   "echo: " + env.Content,
			})
			if err := c.Write(ctx, websocket.MessageText, reply); err != nil {
				connectorDone <- err
			}
			return
		}
	}()

	sessionID := createSession(t, srv, agent.ID)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/sessions/"+sessionID+"/messages",
		PostMessageRequest{Content: "ping"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var exchange ExchangeResponse
	require.NoError(t, json.Unmarshal(body, &exchange))
	require.NotNil(t, exchange.AgentMessage)
	assert.Equal(t, "echo: ping", exchange.AgentMessage.Content)
	assert.Equal(t, exchange.UserMessage.ID, exchange.AgentMessage.ReplyTo)

	require.NoError(t, <-connectorDone)
}

func TestSessionStartNotification(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, srv := newTestGateway(t)
	agent := g.directory.Register("Echo", "")
	c := authAgent(t, ctx, srv, agent.Credential)

	sessionID := createSession(t, srv, agent.ID)

	env := readEnvelope(t, ctx, c)
	assert.Equal(t, EventSessionStart, env.Type)
	assert.Equal(t, sessionID, env.SessionID)
}

func TestReconnectSupersedes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, srv := newTestGateway(t)
	agent := g.directory.Register("Echo", "")

	first := authAgent(t, ctx, srv, agent.Credential)
	authAgent(t, ctx, srv, agent.Credential)

	require.True(t, g.directory.IsOnline(agent.ID))

	// Closing the superseded connection must not knock the agent offline
	require.NoError(t, first.Close(websocket.StatusNormalClosure, "replaced"))
	time.Sleep(200 * time.Millisecond)
	assert.True(t, g.directory.IsOnline(agent.ID))
}

func TestDisconnectClearsPresence(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, srv := newTestGateway(t)
	agent := g.directory.Register("Echo", "")
	c := authAgent(t, ctx, srv, agent.Credential)

	require.True(t, g.directory.IsOnline(agent.ID))
	require.NoError(t, c.Close(websocket.StatusNormalClosure, "bye"))

	require.Eventually(t, func() bool {
		return !g.directory.IsOnline(agent.ID)
	}, 2*time.Second, 20*time.Millisecond, "presence should clear after disconnect")
}

func TestDeregisterKicksConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, srv := newTestGateway(t)
	agent := g.directory.Register("Echo", "")
	c := authAgent(t, ctx, srv, agent.Credential)

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/agents/"+agent.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, _, err := c.Read(ctx)
	assert.Error(t, err, "kicked connection should observe close")
}
