// ABOUTME: Minimal mock agent connector for E2E testing — dials the relay and echoes messages.
// ABOUTME: Usage: awal-agent -token agt_... [-addr localhost:8080] [-delay 500ms]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/awalbot/relay/internal/gateway"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "relay HTTP address")
	token := flag.String("token", "", "agent credential issued at registration")
	delay := flag.Duration("delay", 500*time.Millisecond, "thinking delay before each reply")
	flag.Parse()

	if *token == "" {
		log.Fatal("-token is required (issued by POST /agents)")
	}

	if err := run(*addr, *token, *delay); err != nil {
		log.Fatal(err)
	}
}

func run(addr, token string, delay time.Duration) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	url := fmt.Sprintf("ws://%s/ws/agent", addr)
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", url, err)
	}
	defer c.Close(websocket.StatusNormalClosure, "shutting down")

	// Authenticate: first frame must carry the credential
	if err := send(ctx, c, gateway.Envelope{Type: gateway.EventAuth, Token: token}); err != nil {
		return fmt.Errorf("sending auth: %w", err)
	}

	env, err := recv(ctx, c)
	if err != nil {
		return fmt.Errorf("awaiting auth result: %w", err)
	}
	switch env.Type {
	case gateway.EventAuthOK:
		fmt.Fprintf(os.Stderr, "connected as %s (%s)\n", env.Name, env.AgentID)
	case gateway.EventAuthError:
		return fmt.Errorf("auth rejected: %s", env.Message)
	default:
		return fmt.Errorf("unexpected handshake event: %s", env.Type)
	}

	// Event loop: reply to every forwarded message
	for {
		env, err := recv(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return nil // graceful shutdown
			}
			return fmt.Errorf("recv error: %w", err)
		}

		switch env.Type {
		case gateway.EventSessionStart:
			log.Printf("session started: %s", env.SessionID)

		case gateway.EventMessage:
			log.Printf("received message [%s]: %s", env.MessageID, env.Content)

			time.Sleep(delay)

			reply := gateway.Envelope{
				Type:      gateway.EventReply,
				MessageID: env.MessageID,
				Content:   echoReply(env.Content),
			}
			if err := send(ctx, c, reply); err != nil {
				log.Printf("send reply error: %v", err)
			}

		default:
			log.Printf("ignoring event: %s", env.Type)
		}
	}
}

func send(ctx context.Context, c *websocket.Conn, env gateway.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.Write(ctx, websocket.MessageText, data)
}

func recv(ctx context.Context, c *websocket.Conn) (gateway.Envelope, error) {
	var env gateway.Envelope
	_, data, err := c.Read(ctx)
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("malformed frame: %w", err)
	}
	return env, nil
}

func echoReply(input string) string {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "hello") || strings.Contains(lower, "hi") {
		return "Hello! I am a mock agent. Everything you say, I echo back."
	}
	return fmt.Sprintf("Echo: %s", input)
}
