// ABOUTME: WebSocket client for the Spindeck sync protocol
// ABOUTME: Handles connection, handshake, and message routing to typed channels
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/spindeck/spindeck-go/internal/protocol"
)

// Config holds client configuration.
type Config struct {
	ServerAddr string
	ClientID   string
	Name       string
	Version    int
	DeckIDs    []string
	Log        zerolog.Logger
}

// Client is a WebSocket connection to a Spindeck server. Incoming
// messages are routed to one channel per type; the control loop owns
// all consumption.
type Client struct {
	config Config
	log    zerolog.Logger
	conn   *websocket.Conn
	mu     sync.RWMutex

	// Message channels
	Pongs   chan protocol.ServerPong
	Beacons chan protocol.ServerBeacon

	// State
	connected bool
	epochID   string
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a client; call Connect to establish the session.
func NewClient(config Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:  config,
		log:     config.Log.With().Str("component", "client").Logger(),
		Pongs:   make(chan protocol.ServerPong, 10),
		Beacons: make(chan protocol.ServerBeacon, 10),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect establishes the WebSocket connection and performs the
// handshake, then starts the message reader.
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: "/spindeck"}
	c.log.Info().Str("url", u.String()).Msg("connecting")

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake exchanges hello messages and records the active epoch.
func (c *Client) handshake() error {
	hello := protocol.Message{
		Type: protocol.TypeClientHello,
		Payload: protocol.ClientHello{
			ClientID: c.config.ClientID,
			Name:     c.config.Name,
			Version:  c.config.Version,
			DeckIDs:  c.config.DeckIDs,
		},
	}

	if err := c.sendJSON(hello); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}
	if msg.Type != protocol.TypeServerHello {
		return fmt.Errorf("expected %s, got %s", protocol.TypeServerHello, msg.Type)
	}

	payload, _ := json.Marshal(msg.Payload)
	var serverHello protocol.ServerHello
	if err := json.Unmarshal(payload, &serverHello); err != nil {
		return fmt.Errorf("failed to parse server/hello payload: %w", err)
	}

	c.mu.Lock()
	c.epochID = serverHello.EpochID
	c.mu.Unlock()

	c.log.Info().Str("server_id", serverHello.ServerID).
		Str("epoch_id", serverHello.EpochID).Msg("handshake complete")

	return nil
}

// sendJSON sends a JSON message.
func (c *Client) sendJSON(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}

	return c.conn.WriteJSON(msg)
}

// readMessages reads and routes incoming messages.
func (c *Client) readMessages() {
	defer c.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Warn().Err(err).Msg("read error")
			return
		}

		c.routeMessage(data)
	}
}

// routeMessage dispatches one JSON message to its channel. Unknown
// types are ignored.
func (c *Client) routeMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn().Err(err).Msg("failed to parse message")
		return
	}

	payload, _ := json.Marshal(msg.Payload)

	switch msg.Type {
	case protocol.TypeServerPong:
		var pong protocol.ServerPong
		if err := json.Unmarshal(payload, &pong); err != nil {
			c.log.Warn().Err(err).Msg("failed to parse server/pong")
			return
		}
		select {
		case c.Pongs <- pong:
		case <-c.ctx.Done():
		}

	case protocol.TypeServerBeacon:
		var beacon protocol.ServerBeacon
		if err := json.Unmarshal(payload, &beacon); err != nil {
			c.log.Warn().Err(err).Msg("failed to parse server/beacon")
			return
		}
		select {
		case c.Beacons <- beacon:
		case <-c.ctx.Done():
		}

	default:
		c.log.Debug().Str("type", msg.Type).Msg("ignoring message")
	}
}

// SendPing sends a clock sync ping carrying the client send time.
func (c *Client) SendPing(t0 int64) error {
	return c.sendJSON(protocol.Message{
		Type:    protocol.TypeClientPing,
		Payload: protocol.ClientPing{T0: t0},
	})
}

// SendAction forwards a local deck action to the server.
func (c *Client) SendAction(action protocol.ClientAction) error {
	return c.sendJSON(protocol.Message{
		Type:    protocol.TypeClientAction,
		Payload: action,
	})
}

// SendGoodbye announces a graceful disconnect.
func (c *Client) SendGoodbye(reason string) error {
	return c.sendJSON(protocol.Message{
		Type:    protocol.TypeClientBye,
		Payload: protocol.ClientGoodbye{Reason: reason},
	})
}

// EpochID returns the epoch announced at handshake time.
func (c *Client) EpochID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epochID
}

// Close closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		c.log.Info().Msg("connection closed")
	}
}

// IsConnected returns connection status.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
