// ABOUTME: Reference beacon server for the Spindeck sync protocol
// ABOUTME: Answers clock pings and broadcasts the authoritative timeline
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/spindeck/spindeck-go/internal/discovery"
	"github.com/spindeck/spindeck-go/internal/protocol"
)

// ProtocolVersion is the wire protocol version this server speaks.
const ProtocolVersion = 1

// Config holds server configuration.
type Config struct {
	Port           int
	Name           string
	DeckIDs        []string
	BeaconInterval time.Duration
	EnableMDNS     bool
	Log            zerolog.Logger
}

// Server broadcasts the authoritative timeline and answers pings. It is
// intentionally small: real deployments put session and room management
// in front of it, which is outside the sync core.
type Server struct {
	config   Config
	log      zerolog.Logger
	serverID string
	clk      clockwork.Clock

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	timeline *Timeline

	clients   map[string]*session
	clientsMu sync.RWMutex

	mdnsManager *discovery.Manager

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// session is one connected client.
type session struct {
	id      string
	name    string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *session) sendJSON(msg protocol.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// New creates a server instance.
func New(config Config) *Server {
	if config.BeaconInterval <= 0 {
		config.BeaconInterval = time.Second
	}
	clk := clockwork.NewRealClock()

	return &Server{
		config:   config,
		log:      config.Log.With().Str("component", "server").Logger(),
		serverID: uuid.New().String(),
		clk:      clk,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Trusted local networks only.
				return true
			},
		},
		timeline: NewTimeline(clk, config.DeckIDs),
		clients:  make(map[string]*session),
		stopChan: make(chan struct{}),
	}
}

// Start runs the server until Stop is called. Blocking.
func (s *Server) Start() error {
	s.log.Info().Str("name", s.config.Name).Str("server_id", s.serverID).
		Strs("decks", s.config.DeckIDs).Msg("server starting")

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			InstanceName: s.config.Name,
			Port:         s.config.Port,
			DeckIDs:      s.config.DeckIDs,
			ServerMode:   true,
			Log:          s.log,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.log.Warn().Err(err).Msg("mDNS advertisement failed")
		}
	}

	s.mux.HandleFunc("/spindeck", s.handleWebSocket)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.beaconLoop()
	}()

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.mux}
	s.log.Info().Str("addr", addr).Msg("listening")

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		err = nil
	}

	s.wg.Wait()
	return err
}

// Stop shuts the server down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		if s.mdnsManager != nil {
			s.mdnsManager.Stop()
		}
		if s.httpServer != nil {
			s.httpServer.Close()
		}
	})
}

// Timeline exposes the authoritative timeline (for tests and tooling).
func (s *Server) Timeline() *Timeline {
	return s.timeline
}

// beaconLoop broadcasts the timeline on a fixed interval.
func (s *Server) beaconLoop() {
	ticker := time.NewTicker(s.config.BeaconInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.broadcast(protocol.Message{
				Type:    protocol.TypeServerBeacon,
				Payload: s.timeline.Beacon(),
			})
		}
	}
}

// broadcast sends a message to every connected client.
func (s *Server) broadcast(msg protocol.Message) {
	s.clientsMu.RLock()
	sessions := make([]*session, 0, len(s.clients))
	for _, c := range s.clients {
		sessions = append(sessions, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range sessions {
		if err := c.sendJSON(msg); err != nil {
			s.log.Warn().Err(err).Str("client", c.id).Msg("broadcast failed")
		}
	}
}

// handleWebSocket upgrades a connection and runs its session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	sess, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Msg("handshake failed")
		conn.Close()
		return
	}

	s.clientsMu.Lock()
	s.clients[sess.id] = sess
	s.clientsMu.Unlock()

	s.log.Info().Str("client", sess.id).Str("name", sess.name).Msg("client connected")

	s.readLoop(sess)

	s.clientsMu.Lock()
	delete(s.clients, sess.id)
	s.clientsMu.Unlock()
	conn.Close()
	s.log.Info().Str("client", sess.id).Msg("client disconnected")
}

// handshake consumes client/hello and answers server/hello.
func (s *Server) handshake(conn *websocket.Conn) (*session, error) {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read client/hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse client/hello: %w", err)
	}
	if msg.Type != protocol.TypeClientHello {
		return nil, fmt.Errorf("expected %s, got %s", protocol.TypeClientHello, msg.Type)
	}

	payload, _ := json.Marshal(msg.Payload)
	var hello protocol.ClientHello
	if err := json.Unmarshal(payload, &hello); err != nil {
		return nil, fmt.Errorf("failed to parse client/hello payload: %w", err)
	}

	sess := &session{id: hello.ClientID, name: hello.Name, conn: conn}

	err = sess.sendJSON(protocol.Message{
		Type: protocol.TypeServerHello,
		Payload: protocol.ServerHello{
			ServerID: s.serverID,
			Name:     s.config.Name,
			Version:  ProtocolVersion,
			EpochID:  s.timeline.EpochID(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send server/hello: %w", err)
	}

	return sess, nil
}

// readLoop processes one client's messages until disconnect.
func (s *Server) readLoop(sess *session) {
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn().Err(err).Str("client", sess.id).Msg("failed to parse message")
			continue
		}

		payload, _ := json.Marshal(msg.Payload)

		switch msg.Type {
		case protocol.TypeClientPing:
			var ping protocol.ClientPing
			if err := json.Unmarshal(payload, &ping); err != nil {
				continue
			}
			// Stamp at receipt; processing here is negligible next to
			// network transit, so one timestamp serves as the midpoint.
			err := sess.sendJSON(protocol.Message{
				Type: protocol.TypeServerPong,
				Payload: protocol.ServerPong{
					T0:              ping.T0,
					ServerTimestamp: s.clk.Now().UnixMilli(),
				},
			})
			if err != nil {
				return
			}

		case protocol.TypeClientAction:
			var action protocol.ClientAction
			if err := json.Unmarshal(payload, &action); err != nil {
				continue
			}
			s.log.Debug().Str("client", sess.id).Str("deck", action.DeckID).
				Str("action", action.Action).Msg("applying action")
			s.timeline.Apply(action)

		case protocol.TypeClientBye:
			return

		default:
			s.log.Debug().Str("type", msg.Type).Msg("ignoring message")
		}
	}
}
