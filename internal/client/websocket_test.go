// ABOUTME: Tests for the WebSocket client
// ABOUTME: Drives a fake in-process server to verify handshake and message routing
package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spindeck/spindeck-go/internal/protocol"
)

// fakeServer speaks just enough of the protocol for client tests.
type fakeServer struct {
	t        *testing.T
	upgrader websocket.Upgrader
	hello    chan protocol.ClientHello
	conns    chan *websocket.Conn
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	fs := &fakeServer{
		t:     t,
		hello: make(chan protocol.ClientHello, 1),
		conns: make(chan *websocket.Conn, 1),
	}
	srv := httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := fs.upgrader.Upgrade(w, r, nil)
	require.NoError(fs.t, err)

	// Consume client/hello.
	var msg protocol.Message
	require.NoError(fs.t, conn.ReadJSON(&msg))
	payload, _ := json.Marshal(msg.Payload)
	var hello protocol.ClientHello
	require.NoError(fs.t, json.Unmarshal(payload, &hello))
	fs.hello <- hello

	// Answer server/hello.
	require.NoError(fs.t, conn.WriteJSON(protocol.Message{
		Type: protocol.TypeServerHello,
		Payload: protocol.ServerHello{
			ServerID: "srv-1",
			Name:     "fake",
			Version:  1,
			EpochID:  "epoch-1",
		},
	}))

	fs.conns <- conn
}

func dialFake(t *testing.T, srv *httptest.Server) *Client {
	addr := strings.TrimPrefix(srv.URL, "http://")
	c := NewClient(Config{
		ServerAddr: addr,
		ClientID:   "client-1",
		Name:       "test-client",
		Version:    1,
		DeckIDs:    []string{"A", "B"},
		Log:        zerolog.Nop(),
	})
	require.NoError(t, c.Connect())
	t.Cleanup(c.Close)
	return c
}

func TestHandshake(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := dialFake(t, srv)

	hello := <-fs.hello
	assert.Equal(t, "client-1", hello.ClientID)
	assert.Equal(t, []string{"A", "B"}, hello.DeckIDs)

	assert.Equal(t, "epoch-1", c.EpochID())
	assert.True(t, c.IsConnected())
}

func TestPingPongRoundTrip(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := dialFake(t, srv)
	conn := <-fs.conns

	require.NoError(t, c.SendPing(12345))

	var msg protocol.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, protocol.TypeClientPing, msg.Type)
	payload, _ := json.Marshal(msg.Payload)
	var ping protocol.ClientPing
	require.NoError(t, json.Unmarshal(payload, &ping))
	assert.Equal(t, int64(12345), ping.T0)

	require.NoError(t, conn.WriteJSON(protocol.Message{
		Type:    protocol.TypeServerPong,
		Payload: protocol.ServerPong{T0: ping.T0, ServerTimestamp: 99999},
	}))

	select {
	case pong := <-c.Pongs:
		assert.Equal(t, int64(12345), pong.T0)
		assert.Equal(t, int64(99999), pong.ServerTimestamp)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pong")
	}
}

func TestBeaconRouting(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := dialFake(t, srv)
	conn := <-fs.conns

	require.NoError(t, conn.WriteJSON(protocol.Message{
		Type: protocol.TypeServerBeacon,
		Payload: protocol.ServerBeacon{
			EpochID:         "epoch-1",
			EpochSeq:        7,
			ServerTimestamp: 1000,
			Decks: map[string]protocol.DeckBeacon{
				"A": {PlayState: "playing", PositionSec: 10.5, PlaybackRate: 1.0},
			},
		},
	}))

	select {
	case beacon := <-c.Beacons:
		assert.Equal(t, int64(7), beacon.EpochSeq)
		assert.Equal(t, "playing", beacon.Decks["A"].PlayState)
		assert.Equal(t, 10.5, beacon.Decks["A"].PositionSec)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for beacon")
	}
}

func TestUnknownMessageIgnored(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := dialFake(t, srv)
	conn := <-fs.conns

	require.NoError(t, conn.WriteJSON(protocol.Message{Type: "server/surprise"}))
	require.NoError(t, conn.WriteJSON(protocol.Message{
		Type:    protocol.TypeServerPong,
		Payload: protocol.ServerPong{T0: 1, ServerTimestamp: 2},
	}))

	// The unknown message must not wedge routing.
	select {
	case pong := <-c.Pongs:
		assert.Equal(t, int64(1), pong.T0)
	case <-time.After(2 * time.Second):
		t.Fatal("routing stalled after unknown message")
	}
}

func TestSendActionWireFormat(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := dialFake(t, srv)
	conn := <-fs.conns

	require.NoError(t, c.SendAction(protocol.ClientAction{
		DeckID:       "A",
		Action:       "tempo",
		PlaybackRate: 1.04,
	}))

	var msg protocol.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, protocol.TypeClientAction, msg.Type)
	payload, _ := json.Marshal(msg.Payload)
	var action protocol.ClientAction
	require.NoError(t, json.Unmarshal(payload, &action))
	assert.Equal(t, "A", action.DeckID)
	assert.Equal(t, 1.04, action.PlaybackRate)
}
