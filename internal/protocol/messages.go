// ABOUTME: Spindeck protocol message type definitions
// ABOUTME: JSON envelope plus ping, beacon, and deck action payloads
package protocol

// Message is the top-level wrapper for all protocol messages.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Message type identifiers.
const (
	TypeClientHello  = "client/hello"
	TypeServerHello  = "server/hello"
	TypeClientPing   = "client/ping"
	TypeServerPong   = "server/pong"
	TypeServerBeacon = "server/beacon"
	TypeClientAction = "client/action"
	TypeClientBye    = "client/goodbye"
)

// ClientHello is sent by clients to initiate the handshake.
type ClientHello struct {
	ClientID string   `json:"client_id"`
	Name     string   `json:"name"`
	Version  int      `json:"version"`
	DeckIDs  []string `json:"deck_ids"`
}

// ServerHello is the server's response to client/hello. EpochID is the
// currently active timeline epoch.
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
	EpochID  string `json:"epoch_id"`
}

// ClientPing carries the client's send time for clock offset sampling.
type ClientPing struct {
	T0 int64 `json:"t0"` // Client clock, Unix ms
}

// ServerPong answers a ping. T0 is echoed; ServerTimestamp is the
// server clock when the reply was stamped, assumed to sit at the
// midpoint of the round trip.
type ServerPong struct {
	T0              int64 `json:"t0"`
	ServerTimestamp int64 `json:"server_timestamp"`
}

// DeckBeacon is one deck's authoritative transport snapshot.
type DeckBeacon struct {
	PlayState    string  `json:"play_state"`
	PositionSec  float64 `json:"position_sec"`
	PlaybackRate float64 `json:"playback_rate"`
}

// ServerBeacon is the periodic authoritative timeline broadcast.
// EpochSeq increases monotonically within EpochID.
type ServerBeacon struct {
	EpochID         string                `json:"epoch_id"`
	EpochSeq        int64                 `json:"epoch_seq"`
	ServerTimestamp int64                 `json:"server_timestamp"`
	Decks           map[string]DeckBeacon `json:"decks"`
}

// ClientAction forwards a user-originated deck action to the server so
// it can be folded into the authoritative timeline.
type ClientAction struct {
	DeckID       string  `json:"deck_id"`
	Action       string  `json:"action"` // play, pause, stop, cue, seek, tempo, load
	PositionSec  float64 `json:"position_sec,omitempty"`
	PlaybackRate float64 `json:"playback_rate,omitempty"`
	TrackID      string  `json:"track_id,omitempty"`
}

// ClientGoodbye is sent before graceful disconnect.
type ClientGoodbye struct {
	Reason string `json:"reason"` // "shutdown", "restart", "user_request"
}
