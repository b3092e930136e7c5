// ABOUTME: Main client application orchestration
// ABOUTME: Wires the wire client, sync manager, and local decks together
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/spindeck/spindeck-go/internal/client"
	"github.com/spindeck/spindeck-go/internal/deck"
	"github.com/spindeck/spindeck-go/internal/pll"
	"github.com/spindeck/spindeck-go/internal/protocol"
	"github.com/spindeck/spindeck-go/internal/timeline"
)

// PingInterval is how often a clock sync ping goes out.
const PingInterval = 2 * time.Second

// Config holds application configuration.
type Config struct {
	ServerAddr     string
	Name           string
	DeckIDs        []string
	CorrectionMode pll.Mode
	Log            zerolog.Logger
}

// App runs one client: a connection, a sync manager, and a simulated
// playback engine per deck. All sync state transitions happen on the
// single control loop; network reads, user actions, and resyncs are
// fanned in via channels.
type App struct {
	config  Config
	log     zerolog.Logger
	clk     clockwork.Clock
	client  *client.Client
	manager *timeline.Manager
	decks   map[string]*deck.Sim
	actions chan localAction
	resyncs chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

// localAction is a user action queued for the control loop.
type localAction struct {
	deckID string
	action timeline.Action
}

// New creates the application and registers its decks.
func New(config Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	clk := clockwork.NewRealClock()

	a := &App{
		config:  config,
		log:     config.Log.With().Str("component", "app").Logger(),
		clk:     clk,
		manager: timeline.NewManagerWithClock(config.CorrectionMode, config.Log, clk),
		decks:   make(map[string]*deck.Sim, len(config.DeckIDs)),
		actions: make(chan localAction, 16),
		resyncs: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	for _, id := range config.DeckIDs {
		engine := deck.NewSim(clk)
		a.decks[id] = engine
		a.manager.RegisterDeck(id, engine)
	}

	return a
}

// Manager exposes the sync manager (for stats and tooling).
func (a *App) Manager() *timeline.Manager {
	return a.manager
}

// Deck returns the simulated engine for deckID, nil if unknown.
func (a *App) Deck(deckID string) *deck.Sim {
	return a.decks[deckID]
}

// Connect establishes the session and starts the control loops.
func (a *App) Connect() error {
	a.client = client.NewClient(client.Config{
		ServerAddr: a.config.ServerAddr,
		ClientID:   uuid.New().String(),
		Name:       a.config.Name,
		Version:    1,
		DeckIDs:    a.config.DeckIDs,
		Log:        a.config.Log,
	})

	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	go a.controlLoop()
	go a.pingLoop()

	return nil
}

// controlLoop is the single consumer of all sync events: network
// reads, user actions, and resyncs all mutate deck state here.
func (a *App) controlLoop() {
	for {
		select {
		case pong := <-a.client.Pongs:
			a.manager.HandlePingResponse(pong.T0, pong.ServerTimestamp)

		case beacon := <-a.client.Beacons:
			a.applyBeacon(beacon)

		case la := <-a.actions:
			a.applyLocalAction(la.deckID, la.action)

		case <-a.resyncs:
			a.manager.Resync()

		case <-a.ctx.Done():
			return
		}
	}
}

// applyBeacon fans one broadcast out to the per-deck reconcilers.
func (a *App) applyBeacon(b protocol.ServerBeacon) {
	for deckID, d := range b.Decks {
		a.manager.HandleBeacon(deckID, timeline.Beacon{
			EpochID:         b.EpochID,
			EpochSeq:        b.EpochSeq,
			PlayState:       timeline.PlayState(d.PlayState),
			PositionSec:     d.PositionSec,
			PlaybackRate:    d.PlaybackRate,
			ServerTimestamp: b.ServerTimestamp,
		})
	}
}

// pingLoop emits a clock sync ping on a fixed interval.
func (a *App) pingLoop() {
	ticker := a.clk.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			t0 := a.clk.Now().UnixMilli()
			a.manager.Estimator().RecordRequestSent(t0)
			if err := a.client.SendPing(t0); err != nil {
				a.log.Warn().Err(err).Msg("ping failed")
			}

		case <-a.ctx.Done():
			return
		}
	}
}

// LocalAction queues a user action for the control loop. Dropped if
// the app is shutting down or the queue is saturated.
func (a *App) LocalAction(deckID string, action timeline.Action) {
	select {
	case a.actions <- localAction{deckID: deckID, action: action}:
	case <-a.ctx.Done():
	default:
		a.log.Warn().Str("deck", deckID).Str("reason", "action_queue_full").
			Msg("dropping local action")
	}
}

// applyLocalAction runs on the control loop: the deck reacts
// immediately and the action is forwarded upstream so the
// authoritative timeline follows.
func (a *App) applyLocalAction(deckID string, action timeline.Action) {
	a.manager.HandleLocalAction(deckID, action)

	wire := protocol.ClientAction{
		DeckID:       deckID,
		Action:       string(action.Type),
		PositionSec:  action.PositionSec,
		PlaybackRate: action.PlaybackRate,
	}
	if err := a.client.SendAction(wire); err != nil {
		a.log.Warn().Err(err).Str("deck", deckID).Msg("failed to forward action")
	}
}

// Resync queues a full sync-state reset; the next beacon hard-resets
// each deck. Coalesces if one is already pending.
func (a *App) Resync() {
	select {
	case a.resyncs <- struct{}{}:
	default:
	}
}

// Done is closed when the app stops; long-lived observers (status
// tickers, control forwarders) must exit on it.
func (a *App) Done() <-chan struct{} {
	return a.ctx.Done()
}

// Stop shuts the application down.
func (a *App) Stop() {
	a.cancel()

	if a.client != nil {
		a.client.SendGoodbye("shutdown")
		a.client.Close()
	}
}
