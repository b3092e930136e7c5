// ABOUTME: Entry point for the Spindeck sync client
// ABOUTME: Parses CLI flags, finds a server, and runs the app with an optional TUI
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/spindeck/spindeck-go/internal/app"
	"github.com/spindeck/spindeck-go/internal/discovery"
	"github.com/spindeck/spindeck-go/internal/pll"
	"github.com/spindeck/spindeck-go/internal/timeline"
	"github.com/spindeck/spindeck-go/internal/ui"
)

var (
	serverAddr = flag.String("server", "", "Manual server address (skip mDNS)")
	port       = flag.Int("port", 8937, "Port for mDNS advertisement")
	name       = flag.String("name", "", "Client friendly name (default: hostname-spindeck)")
	deckList   = flag.String("decks", "A,B", "Comma-separated deck identifiers")
	mode       = flag.String("correction-mode", "pll", "Drift correction mode: pll, legacy-snap, disabled")
	logFile    = flag.String("log-file", "spindeck.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, stream logs to stdout instead")
)

func main() {
	flag.Parse()

	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	var log zerolog.Logger
	if useTUI {
		// TUI mode: log only to file so the screen stays clean.
		log = zerolog.New(f).With().Timestamp().Logger()
	} else {
		console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
		log = zerolog.New(zerolog.MultiLevelWriter(console, f)).With().Timestamp().Logger()
	}

	clientName := *name
	if clientName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		clientName = fmt.Sprintf("%s-spindeck", hostname)
	}

	deckIDs := strings.Split(*deckList, ",")
	for i := range deckIDs {
		deckIDs[i] = strings.TrimSpace(deckIDs[i])
	}

	serverAddress := *serverAddr
	if serverAddress == "" {
		log.Info().Msg("starting server discovery")
		disc := discovery.NewManager(discovery.Config{
			InstanceName: clientName,
			Port:         *port,
			DeckIDs:      deckIDs,
			Log:          log,
		})
		if err := disc.Advertise(); err != nil {
			log.Warn().Err(err).Msg("mDNS advertisement failed")
		}
		defer disc.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		server, err := discovery.Lookup(ctx, log)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("no server found after 10 seconds")
		}
		serverAddress = server.Addr()
	}

	a := app.New(app.Config{
		ServerAddr:     serverAddress,
		Name:           clientName,
		DeckIDs:        deckIDs,
		CorrectionMode: pll.ParseMode(*mode),
		Log:            log,
	})

	if err := a.Connect(); err != nil {
		log.Fatal().Err(err).Msg("connection failed")
	}
	log.Info().Str("addr", serverAddress).Msg("connected")

	var controls *ui.Controls
	var tuiProg *tea.Program
	if useTUI {
		controls = ui.NewControls()
		tuiProg, err = ui.Run(controls)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start TUI")
		}
		go tuiProg.Run()
		go handleControls(a, controls)
		go statusLoop(a, tuiProg, serverAddress)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if controls != nil {
		select {
		case <-controls.Quit:
			log.Info().Msg("quit requested from TUI")
		case <-sigChan:
			log.Info().Msg("shutdown signal received")
		}
	} else {
		<-sigChan
		log.Info().Msg("shutdown signal received")
	}

	a.Stop()
	if tuiProg != nil {
		tuiProg.Quit()
	}
	log.Info().Msg("client stopped")
}

// handleControls forwards TUI intent into the app.
func handleControls(a *app.App, controls *ui.Controls) {
	for {
		select {
		case msg := <-controls.Actions:
			a.LocalAction(msg.DeckID, msg.Action)
		case <-controls.Resync:
			a.Resync()
		case <-controls.Quit:
			return
		case <-a.Done():
			return
		}
	}
}

// statusLoop periodically pushes sync state into the TUI until the app
// stops.
func statusLoop(a *app.App, prog *tea.Program, serverAddress string) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	connected := true
	for {
		select {
		case <-a.Done():
			return
		case <-ticker.C:
		}

		stats := a.Manager().Estimator().Stats()
		snapshot := a.Manager().Snapshot()

		// The TUI renders the live engine position, not the last
		// beacon's.
		for i := range snapshot {
			if d := a.Deck(snapshot[i].DeckID); d != nil {
				snapshot[i].State.PositionSec = d.CurrentPositionSec()
				if snapshot[i].State.PlayState == "" && !d.Playing() {
					snapshot[i].State.PlayState = timeline.StateStopped
				}
			}
		}

		prog.Send(ui.StatusMsg{
			Connected:  &connected,
			ServerName: serverAddress,
			Clock:      &stats,
			Decks:      snapshot,
		})
	}
}
