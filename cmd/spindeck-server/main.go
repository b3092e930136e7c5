// ABOUTME: Entry point for the Spindeck beacon server
// ABOUTME: Broadcasts the authoritative timeline and answers clock pings
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/spindeck/spindeck-go/internal/server"
)

var (
	port     = flag.Int("port", 8937, "WebSocket listen port")
	name     = flag.String("name", "", "Server friendly name (default: hostname-spindeck-server)")
	deckList = flag.String("decks", "A,B", "Comma-separated deck identifiers")
	interval = flag.Duration("beacon-interval", time.Second, "Transport beacon broadcast interval")
	noMDNS   = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	debug    = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
	log := zerolog.New(console).Level(level).With().Timestamp().Logger()

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-spindeck-server", hostname)
	}

	deckIDs := strings.Split(*deckList, ",")
	for i := range deckIDs {
		deckIDs[i] = strings.TrimSpace(deckIDs[i])
	}

	srv := server.New(server.Config{
		Port:           *port,
		Name:           serverName,
		DeckIDs:        deckIDs,
		BeaconInterval: *interval,
		EnableMDNS:     !*noMDNS,
		Log:            log,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutdown signal received")
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server stopped")
}
