// ABOUTME: Headless diagnostic for clock sync convergence
// ABOUTME: Connects, runs the ping loop, and prints offset estimates as they settle
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/spindeck/spindeck-go/internal/client"
	"github.com/spindeck/spindeck-go/internal/clock"
)

var (
	serverAddr = flag.String("server", "localhost:8937", "Server address")
	pings      = flag.Int("pings", 10, "Number of ping exchanges before exiting")
	interval   = flag.Duration("interval", 500*time.Millisecond, "Ping interval")
)

func main() {
	flag.Parse()

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	log := zerolog.New(console).With().Timestamp().Logger()

	est := clock.NewEstimator(log)

	c := client.NewClient(client.Config{
		ServerAddr: *serverAddr,
		ClientID:   uuid.New().String(),
		Name:       "sync-probe",
		Version:    1,
		Log:        log,
	})

	fmt.Printf("Probing %s with %d pings at %v intervals\n", *serverAddr, *pings, *interval)

	if err := c.Connect(); err != nil {
		log.Fatal().Err(err).Msg("connection failed")
	}
	defer c.Close()

	for i := 0; i < *pings; i++ {
		t0 := time.Now().UnixMilli()
		est.RecordRequestSent(t0)
		if err := c.SendPing(t0); err != nil {
			log.Fatal().Err(err).Msg("ping failed")
		}

		select {
		case pong := <-c.Pongs:
			est.RecordResponse(pong.T0, pong.ServerTimestamp)
			stats := est.Stats()
			fmt.Printf("ping %2d: offset=%+.2fms rtt=%.2fms reliable=%v\n",
				i+1, stats.OffsetMs, stats.RoundTripMs, stats.Reliable)
		case <-time.After(2 * time.Second):
			fmt.Printf("ping %2d: timeout\n", i+1)
		}

		time.Sleep(*interval)
	}

	if est.IsReliable() {
		fmt.Printf("converged: offset=%+.2fms rtt=%.2fms\n",
			est.AverageOffsetMs(), est.AverageRoundTripMs())
	} else {
		fmt.Println("did not converge: too few valid samples")
		os.Exit(1)
	}
}
