// ABOUTME: Tests for mDNS discovery
// ABOUTME: Covers manager construction, addressing, and lookup cancellation
package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestServerInfoAddr(t *testing.T) {
	info := ServerInfo{Name: "studio", Host: "192.168.1.20", Port: 8937}
	assert.Equal(t, "192.168.1.20:8937", info.Addr())
}

func TestNewManagerDefaults(t *testing.T) {
	mgr := NewManager(Config{
		InstanceName: "Test Server",
		Port:         8937,
		ServerMode:   true,
		Log:          zerolog.Nop(),
	})
	assert.NotNil(t, mgr)

	// Stop before Advertise must be a no-op.
	mgr.Stop()
}

func TestLookupHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	info, err := Lookup(ctx, zerolog.Nop())
	assert.Nil(t, info)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
