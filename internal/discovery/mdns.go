// ABOUTME: mDNS advertisement and lookup for Spindeck sessions
// ABOUTME: Servers announce _spindeck-server._tcp; clients browse for one
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"

	"github.com/spindeck/spindeck-go/internal/version"
)

const (
	// ServerService is the mDNS service type a sync server announces.
	ServerService = "_spindeck-server._tcp"
	// ClientService is the mDNS service type a client announces.
	ClientService = "_spindeck._tcp"

	queryTimeout = 3 * time.Second
)

// Config holds discovery configuration.
type Config struct {
	InstanceName string
	Port         int
	DeckIDs      []string
	ServerMode   bool
	Log          zerolog.Logger
}

// ServerInfo describes a discovered sync server.
type ServerInfo struct {
	Name string
	Host string
	Port int
}

// Addr returns the host:port dial address.
func (s ServerInfo) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Manager owns mDNS advertisement for one instance.
type Manager struct {
	config Config
	log    zerolog.Logger
	server *mdns.Server
}

// NewManager creates a discovery manager.
func NewManager(config Config) *Manager {
	return &Manager{
		config: config,
		log:    config.Log.With().Str("component", "discovery").Logger(),
	}
}

// Advertise announces this instance on the local network. TXT records
// carry the protocol path, software version, and deck list so browsers
// can filter without connecting.
func (m *Manager) Advertise() error {
	ips, err := localIPs()
	if err != nil {
		return fmt.Errorf("failed to enumerate local IPs: %w", err)
	}

	serviceType := ClientService
	if m.config.ServerMode {
		serviceType = ServerService
	}

	txt := []string{
		"path=/spindeck",
		"version=" + version.Version,
	}
	if len(m.config.DeckIDs) > 0 {
		txt = append(txt, "decks="+strings.Join(m.config.DeckIDs, ","))
	}

	service, err := mdns.NewMDNSService(
		m.config.InstanceName,
		serviceType,
		"",
		"",
		m.config.Port,
		ips,
		txt,
	)
	if err != nil {
		return fmt.Errorf("failed to create mDNS service: %w", err)
	}

	m.server, err = mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to start mDNS responder: %w", err)
	}

	m.log.Info().Str("instance", m.config.InstanceName).
		Str("service", serviceType).Int("port", m.config.Port).
		Msg("advertising via mDNS")

	return nil
}

// Stop withdraws the advertisement.
func (m *Manager) Stop() {
	if m.server != nil {
		m.server.Shutdown()
		m.server = nil
	}
}

// Lookup browses for a sync server until one answers or ctx expires.
func Lookup(ctx context.Context, log zerolog.Logger) (*ServerInfo, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("no server found: %w", err)
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		found := make(chan *ServerInfo, 1)

		go func() {
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}
				info := &ServerInfo{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
				}
				log.Info().Str("name", info.Name).Str("addr", info.Addr()).
					Msg("discovered server")
				select {
				case found <- info:
				default:
				}
			}
		}()

		err := mdns.Query(&mdns.QueryParam{
			Service: ServerService,
			Domain:  "local",
			Timeout: queryTimeout,
			Entries: entries,
		})
		close(entries)
		if err != nil {
			return nil, fmt.Errorf("mDNS query failed: %w", err)
		}

		select {
		case info := <-found:
			return info, nil
		default:
		}
	}
}

// localIPs returns the machine's non-loopback IPv4 addresses.
func localIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
				continue
			}
			ips = append(ips, ipnet.IP)
		}
	}

	return ips, nil
}
