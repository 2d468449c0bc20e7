// Package config holds the bridge daemon configuration, loaded from YAML
// with CLI flags layered on top by cmd.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/meshfiles/zmbridge/internal/protocol"
)

// Link types.
const (
	LinkTCP      = "tcp"
	LinkWebRTC   = "webrtc"
	LinkLoopback = "loopback"
)

// Config is the full daemon configuration.
type Config struct {
	Link     Link     `yaml:"link"`
	Store    Store    `yaml:"store"`
	Transfer Transfer `yaml:"transfer"`
	Debug    bool     `yaml:"debug"`
}

// Link selects and configures the mesh attachment.
type Link struct {
	Type      string    `yaml:"type"`       // tcp | webrtc | loopback
	RadioAddr string    `yaml:"radio_addr"` // tcp: host:port of the attached radio
	Signaling Signaling `yaml:"signaling"`  // webrtc only
}

// Signaling configures the WebSocket exchange that bootstraps a WebRTC
// link. Exactly one side listens; the other dials.
type Signaling struct {
	Listen bool   `yaml:"listen"`
	URL    string `yaml:"url"`  // dialer: ws:// or wss:// endpoint
	Addr   string `yaml:"addr"` // listener: bind address, ":0" for a random port
}

// Store configures where transferred files live.
type Store struct {
	Dir string `yaml:"dir"`
}

// Transfer tunes the adapter and the stepping engine. Durations are
// strings in time.ParseDuration syntax ("30s", "100ms").
type Transfer struct {
	MaxPacketSize    int    `yaml:"max_packet_size"`
	EngineTimeout    string `yaml:"engine_timeout"`
	MaxRetries       int    `yaml:"max_retries"`
	ProgressInterval string `yaml:"progress_interval"`
	TickInterval     string `yaml:"tick_interval"`
}

// Default returns the configuration used when no file is given: loopback
// link, files under ./files, LoRa-sized packets.
func Default() *Config {
	return &Config{
		Link:  Link{Type: LinkLoopback, Signaling: Signaling{Addr: ":0"}},
		Store: Store{Dir: "files"},
		Transfer: Transfer{
			MaxPacketSize:    protocol.DefaultMaxPacketSize,
			EngineTimeout:    "30s",
			MaxRetries:       3,
			ProgressInterval: "5s",
			TickInterval:     "100ms",
		},
	}
}

// Load reads and validates a YAML configuration file. Unset fields keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.Link.Type {
	case LinkTCP:
		if c.Link.RadioAddr == "" {
			return fmt.Errorf("link.radio_addr is required for link.type %q", LinkTCP)
		}
	case LinkWebRTC:
		if !c.Link.Signaling.Listen && c.Link.Signaling.URL == "" {
			return fmt.Errorf("link.signaling.url is required for a dialing %s link", LinkWebRTC)
		}
	case LinkLoopback:
	default:
		return fmt.Errorf("unknown link.type %q (want %s, %s or %s)", c.Link.Type, LinkTCP, LinkWebRTC, LinkLoopback)
	}

	if c.Store.Dir == "" {
		return fmt.Errorf("store.dir must not be empty")
	}

	if c.Transfer.MaxPacketSize <= protocol.HeaderSize {
		return fmt.Errorf("transfer.max_packet_size %d leaves no room for a payload (header is %d bytes)",
			c.Transfer.MaxPacketSize, protocol.HeaderSize)
	}
	if c.Transfer.MaxRetries < 0 {
		return fmt.Errorf("transfer.max_retries must not be negative")
	}

	for name, v := range map[string]string{
		"transfer.engine_timeout":    c.Transfer.EngineTimeout,
		"transfer.progress_interval": c.Transfer.ProgressInterval,
		"transfer.tick_interval":     c.Transfer.TickInterval,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// EngineTimeout returns the parsed engine inactivity bound.
func (c *Config) EngineTimeout() time.Duration { return parsed(c.Transfer.EngineTimeout) }

// ProgressInterval returns the parsed progress-report interval.
func (c *Config) ProgressInterval() time.Duration { return parsed(c.Transfer.ProgressInterval) }

// TickInterval returns the parsed tick delay.
func (c *Config) TickInterval() time.Duration { return parsed(c.Transfer.TickInterval) }

// parsed assumes Validate has run; unparseable values read as 0 and fall
// back to the bridge defaults.
func parsed(v string) time.Duration {
	d, _ := time.ParseDuration(v)
	return d
}
