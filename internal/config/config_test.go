package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestDefaultIsValid pins the built-in defaults: loopback link, LoRa-sized
// packets, and a configuration that passes its own validation.
func TestDefaultIsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, LinkLoopback, cfg.Link.Type)
	assert.Equal(t, 230, cfg.Transfer.MaxPacketSize)
	assert.Equal(t, 30*time.Second, cfg.EngineTimeout())
	assert.Equal(t, 5*time.Second, cfg.ProgressInterval())
	assert.Equal(t, 100*time.Millisecond, cfg.TickInterval())
}

// TestLoadOverridesDefaults verifies that file values land on top of the
// defaults and unset fields keep theirs.
func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
link:
  type: tcp
  radio_addr: "radio.local:4403"
store:
  dir: /var/lib/zmbridge
transfer:
  max_packet_size: 180
  engine_timeout: 2m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, LinkTCP, cfg.Link.Type)
	assert.Equal(t, "radio.local:4403", cfg.Link.RadioAddr)
	assert.Equal(t, "/var/lib/zmbridge", cfg.Store.Dir)
	assert.Equal(t, 180, cfg.Transfer.MaxPacketSize)
	assert.Equal(t, 2*time.Minute, cfg.EngineTimeout())

	// Untouched fields keep the defaults.
	assert.Equal(t, 3, cfg.Transfer.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.TickInterval())
}

// TestLoadMissingFile verifies the error path for an unreadable file.
func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

// TestLoadMalformedYAML verifies the error path for unparseable content.
func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "link: [unclosed"))
	require.Error(t, err)
}

// TestValidateRejections walks the invalid configurations Validate must
// catch.
func TestValidateRejections(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown link type", func(c *Config) { c.Link.Type = "carrier-pigeon" }},
		{"tcp without radio addr", func(c *Config) { c.Link.Type = LinkTCP }},
		{"webrtc dialer without url", func(c *Config) { c.Link.Type = LinkWebRTC }},
		{"empty store dir", func(c *Config) { c.Store.Dir = "" }},
		{"packet size below header", func(c *Config) { c.Transfer.MaxPacketSize = 3 }},
		{"negative retries", func(c *Config) { c.Transfer.MaxRetries = -1 }},
		{"bad duration", func(c *Config) { c.Transfer.EngineTimeout = "soon" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// TestValidateAccepts covers link setups that must pass.
func TestValidateAccepts(t *testing.T) {
	tcp := Default()
	tcp.Link.Type = LinkTCP
	tcp.Link.RadioAddr = "127.0.0.1:4403"
	assert.NoError(t, tcp.Validate())

	listener := Default()
	listener.Link.Type = LinkWebRTC
	listener.Link.Signaling.Listen = true
	assert.NoError(t, listener.Validate())

	dialer := Default()
	dialer.Link.Type = LinkWebRTC
	dialer.Link.Signaling.URL = "ws://peer:8080/ws"
	assert.NoError(t, dialer.Validate())
}
