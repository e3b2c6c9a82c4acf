package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, GatewayIP, cfg.TUNAddress)
	assert.Equal(t, VPNNetmask, cfg.TUNNetmask)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Gateway)
	assert.Empty(t, cfg.StatusAddr)
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	assert.Equal(t, DefaultServerAddr, cfg.ServerAddr)
	assert.Equal(t, GatewayIP, cfg.VirtualIP)
	assert.False(t, cfg.FullTunnel)
	assert.NotEmpty(t, cfg.ClientID)
}

func TestLoadServerConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: "0.0.0.0:9100"
gateway: true
status_addr: "127.0.0.1:8088"
stun_servers:
  - "stun.example.org:3478"
log_level: debug
`), 0644))

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9100", cfg.ListenAddr)
	assert.True(t, cfg.Gateway)
	assert.Equal(t, "127.0.0.1:8088", cfg.StatusAddr)
	assert.Equal(t, []string{"stun.example.org:3478"}, cfg.STUNServers)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Unset fields keep their defaults.
	assert.Equal(t, GatewayIP, cfg.TUNAddress)
}

func TestLoadClientConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_addr: "vpn.example.org:9000"
virtual_ip: "10.0.0.7"
full_tunnel: true
`), 0644))

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "vpn.example.org:9000", cfg.ServerAddr)
	assert.Equal(t, "10.0.0.7", cfg.VirtualIP)
	assert.True(t, cfg.FullTunnel)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadServerConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParsePSK(t *testing.T) {
	// Empty uses the built-in default.
	psk, err := ParsePSK("")
	require.NoError(t, err)
	assert.Equal(t, []byte(defaultPSK), psk[:])

	// 64 hex chars decode to 32 bytes.
	psk, err = ParsePSK("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)
	assert.Equal(t, byte(0x1f), psk[31])

	_, err = ParsePSK("not-hex")
	assert.Error(t, err)
	_, err = ParsePSK("00ff")
	assert.Error(t, err)
}
