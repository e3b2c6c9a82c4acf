package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// defaultPSK is the built-in pre-shared key used when none is configured.
// Every peer must carry the same 32 bytes; override with the psk setting
// or the --psk flag on real deployments.
const defaultPSK = "0123456789abcdef0123456789abcdef"

// ServerConfig is the configuration for qtun-server.
type ServerConfig struct {
	ListenAddr  string   `yaml:"listen_addr"`
	KeysDir     string   `yaml:"keys_dir"`
	PSK         string   `yaml:"psk"` // hex, 64 chars; empty = built-in default
	Gateway     bool     `yaml:"gateway"`
	TUNAddress  string   `yaml:"tun_address"`
	TUNNetmask  string   `yaml:"tun_netmask"`
	StatusAddr  string   `yaml:"status_addr"` // empty = disabled
	STUNServers []string `yaml:"stun_servers"`
	LogLevel    string   `yaml:"log_level"`
}

// ClientConfig is the configuration for qtun-client.
type ClientConfig struct {
	ServerAddr    string `yaml:"server_addr"`
	ServerKeyPath string `yaml:"server_key_path"`
	PSK           string `yaml:"psk"`
	VirtualIP     string `yaml:"virtual_ip"`
	ClientID      string `yaml:"client_id"`
	FullTunnel    bool   `yaml:"full_tunnel"`
	LogLevel      string `yaml:"log_level"`
}

// DefaultServerConfig returns a config with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr: fmt.Sprintf("0.0.0.0:%d", DefaultListenPort),
		KeysDir:    DefaultKeysDir(),
		TUNAddress: GatewayIP,
		TUNNetmask: VPNNetmask,
		LogLevel:   "info",
	}
}

// DefaultClientConfig returns a config with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerAddr:    DefaultServerAddr,
		ServerKeyPath: filepath.Join(DefaultKeysDir(), "server_public.key"),
		VirtualIP:     GatewayIP,
		ClientID:      defaultClientID(),
		LogLevel:      "info",
	}
}

// LoadServerConfig loads server config from a YAML file on top of defaults.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := loadYAML(path, cfg); err != nil {
		return nil, fmt.Errorf("load server config: %w", err)
	}
	return cfg, nil
}

// LoadClientConfig loads client config from a YAML file on top of defaults.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := loadYAML(path, cfg); err != nil {
		return nil, fmt.Errorf("load client config: %w", err)
	}
	return cfg, nil
}

// ParsePSK decodes a hex pre-shared key into 32 raw bytes. An empty
// string yields the built-in default key.
func ParsePSK(s string) ([32]byte, error) {
	var psk [32]byte
	if s == "" {
		copy(psk[:], defaultPSK)
		return psk, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return psk, fmt.Errorf("psk must be hex: %w", err)
	}
	if len(b) != 32 {
		return psk, fmt.Errorf("psk must be 32 bytes (64 hex chars), got %d bytes", len(b))
	}
	copy(psk[:], b)
	return psk, nil
}

// DefaultKeysDir returns <project_root>/keys, walking up from the
// executable toward a directory containing go.mod; falls back to
// CWD/keys when no project root is found.
func DefaultKeysDir() string {
	exe, err := os.Executable()
	if err == nil {
		dir := filepath.Dir(exe)
		for i := 0; i < 10; i++ {
			if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
				return filepath.Join(dir, "keys")
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "keys"
	}
	return filepath.Join(cwd, "keys")
}

func defaultClientID() string {
	host, err := os.Hostname()
	if err != nil {
		return "qtun-client"
	}
	return host
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
