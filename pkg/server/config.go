package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the resolved runtime configuration the Server runs with.
type Config struct {
	Host          string
	TCPPort       int
	WSPort        int
	SSHPort       int
	MetricsPort   int
	SSHHostKey    string
	Origin        string
	NetworkName   string
	ServerDesc    string
	WorkerThreads int

	MOTD            []string
	DefaultChannels []string
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Host:        "0.0.0.0",
		TCPPort:     6667,
		WSPort:      0,
		SSHPort:     0,
		MetricsPort: 0,
		SSHHostKey:  "~/.ircd/ssh_host_key",
		Origin:      "localhost",
		NetworkName: "localnet",
		ServerDesc:  "An IRC community server",
		MOTD: []string{
			"Welcome to this IRC server.",
			"Be kind.",
		},
		DefaultChannels: []string{"#NIO", "#SwiftServer"},
	}
}

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server   ServerSection   `toml:"server"`
	MOTD     MOTDSection     `toml:"motd"`
	Channels ChannelsSection `toml:"channels"`
}

type ServerSection struct {
	Host          string `toml:"host"`
	TCPPort       int    `toml:"tcp_port"`
	WSPort        int    `toml:"ws_port"`
	SSHPort       int    `toml:"ssh_port"`
	MetricsPort   int    `toml:"metrics_port"`
	SSHHostKey    string `toml:"ssh_host_key"`
	Origin        string `toml:"origin"`
	NetworkName   string `toml:"network_name"`
	ServerDesc    string `toml:"server_description"`
	WorkerThreads int    `toml:"worker_threads"`
}

type MOTDSection struct {
	Lines []string `toml:"lines"`
}

type ChannelsSection struct {
	DefaultChannels []string `toml:"default_channels"`
}

// LoadConfig loads configuration from a TOML file, creates default if not found,
// and applies environment variable overrides
func LoadConfig(path string) (TOMLConfig, error) {
	// Expand ~ in path
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return TOMLConfig{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// File doesn't exist, create default config
		var config TOMLConfig
		if err := writeDefaultConfig(path); err != nil {
			// If we can't write, just return defaults without error
			// (might be a permissions issue, but we can still run)
			return applyEnvOverrides(config), nil
		}
		return applyEnvOverrides(config), nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return applyEnvOverrides(config), nil
}

// applyEnvOverrides applies environment variable overrides to the config
// Environment variables follow the pattern: IRCD_SECTION_KEY
// Example: IRCD_SERVER_TCP_PORT=6697
func applyEnvOverrides(config TOMLConfig) TOMLConfig {
	if val := os.Getenv("IRCD_SERVER_HOST"); val != "" {
		config.Server.Host = val
	}
	if val := os.Getenv("IRCD_SERVER_TCP_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.TCPPort = port
		}
	}
	if val := os.Getenv("IRCD_SERVER_WS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.WSPort = port
		}
	}
	if val := os.Getenv("IRCD_SERVER_SSH_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.SSHPort = port
		}
	}
	if val := os.Getenv("IRCD_SERVER_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.MetricsPort = port
		}
	}
	if val := os.Getenv("IRCD_SERVER_SSH_HOST_KEY"); val != "" {
		config.Server.SSHHostKey = val
	}
	if val := os.Getenv("IRCD_SERVER_ORIGIN"); val != "" {
		config.Server.Origin = val
	}
	if val := os.Getenv("IRCD_SERVER_NETWORK_NAME"); val != "" {
		config.Server.NetworkName = val
	}
	if val := os.Getenv("IRCD_SERVER_SERVER_DESCRIPTION"); val != "" {
		config.Server.ServerDesc = val
	}
	if val := os.Getenv("IRCD_SERVER_WORKER_THREADS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Server.WorkerThreads = n
		}
	}
	if val := os.Getenv("IRCD_CHANNELS_DEFAULT_CHANNELS"); val != "" {
		channels := strings.Split(val, ",")
		for i, name := range channels {
			channels[i] = strings.TrimSpace(name)
		}
		config.Channels.DefaultChannels = channels
	}

	return config
}

// writeDefaultConfig writes the default config to a file with all options documented
func writeDefaultConfig(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	content := `# IRC Server Configuration
# This file was auto-generated with default values
# Restart the server for changes to take effect
#
# Environment variables can override these settings:
# IRCD_SECTION_KEY (e.g., IRCD_SERVER_TCP_PORT=6697)

[server]
# Address to bind listeners on
host = "0.0.0.0"

# Port for plain TCP connections
tcp_port = 6667

# Port for WebSocket connections (0 = disabled)
ws_port = 0

# Port for SSH connections (0 = disabled)
ssh_port = 0

# Port for the metrics/health HTTP endpoint (0 = disabled)
metrics_port = 0

# Path to SSH host key file (generated on first use)
ssh_host_key = "~/.ircd/ssh_host_key"

# Server name used as the message prefix in replies
origin = "localhost"

# Network name advertised in the 005 reply
network_name = "localnet"

# Description shown in WHOIS replies
server_description = "An IRC community server"

# Number of worker threads (0 = one per CPU)
worker_threads = 0

[motd]
# Message of the day, one entry per line
lines = [
  "Welcome to this IRC server.",
  "Be kind.",
]

[channels]
# Channels created at startup
default_channels = ["#NIO", "#SwiftServer"]
`

	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ToConfig converts TOMLConfig to the resolved runtime Config, filling in
// defaults for anything the file left unset.
func (c *TOMLConfig) ToConfig() Config {
	cfg := DefaultConfig()

	if strings.TrimSpace(c.Server.Host) != "" {
		cfg.Host = c.Server.Host
	}
	if c.Server.TCPPort != 0 {
		cfg.TCPPort = c.Server.TCPPort
	}
	if c.Server.WSPort != 0 {
		cfg.WSPort = c.Server.WSPort
	}
	if c.Server.SSHPort != 0 {
		cfg.SSHPort = c.Server.SSHPort
	}
	if c.Server.MetricsPort != 0 {
		cfg.MetricsPort = c.Server.MetricsPort
	}
	if strings.TrimSpace(c.Server.SSHHostKey) != "" {
		cfg.SSHHostKey = c.Server.SSHHostKey
	}
	if strings.TrimSpace(c.Server.Origin) != "" {
		cfg.Origin = c.Server.Origin
	}
	if strings.TrimSpace(c.Server.NetworkName) != "" {
		cfg.NetworkName = c.Server.NetworkName
	}
	if strings.TrimSpace(c.Server.ServerDesc) != "" {
		cfg.ServerDesc = c.Server.ServerDesc
	}
	if c.Server.WorkerThreads != 0 {
		cfg.WorkerThreads = c.Server.WorkerThreads
	}
	if len(c.MOTD.Lines) > 0 {
		cfg.MOTD = c.MOTD.Lines
	}
	if len(c.Channels.DefaultChannels) > 0 {
		cfg.DefaultChannels = c.Channels.DefaultChannels
	}

	return cfg
}

// SSHHostKeyPath returns the SSH host key path with ~ expanded.
func (c Config) SSHHostKeyPath() (string, error) {
	path := c.SSHHostKey
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}
	return path, nil
}
