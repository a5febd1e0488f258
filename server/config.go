package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	kdl "github.com/sblinch/kdl-go"
)

// ConfigFile is the server configuration file name.
const ConfigFile = "server.kdl"

// Config is the resolved server configuration.
type Config struct {
	SocketPath   string
	HTTPAddr     string
	MaxClients   int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RingSize     int

	Demo DemoConfig
}

// DemoConfig enables the optional demo backends.
type DemoConfig struct {
	// Database is the SQLite path for the table browser. Empty disables
	// it; ":memory:" serves the built-in sample tables.
	Database string

	// Sensors enables the synthetic sensor publisher.
	Sensors bool

	// SensorInterval is the publish period.
	SensorInterval time.Duration
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		SocketPath:   DefaultSocketPath(),
		MaxClients:   100,
		ReadTimeout:  0, // connections idle between commands
		WriteTimeout: 30 * time.Second,
		RingSize:     DefaultRingSize,
		Demo: DemoConfig{
			SensorInterval: 2 * time.Second,
		},
	}
}

// kdlConfig is the on-disk shape. Timeouts and intervals are seconds.
type kdlConfig struct {
	Version string        `kdl:"version"`
	Server  kdlServerNode `kdl:"server"`
	Demo    kdlDemoNode   `kdl:"demo"`
}

type kdlServerNode struct {
	Socket       string `kdl:"socket"`
	HTTPAddr     string `kdl:"http-addr"`
	MaxClients   int    `kdl:"max-clients"`
	ReadTimeout  int    `kdl:"read-timeout"`
	WriteTimeout int    `kdl:"write-timeout"`
	RingSize     int    `kdl:"ring-size"`
}

type kdlDemoNode struct {
	Database       string `kdl:"database"`
	Sensors        bool   `kdl:"sensors"`
	SensorInterval int    `kdl:"sensor-interval"`
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/conch/server.kdl, falling
// back to ~/.config/conch/server.kdl.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "conch", ConfigFile)
}

// LoadConfig reads a KDL config file. A missing file yields the
// defaults; a malformed one is an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(string(data))
}

// ParseConfig parses KDL configuration data over the defaults.
func ParseConfig(data string) (Config, error) {
	var raw kdlConfig
	if err := kdl.Unmarshal([]byte(data), &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := DefaultConfig()
	if raw.Server.Socket != "" {
		cfg.SocketPath = raw.Server.Socket
	}
	if raw.Server.HTTPAddr != "" {
		cfg.HTTPAddr = raw.Server.HTTPAddr
	}
	if raw.Server.MaxClients > 0 {
		cfg.MaxClients = raw.Server.MaxClients
	}
	if raw.Server.ReadTimeout > 0 {
		cfg.ReadTimeout = time.Duration(raw.Server.ReadTimeout) * time.Second
	}
	if raw.Server.WriteTimeout > 0 {
		cfg.WriteTimeout = time.Duration(raw.Server.WriteTimeout) * time.Second
	}
	if raw.Server.RingSize > 0 {
		cfg.RingSize = raw.Server.RingSize
	}

	cfg.Demo.Database = raw.Demo.Database
	cfg.Demo.Sensors = raw.Demo.Sensors
	if raw.Demo.SensorInterval > 0 {
		cfg.Demo.SensorInterval = time.Duration(raw.Demo.SensorInterval) * time.Second
	}
	return cfg, nil
}

// WriteDefaultConfig writes a commented default config file.
func WriteDefaultConfig(path string) error {
	defaultKDL := `// conch server configuration

version "1.0"

server {
    // Unix socket the server listens on. Defaults to
    // $XDG_RUNTIME_DIR/conch.sock when unset.
    // socket "/run/user/1000/conch.sock"

    // Optional HTTP listener (execute/ping/health plus the /ws
    // WebSocket endpoint). Disabled when unset.
    // http-addr "127.0.0.1:8137"

    // Maximum concurrent clients (0 = unlimited)
    max-clients 100

    // Connection read timeout in seconds (0 = idle connections allowed)
    read-timeout 0

    // Write timeout in seconds
    write-timeout 30

    // Message history capacity served by the history command
    ring-size 256
}

demo {
    // SQLite database for the table browser commands. ":memory:"
    // serves built-in sample tables. Unset disables the browser.
    // database ":memory:"

    // Synthetic sensor publisher on sensor/temperature and
    // sensor/humidity
    sensors false
    sensor-interval 2
}
`
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strings.TrimSpace(defaultKDL)+"\n"), 0644)
}
