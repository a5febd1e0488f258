package server

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(`
version "1.0"

server {
    socket "/tmp/test-conch.sock"
    http-addr "127.0.0.1:8137"
    max-clients 10
    read-timeout 60
    write-timeout 5
    ring-size 32
}

demo {
    database ":memory:"
    sensors true
    sensor-interval 1
}
`)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test-conch.sock", cfg.SocketPath)
	assert.Equal(t, "127.0.0.1:8137", cfg.HTTPAddr)
	assert.Equal(t, 10, cfg.MaxClients)
	assert.Equal(t, 60*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 32, cfg.RingSize)
	assert.Equal(t, ":memory:", cfg.Demo.Database)
	assert.True(t, cfg.Demo.Sensors)
	assert.Equal(t, time.Second, cfg.Demo.SensorInterval)
}

func TestParseConfigPartialKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig(`
server {
    max-clients 7
}
`)
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, 7, cfg.MaxClients)
	assert.Equal(t, def.SocketPath, cfg.SocketPath)
	assert.Equal(t, def.WriteTimeout, cfg.WriteTimeout)
	assert.Equal(t, def.RingSize, cfg.RingSize)
	assert.False(t, cfg.Demo.Sensors)
}

func TestParseConfigMalformed(t *testing.T) {
	_, err := ParseConfig(`server { unterminated "`)
	assert.Error(t, err)
}

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.kdl"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestWriteDefaultConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", ConfigFile)
	require.NoError(t, WriteDefaultConfig(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.MaxClients)
	assert.Equal(t, 256, cfg.RingSize)
	assert.False(t, cfg.Demo.Sensors)
}
