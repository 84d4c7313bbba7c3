package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blemesh/mesh-go/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mesh-ctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
network_name: Living Room
provisioner_name: Tablet
default_ttl: 0
ack_timeout: 10s
replay_cache_size: 64
state_dir: /var/lib/mesh-ctl
protocol_log_max_size: 1048576
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "Living Room", cfg.NetworkName)
	assert.Equal(t, "Tablet", cfg.ProvisionerName)
	require.NotNil(t, cfg.DefaultTTL)
	assert.Equal(t, uint8(0), *cfg.DefaultTTL)
	assert.Equal(t, 10*time.Second, cfg.AckTimeout)
	assert.Equal(t, "/var/lib/mesh-ctl", cfg.StateDir)
	assert.Equal(t, int64(1<<20), cfg.ProtocolLogMaxSize)

	svc, err := cfg.ServiceConfig()
	require.NoError(t, err)
	assert.Equal(t, uint8(0), svc.DefaultTTL)
	assert.Equal(t, 10*time.Second, svc.AcknowledgmentTimeout)
	assert.Equal(t, 64, svc.ReplayCacheSize)
}

func TestServiceConfigDefaults(t *testing.T) {
	svc, err := FileConfig{}.ServiceConfig()
	require.NoError(t, err)
	assert.Equal(t, service.DefaultConfig(), svc)
}

func TestServiceConfigInvalidTTL(t *testing.T) {
	ttl := uint8(1)
	_, err := FileConfig{DefaultTTL: &ttl}.ServiceConfig()
	assert.ErrorIs(t, err, service.ErrInvalidConfig)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "ack_timeout: soon\n"))
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := parseLogLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseLogLevel("trace")
	assert.Error(t, err)
}
