package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/blemesh/mesh-go/pkg/service"
	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML configuration file of mesh-ctl. Zero values keep
// the defaults.
type FileConfig struct {
	NetworkName     string        `yaml:"network_name"`
	ProvisionerName string        `yaml:"provisioner_name"`
	DefaultTTL      *uint8        `yaml:"default_ttl"`
	AckTimeout      time.Duration `yaml:"ack_timeout"`
	ReplayCacheSize int           `yaml:"replay_cache_size"`
	StateDir        string        `yaml:"state_dir"`
	ProtocolLog     string        `yaml:"protocol_log"`

	// ProtocolLogMaxSize rotates the protocol log at this many bytes.
	// Zero keeps a single growing file.
	ProtocolLogMaxSize int64 `yaml:"protocol_log_max_size"`
}

// LoadConfig reads a configuration file.
func LoadConfig(path string) (FileConfig, error) {
	var cfg FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ServiceConfig returns the network manager configuration with the file
// settings applied over service.DefaultConfig.
func (c FileConfig) ServiceConfig() (service.Config, error) {
	cfg := service.DefaultConfig()
	if c.DefaultTTL != nil {
		cfg.DefaultTTL = *c.DefaultTTL
	}
	if c.AckTimeout != 0 {
		cfg.AcknowledgmentTimeout = c.AckTimeout
	}
	if c.ReplayCacheSize != 0 {
		cfg.ReplayCacheSize = c.ReplayCacheSize
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// parseLogLevel maps a -log-level value to a slog level.
func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s (use: debug, info, warn, error)", s)
	}
}
