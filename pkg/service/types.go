package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blemesh/mesh-go/pkg/crypto"
	"github.com/blemesh/mesh-go/pkg/log"
)

// Service errors.
var (
	ErrNoNetwork             = errors.New("no network")
	ErrInvalidSource         = errors.New("local node has no elements to send from")
	ErrInvalidElement        = errors.New("element does not belong to the local node")
	ErrInvalidDestination    = errors.New("invalid destination")
	ErrInvalidTtl            = errors.New("invalid TTL")
	ErrInvalidKey            = errors.New("invalid key")
	ErrModelNotBoundToAppKey = errors.New("model is not bound to the application key")
	ErrNoAppKeysBoundToModel = errors.New("no application keys bound to the model")
	ErrCannotRelay           = errors.New("cannot relay message")
	ErrCannotDelete          = errors.New("cannot delete the last network key")
	ErrInvalidConfig         = errors.New("invalid configuration")
)

// MaxTTL is the largest TTL a message may be sent with.
const MaxTTL = 127

// Config configures a NetworkManager.
type Config struct {
	// DefaultTTL is used when neither the caller nor the local node sets one.
	DefaultTTL uint8

	// AcknowledgmentTimeout bounds the wait for the response to an
	// acknowledged message.
	AcknowledgmentTimeout time.Duration

	// ReplayCacheSize is the number of sources kept in the in-memory replay
	// protection cache.
	ReplayCacheSize int

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives protocol events. If nil, they are discarded.
	ProtocolLogger log.Logger

	// Crypto computes virtual addresses and generates keys. Defaults to
	// crypto.New().
	Crypto crypto.Crypto
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:            5,
		AcknowledgmentTimeout: 30 * time.Second,
		ReplayCacheSize:       256,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DefaultTTL == 1 || c.DefaultTTL > MaxTTL {
		return fmt.Errorf("%w: default TTL %d", ErrInvalidConfig, c.DefaultTTL)
	}
	if c.AcknowledgmentTimeout <= 0 {
		return fmt.Errorf("%w: acknowledgment timeout %s", ErrInvalidConfig, c.AcknowledgmentTimeout)
	}
	if c.ReplayCacheSize <= 0 {
		return fmt.Errorf("%w: replay cache size %d", ErrInvalidConfig, c.ReplayCacheSize)
	}
	return nil
}
