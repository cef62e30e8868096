package grpclink

import (
	"errors"

	"github.com/rmacdonaldsmith/rpcmesh/internal/transport"
)

// Config holds configuration for the gRPC session listener.
type Config struct {
	ListenAddress  string
	SendQueueSize  int
	MaxMessageSize int
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return errors.New("listen address cannot be empty")
	}
	if c.SendQueueSize < 0 {
		return errors.New("send queue size cannot be negative")
	}
	return nil
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = transport.DefaultQueueSize
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1024 * 1024 // 1MB
	}
}
