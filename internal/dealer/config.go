package dealer

import (
	"errors"
	"time"

	"github.com/rmacdonaldsmith/rpcmesh/internal/events"
	"github.com/rmacdonaldsmith/rpcmesh/internal/idgen"
)

var (
	// ErrEmptyRealmName is returned when the realm name is empty
	ErrEmptyRealmName = errors.New("realm name cannot be empty")
	// ErrNilSender is returned when no sender is configured
	ErrNilSender = errors.New("sender cannot be nil")
)

// Config represents configuration for a Realm
type Config struct {
	// Name is the realm URI sessions join with HELLO
	Name string

	// Sender delivers outbound messages to sessions
	Sender Sender

	// Publisher receives meta events; nil drops them
	Publisher events.Publisher

	// IDs draws procedure and invocation ids; nil uses a clock-seeded generator
	IDs *idgen.Generator

	// Now is the clock used for call start times
	Now func() time.Time
}

// NewConfig creates a realm configuration with safe defaults
func NewConfig(name string, sender Sender) *Config {
	return &Config{
		Name:      name,
		Sender:    sender,
		Publisher: &events.NoOpPublisher{},
		Now:       time.Now,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.Name == "" {
		return ErrEmptyRealmName
	}
	if c.Sender == nil {
		return ErrNilSender
	}
	return nil
}

// WithPublisher sets the meta event publisher
func (c *Config) WithPublisher(p events.Publisher) *Config {
	c.Publisher = p
	return c
}

// WithIDGenerator sets the id generator
func (c *Config) WithIDGenerator(g *idgen.Generator) *Config {
	c.IDs = g
	return c
}

// WithClock sets the clock
func (c *Config) WithClock(now func() time.Time) *Config {
	c.Now = now
	return c
}
