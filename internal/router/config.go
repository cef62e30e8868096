package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/rmacdonaldsmith/rpcmesh/internal/events"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/eventlog"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

var (
	// ErrNoRealms is returned when no realm is configured and auto-creation is off
	ErrNoRealms = errors.New("at least one realm is required unless realms are auto-created")
	// ErrInvalidRealmName is returned for realm names that are not valid URIs
	ErrInvalidRealmName = errors.New("invalid realm name")
	// ErrNegativeCallTimeout is returned when the call timeout is negative
	ErrNegativeCallTimeout = errors.New("call timeout cannot be negative")
)

// Config represents configuration for a Router
type Config struct {
	// Realms are created at startup
	Realms []string

	// AutoCreateRealms creates a realm on the first HELLO naming it
	AutoCreateRealms bool

	// CallTimeout cancels invocations that get no yield in time; zero keeps them forever
	CallTimeout time.Duration

	// ReapInterval is how often expired calls are looked for; defaults to CallTimeout/4
	ReapInterval time.Duration

	// Publisher receives meta events in addition to the journal
	Publisher events.Publisher

	// Journal keeps recent meta events for the admin API; nil uses an in-memory journal
	Journal eventlog.EventLog
}

// NewConfig creates a router configuration with safe defaults
func NewConfig(realms ...string) *Config {
	return &Config{
		Realms:    realms,
		Publisher: &events.NoOpPublisher{},
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if len(c.Realms) == 0 && !c.AutoCreateRealms {
		return ErrNoRealms
	}
	for _, name := range c.Realms {
		if err := validRealmName(name); err != nil {
			return err
		}
	}
	if c.CallTimeout < 0 {
		return ErrNegativeCallTimeout
	}
	return nil
}

// WithAutoCreateRealms enables creating realms on demand
func (c *Config) WithAutoCreateRealms(enabled bool) *Config {
	c.AutoCreateRealms = enabled
	return c
}

// WithCallTimeout sets the call timeout
func (c *Config) WithCallTimeout(timeout time.Duration) *Config {
	c.CallTimeout = timeout
	return c
}

// WithPublisher sets the meta event publisher
func (c *Config) WithPublisher(p events.Publisher) *Config {
	c.Publisher = p
	return c
}

// WithJournal sets the meta event journal
func (c *Config) WithJournal(log eventlog.EventLog) *Config {
	c.Journal = log
	return c
}

func (c *Config) reapInterval() time.Duration {
	if c.ReapInterval > 0 {
		return c.ReapInterval
	}
	return max(c.CallTimeout/4, 10*time.Millisecond)
}

func validRealmName(name string) error {
	if err := wamp.URI(name).ValidateProcedure(wamp.MatchStrict); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidRealmName, name, err)
	}
	return nil
}
