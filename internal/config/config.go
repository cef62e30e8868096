// Package config loads the daemon configuration from RPCMESH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:Load"

// EnvPrefix is prepended to every variable name, e.g. RPCMESH_HTTP_PORT.
const EnvPrefix = "RPCMESH"

var (
	ErrNoRealms          = errors.New("at least one realm is required unless auto-create is enabled")
	ErrInvalidPort       = errors.New("http port must be between 0 and 65535")
	ErrNegativeTimeout   = errors.New("call timeout cannot be negative")
	ErrInvalidRetention  = errors.New("journal retention must be positive")
	ErrInvalidLogLevel   = errors.New("log level must be debug, info, warn or error")
	ErrInvalidLogFormat  = errors.New("log format must be text or json")
	ErrMissingSecret = errors.New("a secret key is required when authentication is enabled")
)

// Config holds the daemon settings.
type Config struct {
	// HTTP API and websocket endpoint
	HTTPPort  string `envconfig:"HTTP_PORT" default:"8080"`
	SecretKey string `envconfig:"SECRET_KEY"`
	NoAuth    bool   `envconfig:"NO_AUTH" default:"false"`

	// gRPC session endpoint; empty disables it
	GRPCListen string `envconfig:"GRPC_LISTEN" default:":9090"`

	// Realms
	Realms           []string      `envconfig:"REALMS" default:"realm1"`
	AutoCreateRealms bool          `envconfig:"AUTO_CREATE_REALMS" default:"false"`
	CallTimeout      time.Duration `envconfig:"CALL_TIMEOUT" default:"0s"`

	// Meta events
	NATSURL          string `envconfig:"NATS_URL"`
	NATSName         string `envconfig:"NATS_NAME" default:"rpcmesh"`
	JournalRetention int    `envconfig:"JOURNAL_RETENTION" default:"1000"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	c.Realms = trimRealms(c.Realms)
	return &c, nil
}

// Validate checks the configuration before the daemon starts.
func (c *Config) Validate() error {
	if len(trimRealms(c.Realms)) == 0 && !c.AutoCreateRealms {
		return ErrNoRealms
	}
	if port, err := strconv.Atoi(c.HTTPPort); err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("%w: %q", ErrInvalidPort, c.HTTPPort)
	}
	if c.CallTimeout < 0 {
		return ErrNegativeTimeout
	}
	if c.JournalRetention <= 0 {
		return ErrInvalidRetention
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat)
	}
	if !c.NoAuth && c.SecretKey == "" {
		return ErrMissingSecret
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c *Config) Logger() *slog.Logger {
	level, _ := c.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(c.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func trimRealms(realms []string) []string {
	out := realms[:0:0]
	for _, r := range realms {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
