package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", c.HTTPPort)
	assert.Equal(t, ":9090", c.GRPCListen)
	assert.Equal(t, []string{"realm1"}, c.Realms)
	assert.False(t, c.AutoCreateRealms)
	assert.Zero(t, c.CallTimeout)
	assert.Equal(t, 1000, c.JournalRetention)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "text", c.LogFormat)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("RPCMESH_HTTP_PORT", "9000")
	t.Setenv("RPCMESH_REALMS", "realm1, realm2 ,")
	t.Setenv("RPCMESH_AUTO_CREATE_REALMS", "true")
	t.Setenv("RPCMESH_CALL_TIMEOUT", "30s")
	t.Setenv("RPCMESH_NATS_URL", "nats://127.0.0.1:4222")
	t.Setenv("RPCMESH_LOG_FORMAT", "json")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", c.HTTPPort)
	assert.Equal(t, []string{"realm1", "realm2"}, c.Realms)
	assert.True(t, c.AutoCreateRealms)
	assert.Equal(t, 30*time.Second, c.CallTimeout)
	assert.Equal(t, "nats://127.0.0.1:4222", c.NATSURL)
	assert.Equal(t, "json", c.LogFormat)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("RPCMESH_CALL_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			HTTPPort:         "8080",
			SecretKey:        "secret",
			Realms:           []string{"realm1"},
			JournalRetention: 10,
			LogLevel:         "info",
			LogFormat:        "text",
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"no realms", func(c *Config) { c.Realms = nil }, ErrNoRealms},
		{"blank realms", func(c *Config) { c.Realms = []string{" "} }, ErrNoRealms},
		{"bad port", func(c *Config) { c.HTTPPort = "http" }, ErrInvalidPort},
		{"port out of range", func(c *Config) { c.HTTPPort = "70000" }, ErrInvalidPort},
		{"negative timeout", func(c *Config) { c.CallTimeout = -time.Second }, ErrNegativeTimeout},
		{"retention", func(c *Config) { c.JournalRetention = 0 }, ErrInvalidRetention},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, ErrInvalidLogLevel},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, ErrInvalidLogFormat},
		{"secret", func(c *Config) { c.SecretKey = "" }, ErrMissingSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(c)
			assert.ErrorIs(t, c.Validate(), tt.want)
		})
	}

	t.Run("auto create without realms", func(t *testing.T) {
		c := valid()
		c.Realms = nil
		c.AutoCreateRealms = true
		assert.NoError(t, c.Validate())
	})

	t.Run("no auth without secret", func(t *testing.T) {
		c := valid()
		c.SecretKey = ""
		c.NoAuth = true
		assert.NoError(t, c.Validate())
	})
}

func TestConfig_SlogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		c := &Config{LogLevel: in}
		got, err := c.SlogLevel()
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
