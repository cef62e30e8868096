package httpclient

import (
	"fmt"
	"time"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/eventlog"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/router"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/routingtable"
)

// Config holds client configuration
type Config struct {
	// ServerURL is the base URL of the rpcmesh HTTP API (e.g., "http://localhost:8080")
	ServerURL string

	// AuthID is the identity requested at login
	AuthID string

	// Timeout for HTTP requests. Event streams are not bound by it.
	Timeout time.Duration
}

// SetDefaults sets reasonable default values for the config
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// AuthResponse represents the response from authentication
type AuthResponse struct {
	Token     string    `json:"token"`
	AuthID    string    `json:"authid"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HealthResponse is the router health report
type HealthResponse = router.HealthStatus

// RealmsResponse lists the router's realms
type RealmsResponse struct {
	Realms []router.RealmInfo `json:"realms"`
}

// RegistrationsResponse lists the live registrations of one realm
type RegistrationsResponse struct {
	Realm         string                      `json:"realm"`
	Registrations []routingtable.Registration `json:"registrations"`
}

// ReadEventsResponse is a page of journaled meta events
type ReadEventsResponse struct {
	Realm       string            `json:"realm"`
	Topic       string            `json:"topic"`
	StartOffset int64             `json:"startOffset"`
	EndOffset   int64             `json:"endOffset"`
	Count       int               `json:"count"`
	Events      []*eventlog.Event `json:"events"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// APIError is returned for responses with a 4xx or 5xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}
