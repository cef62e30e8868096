package httpapi

import (
	"time"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/eventlog"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/router"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/routingtable"
)

// Request/Response types for the HTTP API

// AuthRequest represents a login request
type AuthRequest struct {
	AuthID string `json:"authid"`
}

// AuthResponse represents a login response
type AuthResponse struct {
	Token     string    `json:"token"`
	AuthID    string    `json:"authid"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RealmsResponse lists the router's realms
type RealmsResponse struct {
	Realms []router.RealmInfo `json:"realms"`
}

// RegistrationsResponse lists the live registrations of one realm
type RegistrationsResponse struct {
	Realm         string                      `json:"realm"`
	Registrations []routingtable.Registration `json:"registrations"`
}

// ReadEventsResponse represents a page of journaled meta events
type ReadEventsResponse struct {
	Realm       string            `json:"realm"`
	Topic       string            `json:"topic"`
	StartOffset int64             `json:"startOffset"`
	EndOffset   int64             `json:"endOffset"`
	Count       int               `json:"count"`
	Events      []*eventlog.Event `json:"events"`
}

// HealthResponse represents health check response
type HealthResponse = router.HealthStatus

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
