package router

import (
	"context"
	"io"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/peerlink"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/routingtable"
)

// Router runs sessions against a set of realms.
type Router interface {
	io.Closer

	// Start begins background maintenance such as call expiry.
	Start(ctx context.Context) error

	// Stop halts background maintenance. Sessions stay connected.
	Stop(ctx context.Context) error

	// Accept runs one session until the client leaves, the link drops, ctx ends
	// or the router closes. The peer is closed before Accept returns.
	Accept(ctx context.Context, peer peerlink.Peer, authID string) error

	// GetRealms returns a summary of every realm, sorted by name.
	GetRealms(ctx context.Context) ([]RealmInfo, error)

	// GetRegistrations returns the live registrations of a realm, oldest first.
	GetRegistrations(ctx context.Context, realm string) ([]routingtable.Registration, error)

	// GetHealth returns the overall health status of the router.
	GetHealth(ctx context.Context) (HealthStatus, error)
}

// RealmInfo is a point-in-time summary of one realm.
type RealmInfo struct {
	Name          string `json:"name"`
	Sessions      int    `json:"sessions"`
	Registrations int    `json:"registrations"`
	ActiveCalls   int    `json:"activeCalls"`
}

// HealthStatus represents the overall health of a router
type HealthStatus struct {
	// Healthy indicates if the router is accepting sessions
	Healthy bool `json:"healthy"`

	// Started indicates whether background maintenance is running
	Started bool `json:"started"`

	// Realms is the number of realms
	Realms int `json:"realms"`

	// Sessions is the number of connected sessions, joined or not
	Sessions int `json:"sessions"`

	// BackloggedSessions counts sessions whose outbound queue is full
	BackloggedSessions int `json:"backloggedSessions"`

	// Registrations and ActiveCalls are summed over all realms
	Registrations int `json:"registrations"`
	ActiveCalls   int `json:"activeCalls"`

	// Message provides additional health information
	Message string `json:"message"`
}
