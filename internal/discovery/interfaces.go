package discovery

import (
	"context"
	"errors"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/peerlink"
)

// ErrNoRouters is returned when discovery yields no endpoints to dial.
var ErrNoRouters = errors.New("no router endpoints discovered")

// Endpoint is a router address a client can open sessions against
type Endpoint struct {
	ID      string
	Address string
}

// Discovery defines the interface for router discovery mechanisms
type Discovery interface {
	// FindRouters returns the known router endpoints in preference order
	FindRouters(ctx context.Context) ([]Endpoint, error)
}

// DialFunc opens a transport to a single address.
type DialFunc func(ctx context.Context, address string) (peerlink.Peer, error)
