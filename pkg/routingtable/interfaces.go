package routingtable

import (
	"errors"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

var (
	// ErrProcedureAlreadyExists is returned when a registration conflicts with an existing one.
	ErrProcedureAlreadyExists = errors.New("procedure already exists")
	// ErrNoSuchProcedure is returned when nothing is registered for a URI or registrant.
	ErrNoSuchProcedure = errors.New("no such procedure")
	// ErrInvalidURI is returned for URIs that are malformed for their matching policy.
	ErrInvalidURI = errors.New("invalid uri")
	// ErrInvalidPolicy is returned for matching or invocation policies outside the defined set.
	ErrInvalidPolicy = errors.New("invalid policy")
)

// RoutingTable maps procedure URIs to registrants.
type RoutingTable interface {
	// Register adds a registration and returns its procedure id.
	// An exact URI may be shared only when every registrant uses the same shared
	// invocation policy; prefix and wildcard patterns never conflict across registrants.
	Register(uri wamp.URI, registrant wamp.ID, match wamp.MatchingPolicy, invoke wamp.InvocationPolicy) (wamp.ID, error)

	// Unregister removes the registrant's registration at (uri, match) and returns its id.
	Unregister(uri wamp.URI, registrant wamp.ID, match wamp.MatchingPolicy) (wamp.ID, error)

	// Resolve picks the registration that should receive a call to uri.
	Resolve(uri wamp.URI) (Match, error)

	// RemoveRegistrant drops every registration owned by a session.
	RemoveRegistrant(registrant wamp.ID) []Registration

	// Lookup returns the registration with the given procedure id.
	Lookup(id wamp.ID) (Registration, bool)

	// Registrations returns all live registrations, oldest first.
	Registrations() []Registration

	// Count returns the number of live registrations.
	Count() int
}
