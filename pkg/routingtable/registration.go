package routingtable

import (
	"time"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

// Registration is one registrant's claim on a procedure URI.
type Registration struct {
	ID         wamp.ID               `json:"id"`
	Procedure  wamp.URI              `json:"procedure"`
	Match      wamp.MatchingPolicy   `json:"match"`
	Invoke     wamp.InvocationPolicy `json:"invoke"`
	Registrant wamp.ID               `json:"registrant"`
	Created    time.Time             `json:"created"`
}

// Match is the outcome of resolving a call URI.
type Match struct {
	Registration Registration
	// Shared is the size of the exact registration set the registrant was picked from.
	Shared int
}

// Pattern reports whether the registration was matched by prefix or wildcard,
// in which case the callee needs the concrete call URI.
func (m Match) Pattern() bool {
	return m.Registration.Match != wamp.MatchStrict
}
