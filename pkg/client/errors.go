package client

import (
	"fmt"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

// RPCError is an ERROR reply, or an error a Handler returns to its caller.
type RPCError struct {
	URI     wamp.URI
	Args    wamp.List
	Kwargs  wamp.Dict
	Details wamp.Dict
}

func (e *RPCError) Error() string {
	if len(e.Args) > 0 {
		return fmt.Sprintf("%s: %v", e.URI, e.Args[0])
	}
	return string(e.URI)
}

// Is matches another *RPCError with the same URI.
func (e *RPCError) Is(target error) bool {
	t, ok := target.(*RPCError)
	return ok && t.URI == e.URI
}

// AbortError is returned by Join when the router refuses the session.
type AbortError struct {
	Reason  wamp.URI
	Details wamp.Dict
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("session aborted: %s", e.Reason)
}

func rpcError(m *wamp.Error) *RPCError {
	return &RPCError{URI: m.Error, Args: m.Args, Kwargs: m.Kwargs, Details: m.Details}
}
