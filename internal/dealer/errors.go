package dealer

import (
	"errors"
	"fmt"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/routingtable"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

var (
	// ErrInvalidState covers operations that make no sense in the session's current state.
	// No message is sent for them.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotAttached is returned for every operation of a session outside a realm.
	ErrNotAttached = fmt.Errorf("%w: session is not attached to a realm", ErrInvalidState)
	// ErrAlreadyAttached is returned when attaching a session twice.
	ErrAlreadyAttached = fmt.Errorf("%w: session is already attached", ErrInvalidState)
	// ErrUnknownInvocation is returned for a yield or invocation error with no matching active call.
	ErrUnknownInvocation = fmt.Errorf("%w: unknown invocation", ErrInvalidState)
	// ErrProtocolViolation is returned for messages a dealer session must never receive.
	ErrProtocolViolation = errors.New("protocol violation")
)

// Error is a failed request that is answered with an ERROR message.
type Error struct {
	// Type is the request message type being answered.
	Type wamp.MessageType
	// Request is the id of the failed request.
	Request wamp.ID
	// Reason is the error URI sent to the peer.
	Reason wamp.URI
	// Err is the underlying cause, for logs only.
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %d: %s", e.Type, e.Request, e.Reason)
	}
	return fmt.Sprintf("%s %d: %s: %v", e.Type, e.Request, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message builds the ERROR message for the peer.
func (e *Error) Message() *wamp.Error {
	return &wamp.Error{
		Type:    e.Type,
		Request: e.Request,
		Details: wamp.Dict{},
		Error:   e.Reason,
	}
}

// reasonFor maps registry failures to error URIs.
func reasonFor(err error, fallback wamp.URI) wamp.URI {
	switch {
	case errors.Is(err, routingtable.ErrProcedureAlreadyExists):
		return wamp.ErrProcedureAlreadyExists
	case errors.Is(err, routingtable.ErrInvalidURI):
		return wamp.ErrInvalidURI
	case errors.Is(err, routingtable.ErrInvalidPolicy):
		return wamp.ErrInvalidArgument
	default:
		return fallback
	}
}
