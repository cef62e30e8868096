package eventlog

import (
	"slices"
	"time"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

// Event is a single meta event.
type Event struct {
	// Offset is the position of the event within its realm and topic
	Offset int64 `json:"offset"`

	Realm string   `json:"realm"`
	Topic wamp.URI `json:"topic"`

	// Session is the session the event is about
	Session wamp.ID `json:"session"`

	// Args are the positional arguments a subscriber to the topic would receive
	Args wamp.List `json:"args"`

	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(realm string, topic wamp.URI, session wamp.ID, args wamp.List) *Event {
	return &Event{
		Realm:     realm,
		Topic:     topic,
		Session:   session,
		Args:      slices.Clone(args),
		Timestamp: time.Now().UTC(),
	}
}

// WithOffset returns a copy of the event carrying the given offset.
func (e *Event) WithOffset(offset int64) *Event {
	c := *e
	c.Offset = offset
	return &c
}

// Copy returns a copy whose argument list can be modified independently.
func (e *Event) Copy() *Event {
	c := *e
	c.Args = slices.Clone(e.Args)
	return &c
}
