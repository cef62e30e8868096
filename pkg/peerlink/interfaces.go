package peerlink

import (
	"errors"
	"io"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

var (
	// ErrQueueFull is returned by Send when the outbound queue has no room.
	ErrQueueFull = errors.New("send queue full")
	// ErrClosed is returned by Send after the link has gone down.
	ErrClosed = errors.New("peer closed")
)

// Peer is one end of a message link.
type Peer interface {
	io.Closer

	// Send enqueues a message for delivery. It never blocks.
	Send(msg wamp.Message) error

	// Recv returns the inbound message channel. It is closed when the link goes down.
	Recv() <-chan wamp.Message
}

// HealthState describes a link as seen by the router.
type HealthState int

const (
	// Healthy links are open and keeping up.
	Healthy HealthState = iota
	// Backlogged links have a full outbound queue.
	Backlogged
	// Disconnected links have been closed.
	Disconnected
)

func (s HealthState) String() string {
	switch s {
	case Healthy:
		return "Healthy"
	case Backlogged:
		return "Backlogged"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}
