// Package transport provides the building blocks shared by peer implementations.
package transport

import (
	"sync"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/peerlink"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

// DefaultQueueSize is the outbound queue length used when none is configured.
const DefaultQueueSize = 256

// Outbox is a bounded, non-blocking message queue. The channel returned by C is
// never closed; consumers watch Done to learn that no more messages will arrive.
type Outbox struct {
	ch   chan wamp.Message
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewOutbox creates a queue holding up to size messages.
func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Outbox{
		ch:   make(chan wamp.Message, size),
		done: make(chan struct{}),
	}
}

// Push enqueues msg without blocking.
func (o *Outbox) Push(msg wamp.Message) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return peerlink.ErrClosed
	}
	select {
	case o.ch <- msg:
		return nil
	default:
		return peerlink.ErrQueueFull
	}
}

// C returns the queue.
func (o *Outbox) C() <-chan wamp.Message {
	return o.ch
}

// Done is closed once Close has been called.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

// Close stops accepting messages. Messages already queued stay readable from C.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.done)
	}
}

// Len returns the number of queued messages.
func (o *Outbox) Len() int {
	return len(o.ch)
}

// Full reports whether the next Push would fail with ErrQueueFull.
func (o *Outbox) Full() bool {
	return len(o.ch) == cap(o.ch)
}

// Drain returns the messages still queued without blocking.
func (o *Outbox) Drain() []wamp.Message {
	var out []wamp.Message
	for {
		select {
		case msg := <-o.ch:
			out = append(out, msg)
		default:
			return out
		}
	}
}
