package transport

import (
	"sync"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/peerlink"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

// pipeEnd is one side of an in-memory link.
type pipeEnd struct {
	inbox  *Outbox
	remote *pipeEnd
	recv   chan wamp.Message
	closed chan struct{}
	once   sync.Once
}

// NewPipe returns two connected peers. Each direction buffers up to queue messages.
// Closing either end closes the link; the other end still receives what was queued.
func NewPipe(queue int) (peerlink.Peer, peerlink.Peer) {
	a := newPipeEnd(queue)
	b := newPipeEnd(queue)
	a.remote, b.remote = b, a
	go a.forward()
	go b.forward()
	return a, b
}

func newPipeEnd(queue int) *pipeEnd {
	return &pipeEnd{
		inbox:  NewOutbox(queue),
		recv:   make(chan wamp.Message),
		closed: make(chan struct{}),
	}
}

func (e *pipeEnd) Send(msg wamp.Message) error {
	return e.remote.inbox.Push(msg)
}

func (e *pipeEnd) Recv() <-chan wamp.Message {
	return e.recv
}

func (e *pipeEnd) Close() error {
	e.once.Do(func() {
		close(e.closed)
		e.inbox.Close()
		e.remote.inbox.Close()
	})
	return nil
}

// Health reports the state of this end's outbound direction.
func (e *pipeEnd) Health() peerlink.HealthState {
	select {
	case <-e.remote.inbox.Done():
		return peerlink.Disconnected
	default:
	}
	if e.remote.inbox.Full() {
		return peerlink.Backlogged
	}
	return peerlink.Healthy
}

func (e *pipeEnd) forward() {
	defer close(e.recv)
	for {
		select {
		case msg := <-e.inbox.C():
			if !e.deliver(msg) {
				return
			}
		case <-e.inbox.Done():
			for _, msg := range e.inbox.Drain() {
				if !e.deliver(msg) {
					return
				}
			}
			return
		}
	}
}

func (e *pipeEnd) deliver(msg wamp.Message) bool {
	select {
	case e.recv <- msg:
		return true
	case <-e.closed:
		return false
	}
}
