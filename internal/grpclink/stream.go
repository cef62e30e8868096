package grpclink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rmacdonaldsmith/rpcmesh/internal/transport"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/peerlink"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

const logPrefix = "grpclink"

// closeGrace bounds how long a client waits for the router to end the stream.
const closeGrace = 2 * time.Second

// frameStream is the part of grpc.ServerStream and grpc.ClientStream a peer needs.
type frameStream interface {
	Context() context.Context
	SendMsg(m any) error
	RecvMsg(m any) error
}

// StreamPeer adapts one gRPC session stream to peerlink.Peer.
type StreamPeer struct {
	stream frameStream
	out    *transport.Outbox
	recv   chan wamp.Message

	done       chan struct{}
	readerDone chan struct{}
	closeOnce  sync.Once
	writer     sync.WaitGroup

	// client side only
	closeSend func() error
	release   func()
}

// newStreamPeer starts the pumps. closeSend and release are nil on the server side.
func newStreamPeer(stream frameStream, queue int, closeSend func() error, release func()) *StreamPeer {
	p := &StreamPeer{
		stream:     stream,
		out:        transport.NewOutbox(queue),
		recv:       make(chan wamp.Message),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
		closeSend:  closeSend,
		release:    release,
	}
	p.writer.Add(1)
	go p.readLoop()
	go p.writeLoop()
	return p
}

// Send enqueues a message for the stream writer.
func (p *StreamPeer) Send(msg wamp.Message) error {
	return p.out.Push(msg)
}

// Recv returns inbound messages; the channel closes when the stream ends.
func (p *StreamPeer) Recv() <-chan wamp.Message {
	return p.recv
}

// Close flushes queued messages and ends the stream from this side.
func (p *StreamPeer) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.out.Close()
	})
	p.writer.Wait()
	if p.release != nil {
		select {
		case <-p.readerDone:
		case <-time.After(closeGrace):
		}
		p.release()
	}
	return nil
}

// Health reports the state of the outbound direction.
func (p *StreamPeer) Health() peerlink.HealthState {
	select {
	case <-p.out.Done():
		return peerlink.Disconnected
	default:
	}
	if p.out.Full() {
		return peerlink.Backlogged
	}
	return peerlink.Healthy
}

func (p *StreamPeer) readLoop() {
	defer close(p.readerDone)
	defer close(p.recv)
	defer p.out.Close()

	for {
		var frame structpb.ListValue
		if err := p.stream.RecvMsg(&frame); err != nil {
			if !errors.Is(err, io.EOF) && status.Code(err) != codes.Canceled {
				slog.Debug(fmt.Sprintf("%s - stream read ended: %v", logPrefix, err))
			}
			return
		}
		msg, err := fromFrame(&frame)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - dropping invalid frame: %v", logPrefix, err))
			continue
		}
		select {
		case p.recv <- msg:
		case <-p.done:
			return
		}
	}
}

func (p *StreamPeer) writeLoop() {
	defer p.writer.Done()

	for {
		select {
		case msg := <-p.out.C():
			if err := p.write(msg); err != nil {
				p.out.Close()
				return
			}
		case <-p.out.Done():
			for _, msg := range p.out.Drain() {
				if err := p.write(msg); err != nil {
					return
				}
			}
			if p.closeSend != nil {
				p.closeSend()
			}
			return
		case <-p.stream.Context().Done():
			p.out.Close()
			return
		}
	}
}

func (p *StreamPeer) write(msg wamp.Message) error {
	frame, err := toFrame(msg)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - %v", logPrefix, err))
		return nil
	}
	return p.stream.SendMsg(frame)
}

var _ peerlink.Peer = (*StreamPeer)(nil)
