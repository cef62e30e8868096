// Package websocket carries WAMP sessions over websocket connections using the
// wamp.2.json subprotocol.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rmacdonaldsmith/rpcmesh/internal/transport"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/peerlink"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

const logPrefix = "transport:websocket"

// Subprotocol is the only websocket subprotocol spoken.
const Subprotocol = "wamp.2.json"

// Config tunes a websocket peer.
type Config struct {
	SendQueueSize  int
	MaxMessageSize int64
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = transport.DefaultQueueSize
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1024 * 1024 // 1MB
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// Upgrader accepts browser and tool clients from any origin that speak wamp.2.json.
func Upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		Subprotocols: []string{Subprotocol},
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Peer is a WAMP link over one websocket connection.
type Peer struct {
	conn *websocket.Conn
	cfg  Config
	out  *transport.Outbox
	recv chan wamp.Message

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPeer wraps an established connection and starts its read and write pumps.
func NewPeer(conn *websocket.Conn, cfg Config) *Peer {
	cfg.SetDefaults()
	p := &Peer{
		conn: conn,
		cfg:  cfg,
		out:  transport.NewOutbox(cfg.SendQueueSize),
		recv: make(chan wamp.Message),
		done: make(chan struct{}),
	}
	conn.SetReadLimit(cfg.MaxMessageSize)
	p.wg.Add(2)
	go p.readPump()
	go p.writePump()
	return p
}

// Accept upgrades an HTTP request and wraps the connection.
func Accept(w http.ResponseWriter, r *http.Request, cfg Config) (*Peer, error) {
	conn, err := Upgrader().Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	if conn.Subprotocol() != Subprotocol {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseProtocolError, "wamp.2.json required"),
			time.Now().Add(time.Second))
		conn.Close()
		return nil, fmt.Errorf("client did not offer %s", Subprotocol)
	}
	return NewPeer(conn, cfg), nil
}

// Dial connects to a router. A non-empty token is sent as a bearer authorization header.
func Dial(ctx context.Context, url, token string, cfg Config) (*Peer, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{Subprotocol},
		HandshakeTimeout: 10 * time.Second,
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewPeer(conn, cfg), nil
}

// Send enqueues a message for the write pump.
func (p *Peer) Send(msg wamp.Message) error {
	return p.out.Push(msg)
}

// Recv returns inbound messages; the channel closes when the connection ends.
func (p *Peer) Recv() <-chan wamp.Message {
	return p.recv
}

// Close flushes queued messages, sends a close frame and releases the connection.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.out.Close()
	})
	p.wg.Wait()
	return nil
}

// Health reports the state of the outbound direction.
func (p *Peer) Health() peerlink.HealthState {
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

// RemoteAddr returns the client address.
func (p *Peer) RemoteAddr() string {
	return p.conn.RemoteAddr().String()
}

func (p *Peer) readPump() {
	defer p.wg.Done()
	defer close(p.recv)
	// A read failure ends the link for the writer too.
	defer p.out.Close()

	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(2 * p.cfg.PingInterval))
	})
	p.conn.SetReadDeadline(time.Now().Add(2 * p.cfg.PingInterval))

	for {
		kind, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, websocket.ErrCloseSent) {
				slog.Debug(fmt.Sprintf("%s - read from %s ended: %v", logPrefix, p.RemoteAddr(), err))
			}
			return
		}
		if kind != websocket.TextMessage {
			slog.Warn(fmt.Sprintf("%s - dropping binary frame from %s", logPrefix, p.RemoteAddr()))
			continue
		}
		msg, err := wamp.UnmarshalJSON(data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - invalid frame from %s: %v", logPrefix, p.RemoteAddr(), err))
			continue
		}
		select {
		case p.recv <- msg:
		case <-p.done:
			return
		}
	}
}

func (p *Peer) writePump() {
	defer p.wg.Done()
	defer p.conn.Close()

	ticker := time.NewTicker(p.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-p.out.C():
			if err := p.write(msg); err != nil {
				p.out.Close()
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.out.Close()
				return
			}
		case <-p.out.Done():
			for _, msg := range p.out.Drain() {
				if err := p.write(msg); err != nil {
					return
				}
			}
			p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(p.cfg.WriteTimeout))
			return
		}
	}
}

func (p *Peer) write(msg wamp.Message) error {
	data, err := wamp.MarshalJSON(msg)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - cannot encode %s: %v", logPrefix, msg.MessageType(), err))
		return nil
	}
	p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

var _ peerlink.Peer = (*Peer)(nil)
