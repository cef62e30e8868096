package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/peerlink"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

const logPrefix = "client"

// DefaultCloseTimeout bounds how long Close waits for the router's GOODBYE.
const DefaultCloseTimeout = 2 * time.Second

// ErrClosed is returned by operations on a session that has ended.
var ErrClosed = errors.New("session closed")

// Config configures a client session.
type Config struct {
	// Details are sent in HELLO. Roles are added when missing.
	Details wamp.Dict
	// CloseTimeout replaces DefaultCloseTimeout.
	CloseTimeout time.Duration
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.CloseTimeout == 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	if c.Details == nil {
		c.Details = wamp.Dict{}
	}
	if _, ok := c.Details["roles"]; !ok {
		c.Details["roles"] = wamp.Dict{"caller": wamp.Dict{}, "callee": wamp.Dict{}}
	}
}

// Invocation is a call routed to one of this session's registrations.
type Invocation struct {
	Registration wamp.ID
	// Procedure is the called URI. For exact registrations it is the registered URI.
	Procedure wamp.URI
	// Caller is set when the caller disclosed itself.
	Caller wamp.ID
	Args   wamp.List
	Kwargs wamp.Dict
}

// Result is the payload of a successful call.
type Result struct {
	Args    wamp.List
	Kwargs  wamp.Dict
	Details wamp.Dict
}

// Handler answers invocations. Returning an *RPCError sends that error URI to the
// caller; any other error is reported as wamp.error.runtime_error.
type Handler func(ctx context.Context, inv *Invocation) (*Result, error)

type registration struct {
	procedure wamp.URI
	handler   Handler
}

// request is an outstanding REGISTER, UNREGISTER or CALL.
type request struct {
	reply chan wamp.Message

	// set for REGISTER
	reg *registration
	// set for UNREGISTER
	registration wamp.ID
}

// Client is a joined WAMP session.
type Client struct {
	peer    peerlink.Peer
	realm   wamp.URI
	session wamp.ID
	details wamp.Dict
	config  Config

	lastRequest atomic.Uint64

	mu            sync.Mutex
	pending       map[wamp.ID]*request
	registrations map[wamp.ID]*registration

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once
	running   sync.WaitGroup
}

// Join sends HELLO on peer and waits for WELCOME. The peer is closed on failure.
func Join(ctx context.Context, peer peerlink.Peer, realm string, config Config) (*Client, error) {
	config.SetDefaults()

	if err := peer.Send(&wamp.Hello{Realm: wamp.URI(realm), Details: config.Details}); err != nil {
		peer.Close()
		return nil, fmt.Errorf("failed to send HELLO: %w", err)
	}

	select {
	case msg, ok := <-peer.Recv():
		if !ok {
			return nil, fmt.Errorf("join %s: %w", realm, ErrClosed)
		}
		switch m := msg.(type) {
		case *wamp.Welcome:
			c := newClient(peer, wamp.URI(realm), m, config)
			go c.receive()
			slog.Debug(fmt.Sprintf("%s - joined %s as session %d", logPrefix, realm, m.Session))
			return c, nil
		case *wamp.Abort:
			peer.Close()
			return nil, &AbortError{Reason: m.Reason, Details: m.Details}
		default:
			peer.Close()
			return nil, fmt.Errorf("join %s: unexpected %s", realm, msg.MessageType())
		}
	case <-ctx.Done():
		peer.Close()
		return nil, ctx.Err()
	}
}

func newClient(peer peerlink.Peer, realm wamp.URI, welcome *wamp.Welcome, config Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		peer:          peer,
		realm:         realm,
		session:       welcome.Session,
		details:       welcome.Details,
		config:        config,
		pending:       make(map[wamp.ID]*request),
		registrations: make(map[wamp.ID]*registration),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
}

// ID returns the session id assigned by the router.
func (c *Client) ID() wamp.ID { return c.session }

// Realm returns the joined realm.
func (c *Client) Realm() wamp.URI { return c.realm }

// Details returns the WELCOME details.
func (c *Client) Details() wamp.Dict { return c.details }

// Done is closed when the session has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// Register registers handler for procedure and returns the registration id.
func (c *Client) Register(ctx context.Context, procedure wamp.URI, opts wamp.RegisterOptions, handler Handler) (wamp.ID, error) {
	if handler == nil {
		return 0, errors.New("handler is required")
	}
	id, req := c.newRequest()
	req.reg = &registration{procedure: procedure, handler: handler}

	reply, err := c.roundTrip(ctx, id, req, &wamp.Register{
		Request:   id,
		Options:   opts.Dict(),
		Procedure: procedure,
	})
	if err != nil {
		return 0, err
	}
	switch m := reply.(type) {
	case *wamp.Registered:
		return m.Registration, nil
	case *wamp.Error:
		return 0, rpcError(m)
	}
	return 0, fmt.Errorf("register %s: unexpected %s", procedure, reply.MessageType())
}

// Unregister removes one of this session's registrations.
func (c *Client) Unregister(ctx context.Context, registration wamp.ID) error {
	id, req := c.newRequest()
	req.registration = registration

	reply, err := c.roundTrip(ctx, id, req, &wamp.Unregister{Request: id, Registration: registration})
	if err != nil {
		return err
	}
	switch m := reply.(type) {
	case *wamp.Unregistered:
		return nil
	case *wamp.Error:
		return rpcError(m)
	}
	return fmt.Errorf("unregister %d: unexpected %s", registration, reply.MessageType())
}

// Call invokes procedure and waits for its result. If ctx ends first the call is
// abandoned locally; a late RESULT is dropped.
func (c *Client) Call(ctx context.Context, procedure wamp.URI, args wamp.List, kwargs wamp.Dict) (*Result, error) {
	return c.CallWithOptions(ctx, procedure, wamp.Dict{}, args, kwargs)
}

// CallWithOptions is Call with explicit CALL options, e.g. {"disclose_me": true}.
func (c *Client) CallWithOptions(ctx context.Context, procedure wamp.URI, options wamp.Dict, args wamp.List, kwargs wamp.Dict) (*Result, error) {
	if options == nil {
		options = wamp.Dict{}
	}
	id, req := c.newRequest()
	reply, err := c.roundTrip(ctx, id, req, &wamp.Call{
		Request:   id,
		Options:   options,
		Procedure: procedure,
		Args:      args,
		Kwargs:    kwargs,
	})
	if err != nil {
		return nil, err
	}
	switch m := reply.(type) {
	case *wamp.Result:
		return &Result{Args: m.Args, Kwargs: m.Kwargs, Details: m.Details}, nil
	case *wamp.Error:
		return nil, rpcError(m)
	}
	return nil, fmt.Errorf("call %s: unexpected %s", procedure, reply.MessageType())
}

// Close leaves the realm with GOODBYE, waits for the router to answer and closes the peer.
// Running handlers are waited for.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		if err := c.peer.Send(&wamp.Goodbye{Details: wamp.Dict{}, Reason: wamp.CloseRealm}); err == nil {
			select {
			case <-c.done:
			case <-time.After(c.config.CloseTimeout):
				slog.Warn(fmt.Sprintf("%s - session %d: no GOODBYE from router", logPrefix, c.session))
			}
		}
		c.peer.Close()
		<-c.done
		c.running.Wait()
	})
	return nil
}

func (c *Client) newRequest() (wamp.ID, *request) {
	return wamp.ID(c.lastRequest.Add(1)), &request{reply: make(chan wamp.Message, 1)}
}

func (c *Client) roundTrip(ctx context.Context, id wamp.ID, req *request, msg wamp.Message) (wamp.Message, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	c.mu.Lock()
	c.pending[id] = req
	c.mu.Unlock()

	if err := c.peer.Send(msg); err != nil {
		c.forget(id)
		return nil, fmt.Errorf("failed to send %s: %w", msg.MessageType(), err)
	}

	select {
	case reply := <-req.reply:
		return reply, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *Client) forget(id wamp.ID) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) receive() {
	defer c.shutdown()

	for msg := range c.peer.Recv() {
		switch m := msg.(type) {
		case *wamp.Registered:
			c.resolve(m.Request, msg)
		case *wamp.Unregistered:
			c.resolve(m.Request, msg)
		case *wamp.Result:
			c.resolve(m.Request, msg)
		case *wamp.Error:
			c.resolve(m.Request, msg)
		case *wamp.Invocation:
			c.dispatch(m)
		case *wamp.Goodbye:
			if !c.closing.Load() {
				slog.Info(fmt.Sprintf("%s - session %d closed by router: %s", logPrefix, c.session, m.Reason))
				c.peer.Send(&wamp.Goodbye{Details: wamp.Dict{}, Reason: wamp.CloseGoodbyeAck})
			}
			return
		case *wamp.Abort:
			slog.Warn(fmt.Sprintf("%s - session %d aborted: %s", logPrefix, c.session, m.Reason))
			return
		default:
			slog.Debug(fmt.Sprintf("%s - session %d ignoring %s", logPrefix, c.session, msg.MessageType()))
		}
	}
}

// resolve hands a reply to its waiting request. Registration bookkeeping happens
// here so an INVOCATION that follows REGISTERED always finds its handler.
func (c *Client) resolve(id wamp.ID, msg wamp.Message) {
	c.mu.Lock()
	req, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		switch m := msg.(type) {
		case *wamp.Registered:
			c.registrations[m.Registration] = req.reg
		case *wamp.Unregistered:
			delete(c.registrations, req.registration)
		}
	}
	c.mu.Unlock()

	if !ok {
		slog.Debug(fmt.Sprintf("%s - session %d: reply for unknown request %d", logPrefix, c.session, id))
		return
	}
	req.reply <- msg
}

func (c *Client) dispatch(inv *wamp.Invocation) {
	c.mu.Lock()
	reg, ok := c.registrations[inv.Registration]
	c.mu.Unlock()

	if !ok {
		c.peer.Send(&wamp.Error{
			Type:    wamp.INVOCATION,
			Request: inv.Request,
			Details: wamp.Dict{},
			Error:   wamp.ErrNoSuchRegistration,
		})
		return
	}

	details := wamp.ParseInvocationDetails(inv.Details)
	procedure := details.Procedure
	if procedure == "" {
		procedure = reg.procedure
	}

	c.running.Add(1)
	go func() {
		defer c.running.Done()
		c.invoke(reg.handler, inv.Request, &Invocation{
			Registration: inv.Registration,
			Procedure:    procedure,
			Caller:       details.Caller,
			Args:         inv.Args,
			Kwargs:       inv.Kwargs,
		})
	}()
}

func (c *Client) invoke(handler Handler, request wamp.ID, inv *Invocation) {
	res, err := runHandler(c.ctx, handler, inv)

	var reply wamp.Message
	if err != nil {
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			rpcErr = &RPCError{URI: wamp.ErrRuntimeError, Args: wamp.List{err.Error()}}
		}
		reply = &wamp.Error{
			Type:    wamp.INVOCATION,
			Request: request,
			Details: wamp.Dict{},
			Error:   rpcErr.URI,
			Args:    rpcErr.Args,
			Kwargs:  rpcErr.Kwargs,
		}
	} else {
		if res == nil {
			res = &Result{}
		}
		reply = &wamp.Yield{Request: request, Options: wamp.Dict{}, Args: res.Args, Kwargs: res.Kwargs}
	}

	if err := c.peer.Send(reply); err != nil {
		slog.Warn(fmt.Sprintf("%s - session %d: failed to answer invocation %d: %v", logPrefix, c.session, request, err))
	}
}

// runHandler turns a handler panic into an error.
func runHandler(ctx context.Context, handler Handler, inv *Invocation) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %s panicked: %v", inv.Procedure, r)
		}
	}()
	return handler(ctx, inv)
}

func (c *Client) shutdown() {
	c.cancel()
	c.peer.Close()
	close(c.done)
}
