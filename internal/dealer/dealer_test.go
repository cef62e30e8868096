package dealer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/rpcmesh/internal/events"
	"github.com/rmacdonaldsmith/rpcmesh/internal/idgen"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/eventlog"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/peerlink"
	pkgrouting "github.com/rmacdonaldsmith/rpcmesh/pkg/routingtable"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

// recorder is a Sender that keeps every message per session.
type recorder struct {
	mu   sync.Mutex
	msgs map[wamp.ID][]wamp.Message
	fail map[wamp.ID]error
}

func newRecorder() *recorder {
	return &recorder{msgs: make(map[wamp.ID][]wamp.Message), fail: make(map[wamp.ID]error)}
}

func (r *recorder) Send(session wamp.ID, msg wamp.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[session]; err != nil {
		return err
	}
	r.msgs[session] = append(r.msgs[session], msg)
	return nil
}

func (r *recorder) failFor(session wamp.ID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[session] = err
}

// take returns and clears the messages sent to a session.
func (r *recorder) take(session wamp.ID) []wamp.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.msgs[session]
	delete(r.msgs, session)
	return out
}

type fixture struct {
	realm  *Realm
	sent   *recorder
	events []*eventlog.Event
	mu     sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{sent: newRecorder()}
	pub := events.NewCallbackPublisher(func(_ context.Context, ev *eventlog.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, ev)
		return nil
	})
	realm, err := NewRealm(NewConfig("realm1", f.sent).
		WithPublisher(pub).
		WithIDGenerator(idgen.NewSeeded(11, 13)))
	require.NoError(t, err)
	f.realm = realm
	return f
}

func (f *fixture) join(t *testing.T, id wamp.ID) *Session {
	t.Helper()
	s := NewSession(id, "user")
	require.NoError(t, f.realm.Attach(context.Background(), s))
	return s
}

func (f *fixture) topics() []wamp.URI {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []wamp.URI
	for _, ev := range f.events {
		out = append(out, ev.Topic)
	}
	return out
}

func one[T wamp.Message](t *testing.T, msgs []wamp.Message) T {
	t.Helper()
	require.Len(t, msgs, 1)
	m, ok := msgs[0].(T)
	require.True(t, ok, "unexpected %T", msgs[0])
	return m
}

func register(t *testing.T, f *fixture, s *Session, req wamp.ID, uri wamp.URI, opts wamp.Dict) wamp.ID {
	t.Helper()
	require.NoError(t, s.Handle(context.Background(), &wamp.Register{Request: req, Options: opts, Procedure: uri}))
	return one[*wamp.Registered](t, f.sent.take(s.ID)).Registration
}

func TestRealm_AddScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.join(t, 1)
	b := f.join(t, 2)

	reg := register(t, f, a, 10, "com.example.add", wamp.Dict{})

	require.NoError(t, b.Handle(ctx, &wamp.Call{Request: 77, Options: wamp.Dict{}, Procedure: "com.example.add", Args: wamp.List{2, 3}}))
	assert.Empty(t, f.sent.take(b.ID), "caller gets nothing until the yield")

	inv := one[*wamp.Invocation](t, f.sent.take(a.ID))
	assert.Equal(t, reg, inv.Registration)
	assert.Equal(t, wamp.List{2, 3}, inv.Args)
	assert.NotContains(t, inv.Details, "procedure", "exact matches do not disclose the uri")
	assert.Equal(t, 1, f.realm.Stats().ActiveCalls)

	require.NoError(t, a.Handle(ctx, &wamp.Yield{Request: inv.Request, Options: wamp.Dict{}, Args: wamp.List{5}}))

	res := one[*wamp.Result](t, f.sent.take(b.ID))
	assert.Equal(t, wamp.ID(77), res.Request)
	assert.Equal(t, wamp.List{5}, res.Args)
	assert.Equal(t, 0, f.realm.Stats().ActiveCalls)
}

func TestRealm_AtMostOneResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.join(t, 1)
	b := f.join(t, 2)
	register(t, f, a, 1, "svc.once", nil)

	require.NoError(t, b.Handle(ctx, &wamp.Call{Request: 5, Procedure: "svc.once"}))
	inv := one[*wamp.Invocation](t, f.sent.take(a.ID))

	require.NoError(t, a.Handle(ctx, &wamp.Yield{Request: inv.Request}))
	one[*wamp.Result](t, f.sent.take(b.ID))

	err := a.Handle(ctx, &wamp.Yield{Request: inv.Request})
	assert.ErrorIs(t, err, ErrUnknownInvocation)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, f.sent.take(a.ID))
	assert.Empty(t, f.sent.take(b.ID))
}

func TestRealm_YieldFromOtherSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.join(t, 1)
	b := f.join(t, 2)
	c := f.join(t, 3)
	register(t, f, a, 1, "svc.mine", nil)

	require.NoError(t, b.Handle(ctx, &wamp.Call{Request: 5, Procedure: "svc.mine"}))
	inv := one[*wamp.Invocation](t, f.sent.take(a.ID))

	assert.ErrorIs(t, c.Yield(ctx, &wamp.Yield{Request: inv.Request}), ErrUnknownInvocation)
	assert.Empty(t, f.sent.take(b.ID))

	// The real callee can still answer.
	require.NoError(t, a.Yield(ctx, &wamp.Yield{Request: inv.Request}))
	one[*wamp.Result](t, f.sent.take(b.ID))
}

func TestRealm_RegisterConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.join(t, 1)
	b := f.join(t, 2)
	register(t, f, a, 1, "svc.single", nil)

	require.NoError(t, b.Handle(ctx, &wamp.Register{Request: 9, Procedure: "svc.single"}))
	e := one[*wamp.Error](t, f.sent.take(b.ID))
	assert.Equal(t, wamp.REGISTER, e.Type)
	assert.Equal(t, wamp.ID(9), e.Request)
	assert.Equal(t, wamp.ErrProcedureAlreadyExists, e.Error)

	var de *Error
	require.ErrorAs(t, b.Register(ctx, &wamp.Register{Request: 10, Procedure: "svc.single"}), &de)
	assert.Equal(t, wamp.ErrProcedureAlreadyExists, de.Reason)
	assert.Empty(t, f.sent.take(b.ID), "direct calls leave the reply to the caller")
}

func TestRealm_RegisterInvalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.join(t, 1)

	require.NoError(t, a.Handle(ctx, &wamp.Register{Request: 1, Procedure: "bad..uri"}))
	assert.Equal(t, wamp.ErrInvalidURI, one[*wamp.Error](t, f.sent.take(a.ID)).Error)

	require.NoError(t, a.Handle(ctx, &wamp.Register{Request: 2, Options: wamp.Dict{"match": "regex"}, Procedure: "a.b"}))
	assert.Equal(t, wamp.ErrInvalidArgument, one[*wamp.Error](t, f.sent.take(a.ID)).Error)

	assert.Equal(t, 0, f.realm.Stats().Registrations)
}

func TestRealm_SharedRoundRobin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	callees := []*Session{f.join(t, 1), f.join(t, 2), f.join(t, 3)}
	caller := f.join(t, 4)
	for _, s := range callees {
		register(t, f, s, 1, "svc.pool", wamp.Dict{"invoke": "roundrobin"})
	}

	for round := 0; round < 2; round++ {
		for _, want := range callees {
			require.NoError(t, caller.Handle(ctx, &wamp.Call{Request: 1, Procedure: "svc.pool"}))
			one[*wamp.Invocation](t, f.sent.take(want.ID))
		}
	}
}

func TestRealm_Unregister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.join(t, 1)
	b := f.join(t, 2)
	reg := register(t, f, a, 1, "svc.temp", nil)

	// Another session cannot remove it.
	require.NoError(t, b.Handle(ctx, &wamp.Unregister{Request: 3, Registration: reg}))
	e := one[*wamp.Error](t, f.sent.take(b.ID))
	assert.Equal(t, wamp.UNREGISTER, e.Type)
	assert.Equal(t, wamp.ErrNoSuchRegistration, e.Error)

	require.NoError(t, a.Handle(ctx, &wamp.Unregister{Request: 4, Registration: reg}))
	assert.Equal(t, wamp.ID(4), one[*wamp.Unregistered](t, f.sent.take(a.ID)).Request)

	require.NoError(t, a.Handle(ctx, &wamp.Unregister{Request: 5, Registration: reg}))
	assert.Equal(t, wamp.ErrNoSuchRegistration, one[*wamp.Error](t, f.sent.take(a.ID)).Error)

	require.NoError(t, b.Handle(ctx, &wamp.Call{Request: 6, Procedure: "svc.temp"}))
	assert.Equal(t, wamp.ErrNoSuchProcedure, one[*wamp.Error](t, f.sent.take(b.ID)).Error)

	assert.Contains(t, f.topics(), wamp.MetaOnUnregister)
}

func TestRealm_UnregisterUnknownWrapsNoSuchProcedure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.join(t, 1)

	err := a.Unregister(ctx, &wamp.Unregister{Request: 9, Registration: 424242})

	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, wamp.ErrNoSuchRegistration, de.Reason)
	assert.ErrorIs(t, err, pkgrouting.ErrNoSuchProcedure)
	assert.Empty(t, f.sent.take(a.ID), "Unregister returns the failure without sending it")
}

func TestRealm_CallNoSuchProcedure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.join(t, 2)

	require.NoError(t, b.Handle(ctx, &wamp.Call{Request: 8, Procedure: "nobody.home"}))
	e := one[*wamp.Error](t, f.sent.take(b.ID))
	assert.Equal(t, wamp.CALL, e.Type)
	assert.Equal(t, wamp.ID(8), e.Request)
	assert.Equal(t, wamp.ErrNoSuchProcedure, e.Error)
	assert.Equal(t, 0, f.realm.Stats().ActiveCalls)
}

func TestRealm_PatternCallDisclosesProcedure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.join(t, 1)
	b := f.join(t, 2)
	register(t, f, a, 1, "com.example", wamp.Dict{"match": "prefix"})
	register(t, f, a, 2, "org..add", wamp.Dict{"match": "wildcard"})

	require.NoError(t, b.Handle(ctx, &wamp.Call{Request: 1, Procedure: "com.example.echo"}))
	inv := one[*wamp.Invocation](t, f.sent.take(a.ID))
	assert.Equal(t, "com.example.echo", inv.Details["procedure"])

	require.NoError(t, b.Handle(ctx, &wamp.Call{Request: 2, Options: wamp.Dict{"disclose_me": true}, Procedure: "org.math.add"}))
	inv = one[*wamp.Invocation](t, f.sent.take(a.ID))
	details := wamp.ParseInvocationDetails(inv.Details)
	assert.Equal(t, wamp.URI("org.math.add"), details.Procedure)
	assert.Equal(t, b.ID, details.Caller)
}

func TestRealm_SendFailureRollsBackCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.join(t, 1)
	b := f.join(t, 2)
	register(t, f, a, 1, "svc.down", nil)

	f.sent.failFor(a.ID, errors.New("queue full"))
	require.NoError(t, b.Handle(ctx, &wamp.Call{Request: 3, Procedure: "svc.down"}))

	e := one[*wamp.Error](t, f.sent.take(b.ID))
	assert.Equal(t, wamp.ErrUnavailable, e.Error)
	assert.Equal(t, 0, f.realm.Stats().ActiveCalls)
}

// interleaver runs hook in its own goroutine when REGISTERED is sent and gives
// it a moment to finish before recording the message.
type interleaver struct {
	*recorder
	hook func()
	done chan struct{}
}

func (i *interleaver) Send(session wamp.ID, msg wamp.Message) error {
	if _, ok := msg.(*wamp.Registered); ok && i.hook != nil {
		hook := i.hook
		i.hook = nil
		i.done = make(chan struct{})
		go func() {
			defer close(i.done)
			hook()
		}()
		select {
		case <-i.done:
		case <-time.After(50 * time.Millisecond):
		}
	}
	return i.recorder.Send(session, msg)
}

func TestRealm_RegisteredPrecedesInvocation(t *testing.T) {
	ctx := context.Background()
	sent := &interleaver{recorder: newRecorder()}
	realm, err := NewRealm(NewConfig("realm1", sent).WithIDGenerator(idgen.NewSeeded(3, 5)))
	require.NoError(t, err)

	a := NewSession(1, "callee")
	b := NewSession(2, "caller")
	require.NoError(t, realm.Attach(ctx, a))
	require.NoError(t, realm.Attach(ctx, b))

	var callErr error
	sent.hook = func() {
		callErr = b.Handle(ctx, &wamp.Call{Request: 5, Options: wamp.Dict{}, Procedure: "svc.race"})
	}
	require.NoError(t, a.Handle(ctx, &wamp.Register{Request: 1, Options: wamp.Dict{}, Procedure: "svc.race"}))
	<-sent.done
	require.NoError(t, callErr)

	msgs := sent.take(a.ID)
	require.Len(t, msgs, 2)
	reg, ok := msgs[0].(*wamp.Registered)
	require.True(t, ok, "callee must see REGISTERED first, got %T", msgs[0])
	inv, ok := msgs[1].(*wamp.Invocation)
	require.True(t, ok, "unexpected %T", msgs[1])
	assert.Equal(t, reg.Registration, inv.Registration)
	assert.Empty(t, sent.take(b.ID))
}

func TestRealm_RegisteredSendFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.join(t, 1)
	b := f.join(t, 2)

	f.sent.failFor(a.ID, peerlink.ErrQueueFull)
	err := a.Handle(ctx, &wamp.Register{Request: 1, Options: wamp.Dict{}, Procedure: "svc.lost"})
	require.ErrorIs(t, err, peerlink.ErrQueueFull)

	assert.Equal(t, 0, f.realm.Stats().Registrations)
	assert.Empty(t, f.realm.Registrations())
	assert.NotContains(t, f.topics(), wamp.MetaOnRegister)

	// The URI is free again for another session.
	register(t, f, b, 2, "svc.lost", nil)

	// And the first session can register once its queue drains.
	f.sent.failFor(a.ID, nil)
	require.NoError(t, a.Handle(ctx, &wamp.Register{Request: 3, Options: wamp.Dict{"invoke": "roundrobin"}, Procedure: "svc.other"}))
	one[*wamp.Registered](t, f.sent.take(a.ID))
	assert.Equal(t, 2, f.realm.Stats().Registrations)
}

func TestRealm_InvocationError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.join(t, 1)
	b := f.join(t, 2)
	register(t, f, a, 1, "svc.fail", nil)

	require.NoError(t, b.Handle(ctx, &wamp.Call{Request: 4, Procedure: "svc.fail"}))
	inv := one[*wamp.Invocation](t, f.sent.take(a.ID))

	require.NoError(t, a.Handle(ctx, &wamp.Error{
		Type:    wamp.INVOCATION,
		Request: inv.Request,
		Details: wamp.Dict{},
		Error:   "com.example.error.bad_input",
		Args:    wamp.List{"negative"},
	}))
	e := one[*wamp.Error](t, f.sent.take(b.ID))
	assert.Equal(t, wamp.CALL, e.Type)
	assert.Equal(t, wamp.ID(4), e.Request)
	assert.Equal(t, wamp.URI("com.example.error.bad_input"), e.Error)
	assert.Equal(t, wamp.List{"negative"}, e.Args)

	assert.ErrorIs(t, a.Handle(ctx, &wamp.Yield{Request: inv.Request}), ErrUnknownInvocation)
}

func TestRealm_NotAttached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := NewSession(5, "ghost")

	for _, msg := range []wamp.Message{
		&wamp.Register{Request: 1, Procedure: "a.b"},
		&wamp.Unregister{Request: 2, Registration: 1},
		&wamp.Call{Request: 3, Procedure: "a.b"},
		&wamp.Yield{Request: 4},
	} {
		assert.ErrorIs(t, s.Handle(ctx, msg), ErrNotAttached, msg.MessageType().String())
	}
	assert.ErrorIs(t, s.Register(ctx, &wamp.Register{Request: 1, Procedure: "a.b"}), ErrInvalidState)
	assert.ErrorIs(t, s.Cleanup(ctx), ErrNotAttached)
	assert.Empty(t, f.sent.take(5))
	assert.Equal(t, 0, f.realm.Stats().Registrations)
}

func TestRealm_AttachTwice(t *testing.T) {
	f := newFixture(t)
	s := f.join(t, 1)
	assert.ErrorIs(t, f.realm.Attach(context.Background(), s), ErrAlreadyAttached)
	assert.Same(t, f.realm, s.Realm())
}

func TestRealm_ProtocolViolation(t *testing.T) {
	f := newFixture(t)
	s := f.join(t, 1)

	assert.ErrorIs(t, s.Handle(context.Background(), &wamp.Hello{Realm: "realm1"}), ErrProtocolViolation)
	assert.ErrorIs(t, s.Handle(context.Background(), &wamp.Error{Type: wamp.CALL, Request: 1}), ErrProtocolViolation)
}

func TestRealm_Cleanup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.join(t, 1)
	b := f.join(t, 2)
	c := f.join(t, 3)
	register(t, f, a, 1, "svc.a", nil)
	register(t, f, a, 2, "svc", wamp.Dict{"match": "prefix"})
	register(t, f, c, 1, "svc.c", nil)

	// b -> a is in flight, a -> c is in flight.
	require.NoError(t, b.Handle(ctx, &wamp.Call{Request: 1, Procedure: "svc.a"}))
	require.NoError(t, a.Handle(ctx, &wamp.Call{Request: 2, Procedure: "svc.c"}))
	one[*wamp.Invocation](t, f.sent.take(a.ID))
	invC := one[*wamp.Invocation](t, f.sent.take(c.ID))
	require.Equal(t, 2, f.realm.Stats().ActiveCalls)

	require.NoError(t, a.Cleanup(ctx))
	assert.Nil(t, a.Realm())

	stats := f.realm.Stats()
	assert.Equal(t, 2, stats.Sessions)
	assert.Equal(t, 1, stats.Registrations)
	assert.Equal(t, 0, stats.ActiveCalls)

	// No result or error for dropped calls.
	assert.Empty(t, f.sent.take(b.ID))
	assert.ErrorIs(t, c.Handle(ctx, &wamp.Yield{Request: invC.Request}), ErrUnknownInvocation)
	assert.Empty(t, f.sent.take(a.ID))

	// svc.x was only covered by a's prefix registration.
	require.NoError(t, b.Handle(ctx, &wamp.Call{Request: 3, Procedure: "svc.x"}))
	assert.Equal(t, wamp.ErrNoSuchProcedure, one[*wamp.Error](t, f.sent.take(b.ID)).Error)

	assert.ErrorIs(t, a.Handle(ctx, &wamp.Call{Request: 4, Procedure: "svc.c"}), ErrNotAttached)
	assert.Contains(t, f.topics(), wamp.MetaOnLeave)
}

func TestRealm_ExpireCalls(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	sent := newRecorder()
	realm, err := NewRealm(NewConfig("realm1", sent).WithClock(clock))
	require.NoError(t, err)
	a, b := NewSession(1, ""), NewSession(2, "")
	require.NoError(t, realm.Attach(ctx, a))
	require.NoError(t, realm.Attach(ctx, b))

	require.NoError(t, a.Handle(ctx, &wamp.Register{Request: 1, Procedure: "svc.slow"}))
	require.NoError(t, b.Handle(ctx, &wamp.Call{Request: 9, Procedure: "svc.slow"}))
	sent.take(a.ID)

	assert.Equal(t, 0, realm.ExpireCalls(time.Minute))
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, realm.ExpireCalls(time.Minute))

	e := one[*wamp.Error](t, sent.take(b.ID))
	assert.Equal(t, wamp.ErrCanceled, e.Error)
	assert.Equal(t, wamp.ID(9), e.Request)
	assert.Equal(t, 0, realm.Stats().ActiveCalls)
}

func TestRealm_MetaEvents(t *testing.T) {
	f := newFixture(t)
	a := f.join(t, 1)
	register(t, f, a, 1, "svc.meta", nil)
	require.NoError(t, a.Cleanup(context.Background()))

	assert.Equal(t, []wamp.URI{
		wamp.MetaOnJoin,
		wamp.MetaOnRegister,
		wamp.MetaOnUnregister,
		wamp.MetaOnLeave,
	}, f.topics())
}

func TestRealm_ConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	callee := f.join(t, 1)
	register(t, f, callee, 1, "svc.echo", nil)

	const callers, perCaller = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		s := f.join(t, wamp.ID(100+i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perCaller; j++ {
				assert.NoError(t, s.Handle(ctx, &wamp.Call{Request: wamp.ID(j + 1), Procedure: "svc.echo"}))
			}
		}()
	}
	wg.Wait()

	invocations := f.sent.take(callee.ID)
	require.Len(t, invocations, callers*perCaller)
	seen := make(map[wamp.ID]bool)
	for _, m := range invocations {
		inv := m.(*wamp.Invocation)
		require.False(t, seen[inv.Request], "duplicate invocation id %d", inv.Request)
		seen[inv.Request] = true
	}

	for _, m := range invocations {
		wg.Add(1)
		go func(inv *wamp.Invocation) {
			defer wg.Done()
			assert.NoError(t, callee.Handle(ctx, &wamp.Yield{Request: inv.Request}))
		}(m.(*wamp.Invocation))
	}
	wg.Wait()

	assert.Equal(t, 0, f.realm.Stats().ActiveCalls)
	for i := 0; i < callers; i++ {
		assert.Len(t, f.sent.take(wamp.ID(100+i)), perCaller)
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, NewConfig("", newRecorder()).Validate(), ErrEmptyRealmName)
	assert.ErrorIs(t, NewConfig("realm1", nil).Validate(), ErrNilSender)

	_, err := NewRealm(NewConfig("", newRecorder()))
	assert.ErrorIs(t, err, ErrEmptyRealmName)
}
