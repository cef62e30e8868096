// Package dealer routes calls between the sessions of a realm.
package dealer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rmacdonaldsmith/rpcmesh/internal/calltable"
	"github.com/rmacdonaldsmith/rpcmesh/internal/events"
	"github.com/rmacdonaldsmith/rpcmesh/internal/idgen"
	"github.com/rmacdonaldsmith/rpcmesh/internal/routingtable"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/eventlog"
	pkgrouting "github.com/rmacdonaldsmith/rpcmesh/pkg/routingtable"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

const logPrefix = "dealer:realm"

// Sender delivers a message to a session. It must not block: implementations
// enqueue and report failure instead of waiting. Send may be called with the
// realm lock held, so it must not call back into the realm.
type Sender interface {
	Send(session wamp.ID, msg wamp.Message) error
}

// procedureKey is what Unregister needs to find a registration in the table.
type procedureKey struct {
	uri   wamp.URI
	match wamp.MatchingPolicy
	owner wamp.ID
}

// Realm owns the registry and the active calls shared by its sessions.
// Every mutation happens under mu. REGISTERED and UNREGISTERED are queued
// under mu; every other message is sent after it is released.
type Realm struct {
	name      string
	sender    Sender
	publisher events.Publisher
	ids       *idgen.Generator
	now       func() time.Time

	mu         sync.Mutex
	table      *routingtable.InMemoryRoutingTable
	calls      *calltable.Table
	procedures map[wamp.ID]procedureKey
	owned      map[wamp.ID]map[wamp.ID]struct{}
	sessions   map[wamp.ID]*Session
}

// Stats is a point-in-time view of a realm.
type Stats struct {
	Name          string `json:"name"`
	Sessions      int    `json:"sessions"`
	Registrations int    `json:"registrations"`
	ActiveCalls   int    `json:"activeCalls"`
}

// NewRealm creates a realm from a validated configuration.
func NewRealm(cfg *Config) (*Realm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid realm config: %w", err)
	}
	ids := cfg.IDs
	if ids == nil {
		ids = idgen.New()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = &events.NoOpPublisher{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Realm{
		name:       cfg.Name,
		sender:     cfg.Sender,
		publisher:  publisher,
		ids:        ids,
		now:        now,
		table:      routingtable.NewInMemoryRoutingTable(ids),
		calls:      calltable.New(),
		procedures: make(map[wamp.ID]procedureKey),
		owned:      make(map[wamp.ID]map[wamp.ID]struct{}),
		sessions:   make(map[wamp.ID]*Session),
	}, nil
}

// Name returns the realm URI.
func (r *Realm) Name() string {
	return r.name
}

// Attach joins a detached session to the realm and announces it.
func (r *Realm) Attach(ctx context.Context, s *Session) error {
	if !s.realm.CompareAndSwap(nil, r) {
		return ErrAlreadyAttached
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	sessionsGauge.WithLabelValues(r.name).Set(float64(n))
	slog.Info(fmt.Sprintf("%s - session %d (%s) joined %s", logPrefix, s.ID, s.AuthID, r.name))
	r.publish(ctx, wamp.MetaOnJoin, s.ID, wamp.List{wamp.Dict{
		"session": s.ID,
		"authid":  s.AuthID,
	}})
	return nil
}

// Registrations returns the live registrations, oldest first.
func (r *Realm) Registrations() []pkgrouting.Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.Registrations()
}

// Stats returns counters for health and admin endpoints.
func (r *Realm) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Name:          r.name,
		Sessions:      len(r.sessions),
		Registrations: r.table.Count(),
		ActiveCalls:   r.calls.Len(),
	}
}

// ExpireCalls cancels every active call older than maxAge and tells each caller
// with ERROR(CALL, wamp.error.canceled). It returns the number of cancelled calls.
func (r *Realm) ExpireCalls(maxAge time.Duration) int {
	r.mu.Lock()
	expired := r.calls.Expired(r.now().Add(-maxAge))
	active := r.calls.Len()
	r.mu.Unlock()

	activeCallsGauge.WithLabelValues(r.name).Set(float64(active))
	for _, call := range expired {
		err := r.sender.Send(call.Caller, &wamp.Error{
			Type:    wamp.CALL,
			Request: call.Request,
			Details: wamp.Dict{},
			Error:   wamp.ErrCanceled,
			Args:    wamp.List{fmt.Sprintf("no yield for %s within %s", call.Procedure, maxAge)},
		})
		errorsTotal.WithLabelValues(r.name, string(wamp.ErrCanceled)).Inc()
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - could not cancel call %d for session %d: %v", logPrefix, call.Request, call.Caller, err))
		}
	}
	if len(expired) > 0 {
		slog.Info(fmt.Sprintf("%s - expired %d calls in %s", logPrefix, len(expired), r.name))
	}
	return len(expired)
}

// attached reports whether s is still a member. Callers hold mu.
func (r *Realm) attached(s *Session) bool {
	return r.sessions[s.ID] == s
}

func (r *Realm) register(ctx context.Context, s *Session, msg *wamp.Register) error {
	opts, err := wamp.ParseRegisterOptions(msg.Options)
	if err != nil {
		return &Error{Type: wamp.REGISTER, Request: msg.Request, Reason: wamp.ErrInvalidArgument, Err: err}
	}

	r.mu.Lock()
	if !r.attached(s) {
		r.mu.Unlock()
		return ErrNotAttached
	}
	id, err := r.table.Register(msg.Procedure, s.ID, opts.Match, opts.Invoke)
	if err != nil {
		r.mu.Unlock()
		return &Error{Type: wamp.REGISTER, Request: msg.Request, Reason: reasonFor(err, wamp.ErrInvalidURI), Err: err}
	}
	r.procedures[id] = procedureKey{uri: msg.Procedure, match: opts.Match, owner: s.ID}
	owned := r.owned[s.ID]
	if owned == nil {
		owned = make(map[wamp.ID]struct{})
		r.owned[s.ID] = owned
	}
	owned[id] = struct{}{}

	// REGISTERED is queued before any call can resolve to the new registration,
	// so the registrant always learns its id ahead of the first INVOCATION.
	if err := r.sender.Send(s.ID, &wamp.Registered{Request: msg.Request, Registration: id}); err != nil {
		r.table.Unregister(msg.Procedure, s.ID, opts.Match)
		r.forget(s.ID, id)
		r.mu.Unlock()
		return fmt.Errorf("deliver REGISTERED to session %d: %w", s.ID, err)
	}
	reg, _ := r.table.Lookup(id)
	count := r.table.Count()
	r.mu.Unlock()

	registrationsGauge.WithLabelValues(r.name).Set(float64(count))
	slog.Debug(fmt.Sprintf("%s - session %d registered %s (%s, %s) as %d", logPrefix, s.ID, msg.Procedure, opts.Match, opts.Invoke, id))

	r.publish(ctx, wamp.MetaOnRegister, s.ID, wamp.List{s.ID, registrationDetails(reg)})
	return nil
}

func (r *Realm) unregister(ctx context.Context, s *Session, msg *wamp.Unregister) error {
	r.mu.Lock()
	if !r.attached(s) {
		r.mu.Unlock()
		return ErrNotAttached
	}
	key, ok := r.procedures[msg.Registration]
	if !ok || key.owner != s.ID {
		r.mu.Unlock()
		return &Error{
			Type:    wamp.UNREGISTER,
			Request: msg.Request,
			Reason:  wamp.ErrNoSuchRegistration,
			Err:     fmt.Errorf("%w: registration %d", pkgrouting.ErrNoSuchProcedure, msg.Registration),
		}
	}
	if _, err := r.table.Unregister(key.uri, s.ID, key.match); err != nil {
		// The index and the table disagree; drop the stale index entry.
		r.forget(s.ID, msg.Registration)
		r.mu.Unlock()
		return &Error{Type: wamp.UNREGISTER, Request: msg.Request, Reason: wamp.ErrNoSuchRegistration, Err: err}
	}
	r.forget(s.ID, msg.Registration)
	count := r.table.Count()
	sendErr := r.sender.Send(s.ID, &wamp.Unregistered{Request: msg.Request})
	r.mu.Unlock()

	registrationsGauge.WithLabelValues(r.name).Set(float64(count))
	slog.Debug(fmt.Sprintf("%s - session %d unregistered %s (%d)", logPrefix, s.ID, key.uri, msg.Registration))

	if sendErr != nil {
		return fmt.Errorf("deliver UNREGISTERED to session %d: %w", s.ID, sendErr)
	}
	r.publish(ctx, wamp.MetaOnUnregister, s.ID, wamp.List{s.ID, msg.Registration})
	return nil
}

// forget removes a procedure id from both indexes. Callers hold mu.
func (r *Realm) forget(session, procedure wamp.ID) {
	delete(r.procedures, procedure)
	if owned := r.owned[session]; owned != nil {
		delete(owned, procedure)
		if len(owned) == 0 {
			delete(r.owned, session)
		}
	}
}

func (r *Realm) call(_ context.Context, s *Session, msg *wamp.Call) error {
	if err := msg.Procedure.ValidateProcedure(wamp.MatchStrict); err != nil {
		return &Error{Type: wamp.CALL, Request: msg.Request, Reason: wamp.ErrInvalidURI, Err: err}
	}

	r.mu.Lock()
	if !r.attached(s) {
		r.mu.Unlock()
		return ErrNotAttached
	}
	m, err := r.table.Resolve(msg.Procedure)
	if err != nil {
		r.mu.Unlock()
		return &Error{Type: wamp.CALL, Request: msg.Request, Reason: wamp.ErrNoSuchProcedure, Err: err}
	}
	invocation := r.ids.NextUnused(r.calls.Contains)
	callee := m.Registration.Registrant
	r.calls.Begin(calltable.ActiveCall{
		Invocation:   invocation,
		Request:      msg.Request,
		Caller:       s.ID,
		Callee:       callee,
		Registration: m.Registration.ID,
		Procedure:    msg.Procedure,
		Started:      r.now(),
	})
	active := r.calls.Len()
	r.mu.Unlock()

	activeCallsGauge.WithLabelValues(r.name).Set(float64(active))

	var details wamp.InvocationDetails
	if m.Pattern() {
		details.Procedure = msg.Procedure
	}
	if wamp.ParseCallOptions(msg.Options).DiscloseMe {
		details.Caller = s.ID
	}

	err = r.sender.Send(callee, &wamp.Invocation{
		Request:      invocation,
		Registration: m.Registration.ID,
		Details:      details.Dict(),
		Args:         msg.Args,
		Kwargs:       msg.Kwargs,
	})
	if err != nil {
		r.mu.Lock()
		r.calls.Complete(invocation)
		active = r.calls.Len()
		r.mu.Unlock()
		activeCallsGauge.WithLabelValues(r.name).Set(float64(active))
		return &Error{
			Type:    wamp.CALL,
			Request: msg.Request,
			Reason:  wamp.ErrUnavailable,
			Err:     fmt.Errorf("deliver INVOCATION to session %d: %w", callee, err),
		}
	}
	return nil
}

// complete removes the active call for an invocation answered by s.
func (r *Realm) complete(s *Session, invocation wamp.ID) (calltable.ActiveCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.attached(s) {
		return calltable.ActiveCall{}, ErrNotAttached
	}
	call, ok := r.calls.Lookup(invocation)
	if !ok || call.Callee != s.ID {
		return calltable.ActiveCall{}, fmt.Errorf("%w: %d", ErrUnknownInvocation, invocation)
	}
	r.calls.Complete(invocation)
	activeCallsGauge.WithLabelValues(r.name).Set(float64(r.calls.Len()))
	return call, nil
}

func (r *Realm) yield(_ context.Context, s *Session, msg *wamp.Yield) error {
	call, err := r.complete(s, msg.Request)
	if err != nil {
		return err
	}
	callDuration.WithLabelValues(r.name).Observe(r.now().Sub(call.Started).Seconds())

	err = r.sender.Send(call.Caller, &wamp.Result{
		Request: call.Request,
		Details: wamp.Dict{},
		Args:    msg.Args,
		Kwargs:  msg.Kwargs,
	})
	if err != nil {
		return fmt.Errorf("deliver RESULT to session %d: %w", call.Caller, err)
	}
	return nil
}

func (r *Realm) invocationError(_ context.Context, s *Session, msg *wamp.Error) error {
	call, err := r.complete(s, msg.Request)
	if err != nil {
		return err
	}
	callDuration.WithLabelValues(r.name).Observe(r.now().Sub(call.Started).Seconds())

	details := msg.Details
	if details == nil {
		details = wamp.Dict{}
	}
	err = r.sender.Send(call.Caller, &wamp.Error{
		Type:    wamp.CALL,
		Request: call.Request,
		Details: details,
		Error:   msg.Error,
		Args:    msg.Args,
		Kwargs:  msg.Kwargs,
	})
	if err != nil {
		return fmt.Errorf("deliver ERROR to session %d: %w", call.Caller, err)
	}
	return nil
}

// cleanup drops everything the session owns. Removed calls get no RESULT or ERROR.
func (r *Realm) cleanup(ctx context.Context, s *Session) {
	r.mu.Lock()
	removed := r.table.RemoveRegistrant(s.ID)
	for _, reg := range removed {
		delete(r.procedures, reg.ID)
	}
	delete(r.owned, s.ID)
	dropped := r.calls.RemoveSession(s.ID)
	delete(r.sessions, s.ID)
	stats := Stats{Sessions: len(r.sessions), Registrations: r.table.Count(), ActiveCalls: r.calls.Len()}
	r.mu.Unlock()

	sessionsGauge.WithLabelValues(r.name).Set(float64(stats.Sessions))
	registrationsGauge.WithLabelValues(r.name).Set(float64(stats.Registrations))
	activeCallsGauge.WithLabelValues(r.name).Set(float64(stats.ActiveCalls))
	slog.Info(fmt.Sprintf("%s - session %d left %s: %d registrations removed, %d calls dropped",
		logPrefix, s.ID, r.name, len(removed), len(dropped)))

	for _, reg := range removed {
		r.publish(ctx, wamp.MetaOnUnregister, s.ID, wamp.List{s.ID, reg.ID})
	}
	r.publish(ctx, wamp.MetaOnLeave, s.ID, wamp.List{s.ID})
}

func (r *Realm) publish(ctx context.Context, topic wamp.URI, session wamp.ID, args wamp.List) {
	if err := r.publisher.Publish(ctx, eventlog.NewEvent(r.name, topic, session, args)); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s: %v", logPrefix, topic, err))
	}
}

func registrationDetails(reg pkgrouting.Registration) wamp.Dict {
	return wamp.Dict{
		"id":      reg.ID,
		"uri":     reg.Procedure,
		"match":   reg.Match.String(),
		"invoke":  reg.Invoke.String(),
		"created": reg.Created.UTC().Format(time.RFC3339Nano),
	}
}
