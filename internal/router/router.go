// Package router joins sessions to realms and delivers the dealer's messages
// back to them.
package router

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rmacdonaldsmith/rpcmesh/internal/dealer"
	"github.com/rmacdonaldsmith/rpcmesh/internal/eventlog"
	"github.com/rmacdonaldsmith/rpcmesh/internal/events"
	"github.com/rmacdonaldsmith/rpcmesh/internal/idgen"
	eventlogpkg "github.com/rmacdonaldsmith/rpcmesh/pkg/eventlog"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/peerlink"
	routerpkg "github.com/rmacdonaldsmith/rpcmesh/pkg/router"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/routingtable"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

const logPrefix = "router"

var (
	// ErrClosed is returned by operations on a closed router
	ErrClosed = errors.New("router is closed")
	// ErrNoSuchRealm is returned for realms that do not exist
	ErrNoSuchRealm = errors.New("no such realm")
)

// healthReporter is implemented by peers that can report queue pressure.
type healthReporter interface {
	Health() peerlink.HealthState
}

// conn is a connected session as seen by the directory.
type conn struct {
	peer    peerlink.Peer
	session *dealer.Session
}

// Router owns the realms and the session directory. It implements dealer.Sender
// by looking up the session's peer and enqueueing on it.
type Router struct {
	mu     sync.RWMutex
	config *Config

	realms   map[string]*dealer.Realm
	sessions map[wamp.ID]*conn

	ids       *idgen.Generator
	journal   eventlogpkg.EventLog
	publisher events.Publisher

	started     bool
	closed      bool
	done        chan struct{}
	stopReaper  context.CancelFunc
	reaperDone  chan struct{}
	sessionsRun sync.WaitGroup
}

// NewRouter creates a router and its configured realms. Call Start to run call expiry.
func NewRouter(config *Config) (*Router, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	journal := config.Journal
	if journal == nil {
		journal = eventlog.NewInMemoryEventLog(eventlog.DefaultRetention)
	}
	publisher := events.Fanout{events.NewJournalPublisher(journal)}
	if config.Publisher != nil {
		publisher = append(publisher, config.Publisher)
	}

	r := &Router{
		config:    config,
		realms:    make(map[string]*dealer.Realm),
		sessions:  make(map[wamp.ID]*conn),
		ids:       idgen.New(),
		journal:   journal,
		publisher: publisher,
		done:      make(chan struct{}),
	}
	for _, name := range config.Realms {
		if _, err := r.addRealmLocked(name); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// AddRealm creates a realm, or returns the existing one with that name.
func (r *Router) AddRealm(name string) (*dealer.Realm, error) {
	if err := validRealmName(name); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	return r.addRealmLocked(name)
}

func (r *Router) addRealmLocked(name string) (*dealer.Realm, error) {
	if realm, ok := r.realms[name]; ok {
		return realm, nil
	}
	realm, err := dealer.NewRealm(dealer.NewConfig(name, r).WithPublisher(r.publisher))
	if err != nil {
		return nil, fmt.Errorf("failed to create realm %s: %w", name, err)
	}
	r.realms[name] = realm
	slog.Info(fmt.Sprintf("%s - realm %s created", logPrefix, name))
	return realm, nil
}

// Realm returns the realm with the given name.
func (r *Router) Realm(name string) (*dealer.Realm, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	realm, ok := r.realms[name]
	return realm, ok
}

// realmFor resolves the realm named by HELLO, creating it when allowed.
func (r *Router) realmFor(name wamp.URI) (*dealer.Realm, error) {
	if realm, ok := r.Realm(string(name)); ok {
		return realm, nil
	}
	if !r.config.AutoCreateRealms {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchRealm, name)
	}
	return r.AddRealm(string(name))
}

// Journal returns the meta event journal.
func (r *Router) Journal() eventlogpkg.EventLog {
	return r.journal
}

// Send implements dealer.Sender.
func (r *Router) Send(session wamp.ID, msg wamp.Message) error {
	r.mu.RLock()
	c, ok := r.sessions[session]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %d: %w", session, peerlink.ErrClosed)
	}
	return c.peer.Send(msg)
}

// Start begins call expiry when a call timeout is configured.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("cannot start closed router")
	}
	if r.started {
		return nil
	}

	if r.config.CallTimeout > 0 {
		reapCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		r.stopReaper = cancel
		r.reaperDone = make(chan struct{})
		go r.reap(reapCtx, r.reaperDone)
	}
	r.started = true
	return nil
}

// Stop halts call expiry. Connected sessions are left alone.
func (r *Router) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	cancel, done := r.stopReaper, r.reaperDone
	r.stopReaper, r.reaperDone = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close ends every session with GOODBYE(wamp.close.system_shutdown), waits for
// them to clean up and closes the journal.
func (r *Router) Close() error {
	if err := r.Stop(context.Background()); err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()

	r.sessionsRun.Wait()

	if err := r.journal.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	slog.Info(fmt.Sprintf("%s - closed", logPrefix))
	return nil
}

func (r *Router) reap(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.config.reapInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, realm := range r.realmList() {
				realm.ExpireCalls(r.config.CallTimeout)
			}
		}
	}
}

func (r *Router) realmList() []*dealer.Realm {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*dealer.Realm, 0, len(r.realms))
	for _, realm := range r.realms {
		out = append(out, realm)
	}
	slices.SortFunc(out, func(a, b *dealer.Realm) int { return cmp.Compare(a.Name(), b.Name()) })
	return out
}

// GetRealms returns a summary of every realm, sorted by name.
func (r *Router) GetRealms(ctx context.Context) ([]routerpkg.RealmInfo, error) {
	realms := r.realmList()
	out := make([]routerpkg.RealmInfo, len(realms))
	for i, realm := range realms {
		s := realm.Stats()
		out[i] = routerpkg.RealmInfo{
			Name:          s.Name,
			Sessions:      s.Sessions,
			Registrations: s.Registrations,
			ActiveCalls:   s.ActiveCalls,
		}
	}
	return out, nil
}

// GetRegistrations returns the live registrations of a realm, oldest first.
func (r *Router) GetRegistrations(ctx context.Context, name string) ([]routingtable.Registration, error) {
	realm, ok := r.Realm(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchRealm, name)
	}
	return realm.Registrations(), nil
}

// GetHealth returns the overall health status of the router.
func (r *Router) GetHealth(ctx context.Context) (routerpkg.HealthStatus, error) {
	r.mu.RLock()
	closed, started := r.closed, r.started
	sessions := len(r.sessions)
	backlogged := 0
	for _, c := range r.sessions {
		if h, ok := c.peer.(healthReporter); ok && h.Health() == peerlink.Backlogged {
			backlogged++
		}
	}
	r.mu.RUnlock()

	status := routerpkg.HealthStatus{
		Healthy:            !closed,
		Started:            started,
		Sessions:           sessions,
		BackloggedSessions: backlogged,
	}
	for _, realm := range r.realmList() {
		s := realm.Stats()
		status.Realms++
		status.Registrations += s.Registrations
		status.ActiveCalls += s.ActiveCalls
	}

	switch {
	case closed:
		status.Message = "router is closed"
	case backlogged > 0:
		status.Message = fmt.Sprintf("%d sessions have a full send queue", backlogged)
	default:
		status.Message = "ok"
	}
	return status, nil
}

var (
	_ routerpkg.Router = (*Router)(nil)
	_ dealer.Sender    = (*Router)(nil)
)
