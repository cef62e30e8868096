package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rmacdonaldsmith/rpcmesh/internal/dealer"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/peerlink"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

// Accept runs one session until the client says GOODBYE or ABORT, the link
// drops, ctx ends or the router closes. The peer is closed before it returns.
func (r *Router) Accept(ctx context.Context, peer peerlink.Peer, authID string) error {
	sess, err := r.join(peer, authID)
	if err != nil {
		peer.Send(&wamp.Abort{Details: wamp.Dict{"message": err.Error()}, Reason: wamp.CloseSystemShutdown})
		peer.Close()
		return err
	}
	defer r.sessionsRun.Done()
	defer peer.Close()
	defer r.leave(ctx, sess)

	for {
		select {
		case <-ctx.Done():
			r.goodbye(peer, sess, wamp.CloseSystemShutdown)
			return ctx.Err()
		case <-r.done:
			r.goodbye(peer, sess, wamp.CloseSystemShutdown)
			return nil
		case msg, ok := <-peer.Recv():
			if !ok {
				return nil
			}
			done, err := r.dispatch(ctx, peer, sess, msg)
			if done {
				return err
			}
		}
	}
}

// join adds a detached session to the directory.
func (r *Router) join(peer peerlink.Peer, authID string) (*dealer.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	id := r.ids.NextUnused(func(id wamp.ID) bool {
		_, taken := r.sessions[id]
		return taken
	})
	sess := dealer.NewSession(id, authID)
	r.sessions[id] = &conn{peer: peer, session: sess}
	r.sessionsRun.Add(1)
	return sess, nil
}

// leave cleans up the session's realm state, then drops it from the directory.
func (r *Router) leave(ctx context.Context, sess *dealer.Session) {
	if sess.Realm() != nil {
		sess.Cleanup(context.WithoutCancel(ctx))
	}
	r.mu.Lock()
	delete(r.sessions, sess.ID)
	r.mu.Unlock()
}

// goodbye tells an attached session that the router is ending it.
func (r *Router) goodbye(peer peerlink.Peer, sess *dealer.Session, reason wamp.URI) {
	if sess.Realm() == nil {
		peer.Send(&wamp.Abort{Details: wamp.Dict{}, Reason: reason})
		return
	}
	peer.Send(&wamp.Goodbye{Details: wamp.Dict{}, Reason: reason})
}

// dispatch handles one inbound message and reports whether the session is over.
func (r *Router) dispatch(ctx context.Context, peer peerlink.Peer, sess *dealer.Session, msg wamp.Message) (bool, error) {
	switch m := msg.(type) {
	case *wamp.Hello:
		return r.hello(ctx, peer, sess, m)

	case *wamp.Goodbye:
		if sess.Realm() != nil {
			sess.Cleanup(ctx)
			peer.Send(&wamp.Goodbye{Details: wamp.Dict{}, Reason: wamp.CloseGoodbyeAck})
		}
		return true, nil

	case *wamp.Abort:
		slog.Info(fmt.Sprintf("%s - session %d aborted: %s", logPrefix, sess.ID, m.Reason))
		return true, nil
	}

	err := sess.Handle(ctx, msg)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, dealer.ErrProtocolViolation):
		slog.Warn(fmt.Sprintf("%s - session %d: %v", logPrefix, sess.ID, err))
		peer.Send(&wamp.Abort{Details: wamp.Dict{"message": err.Error()}, Reason: wamp.ErrProtocolViolation})
		return true, err
	case errors.Is(err, dealer.ErrInvalidState):
		slog.Debug(fmt.Sprintf("%s - session %d: ignoring %s: %v", logPrefix, sess.ID, msg.MessageType(), err))
		return false, nil
	default:
		slog.Warn(fmt.Sprintf("%s - session %d: %v", logPrefix, sess.ID, err))
		return false, nil
	}
}

func (r *Router) hello(ctx context.Context, peer peerlink.Peer, sess *dealer.Session, msg *wamp.Hello) (bool, error) {
	if sess.Realm() != nil {
		err := fmt.Errorf("%w: HELLO on an established session", dealer.ErrProtocolViolation)
		peer.Send(&wamp.Abort{Details: wamp.Dict{"message": err.Error()}, Reason: wamp.ErrProtocolViolation})
		return true, err
	}

	realm, err := r.realmFor(msg.Realm)
	if err != nil {
		slog.Info(fmt.Sprintf("%s - session %d rejected: %v", logPrefix, sess.ID, err))
		peer.Send(&wamp.Abort{Details: wamp.Dict{"message": err.Error()}, Reason: wamp.ErrNoSuchRealm})
		return true, nil
	}
	if err := realm.Attach(ctx, sess); err != nil {
		return true, err
	}

	err = peer.Send(&wamp.Welcome{
		Session: sess.ID,
		Details: wamp.Dict{
			"realm":  realm.Name(),
			"authid": sess.AuthID,
			"roles":  wamp.DealerRoles(),
		},
	})
	if err != nil {
		return true, fmt.Errorf("deliver WELCOME to session %d: %w", sess.ID, err)
	}
	return false, nil
}
