package dealer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

// Session is one client's membership in a realm. Its ID is the registrant
// identity used by the routing table and the call table.
type Session struct {
	ID     wamp.ID
	AuthID string

	realm atomic.Pointer[Realm]
}

// NewSession creates a detached session.
func NewSession(id wamp.ID, authID string) *Session {
	return &Session{ID: id, AuthID: authID}
}

// Realm returns the realm the session is attached to, or nil.
func (s *Session) Realm() *Realm {
	return s.realm.Load()
}

func (s *Session) attached() (*Realm, error) {
	r := s.realm.Load()
	if r == nil {
		return nil, ErrNotAttached
	}
	return r, nil
}

// Register handles REGISTER. On success REGISTERED has been sent; failures are
// returned as *Error and are not sent.
func (s *Session) Register(ctx context.Context, msg *wamp.Register) error {
	r, err := s.attached()
	if err != nil {
		return err
	}
	return r.register(ctx, s, msg)
}

// Unregister handles UNREGISTER.
func (s *Session) Unregister(ctx context.Context, msg *wamp.Unregister) error {
	r, err := s.attached()
	if err != nil {
		return err
	}
	return r.unregister(ctx, s, msg)
}

// Call handles CALL by forwarding an INVOCATION to the selected callee.
// The result arrives later through the callee's Yield.
func (s *Session) Call(ctx context.Context, msg *wamp.Call) error {
	r, err := s.attached()
	if err != nil {
		return err
	}
	return r.call(ctx, s, msg)
}

// Yield handles YIELD by forwarding a RESULT to the caller. A yield for an
// unknown or already answered invocation, or from a session other than the
// callee, fails with ErrUnknownInvocation and sends nothing.
func (s *Session) Yield(ctx context.Context, msg *wamp.Yield) error {
	r, err := s.attached()
	if err != nil {
		return err
	}
	return r.yield(ctx, s, msg)
}

// InvocationError handles ERROR(INVOCATION) by forwarding ERROR(CALL) to the caller.
func (s *Session) InvocationError(ctx context.Context, msg *wamp.Error) error {
	r, err := s.attached()
	if err != nil {
		return err
	}
	return r.invocationError(ctx, s, msg)
}

// Handle dispatches an inbound message and sends the ERROR reply for failed requests.
// A nil return means the message was fully handled, including answered failures.
// ErrInvalidState failures send nothing; ErrProtocolViolation should end the session.
func (s *Session) Handle(ctx context.Context, msg wamp.Message) error {
	r, err := s.attached()
	if err != nil {
		return err
	}
	messagesTotal.WithLabelValues(r.name, msg.MessageType().String()).Inc()

	switch m := msg.(type) {
	case *wamp.Register:
		err = r.register(ctx, s, m)
	case *wamp.Unregister:
		err = r.unregister(ctx, s, m)
	case *wamp.Call:
		err = r.call(ctx, s, m)
	case *wamp.Yield:
		err = r.yield(ctx, s, m)
	case *wamp.Error:
		if m.Type != wamp.INVOCATION {
			return fmt.Errorf("%w: ERROR for %s", ErrProtocolViolation, m.Type)
		}
		err = r.invocationError(ctx, s, m)
	default:
		return fmt.Errorf("%w: unexpected %s", ErrProtocolViolation, msg.MessageType())
	}

	var de *Error
	if errors.As(err, &de) {
		errorsTotal.WithLabelValues(r.name, string(de.Reason)).Inc()
		slog.Debug(fmt.Sprintf("%s - session %d: %v", logPrefix, s.ID, de))
		if sendErr := r.sender.Send(s.ID, de.Message()); sendErr != nil {
			return fmt.Errorf("deliver ERROR to session %d: %w", s.ID, sendErr)
		}
		return nil
	}
	return err
}

// Cleanup detaches the session and removes its registrations and active calls.
func (s *Session) Cleanup(ctx context.Context) error {
	r := s.realm.Swap(nil)
	if r == nil {
		return ErrNotAttached
	}
	r.cleanup(ctx, s)
	return nil
}
