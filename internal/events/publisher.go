// Package events publishes dealer meta events.
package events

import (
	"context"
	"errors"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/eventlog"
)

// Publisher receives meta events after the realm lock has been released.
type Publisher interface {
	Publish(ctx context.Context, event *eventlog.Event) error
}

// NoOpPublisher drops every event.
type NoOpPublisher struct{}

// Publish is a no-op.
func (p *NoOpPublisher) Publish(_ context.Context, _ *eventlog.Event) error {
	return nil
}

// CallbackPublisher hands events to a function (for testing and in-process observers).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *eventlog.Event) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *eventlog.Event) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// Publish calls the callback.
func (p *CallbackPublisher) Publish(ctx context.Context, event *eventlog.Event) error {
	return p.callback(ctx, event)
}

// Fanout delivers each event to every publisher, even when some of them fail.
type Fanout []Publisher

// Publish returns the joined errors of the failing publishers.
func (f Fanout) Publish(ctx context.Context, event *eventlog.Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// JournalPublisher appends events to an event log.
type JournalPublisher struct {
	log eventlog.EventLog
}

// NewJournalPublisher creates a publisher backed by log.
func NewJournalPublisher(log eventlog.EventLog) *JournalPublisher {
	return &JournalPublisher{log: log}
}

// Publish appends the event.
func (p *JournalPublisher) Publish(ctx context.Context, event *eventlog.Event) error {
	_, err := p.log.AppendEvent(ctx, event)
	return err
}
