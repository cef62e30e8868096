package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/eventlog"
)

const natsPublisherLogPrefix = "events:nats_publisher"

// DefaultSubjectPrefix is the first token of every meta event subject.
const DefaultSubjectPrefix = "rpcmesh"

// NATSPublisherOpts configures NATSPublisher. Zero values use defaults.
type NATSPublisherOpts struct {
	// SubjectPrefix replaces DefaultSubjectPrefix.
	SubjectPrefix string
}

// NATSPublisher publishes meta events as JSON to <prefix>.<realm>.<topic>.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher creates a publisher on an existing connection. Pass nil for opts to use defaults.
func NewNATSPublisher(nc *nats.Conn, opts *NATSPublisherOpts) *NATSPublisher {
	prefix := DefaultSubjectPrefix
	if opts != nil && opts.SubjectPrefix != "" {
		prefix = opts.SubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(event *eventlog.Event) string {
	return strings.Join([]string{p.prefix, event.Realm, string(event.Topic)}, ".")
}

// Publish encodes and publishes the event. Delivery is fire-and-forget.
func (p *NATSPublisher) Publish(_ context.Context, event *eventlog.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", natsPublisherLogPrefix, err)
	}

	subject := p.Subject(event)
	if err := p.nc.Publish(subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", natsPublisherLogPrefix, subject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published %s for session %d", natsPublisherLogPrefix, event.Topic, event.Session))
	return nil
}

// Connect dials a NATS server with reconnect handling suitable for a long-running daemon.
func Connect(url, name string) (*nats.Conn, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to NATS at %s as %s", natsPublisherLogPrefix, url, name))

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - NATS disconnected: %v", natsPublisherLogPrefix, err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info(fmt.Sprintf("%s - NATS reconnected to %s", natsPublisherLogPrefix, nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to NATS: %w", natsPublisherLogPrefix, err)
	}
	return nc, nil
}
