package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/eventlog"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

// startTestServer starts an in-process NATS server on a random port.
func startTestServer(t *testing.T) *nats.Conn {
	t.Helper()

	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   natsserver.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("nats server failed to start")
	}

	nc, err := Connect(ns.ClientURL(), "rpcmesh-test")
	if err != nil {
		ns.Shutdown()
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc
}

func TestNATSPublisher_Publish(t *testing.T) {
	nc := startTestServer(t)
	pub := NewNATSPublisher(nc, nil)

	received := make(chan *eventlog.Event, 1)
	sub, err := nc.Subscribe("rpcmesh.realm1.wamp.registration.>", func(msg *nats.Msg) {
		var ev eventlog.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			t.Errorf("failed to unmarshal: %v", err)
			return
		}
		received <- &ev
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	ev := eventlog.NewEvent("realm1", wamp.MetaOnRegister, 42, wamp.List{uint64(42), map[string]any{"uri": "com.example.add"}})
	require.NoError(t, pub.Publish(context.Background(), ev))
	require.NoError(t, nc.Flush())

	select {
	case got := <-received:
		assert.Equal(t, "realm1", got.Realm)
		assert.Equal(t, wamp.MetaOnRegister, got.Topic)
		assert.Equal(t, wamp.ID(42), got.Session)
		require.Len(t, got.Args, 2)
		assert.Equal(t, "com.example.add", got.Args[1].(map[string]any)["uri"])
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for meta event")
	}
}

func TestNATSPublisher_SubjectPrefix(t *testing.T) {
	pub := NewNATSPublisher(nil, &NATSPublisherOpts{SubjectPrefix: "meta"})
	ev := eventlog.NewEvent("realm1", wamp.MetaOnJoin, 1, nil)
	assert.Equal(t, "meta.realm1.wamp.session.on_join", pub.Subject(ev))

	assert.Equal(t, "rpcmesh.realm1.wamp.session.on_join", NewNATSPublisher(nil, nil).Subject(ev))
}
