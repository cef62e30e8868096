package grpclink

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/peerlink"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

type staticAuth map[string]string

func (a staticAuth) Authenticate(token string) (string, error) {
	if id, ok := a[token]; ok {
		return id, nil
	}
	return "", errors.New("unknown token")
}

// startEcho serves a handler that greets each session with WELCOME carrying the
// authid, then echoes every message until the client goes away.
func startEcho(t *testing.T, authenticator Authenticator) grpc.DialOption {
	t.Helper()
	handler := func(ctx context.Context, peer peerlink.Peer, authID string) {
		peer.Send(&wamp.Welcome{Session: 1, Details: wamp.Dict{"authid": authID}})
		for msg := range peer.Recv() {
			if _, ok := msg.(*wamp.Goodbye); ok {
				peer.Send(&wamp.Goodbye{Details: wamp.Dict{}, Reason: wamp.CloseGoodbyeAck})
				return
			}
			peer.Send(msg)
		}
	}

	srv, err := NewServer(&Config{ListenAddress: "bufnet"}, handler, authenticator)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	lis := bufconn.Listen(1 << 20)
	if err := srv.Serve(lis); err != nil {
		t.Fatalf("Failed to serve: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func receive(t *testing.T, p peerlink.Peer) wamp.Message {
	t.Helper()
	select {
	case msg, ok := <-p.Recv():
		if !ok {
			t.Fatal("link closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func dialCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSession_RoundTrip(t *testing.T) {
	dialer := startEcho(t, staticAuth{"good": "alice"})

	peer, err := Dial(dialCtx(t), "passthrough:///bufnet", "good", dialer)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer peer.Close()

	welcome, ok := receive(t, peer).(*wamp.Welcome)
	if !ok {
		t.Fatal("expected WELCOME")
	}
	if welcome.Details["authid"] != "alice" {
		t.Errorf("authid = %v, want alice", welcome.Details["authid"])
	}

	if err := peer.Send(&wamp.Call{Request: 5, Options: wamp.Dict{}, Procedure: "com.example.add", Args: wamp.List{2, 3}}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	call, ok := receive(t, peer).(*wamp.Call)
	if !ok {
		t.Fatal("expected CALL echo")
	}
	if call.Request != 5 || call.Procedure != "com.example.add" {
		t.Errorf("unexpected echo %+v", call)
	}
	if len(call.Args) != 2 || call.Args[0] != 2.0 || call.Args[1] != 3.0 {
		t.Errorf("args = %v", call.Args)
	}
}

func TestSession_GoodbyeEndsStream(t *testing.T) {
	dialer := startEcho(t, nil)

	peer, err := Dial(dialCtx(t), "passthrough:///bufnet", "", dialer)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer peer.Close()

	welcome := receive(t, peer).(*wamp.Welcome)
	if welcome.Details["authid"] != "anonymous" {
		t.Errorf("authid = %v, want anonymous", welcome.Details["authid"])
	}

	peer.Send(&wamp.Goodbye{Details: wamp.Dict{}, Reason: wamp.CloseRealm})
	bye, ok := receive(t, peer).(*wamp.Goodbye)
	if !ok || bye.Reason != wamp.CloseGoodbyeAck {
		t.Fatalf("expected GOODBYE ack, got %+v", bye)
	}

	select {
	case _, ok := <-peer.Recv():
		if ok {
			t.Error("expected stream to end after GOODBYE")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end")
	}
}

func TestSession_RejectsBadToken(t *testing.T) {
	dialer := startEcho(t, staticAuth{"good": "alice"})

	_, err := Dial(dialCtx(t), "passthrough:///bufnet", "bad", dialer)
	if err == nil {
		t.Fatal("expected Dial to fail with a bad token")
	}
}

func TestStreamPeer_CloseIsIdempotent(t *testing.T) {
	dialer := startEcho(t, nil)

	peer, err := Dial(dialCtx(t), "passthrough:///bufnet", "", dialer)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	receive(t, peer)

	if err := peer.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := peer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if peer.Health() != peerlink.Disconnected {
		t.Errorf("health = %s, want Disconnected", peer.Health())
	}
	if err := peer.Send(&wamp.Hello{Realm: "realm1", Details: wamp.Dict{}}); !errors.Is(err, peerlink.ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"valid config", &Config{ListenAddress: "localhost:9090"}, false},
		{"empty listen address", &Config{}, true},
		{"negative queue", &Config{ListenAddress: "localhost:9090", SendQueueSize: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	config := &Config{ListenAddress: "localhost:9090"}
	config.SetDefaults()

	if config.SendQueueSize <= 0 {
		t.Errorf("Expected positive SendQueueSize, got %d", config.SendQueueSize)
	}
	if config.MaxMessageSize != 1024*1024 {
		t.Errorf("Expected MaxMessageSize default of 1MB, got %d", config.MaxMessageSize)
	}
}

func TestFrame_RoundTrip(t *testing.T) {
	frame, err := toFrame(&wamp.Invocation{
		Request:      9,
		Registration: 4,
		Details:      wamp.Dict{"procedure": wamp.URI("com.example.add")},
		Kwargs:       wamp.Dict{"x": true},
	})
	if err != nil {
		t.Fatal(err)
	}
	msg, err := fromFrame(frame)
	if err != nil {
		t.Fatal(err)
	}
	inv := msg.(*wamp.Invocation)
	if inv.Request != 9 || inv.Registration != 4 {
		t.Errorf("ids = %d/%d", inv.Request, inv.Registration)
	}
	if inv.Details["procedure"] != "com.example.add" || inv.Kwargs["x"] != true {
		t.Errorf("unexpected invocation %+v", inv)
	}
}
