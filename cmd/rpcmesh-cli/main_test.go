package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/rpcmesh/internal/httpapi"
	"github.com/rmacdonaldsmith/rpcmesh/internal/router"
	"github.com/rmacdonaldsmith/rpcmesh/internal/transport/websocket"
	rpcclient "github.com/rmacdonaldsmith/rpcmesh/pkg/client"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

// execute runs the CLI with args and returns what it printed.
func execute(args ...string) (string, error) {
	cmd := newRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

type testServer struct {
	api *httpapi.Server
	url string
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	r, err := router.NewRouter(router.NewConfig("realm1"))
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	api := httpapi.NewServer(r, httpapi.Config{SecretKey: "cli-test-secret"})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		r.Close()
		srv.Close()
	})
	return &testServer{api: api, url: srv.URL}
}

func (s *testServer) token(t *testing.T, authID string, admin bool) string {
	t.Helper()
	token, _, err := s.api.Auth().GenerateToken(authID, admin)
	require.NoError(t, err)
	return token
}

// serveEcho registers com.example.echo from a separate session.
func (s *testServer) serveEcho(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + s.url[len("http"):] + "/ws"
	peer, err := websocket.Dial(ctx, wsURL, s.token(t, "callee", false), websocket.Config{})
	require.NoError(t, err)
	session, err := rpcclient.Join(ctx, peer, "realm1", rpcclient.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	_, err = session.Register(ctx, "com.example.echo", wamp.RegisterOptions{},
		func(_ context.Context, inv *rpcclient.Invocation) (*rpcclient.Result, error) {
			return &rpcclient.Result{Args: inv.Args, Kwargs: inv.Kwargs}, nil
		})
	require.NoError(t, err)
}

func TestMainCommandHelp(t *testing.T) {
	out, err := execute("--help")
	require.NoError(t, err)

	for _, name := range []string{"auth", "health", "call", "serve", "realms", "registrations", "events"} {
		assert.Contains(t, out, name)
	}
}

func TestInitializeClient(t *testing.T) {
	t.Run("requires_authid_or_token", func(t *testing.T) {
		_, err := execute("--server", "http://localhost:1", "health")
		assert.ErrorContains(t, err, "authid is required")
	})

	t.Run("token_is_enough", func(t *testing.T) {
		root := newRootCommand()
		health, _, err := root.Find([]string{"health"})
		require.NoError(t, err)
		token = "abc"
		defer func() { token = "" }()
		require.NoError(t, initializeClient(health, nil))
		assert.True(t, client.IsAuthenticated())
	})
}

func TestParseArgs(t *testing.T) {
	args := parseArgs([]string{"2", "3.5", "hello", `{"a":1}`, "true", `"quoted"`})
	assert.Equal(t, wamp.List{2.0, 3.5, "hello", map[string]any{"a": 1.0}, true, "quoted"}, args)

	kwargs, err := parseKwargs(`{"verbose":true}`)
	require.NoError(t, err)
	assert.Equal(t, wamp.Dict{"verbose": true}, kwargs)

	_, err = parseKwargs("not-json")
	assert.ErrorContains(t, err, "invalid JSON kwargs")
}

func TestAuthAndHealth(t *testing.T) {
	srv := startServer(t)

	out, err := execute("--server", srv.url, "--authid", "alice", "auth")
	require.NoError(t, err)
	assert.Contains(t, out, "Authentication successful")
	assert.Contains(t, out, "RPCMESH_TOKEN")

	out, err = execute("--server", srv.url, "--authid", "alice", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Router is healthy")
	assert.Contains(t, out, "Realms: 1")
}

func TestCall(t *testing.T) {
	srv := startServer(t)
	srv.serveEcho(t)

	// Logs in as --authid on the fly.
	out, err := execute("--server", srv.url, "--authid", "caller", "call", "com.example.echo", "2", "three", "--kwargs", `{"k":true}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"args":[2,"three"],"kwargs":{"k":true}}`, out)

	_, err = execute("--server", srv.url, "--authid", "caller", "call", "com.example.missing")
	assert.ErrorContains(t, err, string(wamp.ErrNoSuchProcedure))

	_, err = execute("--server", srv.url, "--authid", "caller", "call", "com..bad")
	assert.ErrorContains(t, err, "invalid procedure")
}

func TestAdminCommands(t *testing.T) {
	srv := startServer(t)
	srv.serveEcho(t)
	admin := srv.token(t, "admin", true)

	_, err := execute("--server", srv.url, "--authid", "alice", "realms")
	assert.ErrorContains(t, err, "not authenticated")

	_, err = execute("--server", srv.url, "--token", srv.token(t, "alice", false), "realms")
	assert.ErrorContains(t, err, "403")

	out, err := execute("--server", srv.url, "--token", admin, "realms")
	require.NoError(t, err)
	assert.Contains(t, out, "realm1")
	assert.Contains(t, out, "Registrations: 1")

	out, err = execute("--server", srv.url, "--token", admin, "registrations")
	require.NoError(t, err)
	assert.Contains(t, out, "com.example.echo")
	assert.Contains(t, out, "Match: exact")

	// on_register is journaled just after REGISTERED is sent.
	require.Eventually(t, func() bool {
		out, err = execute("--server", srv.url, "--token", admin, "events", "--topic", string(wamp.MetaOnRegister))
		return err == nil && bytes.Contains([]byte(out), []byte("1 event(s)"))
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, out, "com.example.echo")
}
