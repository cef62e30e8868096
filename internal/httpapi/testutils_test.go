package httpapi

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rmacdonaldsmith/rpcmesh/internal/router"
)

const testRealm = "realm1"

// TestServerSetup holds common test dependencies
type TestServerSetup struct {
	Router *router.Router
	Server *Server
	HTTP   *httptest.Server
}

// NewTestServerSetup creates a router with one realm and serves its API over httptest.
func NewTestServerSetup(t *testing.T, noAuth bool) *TestServerSetup {
	t.Helper()

	r, err := router.NewRouter(router.NewConfig(testRealm))
	if err != nil {
		t.Fatalf("Failed to create router: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start router: %v", err)
	}

	server := NewServer(r, Config{Port: "0", SecretKey: "test-secret-key", NoAuth: noAuth})
	server.handlers.streamPoll = 10 * time.Millisecond

	setup := &TestServerSetup{
		Router: r,
		Server: server,
		HTTP:   httptest.NewServer(server.Handler()),
	}
	t.Cleanup(setup.Close)
	return setup
}

// Close cleans up test resources
func (setup *TestServerSetup) Close() {
	setup.Router.Close()
	setup.HTTP.Close()
}

// WebsocketURL returns the session endpoint of the test server.
func (setup *TestServerSetup) WebsocketURL() string {
	return "ws" + strings.TrimPrefix(setup.HTTP.URL, "http") + "/ws"
}

// GenerateTestToken creates a JWT token for testing
func (setup *TestServerSetup) GenerateTestToken(t *testing.T, authID string, isAdmin bool) string {
	t.Helper()

	token, _, err := setup.Server.Auth().GenerateToken(authID, isAdmin)
	if err != nil {
		t.Fatalf("Failed to generate test token: %v", err)
	}
	return token
}
