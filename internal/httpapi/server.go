// Package httpapi serves the websocket session endpoint, login, health, metrics
// and the admin API.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmacdonaldsmith/rpcmesh/internal/auth"
	"github.com/rmacdonaldsmith/rpcmesh/internal/router"
	"github.com/rmacdonaldsmith/rpcmesh/internal/transport/websocket"
)

// DefaultSecretKey is used when no secret is configured. Development only.
const DefaultSecretKey = "rpcmesh-dev-secret-key-change-in-production"

const realmsPath = "/api/v1/admin/realms/"

// Server represents the HTTP API server
type Server struct {
	router     *router.Router
	jwtAuth    *auth.JWTAuth
	handlers   *Handlers
	middleware *Middleware
	server     *http.Server
}

// Config holds server configuration
type Config struct {
	Port      string
	SecretKey string
	// NoAuth lets websocket sessions in without a token. Admin endpoints still require one.
	NoAuth    bool
	Websocket websocket.Config
}

// NewServer creates a new HTTP API server
func NewServer(r *router.Router, config Config) *Server {
	secretKey := config.SecretKey
	if secretKey == "" {
		secretKey = DefaultSecretKey
	}

	jwtAuth := auth.NewJWTAuth(secretKey)
	server := &Server{
		router:     r,
		jwtAuth:    jwtAuth,
		handlers:   NewHandlers(r, jwtAuth, config.Websocket, config.NoAuth),
		middleware: NewMiddleware(jwtAuth, config.NoAuth),
	}

	server.server = &http.Server{
		Addr:              ":" + config.Port,
		Handler:           server.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	return server
}

// Auth returns the token authority shared with other listeners.
func (s *Server) Auth() *auth.JWTAuth {
	return s.jwtAuth
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server. Hijacked websocket connections are
// not tracked here; closing the router ends them.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	withMiddleware := func(handler http.HandlerFunc) http.Handler {
		return s.middleware.Recovery(
			s.middleware.Logging(
				s.middleware.CORS(
					s.middleware.ContentType(handler))))
	}

	mux.Handle("/api/v1/auth/login", withMiddleware(s.handlers.Login))
	mux.Handle("/api/v1/health", withMiddleware(s.handlers.Health))

	// The upgrade writes its own headers.
	mux.Handle("/ws", s.middleware.Recovery(s.middleware.Logging(s.handlers.Websocket)))

	mux.Handle("/api/v1/admin/realms", withMiddleware(s.middleware.AdminRequired(s.handlers.AdminListRealms)))
	mux.Handle(realmsPath, s.middleware.Recovery(s.middleware.Logging(s.middleware.CORS(
		s.middleware.AdminRequired(s.handleRealmRoutes)))))

	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", withMiddleware(s.handleRoot))

	return mux
}

// handleRealmRoutes dispatches /api/v1/admin/realms/{realm}/{registrations|events|events/stream}
func (s *Server) handleRealmRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	realm, rest, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, realmsPath), "/")
	if !ok || realm == "" {
		writeError(w, "Realm name required", http.StatusBadRequest)
		return
	}
	r = r.WithContext(context.WithValue(r.Context(), RealmKey, realm))

	switch rest {
	case "registrations":
		w.Header().Set("Content-Type", "application/json")
		s.handlers.AdminListRegistrations(w, r)
	case "events":
		w.Header().Set("Content-Type", "application/json")
		s.handlers.AdminReadEvents(w, r)
	case "events/stream":
		s.handlers.AdminStreamEvents(w, r)
	default:
		writeError(w, "Not found", http.StatusNotFound)
	}
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, "Not found", http.StatusNotFound)
		return
	}

	info := map[string]any{
		"service":     "rpcmesh",
		"description": "WAMP RPC router",
		"endpoints": map[string]any{
			"auth": map[string]string{
				"login": "POST /api/v1/auth/login",
			},
			"session": "GET /ws (subprotocol wamp.2.json)",
			"admin": map[string]string{
				"realms":        "GET /api/v1/admin/realms",
				"registrations": "GET /api/v1/admin/realms/{realm}/registrations",
				"events":        "GET /api/v1/admin/realms/{realm}/events?topic={topic}&offset={offset}&limit={limit}",
				"stream":        "GET /api/v1/admin/realms/{realm}/events/stream?topic={topic}",
			},
			"health":  "GET /api/v1/health",
			"metrics": "GET /metrics",
		},
		"authentication": "Bearer JWT token; admin endpoints require an admin token",
	}
	writeJSON(w, info, http.StatusOK)
}
