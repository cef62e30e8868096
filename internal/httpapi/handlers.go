package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rmacdonaldsmith/rpcmesh/internal/auth"
	"github.com/rmacdonaldsmith/rpcmesh/internal/router"
	"github.com/rmacdonaldsmith/rpcmesh/internal/transport/websocket"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/eventlog"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

const logPrefix = "httpapi"

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	router   *router.Router
	jwtAuth  *auth.JWTAuth
	wsConfig websocket.Config
	noAuth   bool

	// streamPoll is how often the event stream checks the journal
	streamPoll time.Duration
	// keepalive is how often an idle event stream sends a comment line
	keepalive time.Duration
}

// NewHandlers creates a new handlers instance
func NewHandlers(r *router.Router, jwtAuth *auth.JWTAuth, wsConfig websocket.Config, noAuth bool) *Handlers {
	return &Handlers{
		router:     r,
		jwtAuth:    jwtAuth,
		wsConfig:   wsConfig,
		noAuth:     noAuth,
		streamPoll: 250 * time.Millisecond,
		keepalive:  15 * time.Second,
	}
}

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.validateJSON(r); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validateAuthRequest(&req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// No credential store: the identity is trusted and "admin" gets the admin API.
	isAdmin := req.AuthID == "admin"

	token, expiresAt, err := h.jwtAuth.GenerateToken(req.AuthID, isAdmin)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, AuthResponse{
		Token:     token,
		AuthID:    req.AuthID,
		ExpiresAt: expiresAt,
	}, http.StatusOK)
}

// Websocket handles GET /ws by upgrading to a wamp.2.json session. The token is
// read from the Authorization header or, for browsers, the token query parameter.
func (h *Handlers) Websocket(w http.ResponseWriter, r *http.Request) {
	authID := DevAuthID
	if !h.noAuth {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		claims, err := h.jwtAuth.ValidateToken(token)
		if err != nil {
			writeError(w, "Invalid token: "+err.Error(), http.StatusUnauthorized)
			return
		}
		authID = claims.AuthID
	}

	peer, err := websocket.Accept(w, r, h.wsConfig)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - websocket from %s refused: %v", logPrefix, r.RemoteAddr, err))
		return
	}
	slog.Debug(fmt.Sprintf("%s - websocket session from %s as %s", logPrefix, peer.RemoteAddr(), authID))

	// The request context is cancelled when this handler returns, not when the
	// hijacked connection closes; the session ends through the peer.
	if err := h.router.Accept(context.WithoutCancel(r.Context()), peer, authID); err != nil {
		slog.Info(fmt.Sprintf("%s - session from %s ended: %v", logPrefix, peer.RemoteAddr(), err))
	}
}

// Health handles GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health, err := h.router.GetHealth(r.Context())
	if err != nil {
		writeError(w, "Failed to get health status", http.StatusInternalServerError)
		return
	}

	statusCode := http.StatusOK
	if !health.Healthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, HealthResponse(health), statusCode)
}

// Admin endpoints

// AdminListRealms handles GET /api/v1/admin/realms
func (h *Handlers) AdminListRealms(w http.ResponseWriter, r *http.Request) {
	if !IsAdmin(r) {
		writeError(w, "Admin privileges required", http.StatusForbidden)
		return
	}
	realms, err := h.router.GetRealms(r.Context())
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to list realms: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, RealmsResponse{Realms: realms}, http.StatusOK)
}

// AdminListRegistrations handles GET /api/v1/admin/realms/{realm}/registrations
func (h *Handlers) AdminListRegistrations(w http.ResponseWriter, r *http.Request) {
	if !IsAdmin(r) {
		writeError(w, "Admin privileges required", http.StatusForbidden)
		return
	}
	realm := GetRealmFromPath(r)
	regs, err := h.router.GetRegistrations(r.Context(), realm)
	if err != nil {
		h.writeRouterError(w, err)
		return
	}
	writeJSON(w, RegistrationsResponse{Realm: realm, Registrations: regs}, http.StatusOK)
}

// AdminReadEvents handles GET /api/v1/admin/realms/{realm}/events?topic=&offset=&limit=
func (h *Handlers) AdminReadEvents(w http.ResponseWriter, r *http.Request) {
	if !IsAdmin(r) {
		writeError(w, "Admin privileges required", http.StatusForbidden)
		return
	}
	realm := GetRealmFromPath(r)
	if _, ok := h.router.Realm(realm); !ok {
		h.writeRouterError(w, fmt.Errorf("%w: %s", router.ErrNoSuchRealm, realm))
		return
	}

	topic, offset, err := h.parseEventQuery(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := h.parseLimit(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	journal := h.router.Journal()
	events, err := journal.ReadEvents(ctx, realm, topic, offset, limit)
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to read events: %v", err), http.StatusInternalServerError)
		return
	}
	end, err := journal.GetTopicEndOffset(ctx, realm, topic)
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to read events: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, ReadEventsResponse{
		Realm:       realm,
		Topic:       string(topic),
		StartOffset: offset,
		EndOffset:   end,
		Count:       len(events),
		Events:      events,
	}, http.StatusOK)
}

// AdminStreamEvents handles GET /api/v1/admin/realms/{realm}/events/stream?topic=&offset=
// as a server-sent event stream. Without offset the stream starts at the current end.
func (h *Handlers) AdminStreamEvents(w http.ResponseWriter, r *http.Request) {
	if !IsAdmin(r) {
		writeError(w, "Admin privileges required", http.StatusForbidden)
		return
	}
	realm := GetRealmFromPath(r)
	if _, ok := h.router.Realm(realm); !ok {
		h.writeRouterError(w, fmt.Errorf("%w: %s", router.ErrNoSuchRealm, realm))
		return
	}
	topic, offset, err := h.parseEventQuery(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	journal := h.router.Journal()
	if r.URL.Query().Get("offset") == "" {
		if offset, err = journal.GetTopicEndOffset(ctx, realm, topic); err != nil {
			writeError(w, fmt.Sprintf("Failed to read events: %v", err), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flush(w)

	poll := time.NewTicker(h.streamPoll)
	defer poll.Stop()
	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flush(w)
		case <-poll.C:
			events, err := journal.ReadEvents(ctx, realm, topic, offset, maxEventLimit)
			if err != nil {
				return
			}
			for _, event := range events {
				if err := h.writeSSEMessage(w, event); err != nil {
					return
				}
				offset = event.Offset + 1
			}
			if len(events) > 0 {
				flush(w)
			}
		}
	}
}

// Helper methods

func (h *Handlers) writeRouterError(w http.ResponseWriter, err error) {
	if errors.Is(err, router.ErrNoSuchRealm) {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeError(w, err.Error(), http.StatusInternalServerError)
}

// validateJSON validates that the request has valid JSON content-type
func (h *Handlers) validateJSON(r *http.Request) error {
	if r.Header.Get("Content-Type") != "application/json" {
		return errors.New("Content-Type must be application/json")
	}
	return nil
}

// validateAuthRequest validates authentication request fields
func (h *Handlers) validateAuthRequest(req *AuthRequest) error {
	if req.AuthID == "" {
		return errors.New("authid is required")
	}
	if len(req.AuthID) < 2 {
		return errors.New("authid must be at least 2 characters")
	}
	return nil
}

func (h *Handlers) parseEventQuery(r *http.Request) (wamp.URI, int64, error) {
	q := r.URL.Query()
	topic := wamp.URI(q.Get("topic"))
	if err := topic.ValidateProcedure(wamp.MatchStrict); err != nil {
		return "", 0, fmt.Errorf("topic: %v", err)
	}
	var offset int64
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return "", 0, errors.New("offset must be a non-negative integer")
		}
		offset = n
	}
	return topic, offset, nil
}

func (h *Handlers) parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultEventLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxEventLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", maxEventLimit)
	}
	return n, nil
}

// writeSSEMessage writes an event as a server-sent event data message
func (h *Handlers) writeSSEMessage(w http.ResponseWriter, event *eventlog.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE message: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", event.Offset, data)
	return err
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
