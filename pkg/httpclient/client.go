package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// ErrNotAuthenticated is returned by calls that need a token before Authenticate.
var ErrNotAuthenticated = errors.New("client not authenticated - call Authenticate() first")

// Client provides HTTP client for the rpcmesh API
type Client struct {
	config     Config
	httpClient *http.Client
	// streamClient has no overall timeout
	streamClient *http.Client
	token        string
	baseURL      *url.URL
}

// NewClient creates a new rpcmesh HTTP client
func NewClient(config Config) (*Client, error) {
	config.SetDefaults()

	if config.ServerURL == "" {
		return nil, fmt.Errorf("ServerURL is required")
	}
	if config.AuthID == "" {
		return nil, fmt.Errorf("AuthID is required")
	}

	baseURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid ServerURL: scheme must be http or https")
	}

	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
		baseURL:      baseURL,
	}, nil
}

// Authenticate logs in as the configured AuthID and stores the token
func (c *Client) Authenticate(ctx context.Context) error {
	authReq := map[string]string{
		"authid": c.config.AuthID,
	}

	var authResp AuthResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", authReq, &authResp, false); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	c.token = authResp.Token
	return nil
}

// GetHealth returns the health status of the router
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp, false); err != nil {
		// An unhealthy router answers 503 with the same body.
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable && resp.Message != "" {
			return &resp, nil
		}
		return nil, fmt.Errorf("failed to get health status: %w", err)
	}
	return &resp, nil
}

// Admin Methods (require admin token)

// ListRealms returns every realm with its counters (admin only)
func (c *Client) ListRealms(ctx context.Context) (*RealmsResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp RealmsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/admin/realms", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to list realms: %w", err)
	}
	return &resp, nil
}

// ListRegistrations returns the live registrations of a realm (admin only)
func (c *Client) ListRegistrations(ctx context.Context, realm string) (*RegistrationsResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp RegistrationsResponse
	path := fmt.Sprintf("/api/v1/admin/realms/%s/registrations", url.PathEscape(realm))
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	return &resp, nil
}

// ReadMetaEvents reads journaled meta events of one topic starting at offset (admin only).
// A limit of 0 uses the server default.
func (c *Client) ReadMetaEvents(ctx context.Context, realm, topic string, offset int64, limit int) (*ReadEventsResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	path := fmt.Sprintf("/api/v1/admin/realms/%s/events", url.PathEscape(realm))
	queryParams := url.Values{}
	queryParams.Set("topic", topic)
	if offset >= 0 {
		queryParams.Set("offset", strconv.FormatInt(offset, 10))
	}
	if limit > 0 {
		queryParams.Set("limit", strconv.Itoa(limit))
	}

	var resp ReadEventsResponse
	if err := c.doRequestWithQuery(ctx, http.MethodGet, path, queryParams, nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return &resp, nil
}

// WebsocketURL returns the session endpoint for the server, ws:// or wss://.
func (c *Client) WebsocketURL() string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.ResolveReference(&url.URL{Path: "/ws"}).String()
}

// doRequestWithQuery performs an HTTP request with query parameters and optional authentication
func (c *Client) doRequestWithQuery(ctx context.Context, method, path string, queryParams url.Values, reqBody interface{}, respBody interface{}, requireAuth bool) error {
	u := &url.URL{Path: path}
	if len(queryParams) > 0 {
		u.RawQuery = queryParams.Encode()
	}
	fullURL := c.baseURL.ResolveReference(u)

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requireAuth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		// Some endpoints (health) carry a full body with an error status.
		if respBody != nil {
			json.Unmarshal(bodyBytes, respBody)
		}
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil || errResp.Message == "" {
			return &APIError{StatusCode: resp.StatusCode, Message: string(bodyBytes)}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Message}
	}

	if respBody != nil {
		if err := json.Unmarshal(bodyBytes, respBody); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// doRequest performs an HTTP request with optional authentication
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody interface{}, respBody interface{}, requireAuth bool) error {
	return c.doRequestWithQuery(ctx, method, path, nil, reqBody, respBody, requireAuth)
}

// IsAuthenticated returns whether the client has a valid token
func (c *Client) IsAuthenticated() bool {
	return c.token != ""
}

// GetToken returns the current authentication token
func (c *Client) GetToken() string {
	return c.token
}

// SetToken sets the authentication token (useful for testing or token reuse)
func (c *Client) SetToken(token string) {
	c.token = token
}
