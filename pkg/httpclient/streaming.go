package httpclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/eventlog"
)

// StreamClient follows a meta event topic over Server-Sent Events
type StreamClient struct {
	client *Client
	events chan *eventlog.Event
	errors chan error
	done   chan struct{}
	cancel context.CancelFunc

	// next is the offset to resume from after a reconnect, or -1 for the live end
	next int64
}

// StreamConfig configures the streaming client
type StreamConfig struct {
	// Realm and Topic select the journal to follow
	Realm string
	Topic string

	// Offset to start from; negative starts at the current end
	Offset int64

	// BufferSize for the event channel
	BufferSize int

	// ReconnectDelay for automatic reconnection
	ReconnectDelay time.Duration

	// MaxReconnectAttempts (0 = infinite)
	MaxReconnectAttempts int
}

// SetDefaults sets reasonable default values for StreamConfig
func (sc *StreamConfig) SetDefaults() {
	if sc.BufferSize == 0 {
		sc.BufferSize = 100
	}
	if sc.ReconnectDelay == 0 {
		sc.ReconnectDelay = 2 * time.Second
	}
}

// StreamMetaEvents opens an SSE stream of journaled meta events (admin only).
// After a reconnect the stream resumes after the last delivered offset.
func (c *Client) StreamMetaEvents(ctx context.Context, config StreamConfig) (*StreamClient, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}
	if config.Realm == "" || config.Topic == "" {
		return nil, fmt.Errorf("realm and topic are required")
	}

	config.SetDefaults()

	streamCtx, cancel := context.WithCancel(ctx)
	streamClient := &StreamClient{
		client: c,
		events: make(chan *eventlog.Event, config.BufferSize),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
		cancel: cancel,
		next:   config.Offset,
	}

	go streamClient.startStreaming(streamCtx, config)

	return streamClient, nil
}

// Events returns the channel for receiving events
func (sc *StreamClient) Events() <-chan *eventlog.Event {
	return sc.events
}

// Errors returns the channel for receiving errors
func (sc *StreamClient) Errors() <-chan error {
	return sc.errors
}

// Done returns a channel that's closed when streaming ends
func (sc *StreamClient) Done() <-chan struct{} {
	return sc.done
}

// Close stops the streaming client and waits for it to finish
func (sc *StreamClient) Close() error {
	sc.cancel()
	<-sc.done
	return nil
}

// startStreaming handles the SSE streaming loop with reconnection
func (sc *StreamClient) startStreaming(ctx context.Context, config StreamConfig) {
	defer close(sc.done)
	defer close(sc.events)
	defer close(sc.errors)

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := sc.connectAndStream(ctx, config); err != nil && ctx.Err() == nil {
			sc.report(fmt.Errorf("streaming error: %w", err))
		}

		if config.MaxReconnectAttempts > 0 && attempts >= config.MaxReconnectAttempts {
			sc.report(fmt.Errorf("max reconnect attempts (%d) exceeded", config.MaxReconnectAttempts))
			return
		}
		attempts++

		select {
		case <-time.After(config.ReconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (sc *StreamClient) report(err error) {
	select {
	case sc.errors <- err:
	default:
	}
}

// connectAndStream establishes SSE connection and processes events
func (sc *StreamClient) connectAndStream(ctx context.Context, config StreamConfig) error {
	path := fmt.Sprintf("/api/v1/admin/realms/%s/events/stream", url.PathEscape(config.Realm))
	values := url.Values{}
	values.Set("topic", config.Topic)
	if sc.next >= 0 {
		values.Set("offset", strconv.FormatInt(sc.next, 10))
	}
	streamURL := sc.client.baseURL.ResolveReference(&url.URL{Path: path, RawQuery: values.Encode()})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create streaming request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Authorization", "Bearer "+sc.client.token)

	resp, err := sc.client.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
	}

	return sc.processSSEStream(ctx, resp.Body)
}

// processSSEStream reads and parses Server-Sent Events
func (sc *StreamClient) processSSEStream(ctx context.Context, reader io.Reader) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			// id:, comments and blank separators
			continue
		}

		var event eventlog.Event
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			sc.report(fmt.Errorf("failed to parse event: %w", err))
			continue
		}

		select {
		case sc.events <- &event:
			sc.next = event.Offset + 1
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}
