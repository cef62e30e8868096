package eventlog

import (
	"context"
	"errors"
	"sync"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/eventlog"
	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

var (
	// ErrNegativeOffset is returned when a negative offset is provided
	ErrNegativeOffset = errors.New("offset cannot be negative")
	// ErrNegativeMaxCount is returned when a negative max count is provided
	ErrNegativeMaxCount = errors.New("max count cannot be negative")
	// ErrNilEvent is returned when a nil event is provided
	ErrNilEvent = errors.New("event cannot be nil")
	// ErrClosed is returned by operations on a closed journal
	ErrClosed = errors.New("event log is closed")
)

// DefaultRetention is the number of events kept per topic when none is configured.
const DefaultRetention = 1000

type topicKey struct {
	realm string
	topic wamp.URI
}

func (k topicKey) String() string {
	return k.realm + "/" + string(k.topic)
}

// topicLog is the retained tail of one topic. events[0] has offset first.
type topicLog struct {
	events []*eventlog.Event
	next   int64
}

// InMemoryEventLog keeps the most recent events of every (realm, topic).
// It is safe for concurrent use.
type InMemoryEventLog struct {
	mu        sync.RWMutex
	topics    map[topicKey]*topicLog
	retention int
	appended  int64
	evicted   int64
	closed    bool
}

// NewInMemoryEventLog creates a journal holding up to retention events per topic.
// A retention of zero or less uses DefaultRetention.
func NewInMemoryEventLog(retention int) *InMemoryEventLog {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &InMemoryEventLog{
		topics:    make(map[topicKey]*topicLog),
		retention: retention,
	}
}

// AppendEvent stores an event and returns it with its assigned offset.
// The oldest event of the topic is evicted once retention is reached.
func (log *InMemoryEventLog) AppendEvent(ctx context.Context, event *eventlog.Event) (*eventlog.Event, error) {
	if event == nil {
		return nil, ErrNilEvent
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.mu.Lock()
	defer log.mu.Unlock()

	if log.closed {
		return nil, ErrClosed
	}

	key := topicKey{realm: event.Realm, topic: event.Topic}
	tl := log.topics[key]
	if tl == nil {
		tl = &topicLog{}
		log.topics[key] = tl
	}

	stored := event.Copy().WithOffset(tl.next)
	tl.next++
	tl.events = append(tl.events, stored)
	if over := len(tl.events) - log.retention; over > 0 {
		clear(tl.events[:over])
		tl.events = tl.events[over:]
		log.evicted += int64(over)
	}
	log.appended++

	return stored, nil
}

// ReadEvents returns up to maxCount retained events of a topic from startOffset.
// Offsets that have been evicted are skipped.
func (log *InMemoryEventLog) ReadEvents(ctx context.Context, realm string, topic wamp.URI, startOffset int64, maxCount int) ([]*eventlog.Event, error) {
	if startOffset < 0 {
		return nil, ErrNegativeOffset
	}
	if maxCount < 0 {
		return nil, ErrNegativeMaxCount
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.mu.RLock()
	defer log.mu.RUnlock()

	results := make([]*eventlog.Event, 0)
	if maxCount == 0 {
		return results, nil
	}
	tl := log.topics[topicKey{realm: realm, topic: topic}]
	if tl == nil {
		return results, nil
	}

	for _, ev := range tl.tail(startOffset) {
		results = append(results, ev)
		if len(results) >= maxCount {
			break
		}
	}
	return results, nil
}

func (tl *topicLog) tail(startOffset int64) []*eventlog.Event {
	if len(tl.events) == 0 {
		return nil
	}
	first := tl.events[0].Offset
	if startOffset <= first {
		return tl.events
	}
	idx := startOffset - first
	if idx >= int64(len(tl.events)) {
		return nil
	}
	return tl.events[idx:]
}

// GetTopicEndOffset returns the offset the next event of the topic will get.
func (log *InMemoryEventLog) GetTopicEndOffset(ctx context.Context, realm string, topic wamp.URI) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	log.mu.RLock()
	defer log.mu.RUnlock()

	if tl := log.topics[topicKey{realm: realm, topic: topic}]; tl != nil {
		return tl.next, nil
	}
	return 0, nil
}

// ReplayEvents streams the retained events of a topic from startOffset.
func (log *InMemoryEventLog) ReplayEvents(ctx context.Context, realm string, topic wamp.URI, startOffset int64) (<-chan *eventlog.Event, <-chan error) {
	eventChan := make(chan *eventlog.Event)
	errChan := make(chan error, 1)

	go func() {
		defer close(eventChan)
		defer close(errChan)

		if startOffset < 0 {
			errChan <- ErrNegativeOffset
			return
		}

		// Snapshot under the lock, deliver without it.
		log.mu.RLock()
		var snapshot []*eventlog.Event
		if tl := log.topics[topicKey{realm: realm, topic: topic}]; tl != nil {
			snapshot = append(snapshot, tl.tail(startOffset)...)
		}
		log.mu.RUnlock()

		for _, ev := range snapshot {
			select {
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			case eventChan <- ev:
			}
		}
	}()

	return eventChan, errChan
}

// GetStatistics returns aggregate statistics.
func (log *InMemoryEventLog) GetStatistics(ctx context.Context) (eventlog.EventLogStatistics, error) {
	if err := ctx.Err(); err != nil {
		return eventlog.EventLogStatistics{}, err
	}

	log.mu.RLock()
	defer log.mu.RUnlock()

	stats := eventlog.EventLogStatistics{
		TotalEvents: log.appended,
		Evicted:     log.evicted,
		TopicCounts: make(map[string]int64, len(log.topics)),
		TopicCount:  len(log.topics),
	}
	for key, tl := range log.topics {
		n := int64(len(tl.events))
		stats.TopicCounts[key.String()] = n
		stats.Retained += n
	}
	return stats, nil
}

// Close drops every retained event. It is idempotent.
func (log *InMemoryEventLog) Close() error {
	log.mu.Lock()
	defer log.mu.Unlock()

	if log.closed {
		return nil
	}
	log.topics = make(map[topicKey]*topicLog)
	log.closed = true
	return nil
}

var _ eventlog.EventLog = (*InMemoryEventLog)(nil)
