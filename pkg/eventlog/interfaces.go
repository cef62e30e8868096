package eventlog

import (
	"context"
	"io"

	"github.com/rmacdonaldsmith/rpcmesh/pkg/wamp"
)

// EventLog stores meta events per realm and topic.
type EventLog interface {
	io.Closer

	// AppendEvent stores an event and returns it with its assigned offset.
	AppendEvent(ctx context.Context, event *Event) (*Event, error)

	// ReadEvents returns up to maxCount events of a topic starting at startOffset.
	ReadEvents(ctx context.Context, realm string, topic wamp.URI, startOffset int64, maxCount int) ([]*Event, error)

	// GetTopicEndOffset returns the offset the next event of the topic will get.
	GetTopicEndOffset(ctx context.Context, realm string, topic wamp.URI) (int64, error)

	// ReplayEvents streams the retained events of a topic from startOffset.
	// Both channels are closed when replay ends.
	ReplayEvents(ctx context.Context, realm string, topic wamp.URI, startOffset int64) (<-chan *Event, <-chan error)

	// GetStatistics returns aggregate statistics.
	GetStatistics(ctx context.Context) (EventLogStatistics, error)
}

// EventLogStatistics provides aggregate statistics about the journal
type EventLogStatistics struct {
	TotalEvents int64            `json:"totalEvents"` // Events appended since start
	Retained    int64            `json:"retained"`    // Events still held
	Evicted     int64            `json:"evicted"`     // Events dropped by retention
	TopicCounts map[string]int64 `json:"topicCounts"` // Retained events per "realm/topic"
	TopicCount  int              `json:"topicCount"`
}
