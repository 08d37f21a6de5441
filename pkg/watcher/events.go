package watcher

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventStatsUpdated      EventType = "stats_updated"
	EventStatsFailed       EventType = "stats_failed"
	EventPositionUpdated   EventType = "position_updated"
	EventConnectionChanged EventType = "connection_changed"
	EventOperation         EventType = "operation"
	EventLog               EventType = "log"
	EventPairingURI        EventType = "pairing_uri"
)

// Event represents a session event.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// Publisher accepts events for fan-out.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) { f(e) }
