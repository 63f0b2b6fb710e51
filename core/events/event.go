package events

// Event is the structured record of a state change, carried as an append-only
// log entry with string attributes for downstream consumers.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Payload is implemented by typed event constructors.
type Payload interface {
	EventType() string
	Event() *Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Payload)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default for engines whose caller does not wire an emitter.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Payload) {}
