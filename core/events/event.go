package events

// Event is a structured record of an exchange state change.
type Event interface {
	EventType() string
}

// Emitter fans events out to downstream consumers such as the RPC layer or an
// indexer.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event. Engines default to it so emission is
// always safe to call before an emitter is wired.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}
