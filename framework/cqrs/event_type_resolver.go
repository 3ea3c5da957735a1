package cqrs

// EventTypeResolver maps in-memory event shapes to the stable type
// strings stored on the wire and back. ForType returns a pointer to a new
// zero value suitable for decoding into.
type EventTypeResolver interface {
	EventType(Event) (string, error)
	ForType(string) (Event, error)
}
