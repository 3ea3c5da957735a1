package cqrs

import "encoding/json"

// Envelope is the in-memory side of a payload and its metadata.
type Envelope struct {
	Payload  Event
	Metadata Metadata
}

// Wire is the stored side of a payload and its metadata.
type Wire struct {
	Data     json.RawMessage
	Metadata Metadata
}

// EventDataMarshaller serializes envelopes for storage and decodes them
// again given a shape obtained from an EventTypeResolver.
type EventDataMarshaller interface {
	Serialize(Envelope) (Wire, error)
	Deserialize(w Wire, shape Event) (Envelope, error)
}
