package cqrs

// Event may be any type which may carry any baggage it likes. It must
// serialize and deserialize cleanly through the configured
// EventDataMarshaller, in practice that means plain structs with JSON
// tags.
type Event interface{}
