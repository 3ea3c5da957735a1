package cqrs

import "context"

// Bound limits a stream by event id.
type Bound struct {
	ID        string
	Inclusive bool
}

// StreamOptions narrow what an EventStoreAdapter returns.
//
// LatestByEventType, when not empty, returns only the most recent event
// of that type per subject within scope. Recursive widens the scope from
// the exact subject to the subject and all of its descendants.
type StreamOptions struct {
	LowerBound        *Bound
	UpperBound        *Bound
	LatestByEventType string
	Recursive         bool
}

// After is a convenience for the common "resume after this id" case. An
// empty id yields options starting at the beginning of the stream.
func After(id string, recursive bool) StreamOptions {
	opts := StreamOptions{Recursive: recursive}
	if id != "" {
		opts.LowerBound = &Bound{ID: id}
	}
	return opts
}

// EventStoreAdapter is the storage facing side of the framework.
//
// StreamEvents and ObserveEvents return a pair of channels in the same
// way: events are delivered in store order on the first channel which is
// closed when the stream ends, then the error channel yields at most one
// error and is closed. StreamEvents is finite, ObserveEvents delivers
// history and then tails live events until ctx is done. Callers that
// stop reading early must cancel ctx so the producer can return.
//
// PublishEvents is all-or-nothing: the store assigns ids and times, and
// evaluates preconditions (the batch level ones and any carried by the
// events themselves) atomically with the append.
type EventStoreAdapter interface {
	StreamEvents(ctx context.Context, subject string, opts StreamOptions) (<-chan RawEvent, <-chan error)
	ObserveEvents(ctx context.Context, subject string, opts StreamOptions) (<-chan RawEvent, <-chan error)
	PublishEvents(ctx context.Context, evs []EventToPublish, preconditions []Precondition) ([]RawEvent, error)
}

// Pinger is implemented by adapters offering a health check.
type Pinger interface {
	Ping(ctx context.Context) error
}
