package cqrs

// Publisher is handed to command handlers. Published events are only
// buffered, the router persists them atomically once the handler
// returns without error.
//
// Every Publish immediately folds the event into the in-memory instance
// through the registered state rebuilding handlers, Instance returns the
// result. LastEventID is the replay position the instance was rebuilt
// to, useful for IsSubjectOnEventID preconditions.
type Publisher interface {
	Publish(ev Event, opts ...PublishOption) error
	Instance() Aggregate
	LastEventID() string
}

// PublishOptions collects the per event settings of a Publish call.
type PublishOptions struct {
	Metadata      Metadata
	Preconditions []Precondition
	Subject       string
}

// PublishOption configures a single Publish call.
type PublishOption func(*PublishOptions)

// WithMetadata attaches event level metadata, it wins over any metadata
// propagated from the command.
func WithMetadata(md Metadata) PublishOption {
	return func(o *PublishOptions) {
		o.Metadata = o.Metadata.Merge(md)
	}
}

// WithPreconditions attaches preconditions which the store evaluates
// with the whole batch.
func WithPreconditions(pcs ...Precondition) PublishOption {
	return func(o *PublishOptions) {
		o.Preconditions = append(o.Preconditions, pcs...)
	}
}

// ToSubject publishes the event on a different subject than the
// command's, typically a descendant.
func ToSubject(subject string) PublishOption {
	return func(o *PublishOptions) {
		o.Subject = subject
	}
}
