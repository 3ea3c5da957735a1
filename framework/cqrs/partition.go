package cqrs

// PartitionKeyResolver maps a sequence id to a partition number. It must
// be a pure function of its input so that assignments are stable across
// restarts.
type PartitionKeyResolver interface {
	Resolve(sequenceID string) int
}

// EventSequenceResolver derives the sequence id used for partitioning.
//
// ResolveRaw works on the stored envelope alone, it returns false when
// the sequence id can only be derived from the decoded payload, in which
// case ResolveConverted decides.
type EventSequenceResolver interface {
	ResolveRaw(raw RawEvent) (string, bool)
	ResolveConverted(ev Event, md Metadata, raw RawEvent) string
}
