package cqrs

import "golang.org/x/xerrors"

var (
	// ErrUnknownEventType is returned (possibly wrapped) by an
	// EventTypeResolver asked about a type it has no registration for.
	ErrUnknownEventType = xerrors.New("cqrs: unknown event type")

	// ErrMalformedEvent is returned (possibly wrapped) by an
	// EventDataMarshaller which can't decode a payload into the shape
	// registered for its type.
	ErrMalformedEvent = xerrors.New("cqrs: malformed event")

	// ErrPreconditionFailed is returned (possibly wrapped) by adapters
	// rejecting a publish batch.
	ErrPreconditionFailed = xerrors.New("cqrs: precondition failed")

	// ErrUnsupportedPrecondition is returned by adapters which don't
	// know how to evaluate a precondition kind.
	ErrUnsupportedPrecondition = xerrors.New("cqrs: unsupported precondition")
)
