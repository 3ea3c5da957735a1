package cqrs

import "fmt"

// Precondition kinds understood by the bundled adapters. Adapters may
// support additional kinds, unknown kinds must be rejected rather than
// ignored.
const (
	PreconditionSubjectNew       = "isSubjectNew"
	PreconditionSubjectOnEventID = "isSubjectOnEventId"
	PreconditionSubjectExisting  = "isSubjectExisting"
)

// Precondition is a named check evaluated by the store atomically with a
// publish. If any precondition of a batch fails no event of the batch is
// written.
type Precondition struct {
	Kind    string `json:"type"`
	Subject string `json:"subject"`
	EventID string `json:"eventId,omitempty"`
}

func (p Precondition) String() string {
	if p.EventID != "" {
		return fmt.Sprintf("%s(%s, %s)", p.Kind, p.Subject, p.EventID)
	}
	return fmt.Sprintf("%s(%s)", p.Kind, p.Subject)
}

// IsSubjectNew requires that no event has ever been stored on subject.
func IsSubjectNew(subject string) Precondition {
	return Precondition{Kind: PreconditionSubjectNew, Subject: subject}
}

// IsSubjectOnEventID requires that the last event stored on subject is
// eventID, the classic optimistic concurrency check.
func IsSubjectOnEventID(subject, eventID string) Precondition {
	return Precondition{Kind: PreconditionSubjectOnEventID, Subject: subject, EventID: eventID}
}

// IsSubjectExisting requires at least one event stored on subject.
func IsSubjectExisting(subject string) Precondition {
	return Precondition{Kind: PreconditionSubjectExisting, Subject: subject}
}
