package cqrs

import "fmt"

// SubjectCondition is checked by the command router after rebuilding and
// before invoking a command handler.
type SubjectCondition int

const (
	ConditionNone SubjectCondition = iota
	// ConditionNew requires that the subject has no events yet.
	ConditionNew
	// ConditionExists requires at least one prior event.
	ConditionExists
)

func (c SubjectCondition) String() string {
	switch c {
	case ConditionNone:
		return "NONE"
	case ConditionNew:
		return "NEW"
	case ConditionExists:
		return "EXISTS"
	}
	return fmt.Sprintf("SubjectCondition(%d)", int(c))
}

// Satisfied reports whether a subject whose replay position is
// lastEventID meets the condition. An empty lastEventID means nothing
// was found.
func (c SubjectCondition) Satisfied(lastEventID string) bool {
	switch c {
	case ConditionNew:
		return lastEventID == ""
	case ConditionExists:
		return lastEventID != ""
	}
	return true
}

// UnmarshalText accepts the names returned by String.
func (c *SubjectCondition) UnmarshalText(b []byte) error {
	switch string(b) {
	case "NONE", "none", "":
		*c = ConditionNone
	case "NEW", "new":
		*c = ConditionNew
	case "EXISTS", "exists":
		*c = ConditionExists
	default:
		return fmt.Errorf("cqrs: unknown subject condition %q", string(b))
	}
	return nil
}
