package engine

import (
	"fmt"

	"golang.org/x/xerrors"

	"github.com/retro-framework/cqrskit/framework/cqrs"
)

var (
	ErrDuplicateHandler = xerrors.New("engine: command handler already registered")
	ErrInvalidHandler   = xerrors.New("engine: invalid handler definition")
)

type Error struct {
	Op  string
	Err error
	Msg string
}

func (e Error) Error() string {
	return fmt.Sprintf("engine: op: %q err: %q msg: %q", e.Op, e.Err, e.Msg)
}

func (e Error) Unwrap() error { return e.Err }

// NoHandlerError is returned by Send for commands nobody handles. The
// event store is not touched.
type NoHandlerError struct {
	CommandType string
}

func (e *NoHandlerError) Error() string {
	return fmt.Sprintf("engine: no handler registered for command %q", e.CommandType)
}

// SubjectConditionViolation is returned by Send when the subject doesn't
// meet the command's SubjectCondition. The handler was not invoked.
type SubjectConditionViolation struct {
	Subject     string
	Condition   cqrs.SubjectCondition
	LastEventID string
}

func (e *SubjectConditionViolation) Error() string {
	switch e.Condition {
	case cqrs.ConditionNew:
		return fmt.Sprintf("engine: subject %q must be new but is on event %s", e.Subject, e.LastEventID)
	case cqrs.ConditionExists:
		return fmt.Sprintf("engine: subject %q must exist but has no events", e.Subject)
	}
	return fmt.Sprintf("engine: subject %q violates condition %s", e.Subject, e.Condition)
}
