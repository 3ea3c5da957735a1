package depot

import (
	"fmt"

	"golang.org/x/xerrors"

	"github.com/retro-framework/cqrskit/framework/cqrs"
)

var (
	ErrClosed    = xerrors.New("depot: closed")
	ErrInvalidID = xerrors.New("depot: invalid event id")
)

// PreconditionFailed is returned when a publish batch is rejected, it
// unwraps to cqrs.ErrPreconditionFailed.
type PreconditionFailed struct {
	Precondition cqrs.Precondition
	Reason       string
}

func (e *PreconditionFailed) Error() string {
	return fmt.Sprintf("depot: precondition %s failed: %s", e.Precondition, e.Reason)
}

func (e *PreconditionFailed) Unwrap() error { return cqrs.ErrPreconditionFailed }

type Error struct {
	Op  string
	Err error
}

func (e Error) Error() string {
	return fmt.Sprintf("depot: op: %q err: %q", e.Op, e.Err)
}

func (e Error) Unwrap() error { return e.Err }
