package processor

import (
	"fmt"

	"golang.org/x/xerrors"
)

var (
	ErrNotIdle       = xerrors.New("processor: already started")
	ErrInvalidConfig = xerrors.New("processor: invalid config")
	ErrStreamEnded   = xerrors.New("processor: observation ended")
)

type Error struct {
	Op  string
	Err error
}

func (e Error) Error() string {
	return fmt.Sprintf("processor: op: %q err: %q", e.Op, e.Err)
}

func (e Error) Unwrap() error { return e.Err }

// permanent marks failures retrying can't fix.
type permanent struct {
	error
}

func (p permanent) Unwrap() error { return p.error }
