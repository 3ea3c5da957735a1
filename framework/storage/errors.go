package storage

import (
	"golang.org/x/xerrors"
)

var (
	ErrProgressConflict = xerrors.New("storage: progress changed concurrently")
	ErrProgressRewind   = xerrors.New("storage: progress may not be empty once set")
)
