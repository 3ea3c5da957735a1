package packing

import "golang.org/x/xerrors"

var (
	ErrAlreadyRegistered = xerrors.New("packing: event type already registered")
	ErrUnregisteredShape = xerrors.New("packing: event shape not registered")
)
