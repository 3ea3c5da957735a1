package cqrs

import "fmt"

// SourcingMode controls which events a command handler's state is
// rebuilt from before it is invoked.
type SourcingMode int

const (
	// SourcingNone skips rebuilding, the handler receives no instance.
	SourcingNone SourcingMode = iota
	// SourcingLocal replays the events stored on the exact subject.
	SourcingLocal
	// SourcingRecursive replays the subject and all of its descendants
	// as one stream, in store order.
	SourcingRecursive
)

func (m SourcingMode) String() string {
	switch m {
	case SourcingNone:
		return "NONE"
	case SourcingLocal:
		return "LOCAL"
	case SourcingRecursive:
		return "RECURSIVE"
	}
	return fmt.Sprintf("SourcingMode(%d)", int(m))
}

// UnmarshalText accepts the names returned by String.
func (m *SourcingMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "NONE", "none", "":
		*m = SourcingNone
	case "LOCAL", "local":
		*m = SourcingLocal
	case "RECURSIVE", "recursive":
		*m = SourcingRecursive
	default:
		return fmt.Errorf("cqrs: unknown sourcing mode %q", string(b))
	}
	return nil
}
