package cqrs

import "context"

// Progress is the bookmark of the last event an event handling group
// partition has finished with. The zero value means "from the beginning".
type Progress struct {
	LastEventID string `json:"lastEventId,omitempty"`
}

// AtStart reports whether nothing has been processed yet.
func (p Progress) AtStart() bool { return p.LastEventID == "" }

// ProgressTracker persists Progress per (group, partition).
//
// Proceed calls next with the current progress and durably stores the
// result before returning. Implementations must make the read and the
// write one atomic step.
type ProgressTracker interface {
	Current(ctx context.Context, group string, partition int) (Progress, error)
	Proceed(ctx context.Context, group string, partition int, next func(Progress) (Progress, error)) error
}
