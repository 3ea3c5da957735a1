// Package projections holds the read models of the task board. Each
// projection is an event handling group, Register adds its handlers to
// the registry a processor dispatches from.
package projections

import (
	"github.com/gobuffalo/flect"

	"github.com/retro-framework/cqrskit/aggregates"
	"github.com/retro-framework/cqrskit/events"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/processor"
)

type Projection interface {
	Group() string
	Register(hs *processor.Handlers) error
}

// collectionName is how tasks are called wherever a store wants a
// plural name, "tasks".
var collectionName = flect.Pluralize(aggregates.TaskType)

// taskID returns the task a subject belongs to, or "" for subjects
// outside events.SubjectPrefix.
func taskID(subject string) string {
	segs := cqrs.SubjectSegments(subject)
	if len(segs) < 2 || "/"+segs[0] != events.SubjectPrefix {
		return ""
	}
	return segs[1]
}
