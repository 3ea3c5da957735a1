// Package commands holds the task board commands and their handlers.
//
// Commands are plain values targeting the subject of one task, handlers
// are registered against the engine registry with Register and their
// wire representation with RegisterFactories.
package commands

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/xerrors"

	"github.com/retro-framework/cqrskit/events"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/engine"
	"github.com/retro-framework/cqrskit/framework/resolver"
)

var (
	ErrTitleRequired    = xerrors.New("task title must not be empty")
	ErrAssigneeRequired = xerrors.New("task assignee must not be empty")
	ErrAlreadyStarted   = xerrors.New("task has already been started")
	ErrNotStarted       = xerrors.New("task must be started before it can be completed")
	ErrNotATask         = xerrors.New("subject holds no task")
)

// MetadataUser is the command metadata key naming who sent it.
const MetadataUser = "user"

// Register adds the handlers of every task command to r. clock stamps
// the events they publish.
func Register(r *engine.Registry, clock cqrs.Clock) error {
	if clock == nil {
		clock = cqrs.SystemClock{}
	}
	return r.AddCommandHandlers(
		createTaskHandler(clock),
		assignTaskHandler(clock),
		renameTaskHandler(),
		startTaskHandler(clock),
		completeTaskHandler(clock),
		createAndRenameTaskHandler(clock),
	)
}

// RegisterFactories teaches r to build every task command from its
// name, the task subject and JSON arguments.
func RegisterFactories(r *resolver.Resolver) error {
	for name, build := range map[string]func(id string) cqrs.Command{
		CreateTaskType:          func(id string) cqrs.Command { return &CreateTask{ID: id} },
		AssignTaskType:          func(id string) cqrs.Command { return &AssignTask{ID: id} },
		RenameTaskType:          func(id string) cqrs.Command { return &RenameTask{ID: id} },
		StartTaskType:           func(id string) cqrs.Command { return &StartTask{ID: id} },
		CompleteTaskType:        func(id string) cqrs.Command { return &CompleteTask{ID: id} },
		CreateAndRenameTaskType: func(id string) cqrs.Command { return &CreateAndRenameTask{ID: id} },
	} {
		if err := r.Register(name, taskFactory(build)); err != nil {
			return err
		}
	}
	return nil
}

func taskFactory(build func(id string) cqrs.Command) resolver.Factory {
	decode := resolver.Decode(func(path string) cqrs.Command {
		return build(strings.TrimPrefix(path, events.SubjectPrefix+"/"))
	})
	return func(path string, args json.RawMessage) (cqrs.Command, error) {
		segs := cqrs.SubjectSegments(path)
		if len(segs) != 2 || "/"+segs[0] != events.SubjectPrefix {
			return nil, errors.Errorf("%q is not the subject of a task", path)
		}
		return decode(events.Subject(segs[1]), args)
	}
}

// fresh makes the store reject the batch if anything was stored on
// subject since the NEW check.
func fresh(subject string) cqrs.PublishOption {
	return cqrs.WithPreconditions(cqrs.IsSubjectNew(subject))
}

// unchanged makes the store reject the batch if subject moved past the
// event the instance was rebuilt from.
func unchanged(subject string, pub cqrs.Publisher) cqrs.PublishOption {
	return cqrs.WithPreconditions(cqrs.IsSubjectOnEventID(subject, pub.LastEventID()))
}

// asCommand unwraps the command values and the pointers resolver
// factories produce.
func asCommand[T cqrs.Command](cmd cqrs.Command) (T, error) {
	if c, ok := cmd.(T); ok {
		return c, nil
	}
	if c, ok := any(cmd).(*T); ok && c != nil {
		return *c, nil
	}
	var zero T
	return zero, errors.Errorf("commands: unexpected %T", cmd)
}
