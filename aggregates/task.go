// Package aggregates holds the task aggregate and the state rebuilding
// handlers which fold task events into it. Tasks are values, every
// handler returns a new Task.
package aggregates

import (
	"time"

	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/events"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/engine"
)

// TaskType is the aggregate type tasks are rebuilt as.
const TaskType = "task"

type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Assignee    string    `json:"assignee,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AsTask converts what the engine hands to command handlers, a task
// that was never created is reported as not ok.
func AsTask(instance cqrs.Aggregate) (Task, bool) {
	t, ok := instance.(Task)
	return t, ok
}

// Register adds the task state rebuilding handlers to r.
func Register(r *engine.Registry) error {
	return r.AddStateRebuilders(
		engine.Rebuild(TaskType, events.TaskCreatedType, onCreated),
		engine.Rebuild(TaskType, events.TaskAssignedType, onAssigned),
		engine.Rebuild(TaskType, events.TaskRenamedType, onRenamed),
		engine.Rebuild(TaskType, events.TaskStartedType, onStarted),
		engine.Rebuild(TaskType, events.TaskCompletedType, onCompleted),
	)
}

func onCreated(_ cqrs.Aggregate, ev cqrs.Event) (cqrs.Aggregate, error) {
	e := ev.(events.TaskCreated)
	return Task{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Status:      StatusTodo,
		CreatedAt:   e.CreatedAt,
	}, nil
}

func onAssigned(instance cqrs.Aggregate, ev cqrs.Event) (cqrs.Aggregate, error) {
	t, err := existing(instance, ev)
	if err != nil {
		return instance, err
	}
	t.Assignee = ev.(events.TaskAssigned).Assignee
	return t, nil
}

func onRenamed(instance cqrs.Aggregate, ev cqrs.Event) (cqrs.Aggregate, error) {
	t, err := existing(instance, ev)
	if err != nil {
		return instance, err
	}
	t.Title = ev.(events.TaskRenamed).Title
	return t, nil
}

func onStarted(instance cqrs.Aggregate, ev cqrs.Event) (cqrs.Aggregate, error) {
	t, err := existing(instance, ev)
	if err != nil {
		return instance, err
	}
	t.Status = StatusInProgress
	return t, nil
}

func onCompleted(instance cqrs.Aggregate, ev cqrs.Event) (cqrs.Aggregate, error) {
	t, err := existing(instance, ev)
	if err != nil {
		return instance, err
	}
	t.Status = StatusDone
	return t, nil
}

func existing(instance cqrs.Aggregate, ev cqrs.Event) (Task, error) {
	t, ok := AsTask(instance)
	if !ok {
		return Task{}, errors.Errorf("aggregates: %T for a task that was never created", ev)
	}
	return t, nil
}
