package commands

import (
	"context"
	"strings"

	"github.com/retro-framework/cqrskit/aggregates"
	"github.com/retro-framework/cqrskit/events"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/engine"
)

const AssignTaskType = "AssignTask"

type AssignTask struct {
	ID       string `json:"-"`
	Assignee string `json:"assignee"`
}

func (AssignTask) CommandType() string { return AssignTaskType }
func (c AssignTask) Subject() string   { return events.Subject(c.ID) }

// Assigning a task to whoever already has it publishes nothing.
func assignTaskHandler(clock cqrs.Clock) engine.CommandHandler {
	return engine.HandleWithInstance(AssignTaskType, aggregates.TaskType,
		func(ctx context.Context, instance cqrs.Aggregate, cmd cqrs.Command, pub cqrs.Publisher) (interface{}, error) {
			c, err := asCommand[AssignTask](cmd)
			if err != nil {
				return nil, err
			}
			task, ok := aggregates.AsTask(instance)
			if !ok {
				return nil, ErrNotATask
			}
			assignee := strings.TrimSpace(c.Assignee)
			if assignee == "" {
				return nil, ErrAssigneeRequired
			}
			if task.Assignee == assignee {
				return task, nil
			}
			if err := pub.Publish(events.TaskAssigned{ID: c.ID, Assignee: assignee, AssignedAt: clock.Now()}, unchanged(c.Subject(), pub)); err != nil {
				return nil, err
			}
			return pub.Instance(), nil
		},
		engine.Condition(cqrs.ConditionExists),
	)
}
