package commands

import (
	"context"

	"github.com/retro-framework/cqrskit/aggregates"
	"github.com/retro-framework/cqrskit/events"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/engine"
)

const CompleteTaskType = "CompleteTask"

type CompleteTask struct {
	ID string `json:"-"`
}

func (CompleteTask) CommandType() string { return CompleteTaskType }
func (c CompleteTask) Subject() string   { return events.Subject(c.ID) }

// The user found in the command metadata is recorded as who completed
// the task.
func completeTaskHandler(clock cqrs.Clock) engine.CommandHandler {
	return engine.HandleWithInstanceAndMetadata(CompleteTaskType, aggregates.TaskType,
		func(ctx context.Context, instance cqrs.Aggregate, cmd cqrs.Command, md cqrs.Metadata, pub cqrs.Publisher) (interface{}, error) {
			c, err := asCommand[CompleteTask](cmd)
			if err != nil {
				return nil, err
			}
			task, ok := aggregates.AsTask(instance)
			if !ok {
				return nil, ErrNotATask
			}
			if task.Status != aggregates.StatusInProgress {
				return nil, ErrNotStarted
			}
			user, _ := md[MetadataUser].(string)
			if err := pub.Publish(events.TaskCompleted{ID: c.ID, CompletedBy: user, CompletedAt: clock.Now()}, unchanged(c.Subject(), pub)); err != nil {
				return nil, err
			}
			return pub.Instance(), nil
		},
		engine.Condition(cqrs.ConditionExists),
	)
}
