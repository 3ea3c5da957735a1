package commands

import (
	"context"

	"github.com/retro-framework/cqrskit/aggregates"
	"github.com/retro-framework/cqrskit/events"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/engine"
)

const StartTaskType = "StartTask"

type StartTask struct {
	ID string `json:"-"`
}

func (StartTask) CommandType() string { return StartTaskType }
func (c StartTask) Subject() string   { return events.Subject(c.ID) }

func startTaskHandler(clock cqrs.Clock) engine.CommandHandler {
	return engine.HandleWithInstance(StartTaskType, aggregates.TaskType,
		func(ctx context.Context, instance cqrs.Aggregate, cmd cqrs.Command, pub cqrs.Publisher) (interface{}, error) {
			c, err := asCommand[StartTask](cmd)
			if err != nil {
				return nil, err
			}
			task, ok := aggregates.AsTask(instance)
			if !ok {
				return nil, ErrNotATask
			}
			if task.Status != aggregates.StatusTodo {
				return nil, ErrAlreadyStarted
			}
			if err := pub.Publish(events.TaskStarted{ID: c.ID, StartedAt: clock.Now()}, unchanged(c.Subject(), pub)); err != nil {
				return nil, err
			}
			return pub.Instance(), nil
		},
		engine.Condition(cqrs.ConditionExists),
	)
}
