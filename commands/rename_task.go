package commands

import (
	"context"
	"strings"

	"github.com/retro-framework/cqrskit/aggregates"
	"github.com/retro-framework/cqrskit/events"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/engine"
)

const RenameTaskType = "RenameTask"

type RenameTask struct {
	ID    string `json:"-"`
	Title string `json:"title"`
}

func (RenameTask) CommandType() string { return RenameTaskType }
func (c RenameTask) Subject() string   { return events.Subject(c.ID) }

func renameTaskHandler() engine.CommandHandler {
	return engine.HandleWithInstance(RenameTaskType, aggregates.TaskType,
		func(ctx context.Context, instance cqrs.Aggregate, cmd cqrs.Command, pub cqrs.Publisher) (interface{}, error) {
			c, err := asCommand[RenameTask](cmd)
			if err != nil {
				return nil, err
			}
			task, ok := aggregates.AsTask(instance)
			if !ok {
				return nil, ErrNotATask
			}
			title := strings.TrimSpace(c.Title)
			if title == "" {
				return nil, ErrTitleRequired
			}
			if title == task.Title {
				return task, nil
			}
			err = pub.Publish(events.TaskRenamed{ID: c.ID, Title: title}, unchanged(c.Subject(), pub))
			if err != nil {
				return nil, err
			}
			return pub.Instance(), nil
		},
		engine.Condition(cqrs.ConditionExists),
	)
}
