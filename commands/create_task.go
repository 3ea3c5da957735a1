package commands

import (
	"context"
	"strings"

	"github.com/retro-framework/cqrskit/aggregates"
	"github.com/retro-framework/cqrskit/events"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/engine"
)

const CreateTaskType = "CreateTask"

// CreateTask opens a new task, the subject must not have any events yet.
type CreateTask struct {
	ID          string `json:"-"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (CreateTask) CommandType() string { return CreateTaskType }
func (c CreateTask) Subject() string   { return events.Subject(c.ID) }

func createTaskHandler(clock cqrs.Clock) engine.CommandHandler {
	return engine.HandleCommand(CreateTaskType,
		func(ctx context.Context, cmd cqrs.Command, pub cqrs.Publisher) (interface{}, error) {
			c, err := asCommand[CreateTask](cmd)
			if err != nil {
				return nil, err
			}
			title := strings.TrimSpace(c.Title)
			if title == "" {
				return nil, ErrTitleRequired
			}
			err = pub.Publish(events.TaskCreated{
				ID:          c.ID,
				Title:       title,
				Description: c.Description,
				CreatedAt:   clock.Now(),
			}, fresh(c.Subject()))
			if err != nil {
				return nil, err
			}
			return pub.Instance(), nil
		},
		engine.Condition(cqrs.ConditionNew),
		engine.Aggregate(aggregates.TaskType),
	)
}
