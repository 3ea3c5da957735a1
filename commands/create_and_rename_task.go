package commands

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/aggregates"
	"github.com/retro-framework/cqrskit/events"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/engine"
)

const CreateAndRenameTaskType = "CreateAndRenameTask"

// CreateAndRenameTask creates a task under a draft title and renames it
// right away, both events are stored together.
type CreateAndRenameTask struct {
	ID         string `json:"-"`
	DraftTitle string `json:"draftTitle"`
	Title      string `json:"title"`
}

func (CreateAndRenameTask) CommandType() string { return CreateAndRenameTaskType }
func (c CreateAndRenameTask) Subject() string   { return events.Subject(c.ID) }

func createAndRenameTaskHandler(clock cqrs.Clock) engine.CommandHandler {
	return engine.HandleCommand(CreateAndRenameTaskType,
		func(ctx context.Context, cmd cqrs.Command, pub cqrs.Publisher) (interface{}, error) {
			c, err := asCommand[CreateAndRenameTask](cmd)
			if err != nil {
				return nil, err
			}
			draft, title := strings.TrimSpace(c.DraftTitle), strings.TrimSpace(c.Title)
			if draft == "" || title == "" {
				return nil, ErrTitleRequired
			}
			if err := pub.Publish(events.TaskCreated{ID: c.ID, Title: draft, CreatedAt: clock.Now()}, fresh(c.Subject())); err != nil {
				return nil, err
			}
			task, ok := aggregates.AsTask(pub.Instance())
			if !ok || task.Title != draft {
				return nil, errors.Errorf("commands: created task %s was not replayed", c.ID)
			}
			if err := pub.Publish(events.TaskRenamed{ID: c.ID, Title: title}); err != nil {
				return nil, err
			}
			return pub.Instance(), nil
		},
		engine.Condition(cqrs.ConditionNew),
		engine.Aggregate(aggregates.TaskType),
	)
}
