package aggregates

import (
	"testing"
	"time"

	"github.com/retro-framework/cqrskit/events"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/engine"
	test "github.com/retro-framework/cqrskit/framework/test_helper"
)

func fold(t *testing.T, evs ...cqrs.Event) (cqrs.Aggregate, error) {
	t.Helper()
	handlers := map[string]engine.RebuildFunc{
		events.TaskCreatedType:   onCreated,
		events.TaskAssignedType:  onAssigned,
		events.TaskRenamedType:   onRenamed,
		events.TaskStartedType:   onStarted,
		events.TaskCompletedType: onCompleted,
	}
	var (
		instance cqrs.Aggregate
		err      error
	)
	for _, ev := range evs {
		var typ string
		switch ev.(type) {
		case events.TaskCreated:
			typ = events.TaskCreatedType
		case events.TaskAssigned:
			typ = events.TaskAssignedType
		case events.TaskRenamed:
			typ = events.TaskRenamedType
		case events.TaskStarted:
			typ = events.TaskStartedType
		case events.TaskCompleted:
			typ = events.TaskCompletedType
		}
		if instance, err = handlers[typ](instance, ev); err != nil {
			return instance, err
		}
	}
	return instance, nil
}

func Test_Task_Rebuild(t *testing.T) {
	t.Parallel()

	var (
		created  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		assigned = time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	)

	t.Run("created then assigned", func(t *testing.T) {
		t.Parallel()

		// Act
		got, err := fold(t,
			events.TaskCreated{ID: "t1", Title: "Login", Description: "desc", CreatedAt: created},
			events.TaskAssigned{ID: "t1", Assignee: "Alice", AssignedAt: assigned},
		)

		// Assert
		test.H(t).IsNil(err)
		test.H(t).InterfaceEql(got, Task{ID: "t1", Title: "Login", Description: "desc", Status: StatusTodo, Assignee: "Alice", CreatedAt: created})
	})

	t.Run("through the whole lifecycle", func(t *testing.T) {
		t.Parallel()

		// Act
		got, err := fold(t,
			events.TaskCreated{ID: "t1", Title: "Login", CreatedAt: created},
			events.TaskRenamed{ID: "t1", Title: "Login page"},
			events.TaskStarted{ID: "t1"},
			events.TaskCompleted{ID: "t1"},
		)

		// Assert
		test.H(t).IsNil(err)
		task, ok := AsTask(got)
		test.H(t).BoolEql(ok, true)
		test.H(t).StringEql(task.Title, "Login page")
		test.H(t).InterfaceEql(task.Status, StatusDone)
	})

	t.Run("events before creation fail", func(t *testing.T) {
		t.Parallel()

		// Act
		_, err := fold(t, events.TaskStarted{ID: "t1"})

		// Assert
		test.H(t).NotNil(err)
	})

	t.Run("registers a handler per event type", func(t *testing.T) {
		t.Parallel()

		// Arrange
		r := engine.NewRegistry()

		// Act
		err := Register(r)

		// Assert
		test.H(t).IsNil(err)
		for _, typ := range events.Types() {
			test.H(t).IntEql(len(r.StateRebuilders(TaskType, typ)), 1)
		}
	})
}
