// Package events holds the events of the task board domain and the
// names they are stored under.
package events

import (
	"time"

	"github.com/retro-framework/cqrskit/framework/packing"
)

const (
	TaskCreatedType   = "task.created"
	TaskAssignedType  = "task.assigned"
	TaskRenamedType   = "task.renamed"
	TaskStartedType   = "task.started"
	TaskCompletedType = "task.completed"
)

// SubjectPrefix is the parent subject of every task.
const SubjectPrefix = "/task"

// Subject is where the events of task id are stored.
func Subject(id string) string {
	return SubjectPrefix + "/" + id
}

type TaskCreated struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type TaskAssigned struct {
	ID         string    `json:"id"`
	Assignee   string    `json:"assignee"`
	AssignedAt time.Time `json:"assignedAt"`
}

type TaskRenamed struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type TaskStarted struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
}

type TaskCompleted struct {
	ID          string    `json:"id"`
	CompletedBy string    `json:"completedBy,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// Register adds the task events to m.
func Register(m *packing.EventManifest) error {
	for name, prototype := range map[string]interface{}{
		TaskCreatedType:   TaskCreated{},
		TaskAssignedType:  TaskAssigned{},
		TaskRenamedType:   TaskRenamed{},
		TaskStartedType:   TaskStarted{},
		TaskCompletedType: TaskCompleted{},
	} {
		if err := m.RegisterAs(name, prototype); err != nil {
			return err
		}
	}
	return nil
}

// Types lists every current event type, e.g. for subscribing
// projections to all of them.
func Types() []string {
	return []string{TaskCreatedType, TaskAssignedType, TaskRenamedType, TaskStartedType, TaskCompletedType}
}
