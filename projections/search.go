package projections

import (
	"context"
	"encoding/json"
	"time"

	"github.com/olivere/elastic"
	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/aggregates"
	"github.com/retro-framework/cqrskit/events"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/processor"
)

const searchMapping = `{
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0
	},
	"mappings": {
		"task": {
			"properties": {
				"id": { "type": "keyword" },
				"title": { "type": "text" },
				"description": { "type": "text" },
				"status": { "type": "keyword" },
				"assignee": { "type": "keyword" },
				"completedBy": { "type": "keyword" },
				"createdAt": { "type": "date" },
				"updatedAt": { "type": "date" }
			}
		}
	}
}`

// TaskDocument is what Search indexes per task.
type TaskDocument struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Status      aggregates.Status `json:"status"`
	Assignee    string            `json:"assignee,omitempty"`
	CompletedBy string            `json:"completedBy,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Search keeps an Elasticsearch index of tasks. A created task is
// indexed whole, every later event updates the fields it changes.
type Search struct {
	client  *elastic.Client
	index   string
	docType string
}

func NewSearch(c *elastic.Client) *Search {
	return &Search{client: c, index: collectionName, docType: aggregates.TaskType}
}

func (s *Search) Group() string { return "search" }

// EnsureIndex creates the index with its mapping unless it exists.
func (s *Search) EnsureIndex(ctx context.Context) error {
	exists, err := s.client.IndexExists(s.index).Do(ctx)
	if err != nil {
		return errors.Wrapf(err, "can't check for index %s", s.index)
	}
	if exists {
		return nil
	}
	created, err := s.client.CreateIndex(s.index).Body(searchMapping).Do(ctx)
	if err != nil {
		return errors.Wrapf(err, "can't create index %s", s.index)
	}
	if !created.Acknowledged {
		return errors.Errorf("creation of index %s was not acknowledged", s.index)
	}
	return nil
}

func (s *Search) Register(hs *processor.Handlers) error {
	for evType, fn := range map[string]processor.EventWithRawEventFunc{
		events.TaskCreatedType:   s.created,
		events.TaskAssignedType:  s.changed(func(ev cqrs.Event) map[string]interface{} { return map[string]interface{}{"assignee": ev.(events.TaskAssigned).Assignee} }),
		events.TaskRenamedType:   s.changed(func(ev cqrs.Event) map[string]interface{} { return map[string]interface{}{"title": ev.(events.TaskRenamed).Title} }),
		events.TaskStartedType:   s.changed(func(ev cqrs.Event) map[string]interface{} { return map[string]interface{}{"status": aggregates.StatusInProgress} }),
		events.TaskCompletedType: s.changed(func(ev cqrs.Event) map[string]interface{} {
			return map[string]interface{}{"status": aggregates.StatusDone, "completedBy": ev.(events.TaskCompleted).CompletedBy}
		}),
	} {
		if err := hs.OnWithRawEvent(s.Group(), evType, fn, processor.Named("search/"+evType)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Search) created(ctx context.Context, ev cqrs.Event, _ cqrs.Metadata, raw cqrs.RawEvent) error {
	e := ev.(events.TaskCreated)
	doc := TaskDocument{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Status:      aggregates.StatusTodo,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   raw.Time,
	}
	_, err := s.client.Index().
		Index(s.index).
		Type(s.docType).
		Id(e.ID).
		BodyJson(doc).
		Do(ctx)
	return errors.Wrapf(err, "can't index task %s", e.ID)
}

func (s *Search) changed(fields func(cqrs.Event) map[string]interface{}) processor.EventWithRawEventFunc {
	return func(ctx context.Context, ev cqrs.Event, _ cqrs.Metadata, raw cqrs.RawEvent) error {
		id := taskID(raw.Subject)
		if id == "" {
			return nil
		}
		doc := fields(ev)
		doc["updatedAt"] = raw.Time
		_, err := s.client.Update().
			Index(s.index).
			Type(s.docType).
			Id(id).
			Doc(doc).
			DocAsUpsert(true).
			RetryOnConflict(3).
			Do(ctx)
		return errors.Wrapf(err, "can't update task %s", id)
	}
}

// Find runs a full text query over titles and descriptions.
func (s *Search) Find(ctx context.Context, text string) ([]TaskDocument, error) {
	return s.search(ctx, elastic.NewMultiMatchQuery(text, "title", "description"))
}

// AssignedTo lists the tasks of assignee.
func (s *Search) AssignedTo(ctx context.Context, assignee string) ([]TaskDocument, error) {
	return s.search(ctx, elastic.NewTermQuery("assignee", assignee))
}

func (s *Search) search(ctx context.Context, q elastic.Query) ([]TaskDocument, error) {
	res, err := s.client.Search().
		Index(s.index).
		Query(q).
		From(0).Size(50).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "can't search index %s", s.index)
	}
	docs := []TaskDocument{}
	if res.Hits == nil {
		return docs, nil
	}
	for _, hit := range res.Hits.Hits {
		if hit.Source == nil {
			continue
		}
		var d TaskDocument
		if err := json.Unmarshal(*hit.Source, &d); err != nil {
			return nil, errors.Wrapf(err, "can't decode hit %s", hit.Id)
		}
		docs = append(docs, d)
	}
	return docs, nil
}
