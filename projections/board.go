package projections

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/retro-framework/cqrskit/aggregates"
	"github.com/retro-framework/cqrskit/events"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/processor"
)

// Card is how a task shows up on the board.
type Card struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Status      aggregates.Status `json:"status"`
	Assignee    string            `json:"assignee,omitempty"`
	CompletedBy string            `json:"completedBy,omitempty"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	LastEventID string            `json:"lastEventId"`
}

// Board keeps every task in memory, grouped into one column per status.
// Applying the same event twice leaves it unchanged.
type Board struct {
	mu    sync.RWMutex
	cards map[string]Card
}

func NewBoard() *Board {
	return &Board{cards: map[string]Card{}}
}

func (b *Board) Group() string { return "board" }

func (b *Board) Register(hs *processor.Handlers) error {
	for evType, fn := range map[string]func(Card, cqrs.Event) Card{
		events.TaskCreatedType: func(c Card, ev cqrs.Event) Card {
			e := ev.(events.TaskCreated)
			c.Title, c.Status = e.Title, aggregates.StatusTodo
			return c
		},
		events.TaskAssignedType: func(c Card, ev cqrs.Event) Card {
			c.Assignee = ev.(events.TaskAssigned).Assignee
			return c
		},
		events.TaskRenamedType: func(c Card, ev cqrs.Event) Card {
			c.Title = ev.(events.TaskRenamed).Title
			return c
		},
		events.TaskStartedType: func(c Card, ev cqrs.Event) Card {
			c.Status = aggregates.StatusInProgress
			return c
		},
		events.TaskCompletedType: func(c Card, ev cqrs.Event) Card {
			c.Status, c.CompletedBy = aggregates.StatusDone, ev.(events.TaskCompleted).CompletedBy
			return c
		},
	} {
		if err := hs.OnWithRawEvent(b.Group(), evType, b.apply(fn),
			processor.Subjects(events.SubjectPrefix+"/*"),
			processor.Named("board/"+evType),
		); err != nil {
			return err
		}
	}
	return nil
}

func (b *Board) apply(fn func(Card, cqrs.Event) Card) processor.EventWithRawEventFunc {
	return func(_ context.Context, ev cqrs.Event, _ cqrs.Metadata, raw cqrs.RawEvent) error {
		id := taskID(raw.Subject)
		if id == "" {
			return nil
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		c := fn(b.cards[id], ev)
		c.ID, c.UpdatedAt, c.LastEventID = id, raw.Time, raw.ID
		b.cards[id] = c
		return nil
	}
}

func (b *Board) Card(id string) (Card, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.cards[id]
	return c, ok
}

// Column lists the cards with status s ordered by id.
func (b *Board) Column(s aggregates.Status) []Card {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := []Card{}
	for _, c := range b.cards {
		if c.Status == s {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Columns returns the whole board keyed by status.
func (b *Board) Columns() map[aggregates.Status][]Card {
	return map[aggregates.Status][]Card{
		aggregates.StatusTodo:       b.Column(aggregates.StatusTodo),
		aggregates.StatusInProgress: b.Column(aggregates.StatusInProgress),
		aggregates.StatusDone:       b.Column(aggregates.StatusDone),
	}
}
