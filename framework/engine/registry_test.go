package engine

import (
	"context"
	"testing"

	"github.com/retro-framework/cqrskit/framework/cqrs"
	test "github.com/retro-framework/cqrskit/framework/test_helper"
)

func Test_Registry(t *testing.T) {
	t.Parallel()

	noop := func(ctx context.Context, inst cqrs.Aggregate, c cqrs.Command, pub cqrs.Publisher) (interface{}, error) {
		return nil, nil
	}

	t.Run("rejects a second handler for a command type", func(t *testing.T) {
		t.Parallel()

		// Arrange
		r := NewRegistry()
		test.H(t).IsNil(r.AddCommandHandlers(HandleWithInstance("Rename", "note", noop)))

		// Act
		err := r.AddCommandHandlers(HandleWithInstance("Rename", "other", noop))

		// Assert
		test.H(t).ErrIs(err, ErrDuplicateHandler)
		h, ok := r.CommandHandler("Rename")
		test.H(t).BoolEql(ok, true)
		test.H(t).StringEql(h.AggregateType, "note")
	})

	t.Run("sourced handlers need an aggregate type", func(t *testing.T) {
		t.Parallel()

		// Arrange
		r := NewRegistry()

		// Act
		err := r.AddCommandHandlers(HandleWithInstance("Rename", "", noop))

		// Assert
		test.H(t).ErrIs(err, ErrInvalidHandler)
	})

	t.Run("handlers need a function of their kind", func(t *testing.T) {
		t.Parallel()

		// Arrange
		r := NewRegistry()

		// Act
		err := r.AddCommandHandlers(HandleCommand("Create", nil))

		// Assert
		test.H(t).ErrIs(err, ErrInvalidHandler)
	})

	t.Run("options override the defaults of the kind", func(t *testing.T) {
		t.Parallel()

		// Act
		h := HandleWithInstance("Rename", "note", noop, Sourcing(cqrs.SourcingRecursive), Condition(cqrs.ConditionExists))

		// Assert
		test.H(t).InterfaceEql(h.Kind, KindWithInstance)
		test.H(t).InterfaceEql(h.Sourcing, cqrs.SourcingRecursive)
		test.H(t).InterfaceEql(h.Condition, cqrs.ConditionExists)
	})

	t.Run("lists command types sorted", func(t *testing.T) {
		t.Parallel()

		// Arrange
		r := NewRegistry()
		test.H(t).IsNil(r.AddCommandHandlers(
			HandleWithInstance("Rename", "note", noop),
			HandleWithInstance("Archive", "note", noop),
		))

		// Act
		got := r.CommandTypes()

		// Assert
		test.H(t).InterfaceEql(got, []string{"Archive", "Rename"})
	})

	t.Run("state rebuilders run in registration order", func(t *testing.T) {
		t.Parallel()

		// Arrange
		r := NewRegistry()
		test.H(t).IsNil(r.AddStateRebuilders(
			Rebuild("note", "note.created", func(inst cqrs.Aggregate, ev cqrs.Event) (cqrs.Aggregate, error) {
				return note{Title: ev.(noteCreated).Title}, nil
			}),
			RebuildWithMetadata("note", "note.created", func(inst cqrs.Aggregate, ev cqrs.Event, md cqrs.Metadata, raw cqrs.RawEvent) (cqrs.Aggregate, error) {
				n := inst.(note)
				user, _ := md.String("user")
				n.Title = n.Title + " by " + user + " on " + raw.Subject
				return n, nil
			}),
		))
		e := &Engine{registry: r}

		// Act
		got, err := e.apply("note", nil,
			cqrs.Envelope{Payload: noteCreated{Title: "hello"}, Metadata: cqrs.Metadata{"user": "alice"}},
			cqrs.RawEvent{Type: "note.created", Subject: "/note/n1"},
		)

		// Assert
		test.H(t).IsNil(err)
		test.H(t).InterfaceEql(got, note{Title: "hello by alice on /note/n1"})
	})
}

func Test_MetadataPropagation(t *testing.T) {
	t.Parallel()

	md := cqrs.Metadata{"user": "alice", "tenant": "acme"}

	test.H(t).InterfaceEql(PropagateAll.Apply(md), md)
	test.H(t).InterfaceEql(PropagateNone.Apply(md), cqrs.Metadata{})
	test.H(t).InterfaceEql(PropagateKeys("tenant", "missing").Apply(md), cqrs.Metadata{"tenant": "acme"})
	test.H(t).InterfaceEql(MetadataPropagation{}.Apply(nil), cqrs.Metadata{})
}
