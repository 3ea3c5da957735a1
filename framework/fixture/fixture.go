// Package fixture runs command scenarios against an in-memory event
// store: events given up front, one command sent, expectations about
// what was published and what the command returned.
//
//	fixture.New(t, types, packer, registry).
//		Given("/task/t1", events.TaskCreated{ID: "t1"}).
//		When(commands.StartTask{ID: "t1"}, nil).
//		ThenPublished(events.TaskStarted{ID: "t1"})
package fixture

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/depot"
	"github.com/retro-framework/cqrskit/framework/engine"
)

type Scenario struct {
	t          testing.TB
	store      *depot.Memory
	types      cqrs.EventTypeResolver
	marshaller cqrs.EventDataMarshaller
	engine     *engine.Engine

	sent   bool
	mark   int
	result interface{}
	err    error
}

func New(t testing.TB, types cqrs.EventTypeResolver, marshaller cqrs.EventDataMarshaller, registry *engine.Registry, opts ...engine.Option) *Scenario {
	t.Helper()
	store := depot.NewMemory(cqrs.SystemClock{})
	return &Scenario{
		t:          t,
		store:      store,
		types:      types,
		marshaller: marshaller,
		engine:     engine.New(store, types, marshaller, registry, opts...),
	}
}

// Store exposes the event store, e.g. for seeding raw legacy events.
func (s *Scenario) Store() *depot.Memory { return s.store }

// Given stores evs on subject as history.
func (s *Scenario) Given(subject string, evs ...cqrs.Event) *Scenario {
	s.t.Helper()
	return s.GivenWithMetadata(subject, nil, evs...)
}

func (s *Scenario) GivenWithMetadata(subject string, md cqrs.Metadata, evs ...cqrs.Event) *Scenario {
	s.t.Helper()
	batch := make([]cqrs.EventToPublish, 0, len(evs))
	for _, ev := range evs {
		typ, err := s.types.EventType(ev)
		if err != nil {
			s.t.Fatalf("given: %s", err)
		}
		w, err := s.marshaller.Serialize(cqrs.Envelope{Payload: ev, Metadata: md})
		if err != nil {
			s.t.Fatalf("given: %s", err)
		}
		batch = append(batch, cqrs.EventToPublish{Type: typ, Source: "fixture", Subject: subject, Data: w.Data, Metadata: w.Metadata})
	}
	if _, err := s.store.PublishEvents(context.Background(), batch, nil); err != nil {
		s.t.Fatalf("given: %s", err)
	}
	return s
}

// When sends cmd. Everything stored from here on counts as published by
// it.
func (s *Scenario) When(cmd cqrs.Command, md cqrs.Metadata) *Scenario {
	s.t.Helper()
	s.mark = s.store.Len()
	s.result, s.err = s.engine.Send(context.Background(), cmd, md)
	s.sent = true
	return s
}

func (s *Scenario) mustHaveSent() {
	s.t.Helper()
	if !s.sent {
		s.t.Fatalf("no command was sent, call When first")
	}
}

// Published returns the raw events stored by the command.
func (s *Scenario) Published() []cqrs.RawEvent {
	s.t.Helper()
	s.mustHaveSent()
	return s.store.All()[s.mark:]
}

// ThenPublished expects the command to succeed and to have published
// exactly want, compared by value after decoding.
func (s *Scenario) ThenPublished(want ...cqrs.Event) *Scenario {
	s.t.Helper()
	s.mustHaveSent()
	if s.err != nil {
		s.t.Fatalf("command failed: %s", s.err)
	}
	got := make([]cqrs.Event, 0, len(want))
	for _, raw := range s.Published() {
		shape, err := s.types.ForType(raw.Type)
		if err != nil {
			s.t.Fatalf("published %s: %s", raw.Type, err)
		}
		env, err := s.marshaller.Deserialize(cqrs.Wire{Data: raw.Data, Metadata: raw.Metadata}, shape)
		if err != nil {
			s.t.Fatalf("published %s: %s", raw.Type, err)
		}
		got = append(got, env.Payload)
	}
	if want == nil {
		want = []cqrs.Event{}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		s.t.Errorf("published events differ (-want +got)\n%s", diff)
	}
	return s
}

// ThenNothingPublished expects no events, whether the command failed or
// not.
func (s *Scenario) ThenNothingPublished() *Scenario {
	s.t.Helper()
	if n := len(s.Published()); n != 0 {
		s.t.Errorf("expected no events, %d were published", n)
	}
	return s
}

// ThenFails expects the command to fail with check returning true for
// the error. It also expects nothing to be published.
func (s *Scenario) ThenFails(check func(error) bool) *Scenario {
	s.t.Helper()
	s.mustHaveSent()
	if s.err == nil {
		s.t.Fatalf("expected the command to fail, it returned %v", s.result)
	}
	if !check(s.err) {
		s.t.Errorf("command failed with an unexpected error: %s", s.err)
	}
	return s.ThenNothingPublished()
}

// ThenResult expects the command to succeed with want as result.
func (s *Scenario) ThenResult(want interface{}, opts ...cmp.Option) *Scenario {
	s.t.Helper()
	s.mustHaveSent()
	if s.err != nil {
		s.t.Fatalf("command failed: %s", s.err)
	}
	if diff := cmp.Diff(want, s.result, opts...); diff != "" {
		s.t.Errorf("result differs (-want +got)\n%s", diff)
	}
	return s
}

// Err returns what the command failed with.
func (s *Scenario) Err() error { return s.err }
