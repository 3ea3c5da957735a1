package projections

import (
	"context"
	"testing"
	"time"

	"github.com/retro-framework/cqrskit/events"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/depot"
	"github.com/retro-framework/cqrskit/framework/packing"
	"github.com/retro-framework/cqrskit/framework/processor"
	"github.com/retro-framework/cqrskit/framework/storage/memory"
	test "github.com/retro-framework/cqrskit/framework/test_helper"
)

var stamp = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type given struct {
	subject string
	ev      cqrs.Event
	md      cqrs.Metadata
}

func on(id string, ev cqrs.Event) given { return given{subject: events.Subject(id), ev: ev} }

type harness struct {
	t     *testing.T
	store *depot.Memory
	types *packing.EventManifest
	last  string
}

func newHarness(t *testing.T, history ...given) *harness {
	t.Helper()
	types := packing.NewEventManifest()
	test.H(t).IsNil(events.Register(types))
	h := &harness{
		t:     t,
		store: depot.NewMemory(cqrs.ClockFunc(func() time.Time { return stamp })),
		types: types,
	}
	h.publish(history...)
	return h
}

func (h *harness) publish(gs ...given) {
	h.t.Helper()
	packer := packing.NewJSONPacker()
	for _, g := range gs {
		typ, err := h.types.EventType(g.ev)
		test.H(h.t).IsNil(err)
		w, err := packer.Serialize(cqrs.Envelope{Payload: g.ev, Metadata: g.md})
		test.H(h.t).IsNil(err)
		stored, err := h.store.PublishEvents(context.Background(), []cqrs.EventToPublish{
			{Type: typ, Source: "test", Subject: g.subject, Data: w.Data, Metadata: w.Metadata},
		}, nil)
		test.H(h.t).IsNil(err)
		h.last = stored[0].ID
	}
}

// project runs a processor for p from the beginning of the store until
// it committed the last published event.
func (h *harness) project(p Projection) {
	h.t.Helper()
	hs := processor.NewHandlers()
	test.H(h.t).IsNil(p.Register(hs))
	tracker := memory.NewProgressTracker()
	proc := processor.New(h.store, tracker, h.types, packing.NewJSONPacker(), hs, processor.DefaultConfig(p.Group()),
		processor.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))

	done := make(chan error, 1)
	go func() { done <- proc.Start(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		cur, err := tracker.Current(context.Background(), p.Group(), 0)
		test.H(h.t).IsNil(err)
		if cur.LastEventID == h.last {
			break
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("%s never reached event %s, stuck at %q", p.Group(), h.last, cur.LastEventID)
		}
		time.Sleep(2 * time.Millisecond)
	}
	proc.Stop()
	test.H(h.t).IsNil(<-done)
}
