package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/framework"
	"github.com/retro-framework/cqrskit/framework/cache"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/ctxkey"
	"github.com/retro-framework/cqrskit/framework/depot"
	"github.com/retro-framework/cqrskit/framework/packing"
	test "github.com/retro-framework/cqrskit/framework/test_helper"
	"github.com/retro-framework/cqrskit/framework/upcast"
)

type noteCreated struct {
	Title string `json:"title"`
}

type noteRenamed struct {
	Title string `json:"title"`
}

type commentAdded struct {
	Text string `json:"text"`
}

type note struct {
	Title    string
	Renames  int
	Comments int
}

type cmd struct {
	typ, subject, title string
}

func (c cmd) CommandType() string { return c.typ }
func (c cmd) Subject() string     { return c.subject }

// countingAdapter counts streams opened and events read from them.
type countingAdapter struct {
	cqrs.EventStoreAdapter
	streams  int32
	streamed int32
}

func (c *countingAdapter) StreamEvents(ctx context.Context, subject string, opts cqrs.StreamOptions) (<-chan cqrs.RawEvent, <-chan error) {
	atomic.AddInt32(&c.streams, 1)
	in, errs := c.EventStoreAdapter.StreamEvents(ctx, subject, opts)
	out := make(chan cqrs.RawEvent)
	go func() {
		defer close(out)
		for ev := range in {
			atomic.AddInt32(&c.streamed, 1)
			out <- ev
		}
	}()
	return out, errs
}

func (c *countingAdapter) Ping(ctx context.Context) error {
	if p, ok := c.EventStoreAdapter.(cqrs.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

type recordingLogger struct {
	framework.Noop
	mu       sync.Mutex
	warnings []string
}

func (l *recordingLogger) Warnf(pattern string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, fmt.Sprintf(pattern, args...))
}

var errRejected = errors.New("rejected by business rule")

type fixture struct {
	t     *testing.T
	mem   *depot.Memory
	store *countingAdapter
	types *packing.EventManifest
	reg   *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	var (
		mem   = depot.NewMemory(cqrs.SystemClock{})
		types = packing.NewEventManifest()
		reg   = NewRegistry()
	)
	types.MustRegisterAs("note.created", noteCreated{})
	types.MustRegisterAs("note.renamed", noteRenamed{})
	types.MustRegisterAs("comment.added", commentAdded{})

	err := reg.AddStateRebuilders(
		Rebuild("note", "note.created", func(_ cqrs.Aggregate, ev cqrs.Event) (cqrs.Aggregate, error) {
			return note{Title: ev.(noteCreated).Title}, nil
		}),
		Rebuild("note", "note.renamed", func(inst cqrs.Aggregate, ev cqrs.Event) (cqrs.Aggregate, error) {
			n, _ := inst.(note)
			n.Title = ev.(noteRenamed).Title
			n.Renames++
			return n, nil
		}),
		Rebuild("note", "comment.added", func(inst cqrs.Aggregate, ev cqrs.Event) (cqrs.Aggregate, error) {
			n, _ := inst.(note)
			n.Comments++
			return n, nil
		}),
	)
	test.H(t).IsNil(err)

	inspect := func(ctx context.Context, inst cqrs.Aggregate, c cqrs.Command, pub cqrs.Publisher) (interface{}, error) {
		return inst, nil
	}
	err = reg.AddCommandHandlers(
		HandleCommand("CreateNote", func(ctx context.Context, c cqrs.Command, pub cqrs.Publisher) (interface{}, error) {
			return nil, pub.Publish(noteCreated{Title: c.(cmd).title})
		}, Condition(cqrs.ConditionNew), Aggregate("note")),
		HandleWithInstance("RenameNote", "note", func(ctx context.Context, inst cqrs.Aggregate, c cqrs.Command, pub cqrs.Publisher) (interface{}, error) {
			return nil, pub.Publish(noteRenamed{Title: c.(cmd).title}, cqrs.WithMetadata(cqrs.Metadata{"reason": "typo"}))
		}, Condition(cqrs.ConditionExists)),
		HandleWithInstance("Inspect", "note", inspect),
		HandleWithInstance("InspectTree", "note", inspect, Sourcing(cqrs.SourcingRecursive)),
		HandleCommand("CreateAndRename", func(ctx context.Context, c cqrs.Command, pub cqrs.Publisher) (interface{}, error) {
			if err := pub.Publish(noteCreated{Title: "draft"}); err != nil {
				return nil, err
			}
			first := pub.Instance()
			if err := pub.Publish(noteRenamed{Title: c.(cmd).title}); err != nil {
				return nil, err
			}
			return []cqrs.Aggregate{first, pub.Instance()}, nil
		}, Condition(cqrs.ConditionNew), Aggregate("note")),
		HandleWithInstance("Reject", "note", func(ctx context.Context, inst cqrs.Aggregate, c cqrs.Command, pub cqrs.Publisher) (interface{}, error) {
			_ = pub.Publish(noteRenamed{Title: "never"})
			return nil, errRejected
		}),
		HandleWithInstance("Sloppy", "note", func(ctx context.Context, inst cqrs.Aggregate, c cqrs.Command, pub cqrs.Publisher) (interface{}, error) {
			_ = pub.Publish(struct{ Unregistered bool }{true})
			_ = pub.Publish(noteRenamed{Title: "after"})
			return "ok", nil
		}),
		HandleWithInstanceAndMetadata("GuardedRename", "note", func(ctx context.Context, inst cqrs.Aggregate, c cqrs.Command, md cqrs.Metadata, pub cqrs.Publisher) (interface{}, error) {
			if md["interfere"] == true {
				_, err := mem.PublishEvents(ctx, []cqrs.EventToPublish{{Type: "note.renamed", Subject: c.Subject(), Data: json.RawMessage(`{"title":"sneaky"}`)}}, nil)
				if err != nil {
					return nil, err
				}
			}
			return nil, pub.Publish(
				noteRenamed{Title: c.(cmd).title},
				cqrs.WithPreconditions(cqrs.IsSubjectOnEventID(c.Subject(), pub.LastEventID())),
			)
		}),
	)
	test.H(t).IsNil(err)

	return &fixture{t: t, mem: mem, store: &countingAdapter{EventStoreAdapter: mem}, types: types, reg: reg}
}

func (f *fixture) engine(opts ...Option) *Engine {
	return New(f.store, f.types, packing.NewJSONPacker(), f.reg, opts...)
}

func (f *fixture) seed(typ, subject, data string) {
	f.t.Helper()
	_, err := f.mem.PublishEvents(context.Background(), []cqrs.EventToPublish{
		{Type: typ, Source: "seed", Subject: subject, Data: json.RawMessage(data)},
	}, nil)
	test.H(f.t).IsNil(err)
}

func Test_Engine_Send(t *testing.T) {
	t.Parallel()

	var ctx = context.Background()

	t.Run("unknown commands fail without touching the store", func(t *testing.T) {
		t.Parallel()

		// Arrange
		f := newFixture(t)
		e := f.engine()

		// Act
		_, err := e.Send(ctx, cmd{typ: "Nope", subject: "/note/n1"}, nil)

		// Assert
		var nhe *NoHandlerError
		test.H(t).BoolEql(errors.As(err, &nhe), true)
		test.H(t).StringEql(nhe.CommandType, "Nope")
		test.H(t).IntEql(int(atomic.LoadInt32(&f.store.streams)), 0)
		test.H(t).IntEql(f.mem.Len(), 0)
	})

	t.Run("NEW subjects are created once", func(t *testing.T) {
		t.Parallel()

		// Arrange
		f := newFixture(t)
		e := f.engine()

		// Act
		_, err1 := e.Send(ctx, cmd{typ: "CreateNote", subject: "/note/n1", title: "first"}, nil)
		_, err2 := e.Send(ctx, cmd{typ: "CreateNote", subject: "/note/n1", title: "again"}, nil)

		// Assert
		test.H(t).IsNil(err1)
		var scv *SubjectConditionViolation
		test.H(t).BoolEql(errors.As(err2, &scv), true)
		test.H(t).InterfaceEql(scv.Condition, cqrs.ConditionNew)
		test.H(t).StringEql(scv.LastEventID, "1")
		test.H(t).IntEql(f.mem.Len(), 1)
	})

	t.Run("EXISTS subjects must have events", func(t *testing.T) {
		t.Parallel()

		// Arrange
		f := newFixture(t)
		e := f.engine()

		// Act
		_, err := e.Send(ctx, cmd{typ: "RenameNote", subject: "/note/n1", title: "x"}, nil)

		// Assert
		var scv *SubjectConditionViolation
		test.H(t).BoolEql(errors.As(err, &scv), true)
		test.H(t).InterfaceEql(scv.Condition, cqrs.ConditionExists)
		test.H(t).IntEql(f.mem.Len(), 0)
	})

	t.Run("commands see the state rebuilt from earlier events", func(t *testing.T) {
		t.Parallel()

		// Arrange
		f := newFixture(t)
		e := f.engine()
		_, err := e.Send(ctx, cmd{typ: "CreateNote", subject: "/note/n1", title: "first"}, nil)
		test.H(t).IsNil(err)
		_, err = e.Send(ctx, cmd{typ: "RenameNote", subject: "/note/n1", title: "second"}, nil)
		test.H(t).IsNil(err)

		// Act
		res, err := e.Send(ctx, cmd{typ: "Inspect", subject: "/note/n1"}, nil)

		// Assert
		test.H(t).IsNil(err)
		test.H(t).InterfaceEql(res, note{Title: "second", Renames: 1})
	})

	t.Run("handler errors are returned verbatim and nothing is stored", func(t *testing.T) {
		t.Parallel()

		// Arrange
		f := newFixture(t)
		f.seed("note.created", "/note/n1", `{"title":"first"}`)
		e := f.engine()

		// Act
		_, err := e.Send(ctx, cmd{typ: "Reject", subject: "/note/n1"}, nil)

		// Assert
		test.H(t).BoolEql(err == errRejected, true)
		test.H(t).IntEql(f.mem.Len(), 1)
	})

	t.Run("ignored publish errors still fail the command", func(t *testing.T) {
		t.Parallel()

		// Arrange
		f := newFixture(t)
		f.seed("note.created", "/note/n1", `{"title":"first"}`)
		e := f.engine()

		// Act
		res, err := e.Send(ctx, cmd{typ: "Sloppy", subject: "/note/n1"}, nil)

		// Assert
		test.H(t).IsNil(res)
		test.H(t).ErrIs(err, packing.ErrUnregisteredShape)
		test.H(t).IntEql(f.mem.Len(), 1)
	})

	t.Run("the publisher instance follows every publish", func(t *testing.T) {
		t.Parallel()

		// Arrange
		f := newFixture(t)
		e := f.engine()

		// Act
		res, err := e.Send(ctx, cmd{typ: "CreateAndRename", subject: "/note/n1", title: "final"}, nil)

		// Assert
		test.H(t).IsNil(err)
		test.H(t).InterfaceEql(res, []cqrs.Aggregate{
			note{Title: "draft"},
			note{Title: "final", Renames: 1},
		})
		stored := f.mem.All()
		test.H(t).IntEql(len(stored), 2)
		test.H(t).StringEql(stored[0].Type, "note.created")
		test.H(t).StringEql(stored[1].Type, "note.renamed")
	})

	t.Run("recursive sourcing includes descendants", func(t *testing.T) {
		t.Parallel()

		// Arrange
		f := newFixture(t)
		f.seed("note.created", "/note/n1", `{"title":"first"}`)
		f.seed("comment.added", "/note/n1/comments/c1", `{"text":"hi"}`)
		f.seed("comment.added", "/note/n10/comments/c1", `{"text":"elsewhere"}`)
		e := f.engine()

		// Act
		local, err1 := e.Send(ctx, cmd{typ: "Inspect", subject: "/note/n1"}, nil)
		tree, err2 := e.Send(ctx, cmd{typ: "InspectTree", subject: "/note/n1"}, nil)

		// Assert
		test.H(t).IsNil(err1)
		test.H(t).IsNil(err2)
		test.H(t).InterfaceEql(local, note{Title: "first"})
		test.H(t).InterfaceEql(tree, note{Title: "first", Comments: 1})
	})

	t.Run("stale event ids fail the whole batch", func(t *testing.T) {
		t.Parallel()

		// Arrange
		f := newFixture(t)
		f.seed("note.created", "/note/n1", `{"title":"first"}`)
		e := f.engine()

		// Act
		_, err := e.Send(ctx, cmd{typ: "GuardedRename", subject: "/note/n1", title: "mine"}, cqrs.Metadata{"interfere": true})

		// Assert
		test.H(t).ErrIs(err, cqrs.ErrPreconditionFailed)
		test.H(t).IntEql(f.mem.Len(), 2)
	})

	t.Run("upcasters run before state rebuilding", func(t *testing.T) {
		t.Parallel()

		// Arrange
		f := newFixture(t)
		f.seed("note.created.v0", "/note/n1", `{"name":"legacy"}`)
		e := f.engine(WithUpcasters(upcast.NewChain(
			upcast.TransformJSON("note.created.v0", "note.created", func(m map[string]interface{}) error {
				m["title"] = m["name"]
				delete(m, "name")
				return nil
			}),
		)))

		// Act
		res, err := e.Send(ctx, cmd{typ: "Inspect", subject: "/note/n1"}, nil)

		// Assert
		test.H(t).IsNil(err)
		test.H(t).InterfaceEql(res, note{Title: "legacy"})
	})

	t.Run("malformed events are skipped with a warning", func(t *testing.T) {
		t.Parallel()

		// Arrange
		f := newFixture(t)
		f.seed("note.created", "/note/n1", `{"title":"first"}`)
		f.seed("note.renamed", "/note/n1", `[1,2,3]`)
		f.seed("note.renamed", "/note/n1", `{"title":"third"}`)
		l := &recordingLogger{}
		e := f.engine(WithLogger(l))

		// Act
		res, err := e.Send(ctx, cmd{typ: "Inspect", subject: "/note/n1"}, nil)

		// Assert
		test.H(t).IsNil(err)
		test.H(t).InterfaceEql(res, note{Title: "third", Renames: 1})
		test.H(t).IntEql(len(l.warnings), 1)
		test.H(t).StringContains(l.warnings[0], "malformed event 2")
	})

	t.Run("spans are recorded for send, rebuild and publish", func(t *testing.T) {
		t.Parallel()

		// Arrange
		f := newFixture(t)
		tracer := mocktracer.New()
		e := f.engine(WithTracer(tracer))
		_, err := e.Send(ctx, cmd{typ: "CreateNote", subject: "/note/n1", title: "first"}, nil)
		test.H(t).IsNil(err)

		// Act
		_, err = e.Send(ctx, cmd{typ: "RenameNote", subject: "/note/n1", title: "second"}, nil)

		// Assert
		test.H(t).IsNil(err)
		var names []string
		for _, s := range tracer.FinishedSpans() {
			names = append(names, s.OperationName)
		}
		test.H(t).InterfaceEql(names, []string{
			"engine.publish", "engine.Send",
			"engine.rebuild", "engine.publish", "engine.Send",
		})
	})
}

func Test_Engine_Metadata(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		propagation MetadataPropagation
		cmd         cqrs.Metadata
		want        cqrs.Metadata
	}{
		"everything by default": {
			propagation: PropagateAll,
			cmd:         cqrs.Metadata{"user": "alice", "reason": "cmd"},
			want:        cqrs.Metadata{"user": "alice", "reason": "typo", "correlationId": "corr-1"},
		},
		"selected keys": {
			propagation: PropagateKeys("user"),
			cmd:         cqrs.Metadata{"user": "alice", "secret": "s3cr3t"},
			want:        cqrs.Metadata{"user": "alice", "reason": "typo", "correlationId": "corr-1"},
		},
		"nothing": {
			propagation: PropagateNone,
			cmd:         cqrs.Metadata{"user": "alice"},
			want:        cqrs.Metadata{"reason": "typo", "correlationId": "corr-1"},
		},
		"explicit correlation ids win": {
			propagation: PropagateAll,
			cmd:         cqrs.Metadata{"correlationId": "corr-2"},
			want:        cqrs.Metadata{"reason": "typo", "correlationId": "corr-2"},
		},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			f := newFixture(t)
			f.seed("note.created", "/note/n1", `{"title":"first"}`)
			e := f.engine(WithMetadataPropagation(tc.propagation))
			ctx := ctxkey.WithCorrelationID(context.Background(), "corr-1")

			// Act
			_, err := e.Send(ctx, cmd{typ: "RenameNote", subject: "/note/n1", title: "second"}, tc.cmd)

			// Assert
			test.H(t).IsNil(err)
			stored := f.mem.All()
			test.H(t).InterfaceEql(stored[len(stored)-1].Metadata, tc.want)
		})
	}
}

func Test_Engine_Cache(t *testing.T) {
	t.Parallel()

	var ctx = context.Background()

	seedNote := func(f *fixture, from, to int) {
		for i := from; i < to; i++ {
			if i == 0 {
				f.seed("note.created", "/note/n1", `{"title":"v0"}`)
				continue
			}
			f.seed("note.renamed", "/note/n1", fmt.Sprintf(`{"title":"v%d"}`, i))
		}
	}

	t.Run("cached rebuilds equal full rebuilds wherever the split is", func(t *testing.T) {
		t.Parallel()

		const total = 6
		for split := 1; split < total; split++ {
			// Arrange
			f := newFixture(t)
			lru, err := cache.NewLRU(8)
			test.H(t).IsNil(err)
			cached := f.engine(WithCache(lru))
			seedNote(f, 0, split)
			_, err = cached.Send(ctx, cmd{typ: "Inspect", subject: "/note/n1"}, nil)
			test.H(t).IsNil(err)
			seedNote(f, split, total)

			// Act
			got, err1 := cached.Send(ctx, cmd{typ: "Inspect", subject: "/note/n1"}, nil)
			want, err2 := f.engine().Send(ctx, cmd{typ: "Inspect", subject: "/note/n1"}, nil)

			// Assert
			test.H(t).IsNil(err1)
			test.H(t).IsNil(err2)
			test.H(t).InterfaceEql(got, want)
			test.H(t).InterfaceEql(got, note{Title: "v5", Renames: 5})
		}
	})

	t.Run("concurrent sends read each event once", func(t *testing.T) {
		t.Parallel()

		// Arrange
		const events, senders = 40, 16
		f := newFixture(t)
		seedNote(f, 0, events)
		lru, err := cache.NewLRU(8)
		test.H(t).IsNil(err)
		e := f.engine(WithCache(lru))

		// Act
		var (
			wg      sync.WaitGroup
			results = make([]interface{}, senders)
			errs    = make([]error, senders)
		)
		for i := 0; i < senders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = e.Send(ctx, cmd{typ: "Inspect", subject: "/note/n1"}, nil)
			}(i)
		}
		wg.Wait()

		// Assert
		for i := 0; i < senders; i++ {
			test.H(t).IsNil(errs[i])
			test.H(t).InterfaceEql(results[i], note{Title: fmt.Sprintf("v%d", events-1), Renames: events - 1})
		}
		test.H(t).IntEql(int(atomic.LoadInt32(&f.store.streamed)), events)
		test.H(t).IntEql(int(atomic.LoadInt32(&f.store.streams)), senders)
	})

	t.Run("commands after a publish see the published events", func(t *testing.T) {
		t.Parallel()

		// Arrange
		f := newFixture(t)
		lru, err := cache.NewLRU(8)
		test.H(t).IsNil(err)
		e := f.engine(WithCache(lru))
		_, err = e.Send(ctx, cmd{typ: "CreateNote", subject: "/note/n1", title: "first"}, nil)
		test.H(t).IsNil(err)
		_, err = e.Send(ctx, cmd{typ: "Inspect", subject: "/note/n1"}, nil)
		test.H(t).IsNil(err)
		_, err = e.Send(ctx, cmd{typ: "RenameNote", subject: "/note/n1", title: "second"}, nil)
		test.H(t).IsNil(err)

		// Act
		res, err := e.Send(ctx, cmd{typ: "Inspect", subject: "/note/n1"}, nil)

		// Assert
		test.H(t).IsNil(err)
		test.H(t).InterfaceEql(res, note{Title: "second", Renames: 1})
	})
}

func Test_Engine_Ping(t *testing.T) {
	t.Parallel()

	// Arrange
	f := newFixture(t)
	e := f.engine()
	test.H(t).IsNil(e.Ping(context.Background()))

	// Act
	test.H(t).IsNil(f.mem.Close())

	// Assert
	test.H(t).ErrIs(e.Ping(context.Background()), depot.ErrClosed)
}
