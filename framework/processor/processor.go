// Package processor runs event handlers in the background. A Processor
// observes the event store for one partition of one event handling
// group, dispatches every event it owns to the group's handlers with
// retries and records its progress after each event.
package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/framework"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/ctxkey"
	"github.com/retro-framework/cqrskit/framework/partition"
	"github.com/retro-framework/cqrskit/framework/upcast"
)

type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Processor struct {
	adapter    cqrs.EventStoreAdapter
	tracker    cqrs.ProgressTracker
	types      cqrs.EventTypeResolver
	marshaller cqrs.EventDataMarshaller
	handlers   *Handlers
	cfg        Config

	upcasters  *upcast.Chain
	logger     cqrs.Logger
	tracer     opentracing.Tracer
	partitions cqrs.PartitionKeyResolver
	sequence   cqrs.EventSequenceResolver
	sleep      SleepFunc

	state    int32
	stopping int32
	mu       sync.Mutex
	cancel   context.CancelFunc
}

type Option func(*Processor)

func WithUpcasters(c *upcast.Chain) Option {
	return func(p *Processor) { p.upcasters = c }
}

func WithLogger(l cqrs.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

func WithTracer(t opentracing.Tracer) Option {
	return func(p *Processor) { p.tracer = t }
}

// WithPartitionResolver replaces the partition.DefaultKeyResolver sized
// to the configured partition count.
func WithPartitionResolver(r cqrs.PartitionKeyResolver) Option {
	return func(p *Processor) { p.partitions = r }
}

// WithSequenceResolver replaces partition.Subject.
func WithSequenceResolver(r cqrs.EventSequenceResolver) Option {
	return func(p *Processor) { p.sequence = r }
}

// WithSleep replaces the timer based wait used between retries.
func WithSleep(fn SleepFunc) Option {
	return func(p *Processor) { p.sleep = fn }
}

func New(adapter cqrs.EventStoreAdapter, tracker cqrs.ProgressTracker, types cqrs.EventTypeResolver, marshaller cqrs.EventDataMarshaller, handlers *Handlers, cfg Config, opts ...Option) *Processor {
	cfg = cfg.WithDefaults()
	p := &Processor{
		adapter:    adapter,
		tracker:    tracker,
		types:      types,
		marshaller: marshaller,
		handlers:   handlers,
		cfg:        cfg,
		logger:     framework.Noop{},
		tracer:     opentracing.GlobalTracer(),
		partitions: partition.NewDefaultKeyResolver(cfg.Partitions),
		sequence:   partition.Subject{},
		sleep:      sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.handlers == nil {
		p.handlers = NewHandlers()
	}
	return p
}

func (p *Processor) Config() Config { return p.cfg }

func (p *Processor) State() State { return State(atomic.LoadInt32(&p.state)) }

// Stop asks a running processor to finish. The event being handled is
// completed and committed first, handler calls are never interrupted.
func (p *Processor) Stop() {
	atomic.StoreInt32(&p.stopping, 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Processor) stopped() bool { return atomic.LoadInt32(&p.stopping) == 1 }

// Start runs the processor until Stop is called, in which case it
// returns nil, or until ctx is done. Failures of the store or the
// tracker restart the loop from the last committed progress after
// LoopRetryDelay.
func (p *Processor) Start(ctx context.Context) error {
	if err := p.cfg.Validate(); err != nil {
		return err
	}
	if !atomic.CompareAndSwapInt32(&p.state, int32(Idle), int32(Running)) {
		return ErrNotIdle
	}
	defer atomic.StoreInt32(&p.state, int32(Stopped))

	// loopCtx is cancelled by Stop, handlers get ctx.
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.logger.Infof("processor %s started on partition %d of %d", p.cfg.Group, p.cfg.Partition, p.cfg.Partitions)
	defer p.logger.Infof("processor %s stopped on partition %d", p.cfg.Group, p.cfg.Partition)

	for {
		if p.stopped() {
			return nil
		}
		err := p.loop(ctx, loopCtx)
		if p.stopped() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Errorf("processor %s/%d: %s, restarting in %s", p.cfg.Group, p.cfg.Partition, err, p.cfg.LoopRetryDelay)
		if err := p.sleep(loopCtx, p.cfg.LoopRetryDelay); err != nil && !p.stopped() {
			return err
		}
	}
}

// loop observes from the committed progress on. It returns when the
// stream fails or loopCtx is done.
func (p *Processor) loop(ctx, loopCtx context.Context) error {
	cur, err := p.tracker.Current(loopCtx, p.cfg.Group, p.cfg.Partition)
	if err != nil {
		return Error{"current", err}
	}

	obsCtx, cancel := context.WithCancel(loopCtx)
	defer cancel()
	evs, errs := p.adapter.ObserveEvents(obsCtx, p.cfg.Subject, cqrs.After(cur.LastEventID, p.cfg.Recursive))
	for raw := range evs {
		if p.stopped() {
			return nil
		}
		if err := p.process(ctx, loopCtx, raw); err != nil {
			return err
		}
	}
	if err := <-errs; err != nil {
		return Error{"observe", err}
	}
	return ErrStreamEnded
}

// process handles one stored event and commits progress past it, no
// matter whether the handlers succeeded. Backoff between attempts is
// cut short when loopCtx is done.
func (p *Processor) process(ctx, loopCtx context.Context, raw cqrs.RawEvent) error {
	spn, ctx := opentracing.StartSpanFromContextWithTracer(ctx, p.tracer, "processor.process")
	defer spn.Finish()
	spn.SetTag("group", p.cfg.Group)
	spn.SetTag("partition", p.cfg.Partition)
	spn.SetTag("event.id", raw.ID)
	spn.SetTag("event.type", raw.Type)

	seq, decided := p.sequence.ResolveRaw(raw)
	if decided && p.partitions.Resolve(seq) != p.cfg.Partition {
		spn.SetTag("owned", false)
		return p.commit(ctx, raw)
	}

	for attempt := 1; ; attempt++ {
		err := p.handle(ctx, raw, decided)
		if err == nil {
			break
		}
		ext.Error.Set(spn, true)
		spn.LogKV("event", "error", "attempt", attempt, "message", err.Error())

		var perm permanent
		if errors.As(err, &perm) {
			p.logger.Errorf("event %s (%s) can't be handled, skipping: %s", raw.ID, raw.Type, err)
			break
		}
		if attempt >= p.cfg.MaxRetries {
			p.logger.Errorf("event %s (%s) failed %d times, skipping: %s", raw.ID, raw.Type, attempt, err)
			break
		}
		delay := p.cfg.RetryDelay << uint(attempt-1)
		p.logger.Warnf("event %s (%s) failed on attempt %d, retrying in %s", raw.ID, raw.Type, attempt, delay)
		if err := p.sleep(loopCtx, delay); err != nil {
			if !p.stopped() {
				return err
			}
			p.logger.Warnf("event %s (%s) not retried, processor %s is stopping", raw.ID, raw.Type, p.cfg.Group)
			break
		}
	}
	return p.commit(ctx, raw)
}

// handle is one attempt at dispatching raw. decided tells whether the
// partition was already settled from the raw event.
func (p *Processor) handle(ctx context.Context, raw cqrs.RawEvent, decided bool) error {
	upcasted, err := p.upcasters.Upcast(raw)
	if err != nil {
		return permanent{err}
	}

	var failed int
	for _, ev := range upcasted {
		hs := p.handlers.For(p.cfg.Group, ev.Type)
		if len(hs) == 0 {
			continue
		}
		shape, err := p.types.ForType(ev.Type)
		if err != nil {
			p.logger.Errorf("event %s has unknown type %q, group %s can't handle it: %s", ev.ID, ev.Type, p.cfg.Group, err)
			continue
		}
		env, err := p.marshaller.Deserialize(cqrs.Wire{Data: ev.Data, Metadata: ev.Metadata}, shape)
		if err != nil {
			p.logger.Errorf("event %s (%s) is malformed, group %s can't handle it: %s", ev.ID, ev.Type, p.cfg.Group, err)
			continue
		}

		if owner := p.partitions.Resolve(p.sequence.ResolveConverted(env.Payload, env.Metadata, ev)); owner != p.cfg.Partition {
			if decided {
				p.logger.Warnf("event %s (%s) moved to partition %d once decoded, partition %d skips it", ev.ID, ev.Type, owner, p.cfg.Partition)
			}
			continue
		}

		for _, h := range hs {
			if !h.accepts(ev.Subject) {
				continue
			}
			if err := p.invoke(ctx, h, env, ev); err != nil {
				p.logger.Warnf("Skipping event %s (%s) in handler %s: %s", ev.ID, ev.Type, h.Name, err)
				failed++
			}
		}
	}
	if failed > 0 {
		return errors.Errorf("%d handler call(s) failed", failed)
	}
	return nil
}

func (p *Processor) invoke(ctx context.Context, h Handler, env cqrs.Envelope, raw cqrs.RawEvent) (err error) {
	if p.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.HandlerTimeout)
		defer cancel()
	}
	ctx = ctxkey.WithCausationID(ctx, raw.ID)
	if id, ok := env.Metadata.String("correlationId"); ok {
		ctx = ctxkey.WithCorrelationID(ctx, id)
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("handler panicked: %v", r)
		}
	}()
	return h.invoke(ctx, env.Payload, env.Metadata, raw)
}

func (p *Processor) commit(ctx context.Context, raw cqrs.RawEvent) error {
	err := p.tracker.Proceed(ctx, p.cfg.Group, p.cfg.Partition, func(cqrs.Progress) (cqrs.Progress, error) {
		return cqrs.Progress{LastEventID: raw.ID}, nil
	})
	if err != nil {
		return Error{"proceed", err}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
