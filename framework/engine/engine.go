// Package engine is the command router. It resolves the handler for a
// command, rebuilds the subject's aggregate from the event store (going
// through a state rebuilding cache), checks the subject condition,
// invokes the handler and publishes what it produced atomically.
package engine

import (
	"context"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/retro-framework/cqrskit/framework"
	"github.com/retro-framework/cqrskit/framework/cache"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/ctxkey"
	"github.com/retro-framework/cqrskit/framework/upcast"
)

const (
	MetadataCorrelationID = "correlationId"
	MetadataCausationID   = "causationId"
)

type Engine struct {
	adapter    cqrs.EventStoreAdapter
	types      cqrs.EventTypeResolver
	marshaller cqrs.EventDataMarshaller
	registry   *Registry

	cache       cache.Cache
	upcasters   *upcast.Chain
	logger      cqrs.Logger
	tracer      opentracing.Tracer
	source      string
	propagation MetadataPropagation
}

type Option func(*Engine)

// WithCache sets the state rebuilding cache, cache.Noop by default.
func WithCache(c cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

func WithUpcasters(c *upcast.Chain) Option {
	return func(e *Engine) { e.upcasters = c }
}

func WithLogger(l cqrs.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracer sets the tracer, opentracing.GlobalTracer() by default.
func WithTracer(t opentracing.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithSource sets the source written on every published event.
func WithSource(source string) Option {
	return func(e *Engine) { e.source = source }
}

func WithMetadataPropagation(p MetadataPropagation) Option {
	return func(e *Engine) { e.propagation = p }
}

func New(adapter cqrs.EventStoreAdapter, types cqrs.EventTypeResolver, marshaller cqrs.EventDataMarshaller, registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		adapter:     adapter,
		types:       types,
		marshaller:  marshaller,
		registry:    registry,
		cache:       cache.Noop{},
		logger:      framework.Noop{},
		tracer:      opentracing.GlobalTracer(),
		propagation: PropagateAll,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	return e
}

// Ping checks the event store when the adapter supports it.
func (e *Engine) Ping(ctx context.Context) error {
	if p, ok := e.adapter.(cqrs.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Send routes cmd to its handler and returns whatever the handler
// returned. Events published by the handler are persisted in one atomic
// batch only when the handler returns no error, errors from the handler
// are returned as they are.
func (e *Engine) Send(ctx context.Context, cmd cqrs.Command, md cqrs.Metadata) (interface{}, error) {
	spn, ctx := opentracing.StartSpanFromContextWithTracer(ctx, e.tracer, "engine.Send")
	defer spn.Finish()
	spn.SetTag("command.type", cmd.CommandType())
	spn.SetTag("command.subject", cmd.Subject())

	fail := func(err error) (interface{}, error) {
		ext.Error.Set(spn, true)
		spn.LogKV("event", "error", "message", err.Error())
		return nil, err
	}

	h, ok := e.registry.CommandHandler(cmd.CommandType())
	if !ok {
		e.logger.Warnf("no handler for command %q", cmd.CommandType())
		return fail(&NoHandlerError{CommandType: cmd.CommandType()})
	}

	subject := cmd.Subject()
	cond := h.Condition
	if cc, ok := cmd.(cqrs.ConditionalCommand); ok {
		cond = cc.SubjectCondition()
	}

	var (
		state cache.Value
		err   error
	)
	switch {
	case h.Sourcing != cqrs.SourcingNone:
		state, err = e.rebuild(ctx, h, subject)
	case cond != cqrs.ConditionNone:
		state.EventID, err = e.lastEventID(ctx, subject)
	}
	if err != nil {
		return fail(err)
	}

	if !cond.Satisfied(state.EventID) {
		return fail(&SubjectConditionViolation{Subject: subject, Condition: cond, LastEventID: state.EventID})
	}

	pub := &publisher{
		engine:      e,
		aggType:     h.AggregateType,
		subject:     subject,
		instance:    state.Instance,
		lastEventID: state.EventID,
		metadata:    e.eventMetadata(ctx, md),
	}
	res, err := h.invoke(ctx, state.Instance, cmd, md, pub)
	if err != nil {
		spn.LogKV("event", "handler error", "message", err.Error())
		return nil, err
	}
	if pub.err != nil {
		return fail(pub.err)
	}

	if len(pub.pending) > 0 {
		if _, err := e.publish(ctx, pub.pending); err != nil {
			return fail(err)
		}
	}
	return res, nil
}

// eventMetadata is the command metadata which is carried over to every
// event the command publishes.
func (e *Engine) eventMetadata(ctx context.Context, md cqrs.Metadata) cqrs.Metadata {
	out := e.propagation.Apply(md)
	if _, ok := out[MetadataCorrelationID]; !ok {
		if id := ctxkey.CorrelationID(ctx); id != "" {
			out[MetadataCorrelationID] = id
		}
	}
	if _, ok := out[MetadataCausationID]; !ok {
		if id := ctxkey.CausationID(ctx); id != "" {
			out[MetadataCausationID] = id
		}
	}
	return out
}

// lastEventID finds the newest event on exactly subject, used to check
// subject conditions of handlers that are not sourced.
func (e *Engine) lastEventID(ctx context.Context, subject string) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	evs, errs := e.adapter.StreamEvents(ctx, subject, cqrs.StreamOptions{})
	var last string
	for ev := range evs {
		last = ev.ID
	}
	if err := <-errs; err != nil {
		return "", Error{"lastEventID", err, "streaming " + subject}
	}
	return last, nil
}

func (e *Engine) publish(ctx context.Context, pending []pendingEvent) ([]cqrs.RawEvent, error) {
	spn, ctx := opentracing.StartSpanFromContextWithTracer(ctx, e.tracer, "engine.publish")
	defer spn.Finish()
	spn.SetTag("events", len(pending))

	var (
		evs   = make([]cqrs.EventToPublish, 0, len(pending))
		pcs   []cqrs.Precondition
		known = map[cqrs.Precondition]bool{}
	)
	for _, p := range pending {
		evs = append(evs, cqrs.EventToPublish{
			Type:     p.eventType,
			Source:   e.source,
			Subject:  p.subject,
			Data:     p.wire.Data,
			Metadata: p.wire.Metadata,
		})
		for _, pc := range p.preconditions {
			if !known[pc] {
				known[pc] = true
				pcs = append(pcs, pc)
			}
		}
	}

	stored, err := e.adapter.PublishEvents(ctx, evs, pcs)
	if err != nil {
		ext.Error.Set(spn, true)
		spn.LogKV("event", "error", "message", err.Error())
		return nil, Error{"publish", err, "event store rejected the batch"}
	}
	for _, ev := range stored {
		e.logger.Debugf("published %s (%s) on %s", ev.ID, ev.Type, ev.Subject)
	}
	return stored, nil
}
