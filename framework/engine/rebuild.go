package engine

import (
	"context"
	"fmt"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/retro-framework/cqrskit/framework/cache"
	"github.com/retro-framework/cqrskit/framework/cqrs"
)

// rebuild returns the instance of h's aggregate type for subject. The
// cache decides where replay starts, only events after the cached
// position are streamed and folded on top of the cached instance.
func (e *Engine) rebuild(ctx context.Context, h CommandHandler, subject string) (cache.Value, error) {
	spn, ctx := opentracing.StartSpanFromContextWithTracer(ctx, e.tracer, "engine.rebuild")
	defer spn.Finish()
	spn.SetTag("aggregate.type", h.AggregateType)
	spn.SetTag("subject", subject)

	key := cache.Key{Subject: subject, AggregateType: h.AggregateType, Mode: h.Sourcing}
	v, err := e.cache.FetchAndMerge(ctx, key, func(ctx context.Context, cached *cache.Value) (cache.Value, error) {
		var next cache.Value
		if cached != nil {
			next = cached.Clone()
		} else {
			next = cache.Value{SourcedSubjects: map[string]string{}}
		}
		n, err := e.replay(ctx, h.AggregateType, subject, h.Sourcing == cqrs.SourcingRecursive, &next)
		spn.SetTag("replayed", n)
		return next, err
	})
	if err != nil {
		ext.Error.Set(spn, true)
		spn.LogKV("event", "error", "message", err.Error())
		return cache.Value{}, err
	}
	return v, nil
}

// replay streams everything after v.EventID and folds it into v. On
// error v must be discarded.
func (e *Engine) replay(ctx context.Context, aggType, subject string, recursive bool, v *cache.Value) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	evs, errs := e.adapter.StreamEvents(ctx, subject, cqrs.After(v.EventID, recursive))
	var n int
	for raw := range evs {
		instance, err := e.applyRaw(aggType, v.Instance, raw)
		if err != nil {
			return n, err
		}
		v.Instance = instance
		v.EventID = raw.ID
		v.SourcedSubjects[raw.Subject] = raw.ID
		n++
	}
	if err := <-errs; err != nil {
		return n, Error{"rebuild", err, "streaming " + subject}
	}
	return n, nil
}

// applyRaw upcasts a stored event and folds what comes out into
// instance. Events the aggregate has no rebuilding handler for are not
// decoded at all.
func (e *Engine) applyRaw(aggType string, instance cqrs.Aggregate, raw cqrs.RawEvent) (cqrs.Aggregate, error) {
	upcasted, err := e.upcasters.Upcast(raw)
	if err != nil {
		return instance, Error{"upcast", err, fmt.Sprintf("event %s (%s)", raw.ID, raw.Type)}
	}
	for _, ev := range upcasted {
		if len(e.registry.StateRebuilders(aggType, ev.Type)) == 0 {
			continue
		}
		shape, err := e.types.ForType(ev.Type)
		if err != nil {
			e.logger.Warnf("skipping event %s of unknown type %q while rebuilding %s: %s", ev.ID, ev.Type, aggType, err)
			continue
		}
		env, err := e.marshaller.Deserialize(cqrs.Wire{Data: ev.Data, Metadata: ev.Metadata}, shape)
		if err != nil {
			e.logger.Warnf("skipping malformed event %s (%s) while rebuilding %s: %s", ev.ID, ev.Type, aggType, err)
			continue
		}
		if instance, err = e.apply(aggType, instance, env, ev); err != nil {
			return instance, err
		}
	}
	return instance, nil
}

// apply runs every state rebuilding handler registered for the event,
// in registration order.
func (e *Engine) apply(aggType string, instance cqrs.Aggregate, env cqrs.Envelope, raw cqrs.RawEvent) (cqrs.Aggregate, error) {
	for _, sr := range e.registry.StateRebuilders(aggType, raw.Type) {
		next, err := sr.apply(instance, env.Payload, env.Metadata, raw)
		if err != nil {
			return instance, Error{"apply", err, fmt.Sprintf("%s on %s", raw.Type, aggType)}
		}
		instance = next
	}
	return instance, nil
}
