package engine

import (
	"github.com/retro-framework/cqrskit/framework/cqrs"
)

type pendingEvent struct {
	eventType     string
	subject       string
	wire          cqrs.Wire
	preconditions []cqrs.Precondition
}

// publisher buffers what a handler publishes and keeps the instance in
// step with it. Each event goes through the marshaller in both
// directions before it is folded so the local instance sees exactly what
// a later replay from the store would.
type publisher struct {
	engine      *Engine
	aggType     string
	subject     string
	instance    cqrs.Aggregate
	lastEventID string
	metadata    cqrs.Metadata

	pending []pendingEvent
	err     error
}

func (p *publisher) Instance() cqrs.Aggregate { return p.instance }

func (p *publisher) LastEventID() string { return p.lastEventID }

func (p *publisher) Publish(ev cqrs.Event, opts ...cqrs.PublishOption) error {
	if p.err != nil {
		return p.err
	}
	if err := p.publish(ev, opts); err != nil {
		p.err = err
		return err
	}
	return nil
}

func (p *publisher) publish(ev cqrs.Event, opts []cqrs.PublishOption) error {
	var o cqrs.PublishOptions
	for _, opt := range opts {
		opt(&o)
	}

	typ, err := p.engine.types.EventType(ev)
	if err != nil {
		return Error{"publish", err, "event type not registered"}
	}
	subject := p.subject
	if o.Subject != "" {
		subject = o.Subject
	}

	w, err := p.engine.marshaller.Serialize(cqrs.Envelope{Payload: ev, Metadata: p.metadata.Merge(o.Metadata)})
	if err != nil {
		return Error{"publish", err, "serializing " + typ}
	}
	p.pending = append(p.pending, pendingEvent{eventType: typ, subject: subject, wire: w, preconditions: o.Preconditions})

	if p.aggType == "" || len(p.engine.registry.StateRebuilders(p.aggType, typ)) == 0 {
		return nil
	}
	shape, err := p.engine.types.ForType(typ)
	if err != nil {
		return Error{"publish", err, "resolving " + typ}
	}
	env, err := p.engine.marshaller.Deserialize(w, shape)
	if err != nil {
		return Error{"publish", err, "decoding " + typ}
	}
	raw := cqrs.RawEvent{Type: typ, Source: p.engine.source, Subject: subject, Data: w.Data, Metadata: w.Metadata}
	instance, err := p.engine.apply(p.aggType, p.instance, env, raw)
	if err != nil {
		return err
	}
	p.instance = instance
	return nil
}
