package processor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/matcher"
)

// HandlerKind tags the call shape of an event handler.
type HandlerKind int

const (
	KindEvent HandlerKind = iota
	KindEventWithMetadata
	KindEventWithRawEvent
)

type (
	EventFunc             func(ctx context.Context, ev cqrs.Event) error
	EventWithMetadataFunc func(ctx context.Context, ev cqrs.Event, md cqrs.Metadata) error
	EventWithRawEventFunc func(ctx context.Context, ev cqrs.Event, md cqrs.Metadata, raw cqrs.RawEvent) error
)

// Handler is one registration of an event handling group.
type Handler struct {
	Name      string
	Group     string
	EventType string
	Kind      HandlerKind

	subjects *matcher.Glob
	err      error

	event             EventFunc
	eventWithMetadata EventWithMetadataFunc
	eventWithRawEvent EventWithRawEventFunc
}

type HandlerOption func(*Handler)

// Subjects limits the handler to events whose subject matches the glob
// pattern.
func Subjects(pattern string) HandlerOption {
	return func(h *Handler) {
		h.subjects, h.err = matcher.Compile(pattern)
	}
}

// Named sets the name used when logging failures of the handler.
func Named(name string) HandlerOption {
	return func(h *Handler) { h.Name = name }
}

func (h Handler) accepts(subject string) bool {
	return h.subjects == nil || h.subjects.DoesMatch(subject)
}

func (h Handler) invoke(ctx context.Context, ev cqrs.Event, md cqrs.Metadata, raw cqrs.RawEvent) error {
	switch h.Kind {
	case KindEventWithMetadata:
		return h.eventWithMetadata(ctx, ev, md)
	case KindEventWithRawEvent:
		return h.eventWithRawEvent(ctx, ev, md, raw)
	default:
		return h.event(ctx, ev)
	}
}

type handlerKey struct {
	group, evType string
}

// Handlers is the event handler registry shared by the processors of
// one application, each processor only dispatches to its own group.
type Handlers struct {
	mu     sync.RWMutex
	byKey  map[handlerKey][]Handler
	groups map[string]int
}

func NewHandlers() *Handlers {
	return &Handlers{byKey: map[handlerKey][]Handler{}, groups: map[string]int{}}
}

func (hs *Handlers) On(group, evType string, fn EventFunc, opts ...HandlerOption) error {
	return hs.add(Handler{Group: group, EventType: evType, Kind: KindEvent, event: fn}, fn == nil, opts)
}

func (hs *Handlers) OnWithMetadata(group, evType string, fn EventWithMetadataFunc, opts ...HandlerOption) error {
	return hs.add(Handler{Group: group, EventType: evType, Kind: KindEventWithMetadata, eventWithMetadata: fn}, fn == nil, opts)
}

func (hs *Handlers) OnWithRawEvent(group, evType string, fn EventWithRawEventFunc, opts ...HandlerOption) error {
	return hs.add(Handler{Group: group, EventType: evType, Kind: KindEventWithRawEvent, eventWithRawEvent: fn}, fn == nil, opts)
}

func (hs *Handlers) add(h Handler, missing bool, opts []HandlerOption) error {
	for _, opt := range opts {
		opt(&h)
	}
	switch {
	case h.err != nil:
		return Error{"register", h.err}
	case h.Group == "" || h.EventType == "":
		return Error{"register", fmt.Errorf("group and event type are required, got %q/%q", h.Group, h.EventType)}
	case missing:
		return Error{"register", fmt.Errorf("nil handler for %s/%s", h.Group, h.EventType)}
	}

	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.groups[h.Group]++
	if h.Name == "" {
		h.Name = fmt.Sprintf("%s#%d", h.Group, hs.groups[h.Group])
	}
	k := handlerKey{h.Group, h.EventType}
	hs.byKey[k] = append(hs.byKey[k], h)
	return nil
}

// For returns the handlers of group for evType in registration order.
func (hs *Handlers) For(group, evType string) []Handler {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return hs.byKey[handlerKey{group, evType}]
}

// EventTypes lists the event types group has handlers for, sorted.
func (hs *Handlers) EventTypes(group string) []string {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	var out []string
	for k := range hs.byKey {
		if k.group == group {
			out = append(out, k.evType)
		}
	}
	sort.Strings(out)
	return out
}
