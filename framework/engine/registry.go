package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/framework/cqrs"
)

// HandlerKind tags the call shape of a command handler.
type HandlerKind int

const (
	KindCommandOnly HandlerKind = iota
	KindWithInstance
	KindWithInstanceAndMetadata
)

func (k HandlerKind) String() string {
	switch k {
	case KindCommandOnly:
		return "CommandOnly"
	case KindWithInstance:
		return "WithInstance"
	case KindWithInstanceAndMetadata:
		return "WithInstanceAndMetadata"
	}
	return "HandlerKind(?)"
}

type (
	CommandOnlyFunc             func(ctx context.Context, cmd cqrs.Command, pub cqrs.Publisher) (interface{}, error)
	WithInstanceFunc            func(ctx context.Context, instance cqrs.Aggregate, cmd cqrs.Command, pub cqrs.Publisher) (interface{}, error)
	WithInstanceAndMetadataFunc func(ctx context.Context, instance cqrs.Aggregate, cmd cqrs.Command, md cqrs.Metadata, pub cqrs.Publisher) (interface{}, error)
)

// CommandHandler is one registration. Build them with HandleCommand,
// HandleWithInstance or HandleWithInstanceAndMetadata, the Kind they set
// decides how the engine calls the handler.
type CommandHandler struct {
	CommandType   string
	AggregateType string
	Sourcing      cqrs.SourcingMode
	Condition     cqrs.SubjectCondition
	Kind          HandlerKind

	commandOnly             CommandOnlyFunc
	withInstance            WithInstanceFunc
	withInstanceAndMetadata WithInstanceAndMetadataFunc
}

// HandlerOption adjusts a CommandHandler at registration.
type HandlerOption func(*CommandHandler)

// Sourcing sets how the instance handed to the handler is rebuilt.
func Sourcing(m cqrs.SourcingMode) HandlerOption {
	return func(h *CommandHandler) { h.Sourcing = m }
}

// Condition sets the SubjectCondition checked before the handler runs.
func Condition(c cqrs.SubjectCondition) HandlerOption {
	return func(h *CommandHandler) { h.Condition = c }
}

// Aggregate names the aggregate type whose state rebuilding handlers
// replay what a command only handler publishes.
func Aggregate(aggType string) HandlerOption {
	return func(h *CommandHandler) { h.AggregateType = aggType }
}

// HandleCommand registers a handler which receives no instance, it is
// not sourced unless an option says otherwise.
func HandleCommand(cmdType string, fn CommandOnlyFunc, opts ...HandlerOption) CommandHandler {
	h := CommandHandler{CommandType: cmdType, Kind: KindCommandOnly, Sourcing: cqrs.SourcingNone, commandOnly: fn}
	return h.with(opts)
}

// HandleWithInstance registers a handler receiving the instance of
// aggType rebuilt from the command's subject, locally sourced by default.
func HandleWithInstance(cmdType, aggType string, fn WithInstanceFunc, opts ...HandlerOption) CommandHandler {
	h := CommandHandler{CommandType: cmdType, AggregateType: aggType, Kind: KindWithInstance, Sourcing: cqrs.SourcingLocal, withInstance: fn}
	return h.with(opts)
}

// HandleWithInstanceAndMetadata is HandleWithInstance for handlers which
// also need the command metadata.
func HandleWithInstanceAndMetadata(cmdType, aggType string, fn WithInstanceAndMetadataFunc, opts ...HandlerOption) CommandHandler {
	h := CommandHandler{CommandType: cmdType, AggregateType: aggType, Kind: KindWithInstanceAndMetadata, Sourcing: cqrs.SourcingLocal, withInstanceAndMetadata: fn}
	return h.with(opts)
}

func (h CommandHandler) with(opts []HandlerOption) CommandHandler {
	for _, opt := range opts {
		opt(&h)
	}
	return h
}

func (h CommandHandler) validate() error {
	if h.CommandType == "" {
		return errors.Wrap(ErrInvalidHandler, "empty command type")
	}
	if h.Sourcing != cqrs.SourcingNone && h.AggregateType == "" {
		return errors.Wrapf(ErrInvalidHandler, "%s is sourced but names no aggregate type", h.CommandType)
	}
	var ok bool
	switch h.Kind {
	case KindCommandOnly:
		ok = h.commandOnly != nil
	case KindWithInstance:
		ok = h.withInstance != nil
	case KindWithInstanceAndMetadata:
		ok = h.withInstanceAndMetadata != nil
	}
	if !ok {
		return errors.Wrapf(ErrInvalidHandler, "%s has no %s function", h.CommandType, h.Kind)
	}
	return nil
}

func (h CommandHandler) invoke(ctx context.Context, instance cqrs.Aggregate, cmd cqrs.Command, md cqrs.Metadata, pub cqrs.Publisher) (interface{}, error) {
	switch h.Kind {
	case KindWithInstance:
		return h.withInstance(ctx, instance, cmd, pub)
	case KindWithInstanceAndMetadata:
		return h.withInstanceAndMetadata(ctx, instance, cmd, md, pub)
	default:
		return h.commandOnly(ctx, cmd, pub)
	}
}

type (
	RebuildFunc             func(instance cqrs.Aggregate, ev cqrs.Event) (cqrs.Aggregate, error)
	RebuildWithMetadataFunc func(instance cqrs.Aggregate, ev cqrs.Event, md cqrs.Metadata, raw cqrs.RawEvent) (cqrs.Aggregate, error)
)

// StateRebuilder folds one event type into one aggregate type. The
// instance is nil for the first event of a subject.
type StateRebuilder struct {
	AggregateType string
	EventType     string

	fn     RebuildFunc
	withMd RebuildWithMetadataFunc
}

func Rebuild(aggType, evType string, fn RebuildFunc) StateRebuilder {
	return StateRebuilder{AggregateType: aggType, EventType: evType, fn: fn}
}

func RebuildWithMetadata(aggType, evType string, fn RebuildWithMetadataFunc) StateRebuilder {
	return StateRebuilder{AggregateType: aggType, EventType: evType, withMd: fn}
}

func (sr StateRebuilder) apply(instance cqrs.Aggregate, ev cqrs.Event, md cqrs.Metadata, raw cqrs.RawEvent) (cqrs.Aggregate, error) {
	if sr.withMd != nil {
		return sr.withMd(instance, ev, md, raw)
	}
	return sr.fn(instance, ev)
}

type rebuilderKey struct {
	aggType, evType string
}

// Registry holds the command handlers and state rebuilding handlers of
// one engine. It is safe for concurrent use, registration normally
// happens once during composition.
type Registry struct {
	mu         sync.RWMutex
	commands   map[string]CommandHandler
	rebuilders map[rebuilderKey][]StateRebuilder
}

func NewRegistry() *Registry {
	return &Registry{
		commands:   map[string]CommandHandler{},
		rebuilders: map[rebuilderKey][]StateRebuilder{},
	}
}

// AddCommandHandlers registers handlers, at most one per command type.
func (r *Registry) AddCommandHandlers(hs ...CommandHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range hs {
		if err := h.validate(); err != nil {
			return err
		}
		if _, exists := r.commands[h.CommandType]; exists {
			return errors.Wrapf(ErrDuplicateHandler, "%q", h.CommandType)
		}
		r.commands[h.CommandType] = h
	}
	return nil
}

// AddStateRebuilders registers state rebuilding handlers. Several for
// the same aggregate and event type run in registration order, each
// receiving the previous one's result.
func (r *Registry) AddStateRebuilders(srs ...StateRebuilder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sr := range srs {
		if sr.AggregateType == "" || sr.EventType == "" || (sr.fn == nil && sr.withMd == nil) {
			return errors.Wrapf(ErrInvalidHandler, "state rebuilder %q/%q", sr.AggregateType, sr.EventType)
		}
		k := rebuilderKey{sr.AggregateType, sr.EventType}
		r.rebuilders[k] = append(r.rebuilders[k], sr)
	}
	return nil
}

func (r *Registry) CommandHandler(cmdType string) (CommandHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.commands[cmdType]
	return h, ok
}

func (r *Registry) StateRebuilders(aggType, evType string) []StateRebuilder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rebuilders[rebuilderKey{aggType, evType}]
}

// CommandTypes lists the registered command types, sorted.
func (r *Registry) CommandTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.commands))
	for k := range r.commands {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
