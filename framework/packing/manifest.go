package packing

import (
	"reflect"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/framework/cqrs"
)

// EventManifest is the cqrs.EventTypeResolver bundled with the framework.
// Events are registered against a stable type string chosen by the
// integrator, the Go type of the registered prototype is only used as a
// lookup key.
//
// Both a value and a pointer to it resolve to the same type string so
// that handlers may publish either.
type EventManifest struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

func NewEventManifest() *EventManifest {
	return &EventManifest{
		byName: map[string]reflect.Type{},
		byType: map[reflect.Type]string{},
	}
}

// RegisterAs registers prototype under name. Registering the same name,
// or the same Go type, twice is an error.
func (m *EventManifest) RegisterAs(name string, prototype cqrs.Event) error {
	if name == "" {
		return errors.New("packing: can't register event with empty type name")
	}
	t := indirect(reflect.TypeOf(prototype))
	if t == nil {
		return errors.New("packing: can't register nil event prototype")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byName[name]; exists {
		return errors.Wrapf(ErrAlreadyRegistered, "can't register %s as %q", t, name)
	}
	if existing, exists := m.byType[t]; exists {
		return errors.Wrapf(ErrAlreadyRegistered, "can't register %s as %q, already registered as %q", t, name, existing)
	}
	m.byName[name] = t
	m.byType[t] = name
	return nil
}

// MustRegisterAs panics where RegisterAs would return an error.
func (m *EventManifest) MustRegisterAs(name string, prototype cqrs.Event) {
	if err := m.RegisterAs(name, prototype); err != nil {
		panic(err)
	}
}

// EventType returns the type string ev was registered under.
func (m *EventManifest) EventType(ev cqrs.Event) (string, error) {
	t := indirect(reflect.TypeOf(ev))
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.byType[t]
	if !ok {
		return "", errors.Wrapf(ErrUnregisteredShape, "no type name for %T", ev)
	}
	return name, nil
}

// ForType returns a pointer to a new zero value of the shape registered
// under name.
func (m *EventManifest) ForType(name string) (cqrs.Event, error) {
	m.mu.RLock()
	t, ok := m.byName[name]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(cqrs.ErrUnknownEventType, "%q", name)
	}
	return reflect.New(t).Interface(), nil
}

// List returns the registered type names and their Go types, sorted by
// name.
func (m *EventManifest) List() []Registration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Registration
	for name, t := range m.byName {
		out = append(out, Registration{Name: name, GoType: t.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Registration describes one manifest entry.
type Registration struct {
	Name   string `json:"name"`
	GoType string `json:"goType"`
}

func indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
