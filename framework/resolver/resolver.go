// Package resolver turns JSON command descriptions as they arrive over
// the wire into commands for the engine. A description names the
// command, the subject path it targets, optional arguments and optional
// metadata:
//
//	{"name": "RenameTask", "path": "/task/t1", "args": {"title": "Login"}, "metadata": {"user": "alice"}}
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/xerrors"

	"github.com/retro-framework/cqrskit/framework/cqrs"
)

var (
	ErrAlreadyRegistered = xerrors.New("resolver: command name already registered")
	ErrUnknownCommand    = xerrors.New("resolver: unknown command name")
)

type Error struct {
	Op  string
	Err error
}

func (e Error) Error() string {
	return fmt.Sprintf("resolver: op: %q err: %q", e.Op, e.Err)
}

func (e Error) Unwrap() error { return e.Err }

// Factory builds the command called name for path from its arguments,
// args is empty when the description carried none.
type Factory func(path string, args json.RawMessage) (cqrs.Command, error)

// Decode returns a Factory which unmarshals the arguments into the
// pointer build returns.
func Decode(build func(path string) cqrs.Command) Factory {
	return func(path string, args json.RawMessage) (cqrs.Command, error) {
		cmd := build(path)
		if len(args) == 0 {
			return cmd, nil
		}
		if err := json.Unmarshal(args, cmd); err != nil {
			return nil, errors.Wrapf(err, "can't decode args of %T", cmd)
		}
		return cmd, nil
	}
}

type Resolver struct {
	mu        sync.RWMutex
	factories map[string]Factory
	tracer    opentracing.Tracer
}

type Option func(*Resolver)

func WithTracer(t opentracing.Tracer) Option {
	return func(r *Resolver) { r.tracer = t }
}

func New(opts ...Option) *Resolver {
	r := &Resolver{factories: map[string]Factory{}, tracer: opentracing.GlobalTracer()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return errors.Wrapf(ErrAlreadyRegistered, "%q", name)
	}
	r.factories[name] = f
	return nil
}

// Names lists the registered command names, sorted.
func (r *Resolver) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type commandDesc struct {
	Name     string          `json:"name"`
	Path     string          `json:"path"`
	Args     json.RawMessage `json:"args"`
	Metadata cqrs.Metadata   `json:"metadata"`
}

// Resolve decodes b and builds the command it describes. The returned
// metadata is never nil.
func (r *Resolver) Resolve(ctx context.Context, b []byte) (cqrs.Command, cqrs.Metadata, error) {
	spn, _ := opentracing.StartSpanFromContextWithTracer(ctx, r.tracer, "resolver.Resolve")
	defer spn.Finish()

	fail := func(err error) (cqrs.Command, cqrs.Metadata, error) {
		spn.LogKV("event", "error", "error.object", err)
		return nil, nil, err
	}

	var desc commandDesc
	if err := json.Unmarshal(b, &desc); err != nil {
		return fail(Error{"json-unmarshal", err})
	}
	spn.SetTag("command.name", desc.Name)
	spn.SetTag("command.path", desc.Path)

	if desc.Name == "" {
		return fail(Error{"parse-desc", errors.New("command description has no name")})
	}
	path := strings.TrimSpace(desc.Path)
	if !strings.HasPrefix(path, "/") || len(cqrs.SubjectSegments(path)) == 0 {
		return fail(Error{"parse-desc", errors.Errorf("path %q is not an absolute subject", desc.Path)})
	}

	r.mu.RLock()
	f, ok := r.factories[desc.Name]
	r.mu.RUnlock()
	if !ok {
		return fail(Error{"lookup", errors.Wrapf(ErrUnknownCommand, "%q", desc.Name)})
	}

	cmd, err := f(path, desc.Args)
	if err != nil {
		return fail(Error{"build", err})
	}
	md := desc.Metadata
	if md == nil {
		md = cqrs.Metadata{}
	}
	return cmd, md, nil
}
