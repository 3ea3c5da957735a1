package upcast

import (
	"fmt"

	"github.com/retro-framework/cqrskit/framework/cqrs"
)

// Chain applies its upcasters in registration order. Each upcaster makes
// one full pass over the output of the previous pass, so a chain of
// v1->v2 and v2->v3 upcasters migrates v1 events all the way to v3.
// Events no upcaster claims pass through untouched.
type Chain struct {
	upcasters []cqrs.Upcaster
}

func NewChain(upcasters ...cqrs.Upcaster) *Chain {
	return &Chain{upcasters: upcasters}
}

// Add appends upcasters to the end of the chain.
func (c *Chain) Add(upcasters ...cqrs.Upcaster) {
	c.upcasters = append(c.upcasters, upcasters...)
}

func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.upcasters)
}

// Upcast returns the events raw turns into. Outputs keep the id, subject,
// source, time and metadata of raw. A nil Chain passes raw through.
func (c *Chain) Upcast(raw cqrs.RawEvent) ([]cqrs.RawEvent, error) {
	current := []cqrs.RawEvent{raw}
	if c == nil {
		return current, nil
	}
	for i, u := range c.upcasters {
		next := make([]cqrs.RawEvent, 0, len(current))
		for _, ev := range current {
			if !u.CanUpcast(ev) {
				next = append(next, ev)
				continue
			}
			results, err := u.Upcast(ev)
			if err != nil {
				return nil, Error{Op: "upcast", Stage: i, Type: ev.Type, Err: err}
			}
			for _, res := range results {
				out := ev
				out.Type = res.Type
				out.Data = res.Data
				next = append(next, out)
			}
		}
		current = next
	}
	return current, nil
}

type Error struct {
	Op    string
	Stage int
	Type  string
	Err   error
}

func (e Error) Error() string {
	return fmt.Sprintf("upcast: op: %q stage: %d type: %q err: %q", e.Op, e.Stage, e.Type, e.Err)
}

func (e Error) Unwrap() error { return e.Err }
