// Package cache holds the state rebuilding caches used by the command
// router. A cache memoizes the last reconstructed aggregate instance per
// (subject, aggregate type, sourcing mode) together with the id of the
// last event folded into it.
package cache

import (
	"context"

	"github.com/retro-framework/cqrskit/framework/cqrs"
)

// Key identifies one cached reconstruction.
type Key struct {
	Subject       string
	AggregateType string
	Mode          cqrs.SourcingMode
}

// Value is a reconstruction. EventID is always exactly the replay
// position of Instance, SourcedSubjects records the last id seen per
// subject (more than one for recursive sourcing).
type Value struct {
	EventID         string
	Instance        cqrs.Aggregate
	SourcedSubjects map[string]string
}

// Clone returns a copy of v whose SourcedSubjects may be modified
// without affecting v. The instance is shared, it's never mutated.
func (v Value) Clone() Value {
	out := Value{EventID: v.EventID, Instance: v.Instance, SourcedSubjects: make(map[string]string, len(v.SourcedSubjects))}
	for k, id := range v.SourcedSubjects {
		out.SourcedSubjects[k] = id
	}
	return out
}

// MergeFunc brings cached up to date, cached is nil when nothing is
// cached for the key.
type MergeFunc func(ctx context.Context, cached *Value) (Value, error)

// Cache is a fetch-and-merge store. Implementations must ensure that for
// any one key at most one merge runs at a time and that a failed merge
// leaves the cached value untouched.
type Cache interface {
	FetchAndMerge(ctx context.Context, key Key, merge MergeFunc) (Value, error)
}
