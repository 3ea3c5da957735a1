package depot

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/framework/cqrs"
)

type bound struct {
	seq       uint64
	inclusive bool
}

type filter struct {
	subject      string
	recursive    bool
	lower, upper *bound
	latestByType string
}

func newFilter(subject string, opts cqrs.StreamOptions) (filter, error) {
	f := filter{subject: subject, recursive: opts.Recursive, latestByType: opts.LatestByEventType}
	var err error
	if f.lower, err = parseBound(opts.LowerBound); err != nil {
		return f, err
	}
	if f.upper, err = parseBound(opts.UpperBound); err != nil {
		return f, err
	}
	return f, nil
}

func parseBound(b *cqrs.Bound) (*bound, error) {
	if b == nil {
		return nil, nil
	}
	seq, err := strconv.ParseUint(b.ID, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidID, "%q", b.ID)
	}
	return &bound{seq: seq, inclusive: b.Inclusive}, nil
}

func (f filter) matches(ev cqrs.RawEvent) bool {
	if f.recursive {
		if !cqrs.SubjectContains(f.subject, ev.Subject) {
			return false
		}
	} else if ev.Subject != f.subject {
		return false
	}
	seq := mustSeq(ev.ID)
	if f.lower != nil && (seq < f.lower.seq || (seq == f.lower.seq && !f.lower.inclusive)) {
		return false
	}
	if f.upper != nil && (seq > f.upper.seq || (seq == f.upper.seq && !f.upper.inclusive)) {
		return false
	}
	if f.latestByType != "" && ev.Type != f.latestByType {
		return false
	}
	return true
}

// apply returns the matching events of evs, which must be in store
// order.
func (f filter) apply(evs []cqrs.RawEvent) []cqrs.RawEvent {
	var out []cqrs.RawEvent
	for _, ev := range evs {
		if f.matches(ev) {
			out = append(out, ev)
		}
	}
	if f.latestByType == "" {
		return out
	}
	latest := map[string]int{}
	for i, ev := range out {
		latest[ev.Subject] = i
	}
	kept := out[:0]
	for i, ev := range out {
		if latest[ev.Subject] == i {
			kept = append(kept, ev)
		}
	}
	return kept
}

// mustSeq parses ids this package assigned itself.
func mustSeq(id string) uint64 {
	seq, _ := strconv.ParseUint(id, 10, 64)
	return seq
}
