package depot

import (
	"context"
	"strconv"
	"sync"

	"github.com/golang-collections/collections/queue"
	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/framework/cqrs"
)

// Memory is an in-memory cqrs.EventStoreAdapter. Event ids are decimal
// sequence numbers starting at 1, assigned in publish order across all
// subjects. It is safe for concurrent use.
type Memory struct {
	clock cqrs.Clock

	mu            sync.RWMutex
	events        []cqrs.RawEvent
	lastBySubject map[string]uint64
	subs          map[*subscriber]struct{}
	closed        bool
	closing       chan struct{}
}

// NewMemory returns an empty store, a nil clock means cqrs.SystemClock.
func NewMemory(clock cqrs.Clock) *Memory {
	if clock == nil {
		clock = cqrs.SystemClock{}
	}
	return &Memory{
		clock:         clock,
		lastBySubject: map[string]uint64{},
		subs:          map[*subscriber]struct{}{},
		closing:       make(chan struct{}),
	}
}

// subscriber buffers events published while an observer is busy, the
// buffer is unbounded so publishers never wait for slow observers.
type subscriber struct {
	mu     sync.Mutex
	q      *queue.Queue
	notify chan struct{}
}

func (s *subscriber) push(evs []cqrs.RawEvent) {
	s.mu.Lock()
	for _, ev := range evs {
		s.q.Enqueue(ev)
	}
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) drain() []cqrs.RawEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cqrs.RawEvent, 0, s.q.Len())
	for s.q.Len() > 0 {
		out = append(out, s.q.Dequeue().(cqrs.RawEvent))
	}
	return out
}

func (m *Memory) StreamEvents(ctx context.Context, subject string, opts cqrs.StreamOptions) (<-chan cqrs.RawEvent, <-chan error) {
	var (
		out    = make(chan cqrs.RawEvent)
		errOut = make(chan error, 1)
	)
	go func() {
		defer close(errOut)
		defer close(out)

		f, err := newFilter(subject, opts)
		if err != nil {
			errOut <- Error{"stream-events", err}
			return
		}
		m.mu.RLock()
		if m.closed {
			m.mu.RUnlock()
			errOut <- Error{"stream-events", ErrClosed}
			return
		}
		evs := f.apply(m.events)
		m.mu.RUnlock()

		for _, ev := range evs {
			select {
			case out <- ev:
			case <-ctx.Done():
				errOut <- ctx.Err()
				return
			}
		}
	}()
	return out, errOut
}

// ObserveEvents streams history and then tails newly published events
// until ctx is done or the store is closed. UpperBound and
// LatestByEventType only apply to the historical part.
func (m *Memory) ObserveEvents(ctx context.Context, subject string, opts cqrs.StreamOptions) (<-chan cqrs.RawEvent, <-chan error) {
	var (
		out    = make(chan cqrs.RawEvent)
		errOut = make(chan error, 1)
	)
	go func() {
		defer close(errOut)
		defer close(out)

		f, err := newFilter(subject, opts)
		if err != nil {
			errOut <- Error{"observe-events", err}
			return
		}

		sub := &subscriber{q: queue.New(), notify: make(chan struct{}, 1)}
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			errOut <- Error{"observe-events", ErrClosed}
			return
		}
		m.subs[sub] = struct{}{}
		history := f.apply(m.events)
		m.mu.Unlock()

		defer func() {
			m.mu.Lock()
			delete(m.subs, sub)
			m.mu.Unlock()
		}()

		var last uint64
		if f.lower != nil {
			last = f.lower.seq
			if f.lower.inclusive && last > 0 {
				last--
			}
		}
		send := func(ev cqrs.RawEvent) bool {
			select {
			case out <- ev:
				last = mustSeq(ev.ID)
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, ev := range history {
			if !send(ev) {
				errOut <- ctx.Err()
				return
			}
		}

		live := f
		live.upper, live.latestByType = nil, ""
		for {
			select {
			case <-ctx.Done():
				errOut <- ctx.Err()
				return
			case <-m.closing:
				errOut <- Error{"observe-events", ErrClosed}
				return
			case <-sub.notify:
			}
			for _, ev := range sub.drain() {
				if mustSeq(ev.ID) <= last || !live.matches(ev) {
					continue
				}
				if !send(ev) {
					errOut <- ctx.Err()
					return
				}
			}
		}
	}()
	return out, errOut
}

func (m *Memory) PublishEvents(ctx context.Context, evs []cqrs.EventToPublish, preconditions []cqrs.Precondition) ([]cqrs.RawEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, ev := range evs {
		if ev.Type == "" || ev.Subject == "" {
			return nil, Error{"publish-events", errors.Errorf("event %d lacks type or subject", i)}
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, Error{"publish-events", ErrClosed}
	}

	all := append([]cqrs.Precondition{}, preconditions...)
	for _, ev := range evs {
		all = append(all, ev.Preconditions...)
	}
	for _, pc := range all {
		if err := m.check(pc); err != nil {
			m.mu.Unlock()
			return nil, err
		}
	}

	var (
		now    = m.clock.Now()
		stored = make([]cqrs.RawEvent, 0, len(evs))
	)
	for _, ev := range evs {
		seq := uint64(len(m.events) + 1)
		raw := cqrs.RawEvent{
			ID:       strconv.FormatUint(seq, 10),
			Type:     ev.Type,
			Source:   ev.Source,
			Subject:  ev.Subject,
			Time:     now,
			Data:     ev.Data,
			Metadata: ev.Metadata,
		}
		m.events = append(m.events, raw)
		m.lastBySubject[ev.Subject] = seq
		stored = append(stored, raw)
	}
	subs := make([]*subscriber, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.push(stored)
	}
	return stored, nil
}

// check must be called with the write lock held.
func (m *Memory) check(pc cqrs.Precondition) error {
	last, exists := m.lastBySubject[pc.Subject]
	switch pc.Kind {
	case cqrs.PreconditionSubjectNew:
		if exists {
			return &PreconditionFailed{pc, "subject has events"}
		}
	case cqrs.PreconditionSubjectExisting:
		if !exists {
			return &PreconditionFailed{pc, "subject has no events"}
		}
	case cqrs.PreconditionSubjectOnEventID:
		if !exists || strconv.FormatUint(last, 10) != pc.EventID {
			return &PreconditionFailed{pc, "subject is on event " + strconv.FormatUint(last, 10)}
		}
	default:
		return Error{"check-precondition", errors.Wrapf(cqrs.ErrUnsupportedPrecondition, "%q", pc.Kind)}
	}
	return nil
}

// Ping fails once the store is closed.
func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close ends all observers, further calls fail with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closing)
	}
	return nil
}

// Len returns the number of stored events.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// All returns a copy of every stored event in order.
func (m *Memory) All() []cqrs.RawEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]cqrs.RawEvent(nil), m.events...)
}
