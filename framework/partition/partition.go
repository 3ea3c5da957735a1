package partition

import (
	"strings"
	"unicode/utf16"

	"github.com/retro-framework/cqrskit/framework/cqrs"
)

// DefaultKeyResolver hashes sequence ids with a 32 bit rolling hash
// (h = h*31 + c over UTF-16 code units, wrapping on overflow) and
// reduces the absolute value modulo the partition count. It is not well
// distributed but it is a pure function of the input, which is all that
// partition stability needs.
type DefaultKeyResolver struct {
	partitions int
}

func NewDefaultKeyResolver(partitions int) DefaultKeyResolver {
	return DefaultKeyResolver{partitions: partitions}
}

func (r DefaultKeyResolver) Partitions() int { return r.partitions }

func (r DefaultKeyResolver) Resolve(sequenceID string) int {
	if r.partitions <= 1 {
		return 0
	}
	h := int64(Hash(sequenceID))
	if h < 0 {
		h = -h
	}
	return int(h % int64(r.partitions))
}

// Hash is the rolling hash used by DefaultKeyResolver.
func Hash(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	return h
}

// Subject uses the full subject as sequence id, every subject is
// processed in order on its own.
type Subject struct{}

func (Subject) ResolveRaw(raw cqrs.RawEvent) (string, bool) {
	return raw.Subject, true
}

func (Subject) ResolveConverted(_ cqrs.Event, _ cqrs.Metadata, raw cqrs.RawEvent) string {
	return raw.Subject
}

// SubjectSegments uses the first N path segments of the subject, so
// that "/task/t1/comments/c1" and "/task/t1" land on the same partition
// with N=2.
type SubjectSegments struct {
	N int
}

func (s SubjectSegments) ResolveRaw(raw cqrs.RawEvent) (string, bool) {
	return s.truncate(raw.Subject), true
}

func (s SubjectSegments) ResolveConverted(_ cqrs.Event, _ cqrs.Metadata, raw cqrs.RawEvent) string {
	return s.truncate(raw.Subject)
}

func (s SubjectSegments) truncate(subject string) string {
	segs := cqrs.SubjectSegments(subject)
	if s.N > 0 && len(segs) > s.N {
		segs = segs[:s.N]
	}
	return "/" + strings.Join(segs, "/")
}

// PayloadFunc derives the sequence id from the decoded event. Ownership
// of an event is then only decided after deserialization.
type PayloadFunc func(ev cqrs.Event, md cqrs.Metadata, raw cqrs.RawEvent) string

func (f PayloadFunc) ResolveRaw(cqrs.RawEvent) (string, bool) { return "", false }

func (f PayloadFunc) ResolveConverted(ev cqrs.Event, md cqrs.Metadata, raw cqrs.RawEvent) string {
	return f(ev, md, raw)
}
