package partition

import (
	"testing"

	"github.com/retro-framework/cqrskit/framework/cqrs"
	test "github.com/retro-framework/cqrskit/framework/test_helper"
)

func Test_Hash(t *testing.T) {
	// Values are fixed, changing them would reshuffle every deployed
	// partition assignment.
	test.H(t).IntEql(int(Hash("")), 0)
	test.H(t).IntEql(int(Hash("a")), 97)
	test.H(t).IntEql(int(Hash("/task/task-1")), -122575324)
	test.H(t).IntEql(int(Hash("/task/t1")), -1229579272)
}

func Test_DefaultKeyResolver_Resolve(t *testing.T) {

	t.Run("is stable and in range", func(t *testing.T) {
		t.Parallel()
		r := NewDefaultKeyResolver(10)
		first := r.Resolve("/task/task-1")
		for i := 0; i < 100; i++ {
			test.H(t).IntEql(r.Resolve("/task/task-1"), first)
		}
		test.H(t).IntEql(first, 4)
		test.H(t).IntEql(NewDefaultKeyResolver(10).Resolve("/task/task-2"), 3)
	})

	t.Run("spreads over all partitions", func(t *testing.T) {
		t.Parallel()
		r := NewDefaultKeyResolver(4)
		seen := map[int]bool{}
		for _, s := range []string{"/task/t1", "/task/t2", "/task/t3", "/task/t4"} {
			p := r.Resolve(s)
			test.H(t).BoolEql(p >= 0 && p < 4, true)
			seen[p] = true
		}
		test.H(t).IntEql(len(seen), 4)
	})

	t.Run("one partition owns everything", func(t *testing.T) {
		t.Parallel()
		test.H(t).IntEql(NewDefaultKeyResolver(1).Resolve("/task/t1"), 0)
		test.H(t).IntEql(NewDefaultKeyResolver(0).Resolve("/task/t1"), 0)
	})
}

func Test_SequenceResolvers(t *testing.T) {
	raw := cqrs.RawEvent{Subject: "/task/t1/comments/c1"}

	id, ok := Subject{}.ResolveRaw(raw)
	test.H(t).BoolEql(ok, true)
	test.H(t).StringEql(id, "/task/t1/comments/c1")

	id, ok = SubjectSegments{N: 2}.ResolveRaw(raw)
	test.H(t).BoolEql(ok, true)
	test.H(t).StringEql(id, "/task/t1")
	test.H(t).StringEql(SubjectSegments{N: 2}.ResolveConverted(nil, nil, raw), "/task/t1")
	test.H(t).StringEql(SubjectSegments{N: 5}.ResolveConverted(nil, nil, raw), "/task/t1/comments/c1")

	byAssignee := PayloadFunc(func(ev cqrs.Event, _ cqrs.Metadata, _ cqrs.RawEvent) string {
		return ev.(string)
	})
	_, ok = byAssignee.ResolveRaw(raw)
	test.H(t).BoolEql(ok, false)
	test.H(t).StringEql(byAssignee.ResolveConverted("alice", nil, raw), "alice")
}
