package test_helper

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func H(t testing.TB) helper {
	t.Helper()
	return helper{t}
}

type helper struct {
	t testing.TB
}

func (h helper) TypeEql(got, want interface{}) {
	h.t.Helper()
	// check obvious case
	if got == nil && want == nil {
		return
	}
	// check for type equality
	if strings.Compare(fmt.Sprintf("%T", got), fmt.Sprintf("%T", want)) != 0 {
		h.t.Fatalf("type equality assertion failed, got %q wanted %q", fmt.Sprintf("%T", got), fmt.Sprintf("%T", want))
	}
}

func (h helper) IntEql(got, want int) {
	h.t.Helper()
	if got != want {
		h.t.Fatalf("int equality assertion failed, got %d wanted %d", got, want)
	}
}

func (h helper) StringEql(got, want string) {
	h.t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		h.t.Errorf("string equality assertion failed (-want +got)\n%s", diff)
	}
}

func (h helper) StringContains(got, want string) {
	h.t.Helper()
	if !strings.Contains(got, want) {
		h.t.Fatalf("string containment assertion failed, %q does not contain %q", got, want)
	}
}

func (h helper) InterfaceEql(got, want interface{}, opts ...cmp.Option) {
	h.t.Helper()
	if diff := cmp.Diff(want, got, opts...); diff != "" {
		h.t.Errorf("equality assertion failed (-want +got)\n%s", diff)
	}
}

func (h helper) ErrEql(got, want error) {
	h.t.Helper()
	if got == nil && want == nil {
		return
	}
	if got == nil || want == nil {
		h.t.Fatalf("error equality assertion failed, got %v wanted %v", got, want)
	}
	if got.Error() != want.Error() {
		h.t.Fatalf("error equality assertion failed, got %q wanted %q", got, want.Error())
	}
}

// ErrIs asserts errors.Is(got, want).
func (h helper) ErrIs(got, want error) {
	h.t.Helper()
	if !errors.Is(got, want) {
		h.t.Fatalf("error chain assertion failed, %v is not %v", got, want)
	}
}

func (h helper) IsNil(any interface{}) {
	h.t.Helper()
	if any != nil {
		h.t.Fatalf("wanted nil, got %v", any)
	}
}

func (h helper) NotNil(any interface{}) {
	h.t.Helper()
	if any == nil {
		h.t.Fatalf("wanted not nil, got %v", any)
	}
}

func (h helper) BoolEql(got, want bool) {
	h.t.Helper()
	if got != want {
		h.t.Fatalf("boolean equality assertion failed, got %t wanted %t", got, want)
	}
}
