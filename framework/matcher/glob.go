package matcher

import (
	"github.com/pkg/errors"
	"github.com/zyedidia/glob"
)

// Glob matches whole subjects against shell style patterns. "*" matches
// across "/" so "/task/*" matches every descendant of "/task", "?"
// matches one character and "{a,b}" alternatives.
type Glob struct {
	pattern string
	g       *glob.Glob
}

// Compile returns a Glob for pattern.
func Compile(pattern string) (*Glob, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "can't compile glob pattern %q", pattern)
	}
	return &Glob{pattern: pattern, g: g}, nil
}

// MustCompile is like Compile but panics on invalid patterns, for use
// in composition code with literal patterns.
func MustCompile(pattern string) *Glob {
	g, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return g
}

func (m *Glob) Pattern() string { return m.pattern }

func (m *Glob) DoesMatch(subject string) bool {
	return m.g.MatchString(subject)
}
