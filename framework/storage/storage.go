// Package storage holds what the bundled cqrs.ProgressTracker
// implementations share. The implementations live in the memory, redis
// and postgres sub packages.
package storage

import (
	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/framework/cqrs"
)

// Advance applies next to cur and validates the result. A tracker must
// never go from a recorded position back to the beginning.
func Advance(cur cqrs.Progress, next func(cqrs.Progress) (cqrs.Progress, error)) (cqrs.Progress, error) {
	p, err := next(cur)
	if err != nil {
		return cqrs.Progress{}, errors.Wrap(err, "storage: computing next progress")
	}
	if !cur.AtStart() && p.AtStart() {
		return cqrs.Progress{}, ErrProgressRewind
	}
	return p, nil
}
