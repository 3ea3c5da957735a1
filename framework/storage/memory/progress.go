package memory

import (
	"context"
	"sync"

	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/storage"
)

type progressKey struct {
	group     string
	partition int
}

// ProgressTracker keeps progress in a map, it's what tests and single
// process deployments which replay from scratch on start use.
type ProgressTracker struct {
	sync.RWMutex
	progress map[progressKey]cqrs.Progress
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{progress: map[progressKey]cqrs.Progress{}}
}

func (pt *ProgressTracker) Current(_ context.Context, group string, partition int) (cqrs.Progress, error) {
	pt.RLock()
	defer pt.RUnlock()
	return pt.progress[progressKey{group, partition}], nil
}

func (pt *ProgressTracker) Proceed(_ context.Context, group string, partition int, next func(cqrs.Progress) (cqrs.Progress, error)) error {
	pt.Lock()
	defer pt.Unlock()
	k := progressKey{group, partition}
	p, err := storage.Advance(pt.progress[k], next)
	if err != nil {
		return err
	}
	pt.progress[k] = p
	return nil
}

// Reset forgets the progress of a group partition, the next processor
// started for it begins at the start of the stream.
func (pt *ProgressTracker) Reset(group string, partition int) {
	pt.Lock()
	defer pt.Unlock()
	delete(pt.progress, progressKey{group, partition})
}
