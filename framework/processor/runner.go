package processor

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Runner starts processors side by side, typically every partition of
// a few groups in one process.
type Runner struct{}

func NewRunner() *Runner {
	return &Runner{}
}

// Run blocks until ctx is done or one processor fails. Either way every
// processor is stopped before Run returns. A processor failing cancels
// the others and its error is returned, otherwise ctx.Err() is.
func (r *Runner) Run(ctx context.Context, processors ...*Processor) error {
	if len(processors) == 0 {
		return errors.New("processor: nothing to run")
	}
	for i, p := range processors {
		if p == nil {
			return errors.Errorf("processor: processor %d is nil", i)
		}
		if err := p.cfg.Validate(); err != nil {
			return errors.Wrapf(err, "processor %d", i)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		errc = make(chan error, len(processors))
	)
	for _, p := range processors {
		wg.Add(1)
		go func(p *Processor) {
			defer wg.Done()
			err := p.Start(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				errc <- errors.Wrapf(err, "processor %s/%d", p.cfg.Group, p.cfg.Partition)
			}
		}(p)
	}

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	for _, p := range processors {
		p.Stop()
	}
	cancel()
	wg.Wait()
	return err
}
