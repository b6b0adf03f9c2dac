package sim

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunAll runs independent loops concurrently, at most limit at a time
// (no limit when limit <= 0). Results keep the order of loops. Each loop
// must own its controller.
func RunAll(ctx context.Context, loops []*Loop, limit int) ([]*Result, error) {
	results := make([]*Result, len(loops))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, l := range loops {
		i, l := i, l
		g.Go(func() error {
			res, err := l.Run(ctx)
			results[i] = res
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
