// Package concurrency provides an order-preserving bounded worker pool.
//
// Invariants:
// - result[i] always corresponds to items[i], independent of completion order.
// - Each index is claimed by exactly one worker and written only by that worker.
// - The first mapper error fails the whole call; no partial results are returned.
//
// Usage:
//
//	out, err := concurrency.Map(ctx, commands, 4, func(ctx context.Context, cmd string, i int) (string, error) {
//		return run(ctx, cmd)
//	})
package concurrency

import (
	"context"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Mapper transforms one item. index is the item's position in the input.
type Mapper[T, R any] func(ctx context.Context, item T, index int) (R, error)

// NormalizeLimit coerces a concurrency bound: anything below 1 becomes 1.
func NormalizeLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	return limit
}

// NormalizeLimitFloat floors a fractional bound and applies NormalizeLimit.
// NaN and negative values become 1.
func NormalizeLimitFloat(limit float64) int {
	if math.IsNaN(limit) || limit < 1 {
		return 1
	}
	if limit > math.MaxInt32 {
		return math.MaxInt32
	}
	return NormalizeLimit(int(math.Floor(limit)))
}

// Map applies fn to every item using at most limit concurrent workers and
// returns the results in input order.
func Map[T, R any](ctx context.Context, items []T, limit int, fn Mapper[T, R]) ([]R, error) {
	if len(items) == 0 {
		return []R{}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	workers := NormalizeLimit(limit)
	if workers > len(items) {
		workers = len(items)
	}

	results := make([]R, len(items))
	var cursor atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				// stop claiming once a sibling has failed
				if gctx.Err() != nil && ctx.Err() == nil {
					return nil
				}
				i := int(cursor.Add(1) - 1)
				if i >= len(items) {
					return nil
				}
				r, err := fn(ctx, items[i], i)
				if err != nil {
					return err
				}
				results[i] = r
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
