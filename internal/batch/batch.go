package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Options tunes one Run call. Concurrency is a capacity knob, not a
// correctness one: too high exhausts the database pool or trips upstream
// rate limits, too low just lengthens wall-clock time.
type Options[T any] struct {
	Concurrency int
	// DelayBetweenBatches paces a rate-limited upstream. The delay sits
	// between chunks, never between items of one chunk.
	DelayBetweenBatches time.Duration
	OnProgress          func(processed, total int)
	OnItemSuccess       func(item T)
	OnItemError         func(item T, err error)
}

// ItemResult records one item's final outcome.
type ItemResult[T any] struct {
	Item     T
	Err      error
	Attempts int
}

// Result aggregates a Run. Successful+Failed == Total always, and Results
// preserves the input order.
type Result[T any] struct {
	Total      int
	Successful int
	Failed     int
	Results    []ItemResult[T]
	Duration   time.Duration
}

// Run executes op over items in consecutive chunks of size Concurrency.
// All items of a chunk settle before the next chunk starts, which bounds
// peak concurrency exactly and gives a natural checkpoint for progress
// callbacks and pacing, at the cost of head-of-line blocking. One item's
// failure never aborts siblings or later chunks.
func Run[T any](ctx context.Context, items []T, op func(ctx context.Context, item T) error, opts Options[T]) Result[T] {
	return runIndexed(ctx, items, func(ctx context.Context, _ int, item T) (int, error) {
		return 1, op(ctx, item)
	}, opts)
}

// RunWithRetry behaves like Run but retries each failing item up to
// maxRetries extra attempts with a fixed delay between them. Retries are
// local to the item and never re-enter the chunk structure.
func RunWithRetry[T any](ctx context.Context, items []T, op func(ctx context.Context, item T) error, opts Options[T], maxRetries int, retryDelay time.Duration) Result[T] {
	return runIndexed(ctx, items, func(ctx context.Context, _ int, item T) (int, error) {
		var err error
		for attempt := 1; attempt <= maxRetries+1; attempt++ {
			if attempt > 1 {
				select {
				case <-ctx.Done():
					return attempt - 1, ctx.Err()
				case <-time.After(retryDelay):
				}
			}
			if err = op(ctx, item); err == nil {
				return attempt, nil
			}
		}
		return maxRetries + 1, err
	}, opts)
}

func runIndexed[T any](ctx context.Context, items []T, op func(ctx context.Context, i int, item T) (attempts int, err error), opts Options[T]) Result[T] {
	start := time.Now()
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	res := Result[T]{
		Total:   len(items),
		Results: make([]ItemResult[T], len(items)),
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	for chunkStart := 0; chunkStart < len(items); chunkStart += concurrency {
		chunkEnd := chunkStart + concurrency
		if chunkEnd > len(items) {
			chunkEnd = len(items)
		}

		var wg sync.WaitGroup
		for i := chunkStart; i < chunkEnd; i++ {
			i := i
			if err := sem.Acquire(ctx, 1); err != nil {
				// Context gone; record without starting the item.
				res.Results[i] = ItemResult[T]{Item: items[i], Err: err}
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				attempts, err := safeCall(ctx, i, items[i], op)
				res.Results[i] = ItemResult[T]{Item: items[i], Err: err, Attempts: attempts}
			}()
		}
		wg.Wait()

		for i := chunkStart; i < chunkEnd; i++ {
			if res.Results[i].Err != nil {
				res.Failed++
				if opts.OnItemError != nil {
					opts.OnItemError(items[i], res.Results[i].Err)
				}
			} else {
				res.Successful++
				if opts.OnItemSuccess != nil {
					opts.OnItemSuccess(items[i])
				}
			}
		}

		if opts.OnProgress != nil {
			opts.OnProgress(chunkEnd, len(items))
		}

		if opts.DelayBetweenBatches > 0 && chunkEnd < len(items) {
			select {
			case <-ctx.Done():
			case <-time.After(opts.DelayBetweenBatches):
			}
		}
	}

	res.Duration = time.Since(start)
	return res
}

// safeCall runs op with panic recovery so a panicking item surfaces as
// that item's error instead of taking the whole process down.
func safeCall[T any](ctx context.Context, i int, item T, op func(ctx context.Context, i int, item T) (int, error)) (attempts int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in batch operation: %v\n%s", r, debug.Stack())
		}
	}()
	return op(ctx, i, item)
}
