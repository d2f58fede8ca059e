// Package fanout runs bounded parallel work with a deadline and salvages
// whatever finished in time.
package fanout

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/semaphore"
)

// Options bound a Gather call.
type Options struct {
	// Width caps concurrent calls; 0 means unbounded.
	Width int
	// Timeout is the phase deadline; 0 means only the parent context applies.
	Timeout time.Duration
}

// Outcome is the result of one item.
type Outcome[R any] struct {
	Index int
	Value R
	Err   error
}

// Gather calls fn for every item concurrently and returns the outcomes that
// completed before the deadline, in completion order. Calls still running at
// the deadline see a cancelled context; their results are discarded.
func Gather[T, R any](ctx context.Context, items []T, opts Options, fn func(context.Context, T) (R, error)) []Outcome[R] {
	if len(items) == 0 {
		return nil
	}
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	var sem *semaphore.Weighted
	if opts.Width > 0 {
		sem = semaphore.NewWeighted(int64(opts.Width))
	}

	// Buffered so late finishers never block after Gather returns.
	results := make(chan Outcome[R], len(items))
	for i, item := range items {
		go func() {
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					var zero R
					results <- Outcome[R]{Index: i, Value: zero, Err: err}
					return
				}
				defer sem.Release(1)
			}
			v, err := fn(ctx, item)
			results <- Outcome[R]{Index: i, Value: v, Err: err}
		}()
	}

	out := make([]Outcome[R], 0, len(items))
	for len(out) < len(items) {
		select {
		case o := <-results:
			out = append(out, o)
		case <-ctx.Done():
			return drain(results, out)
		}
	}
	return out
}

// drain collects outcomes that are already buffered without waiting.
func drain[R any](results chan Outcome[R], out []Outcome[R]) []Outcome[R] {
	for {
		select {
		case o := <-results:
			out = append(out, o)
		default:
			return out
		}
	}
}

// Values splits outcomes into successful values and errors.
func Values[R any](outs []Outcome[R]) ([]R, []error) {
	vals := make([]R, 0, len(outs))
	var errs []error
	for _, o := range outs {
		if o.Err != nil {
			errs = append(errs, o.Err)
			continue
		}
		vals = append(vals, o.Value)
	}
	return vals, errs
}

// Batch partitions items into consecutive slices of at most size.
func Batch[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end:end])
	}
	return out
}

// Shuffle randomizes order in place.
func Shuffle[T any](items []T) {
	rand.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
}

// Sample returns up to n items chosen uniformly without replacement; the
// input is not modified.
func Sample[T any](items []T, n int) []T {
	cp := append([]T(nil), items...)
	if n >= len(cp) {
		Shuffle(cp)
		return cp
	}
	for i := 0; i < n; i++ {
		j := i + rand.IntN(len(cp)-i)
		cp[i], cp[j] = cp[j], cp[i]
	}
	return cp[:n]
}
