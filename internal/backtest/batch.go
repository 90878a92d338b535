package backtest

import (
	"context"
	"sync"
)

// Result pairs one batch entry with its outcome. Index is the spec's
// position in the submitted slice.
type Result struct {
	Index  int
	Report *Report
	Err    error
}

// RunBatch executes the specs concurrently on at most workers goroutines.
// Each run is fully isolated: its own strategy instance, simulator, and
// ledger. Results come back ordered by submission index regardless of
// completion order.
func (r *Runner) RunBatch(ctx context.Context, specs []Spec, workers int) []Result {
	results := make([]Result, len(specs))
	if len(specs) == 0 {
		return results
	}
	if workers < 1 {
		workers = 1
	}

	jobCh := make(chan int, len(specs))
	for i := range specs {
		jobCh <- i
	}
	close(jobCh)

	var wg sync.WaitGroup
	workers = min(workers, len(specs))
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				report, err := r.Run(ctx, specs[idx])
				results[idx] = Result{Index: idx, Report: report, Err: err}
			}
		}()
	}
	wg.Wait()
	return results
}
