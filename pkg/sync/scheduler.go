package sync

import (
	"context"
	goSync "sync"
)

// Schedule runs `fetch` for every task on at most `workers` goroutines.
// Results are handed to `record` one at a time on the calling goroutine, so
// `record` needs no locking of its own. Every task produces exactly one
// Result, even after `ctx` is cancelled, and Schedule returns once all of
// them have been recorded.
func Schedule(ctx context.Context, workers int, tasks []Task,
	fetch func(context.Context, Task) Result, record func(Result)) {

	if len(tasks) == 0 {
		return
	}

	numWorkers := workers
	if numWorkers < 1 {
		numWorkers = 1
	}
	if len(tasks) < numWorkers {
		numWorkers = len(tasks)
	}

	var wg goSync.WaitGroup
	taskChan := make(chan Task, numWorkers*2)
	results := make(chan Result, numWorkers)
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskChan {
				results <- fetch(ctx, task)
			}
		}()
	}

	// Feed the workers.
	go func() {
		for _, task := range tasks {
			taskChan <- task
		}
		close(taskChan)

		wg.Wait()
		close(results)
	}()

	for res := range results {
		record(res)
	}
}
