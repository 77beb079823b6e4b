package sync

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sidkik/drivesync/pkg/progress"
)

func makeTasks(n int) []Task {
	var tasks []Task
	for i := 0; i < n; i++ {
		tasks = append(tasks, fileTask(fmt.Sprintf("id-%d", i), fmt.Sprintf("/mirror/%d", i)))
	}
	return tasks
}

func TestScheduleBoundsConcurrency(t *testing.T) {
	const numTasks, workers = 200, 4

	var active, maxActive int32
	fetch := func(_ context.Context, task Task) Result {
		now := atomic.AddInt32(&active, 1)
		for {
			prev := atomic.LoadInt32(&maxActive)
			if now <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, now) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&active, -1)

		outcome := progress.Downloaded
		if len(task.Path)%2 == 0 {
			outcome = progress.Failed
		}
		return Result{Task: task, Outcome: outcome, Bytes: 1}
	}

	reporter := progress.NewReporter(nil, nil)
	reporter.AddTotal(numTasks)
	recorded := map[string]int{}
	Schedule(context.Background(), workers, makeTasks(numTasks), fetch, func(res Result) {
		recorded[res.Task.Path]++
		reporter.Record(res.Outcome, res.Bytes)
	})

	assert.Len(t, recorded, numTasks)
	for path, count := range recorded {
		assert.Equal(t, 1, count, path)
	}
	assert.True(t, maxActive <= workers, "max active workers: %d", maxActive)
	assert.True(t, maxActive > 0)

	counters := reporter.Snapshot()
	assert.Equal(t, numTasks, counters.Done())
	assert.Equal(t, counters.Total, counters.Downloaded+counters.Skipped+counters.Failed)
	assert.Equal(t, int64(numTasks), reporter.Bytes())
}

func TestScheduleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls int32
	fetch := func(ctx context.Context, task Task) Result {
		if atomic.AddInt32(&calls, 1) == 5 {
			cancel()
		}
		if err := ctx.Err(); err != nil {
			return failed(task, err)
		}
		return Result{Task: task, Outcome: progress.Downloaded}
	}

	var results []Result
	Schedule(ctx, 2, makeTasks(50), fetch, func(res Result) {
		results = append(results, res)
	})

	assert.Len(t, results, 50)
	var failures int
	for _, res := range results {
		if res.Outcome == progress.Failed {
			failures++
		}
	}
	assert.True(t, failures >= 45, "failures: %d", failures)
}

func TestScheduleNoTasks(t *testing.T) {
	Schedule(context.Background(), 4, nil, func(context.Context, Task) Result {
		t.Fatal("fetch shouldn't be called")
		return Result{}
	}, func(Result) {
		t.Fatal("record shouldn't be called")
	})
}

func TestScheduleSingleWorkerMinimum(t *testing.T) {
	var count int
	Schedule(context.Background(), 0, makeTasks(3), func(_ context.Context, task Task) Result {
		return Result{Task: task}
	}, func(Result) {
		count++
	})
	assert.Equal(t, 3, count)
}
