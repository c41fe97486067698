package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rvkernel/task"
)

func TestPoolRunsSpawnedTasks(t *testing.T) {
	pool := NewPool("test", 4, 16)
	pool.Start()
	defer pool.Close()

	const n = 20
	done := make(chan int, n)

	for i := 0; i < n; i++ {
		i := i
		_, j := task.Spawn[int](pool, task.FutureFunc[int](func(cx *task.Context) (int, bool) {
			done <- i
			return i, true
		}))
		j.Close()
	}

	seen := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		select {
		case v := <-done:
			seen[v] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for task %d/%d", i, n)
		}
	}
	require.Len(t, seen, n)
}

func TestPoolPriorityOrdering(t *testing.T) {
	pool := NewPool("prio", 1, 16)

	order := make(chan string, 3)
	spawn := func(name string, prio Priority) {
		_, j := task.Spawn[int](&manualScheduler{pool: pool, prio: prio}, task.FutureFunc[int](func(cx *task.Context) (int, bool) {
			order <- name
			return 0, true
		}))
		j.Close()
	}

	// Fill the queues before starting any worker, so the first poll
	// loop iteration must choose among all three.
	spawn("low", Low)
	spawn("norm", Normal)
	spawn("high", High)

	pool.Start()
	defer pool.Close()

	first := <-order
	require.Equal(t, "high", first)
}

// manualScheduler routes Spawn's initial Schedule call through a chosen
// priority queue instead of always Normal, so the priority-ordering
// test can seed all three queues before Start.
type manualScheduler struct {
	pool *Pool
	prio Priority
}

func (m *manualScheduler) Schedule(h *task.Handle) {
	m.pool.ScheduleAt(h, m.prio)
}

func TestTryScheduleAtRejectsWhenFull(t *testing.T) {
	pool := NewPool("tiny", 1, 4) // qHigh capacity ends up 1, never drained

	require.True(t, pool.TryScheduleAt(task.NewStub(), High))
	require.False(t, pool.TryScheduleAt(task.NewStub(), High))
	require.Equal(t, uint64(1), pool.rejected.Load())
}

func TestMetricsSnapshot(t *testing.T) {
	pool := NewPool("metrics", 2, 8)
	pool.Start()
	defer pool.Close()

	done := make(chan struct{}, 4)
	for i := 0; i < 4; i++ {
		_, j := task.Spawn[int](pool, task.FutureFunc[int](func(cx *task.Context) (int, bool) {
			done <- struct{}{}
			return 0, true
		}))
		j.Close()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	// Give the worker a moment to finish its bookkeeping after the
	// future returned ready but before dispatch records completion.
	require.Eventually(t, func() bool {
		return pool.Metrics().Completed == 4
	}, time.Second, 5*time.Millisecond)
}
