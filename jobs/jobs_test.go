package jobs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"rvkernel/jobs"
	"rvkernel/scheduler"
	"rvkernel/task"
)

func newTestManager(t *testing.T, ttl time.Duration, clock clockz.Clock) (*jobs.Manager, *scheduler.Pool) {
	t.Helper()
	pool := scheduler.NewPool("jobs-test", 4, 32)
	pool.Start()
	t.Cleanup(pool.Close)
	m := jobs.NewManager(pool, ttl, clock)
	t.Cleanup(m.Close)
	return m, pool
}

func TestSubmitUnknownTaskFails(t *testing.T) {
	m, _ := newTestManager(t, time.Hour, clockz.RealClock)
	_, ok := m.Submit("does-not-exist", nil)
	require.False(t, ok)
}

func TestSubmitRunsToCompletion(t *testing.T) {
	m, _ := newTestManager(t, time.Hour, clockz.RealClock)
	require.NoError(t, m.Register("double", func(params map[string]string) task.Future[jobs.Result] {
		return task.FutureFunc[jobs.Result](func(cx *task.Context) (jobs.Result, bool) {
			return jobs.Result{Value: 2}, true
		})
	}))

	id, ok := m.Submit("double", nil)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		j, ok := m.Snapshot(id)
		return ok && j.Status == jobs.StatusDone
	}, time.Second, 5*time.Millisecond)

	j, ok := m.Snapshot(id)
	require.True(t, ok)
	require.Equal(t, 2, j.Result.Value)
	require.NotNil(t, j.StartedAt)
	require.NotNil(t, j.EndedAt)
}

func TestSubmitSurfacesFactoryPanicAsFailed(t *testing.T) {
	m, _ := newTestManager(t, time.Hour, clockz.RealClock)
	require.NoError(t, m.Register("boom", func(params map[string]string) task.Future[jobs.Result] {
		return task.FutureFunc[jobs.Result](func(cx *task.Context) (jobs.Result, bool) {
			panic("kaboom")
		})
	}))

	id, ok := m.Submit("boom", nil)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		j, ok := m.Snapshot(id)
		return ok && j.Status == jobs.StatusFailed
	}, time.Second, 5*time.Millisecond)
}

func TestListAndSnapshotJSON(t *testing.T) {
	m, _ := newTestManager(t, time.Hour, clockz.RealClock)
	require.NoError(t, m.Register("echo", func(params map[string]string) task.Future[jobs.Result] {
		return task.FutureFunc[jobs.Result](func(cx *task.Context) (jobs.Result, bool) {
			return jobs.Result{Value: params["msg"]}, true
		})
	}))

	id, ok := m.Submit("echo", map[string]string{"msg": "hi"})
	require.True(t, ok)

	require.Eventually(t, func() bool {
		j, ok := m.Snapshot(id)
		return ok && j.Status == jobs.StatusDone
	}, time.Second, 5*time.Millisecond)

	body, ok := m.SnapshotJSON(id)
	require.True(t, ok)
	require.Contains(t, body, `"id":"`+id+`"`)
	require.Contains(t, m.ListJSON(), id)
}

func TestCleanupRemovesExpiredJobsOnFakeClock(t *testing.T) {
	clock := clockz.NewFakeClock()
	m, _ := newTestManager(t, time.Minute, clock)
	require.NoError(t, m.Register("noop", func(params map[string]string) task.Future[jobs.Result] {
		return task.FutureFunc[jobs.Result](func(cx *task.Context) (jobs.Result, bool) {
			return jobs.Result{}, true
		})
	}))

	id, ok := m.Submit("noop", nil)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		j, ok := m.Snapshot(id)
		return ok && j.Status == jobs.StatusDone
	}, time.Second, 5*time.Millisecond)

	clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool {
		_, ok := m.Snapshot(id)
		return !ok
	}, time.Second, 5*time.Millisecond)
}
