// Command kerneldemo boots a scheduler.Pool and jobs.Manager and
// submits a handful of demo jobs, grounded on Guti2010-Proyecto-SO's
// cmd/server/main.go: env-var-driven pool sizing, a startup log line,
// and signal-driven graceful shutdown, adapted from configuring an
// HTTP router's per-route worker pools to configuring one task
// scheduler and its registered job factories.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"rvkernel/jobs"
	"rvkernel/scheduler"
	"rvkernel/task"
)

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	task.SetLogger(logger)

	metrics := metricz.New()
	tracer := tracez.New()
	defer tracer.Close()
	hooks := hookz.New[scheduler.Event]()

	// Bounds total concurrent polls across the pool independent of its
	// worker count, the way a process-wide CPU budget would be shared
	// across several pools in a bigger deployment.
	sem := semaphore.NewWeighted(int64(getenvInt("KERNEL_MAX_CONCURRENT_POLLS", 8)))

	pool := scheduler.NewPool(
		"kernel",
		getenvInt("KERNEL_WORKERS", 4),
		getenvInt("KERNEL_QUEUE_CAP", 64),
		scheduler.WithSemaphore(sem),
		scheduler.WithMetrics(metrics),
		scheduler.WithTracer(tracer),
		scheduler.WithHooks(hooks),
		scheduler.WithClock(clockz.RealClock),
	)
	pool.Start()

	if _, err := hooks.Hook(scheduler.HookTaskSettled, func(_ context.Context, ev scheduler.Event) error {
		logger.Debug("task settled", zap.String("pool", ev.Pool), zap.Uint64("task_id", uint64(ev.TaskID)))
		return nil
	}); err != nil {
		logger.Warn("failed to attach settle hook", zap.Error(err))
	}
	defer hooks.Close()

	jobTTL := time.Duration(getenvInt("KERNEL_JOB_TTL_MINUTES", 30)) * time.Minute
	manager := jobs.NewManager(pool, jobTTL, clockz.RealClock)

	mustRegister(manager, "isprime", func(params map[string]string) task.Future[jobs.Result] {
		n, _ := strconv.ParseUint(params["n"], 10, 64)
		return newMillerRabinFuture(n)
	})
	mustRegister(manager, "echo", func(params map[string]string) task.Future[jobs.Result] {
		msg := params["msg"]
		return task.FutureFunc[jobs.Result](func(cx *task.Context) (jobs.Result, bool) {
			return jobs.Result{Value: msg}, true
		})
	})

	logger.Info("kerneldemo starting",
		zap.Int("workers", getenvInt("KERNEL_WORKERS", 4)),
		zap.Int("queue_cap", getenvInt("KERNEL_QUEUE_CAP", 64)),
	)

	demoIDs := submitDemoJobs(manager, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go watchDemoJobs(manager, demoIDs, logger, done)

	select {
	case <-quit:
		logger.Info("signal received, shutting down")
	case <-done:
		logger.Info("demo jobs finished, shutting down")
	}

	manager.Close()
	pool.Close()
	logger.Info("final metrics", zap.String("snapshot", fmt.Sprintf("%+v", pool.Metrics())))
}

func mustRegister(m *jobs.Manager, name string, f jobs.Factory) {
	if err := m.Register(name, f); err != nil {
		panic(err)
	}
}

func submitDemoJobs(m *jobs.Manager, logger *zap.Logger) []string {
	inputs := []string{"97", "100", "7919", "600851475143"}
	ids := make([]string, 0, len(inputs)+1)

	for _, n := range inputs {
		id, ok := m.Submit("isprime", map[string]string{"n": n})
		if !ok {
			logger.Warn("submit failed", zap.String("task", "isprime"))
			continue
		}
		ids = append(ids, id)
	}

	id, ok := m.Submit("echo", map[string]string{"msg": "kernel online"})
	if ok {
		ids = append(ids, id)
	}
	return ids
}

// watchDemoJobs polls Snapshot until every demo job has settled, then
// logs each result and closes done. A real deployment would expose
// Snapshot/ListJSON over a transport instead of polling in-process;
// this loop only exists to give the demo binary something to do before
// it idles waiting for a shutdown signal.
func watchDemoJobs(m *jobs.Manager, ids []string, logger *zap.Logger, done chan<- struct{}) {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		allDone := true
		for _, id := range ids {
			j, ok := m.Snapshot(id)
			if !ok {
				continue
			}
			if j.Status == jobs.StatusQueued || j.Status == jobs.StatusRunning {
				allDone = false
				continue
			}
		}
		if allDone {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	for _, id := range ids {
		j, ok := m.Snapshot(id)
		if !ok {
			continue
		}
		logger.Info("job settled",
			zap.String("id", j.ID),
			zap.String("task", j.Task),
			zap.String("status", string(j.Status)),
		)
	}
	close(done)
}
