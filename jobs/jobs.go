// Package jobs tracks named, asynchronously-spawned tasks and garbage
// collects their bookkeeping once they are old enough, generalizing
// Guti2010-Proyecto-SO's internal/jobs: the teacher tracked HTTP job
// requests executed on a sched.Pool; this tracks task.Spawn calls
// executed on any task.Scheduler, keyed by a registered task-type name
// instead of an HTTP route.
package jobs

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"

	"rvkernel/task"
)

// Status mirrors the teacher's job lifecycle states.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusCancel  Status = "cancelled"
)

// Result is what a registered Factory's future resolves to.
type Result struct {
	Value any
	Err   error
}

// Factory builds the future a Submit call for this task name should
// run. params is opaque to this package, passed through from Submit.
type Factory func(params map[string]string) task.Future[Result]

// Job is a snapshot-safe record of one Submit call.
type Job struct {
	ID         string            `json:"id"`
	Task       string            `json:"task"`
	Params     map[string]string `json:"params,omitempty"`
	Status     Status            `json:"status"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	EndedAt    *time.Time        `json:"ended_at,omitempty"`
	Result     *Result           `json:"result,omitempty"`
}

// Manager is an in-memory registry of named task factories and the
// jobs submitted against them, TTL-collected in the background.
type Manager struct {
	sched task.Scheduler
	clock clockz.Clock

	mu        sync.RWMutex
	factories map[string]Factory
	jobs      map[string]*Job

	ttl   time.Duration
	stopC chan struct{}
}

// NewManager creates a Manager that spawns tasks on sched, stamps
// timestamps from clock, and garbage-collects finished jobs older than
// ttl. clock defaults to clockz.RealClock if nil.
func NewManager(sched task.Scheduler, ttl time.Duration, clock clockz.Clock) *Manager {
	if clock == nil {
		clock = clockz.RealClock
	}
	m := &Manager{
		sched:     sched,
		clock:     clock,
		factories: make(map[string]Factory),
		jobs:      make(map[string]*Job),
		ttl:       ttl,
		stopC:     make(chan struct{}),
	}
	go m.gcLoop()
	return m
}

// Close stops the background GC loop.
func (m *Manager) Close() { close(m.stopC) }

func (m *Manager) gcLoop() {
	for {
		select {
		case <-m.clock.After(time.Minute):
			m.cleanup()
		case <-m.stopC:
			return
		}
	}
}

func (m *Manager) cleanup() {
	cut := m.clock.Now().Add(-m.ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, j := range m.jobs {
		if finished(j.Status) && j.EndedAt != nil && j.EndedAt.Before(cut) {
			delete(m.jobs, id)
		}
	}
}

func finished(s Status) bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancel
}

// Register binds a task name to the factory Submit should build a
// future from for that name. Registering the same name twice is an
// error.
func (m *Manager) Register(name string, f Factory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.factories[name]; ok {
		return errors.New("jobs: task already registered")
	}
	m.factories[name] = f
	return nil
}

// Submit spawns taskName's factory in the background and returns a
// correlation ID the job can be tracked by. Returns ok=false if
// taskName was never Registered.
func (m *Manager) Submit(taskName string, params map[string]string) (id string, ok bool) {
	m.mu.RLock()
	factory, ok := m.factories[taskName]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}

	id = uuid.NewString()
	job := &Job{
		ID:         id,
		Task:       taskName,
		Params:     params,
		Status:     StatusQueued,
		EnqueuedAt: m.clock.Now(),
	}
	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	go m.run(job, factory(params))

	return id, true
}

// run spawns fut, tracks it to completion through a bridging task
// whose own Context drives the JoinHandle's waker protocol, and
// updates job with the outcome. It owns job's mutable fields from here
// on, same as the teacher's background goroutine did.
func (m *Manager) run(job *Job, fut task.Future[Result]) {
	start := m.clock.Now()
	m.mu.Lock()
	job.StartedAt = &start
	job.Status = StatusRunning
	m.mu.Unlock()

	_, j := task.Spawn[Result](m.sched, fut)

	ch := make(chan task.Outcome[Result], 1)
	task.Spawn[struct{}](m.sched, task.FutureFunc[struct{}](func(cx *task.Context) (struct{}, bool) {
		out, ready := j.Poll(cx)
		if !ready {
			return struct{}{}, false
		}
		ch <- out
		return struct{}{}, true
	}))

	out := <-ch
	end := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	job.EndedAt = &end
	job.Result = &out.Value

	switch {
	case out.Err == nil:
		job.Status = StatusDone
	default:
		var ce *task.CancelError[Result]
		if errors.As(out.Err, &ce) {
			job.Status = StatusCancel
		} else {
			job.Status = StatusFailed
		}
	}
}

// Snapshot returns a copy of the job record for id.
func (m *Manager) Snapshot(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// SnapshotJSON is the teacher's JSON-serialized snapshot view.
func (m *Manager) SnapshotJSON(id string) (string, bool) {
	j, ok := m.Snapshot(id)
	if !ok {
		return "", false
	}
	b, _ := json.Marshal(j)
	return string(b), true
}

// ListJSON lists every tracked job's identity and status.
func (m *Manager) ListJSON() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type lite struct {
		ID     string `json:"id"`
		Task   string `json:"task"`
		Status Status `json:"status"`
	}
	out := make([]lite, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, lite{ID: j.ID, Task: j.Task, Status: j.Status})
	}
	b, _ := json.Marshal(out)
	return string(b)
}
