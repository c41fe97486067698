package task

import (
	"unsafe"

	"github.com/zoobzio/tracez"
)

// SpawnOption configures a task at Spawn time.
type SpawnOption func(*spawnConfig)

type spawnConfig struct {
	tracer *tracez.Tracer
}

// WithTracer attaches a diagnostic span producer to the spawned task.
// Omitted by default, matching spec.md's allowance to drop the
// diagnostic field entirely when no tracer is configured.
func WithTracer(t *tracez.Tracer) SpawnOption {
	return func(c *spawnConfig) { c.tracer = t }
}

// Spawn allocates a task wrapping fut, binds a vtable around it for
// sched, hands the scheduler its first reference, and returns a Handle
// and JoinHandle for the two remaining references — exactly the ref
// count of 3 initialState starts with (spec.md §3/§9).
func Spawn[T any](sched Scheduler, fut Future[T], opts ...SpawnOption) (*Handle, *JoinHandle[T]) {
	cfg := spawnConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	t := &taskImpl[T]{future: fut}
	t.hdr.state = initialState()
	t.hdr.id = newID()
	t.hdr.trace = cfg.tracer

	t.hdr.vtable = &vtable{
		poll: func(*header) pollResult {
			return pollTask(t)
		},
		pollJoin: func(_ *header, out unsafe.Pointer, cx *joinContext) joinPollOutcome {
			return pollJoinTask(t, out, cx)
		},
		deallocate: func(*header) {
			// Nothing to free explicitly: Go's GC reclaims the
			// allocation once every *Handle/*Waker referencing it is
			// gone, which dropRef's zero-count result already implies.
		},
		wakeByRef: func(h *header) {
			if h.state.wakeByRef() == actionEnqueue {
				h.state.cloneRef()
				sched.Schedule(&Handle{hdr: h})
			}
		},
		scheduleRaw: func(h *header) {
			sched.Schedule(&Handle{hdr: h})
		},
	}

	schedulerHandle := &Handle{hdr: &t.hdr}
	publicHandle := &Handle{hdr: &t.hdr}
	joinHandle := &JoinHandle[T]{h: &Handle{hdr: &t.hdr}}

	sched.Schedule(schedulerHandle)
	return publicHandle, joinHandle
}
