package task

// Scheduler is the single external collaborator the task core depends
// on (spec.md §6). Schedule must accept ownership of exactly one
// reference count on h and guarantee h is polled again, exactly once
// per wake epoch, on some worker thread of the scheduler's choosing.
//
// Schedule must not block indefinitely; a scheduler backed by a bounded
// queue should apply backpressure (e.g. spin, queue elsewhere, or grow)
// rather than dropping the handle, since dropping it without polling
// leaks the reference count it was handed.
type Scheduler interface {
	Schedule(h *Handle)
}
