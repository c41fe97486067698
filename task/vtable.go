package task

import "unsafe"

// pollResult is the typed outcome of polling a task handle, mirroring
// the outcomes end_poll/start_poll can produce (spec.md §4.1/§4.3).
type pollResult int

const (
	// PollReady means the task completed without waking a join waker.
	PollReady pollResult = iota
	// PollReadyJoined means the task completed and a stored join waker
	// was woken.
	PollReadyJoined
	// PollPending means the task is suspended and was not woken during
	// the poll; the scheduler may drop its handle.
	PollPending
	// PollPendingSchedule means the task woke itself (or was woken)
	// during the poll and must be re-enqueued.
	PollPendingSchedule
)

func (p pollResult) String() string {
	switch p {
	case PollReady:
		return "Ready"
	case PollReadyJoined:
		return "ReadyJoined"
	case PollPending:
		return "Pending"
	case PollPendingSchedule:
		return "PendingSchedule"
	default:
		return "Unknown"
	}
}

// vtable is the polymorphic dispatch table Spawn builds for each task it
// allocates; tasks of the same (Future, Scheduler) type pair do not share
// one. It has exactly the four entries spec.md §4.3 describes, in
// declaration order. Every entry is a Go closure captured over that
// task's concrete generic body and its scheduler at Spawn time —
// the idiomatic Go analog of the spec's per-monomorphization static
// function-pointer table, since Go erases generics at the
// unsafe.Pointer boundary the same way the source language needs an
// explicit vtable for an open-world future set.
type vtable struct {
	// poll casts the header pointer to the concrete task, runs
	// startPoll/Future.Poll/endPoll under a panic guard, and returns
	// the outcome.
	poll func(h *header) pollResult

	// pollJoin runs tryJoin and, on actionTakeOutput or a completed
	// cancellation, writes the output into out (which must point at a
	// result[T] for this task's T). On actionRegister/actionReregister
	// it stores cx's waker into the join-waker slot.
	pollJoin func(h *header, out unsafe.Pointer, cx *joinContext) joinPollOutcome

	// deallocate frees the full typed allocation. Only ever called
	// once dropRef reports the reference count reached zero.
	deallocate func(h *header)

	// wakeByRef performs the wake_by_ref state transition and, on
	// actionEnqueue, clones a ref and hands the task to the scheduler
	// this vtable was bound to at Spawn time.
	wakeByRef func(h *header)

	// scheduleRaw hands an already-owned reference (no additional
	// clone) to the scheduler this vtable was bound to. It backs
	// Waker.Wake's by-value enqueue path, which transfers rather than
	// clones a ref. It is plumbing, not one of the spec's four public
	// dispatch operations: Go closures provide the type erasure that
	// the spec's source language gets from a vtable pointer, so this
	// detail has nowhere else to live without adding a real fifth
	// dispatch entry.
	scheduleRaw func(h *header)
}

// joinContext carries the waker a JoinHandle wants registered if the
// task has not completed yet.
type joinContext struct {
	waker *Waker
}

// joinPollOutcome is the typed outcome of a pollJoin dispatch call.
type joinPollOutcome int

const (
	joinTook joinPollOutcome = iota
	joinCancelled
	joinRegistered
	joinPending // waker registered/reregistered, task still not complete
)

// stubVTable is shared by every stub sentinel task; every entry panics,
// since a stub is never meant to be polled, joined, woken, or — being
// statically or arena-held — deallocated through the normal path.
var stubVTable = &vtable{
	poll:        func(*header) pollResult { panic("task: poll called on stub task") },
	pollJoin:    func(*header, unsafe.Pointer, *joinContext) joinPollOutcome { panic("task: poll_join called on stub task") },
	deallocate:  func(*header) { panic("task: deallocate called on stub task") },
	wakeByRef:   func(*header) { panic("task: wake_by_ref called on stub task") },
	scheduleRaw: func(*header) { panic("task: schedule called on stub task") },
}
