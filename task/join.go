package task

import "unsafe"

// Outcome is what a JoinHandle[T] resolves to: either a value with a
// nil Err, or an Err that is either a *CancelError[T] or a
// *PanicError. Exactly one of the two non-error shapes is meaningful
// at a time — Err == nil iff the future completed normally.
type Outcome[T any] struct {
	Value T
	Err   error
}

// JoinHandle is the consumer-side future that awaits a task's output,
// a cancellation, or a panic (spec.md §4.4). It implements
// Future[Outcome[T]] so join handles compose: a JoinHandle can itself
// be polled from inside another spawned task.
type JoinHandle[T any] struct {
	h *Handle
}

// Poll implements Future[Outcome[T]].
func (j *JoinHandle[T]) Poll(cx *Context) (Outcome[T], bool) {
	var out result[T]
	jctx := &joinContext{waker: cx.waker}
	switch j.h.pollJoin(unsafe.Pointer(&out), jctx) {
	case joinTook:
		switch out.kind {
		case resultOK:
			return Outcome[T]{Value: out.value}, true
		case resultCancelled:
			ce := out.cancel
			return Outcome[T]{Value: ce.Output, Err: &ce}, true
		case resultPanicked:
			pe := out.panic
			return Outcome[T]{Err: &pe}, true
		}
	case joinCancelled:
		// out.cancel is fully populated by pollJoinTask: Completed and
		// Output are set when the future ran to normal completion
		// before the cancellation was observed, zero otherwise.
		ce := out.cancel
		return Outcome[T]{Value: ce.Output, Err: &ce}, true
	case joinRegistered, joinPending:
		return Outcome[T]{}, false
	}
	panic("task: unreachable poll_join outcome")
}

// ID returns the identifier of the task this handle joins.
func (j *JoinHandle[T]) ID() ID { return j.h.ID() }

// Cancel requests cancellation of the underlying task. Equivalent to
// calling Cancel on the Handle returned alongside this JoinHandle by
// Spawn.
func (j *JoinHandle[T]) Cancel() bool { return j.h.Cancel() }

// Close releases the join handle's interest in the task's output,
// per spec.md §4.4: it clears JOIN_INTEREST and drops the reference
// count this JoinHandle has held since Spawn. Closing a JoinHandle
// that was never polled to completion discards the task's output (if
// any) without error; closing a JoinHandle twice is a programming
// error.
func (j *JoinHandle[T]) Close() error {
	j.h.hdr.state.clearJoinInterest()
	j.h.Release()
	return nil
}
