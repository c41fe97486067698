package task

import (
	"unsafe"

	"go.uber.org/zap"
)

// taskImpl is the typed task body: the future-or-output union and the
// join-waker slot described in spec.md §3. It is never referenced
// directly outside this file — every external interaction goes through
// the type-erased *header embedded at its front and the vtable Spawn
// builds around it.
type taskImpl[T any] struct {
	hdr header

	// future holds the pending future; nil once the task has settled
	// (completed, panicked, or had its cancellation observed by startPoll).
	// Guarded by RUNNING: only the worker that set RUNNING may touch
	// it, exactly as spec.md §3 requires for the stage union.
	future Future[T]

	// res is valid once hdr.state reports COMPLETE, until consumed is
	// set. Guarded by COMPLETE together with the single-read rule
	// enforced by takeOutput's panic.
	res      result[T]
	consumed bool

	// joinWaker is guarded by the JOIN_WAKER / COMPLETE / JOIN_INTEREST
	// protocol of spec.md §3/§4.1: only one side (JoinHandle or the
	// polling worker) has permission to touch it at a time, which the
	// state word's CAS transitions arbitrate.
	joinWaker *Waker
}

func (t *taskImpl[T]) takeOutput(dst *result[T]) {
	if t.consumed {
		panic("task: JoinHandle polled after completion")
	}
	t.consumed = true
	*dst = t.res
}

func (t *taskImpl[T]) wakeJoinWaker() {
	w := t.joinWaker
	t.joinWaker = nil
	if w != nil {
		if _, panicked := protect(w.Wake); panicked {
			logger.Warn("task: panic in join waker, swallowed",
				zap.Uint64("task_id", uint64(t.hdr.id)))
		}
	}
	t.hdr.state.clearJoinWaker()
}

// closeCancelledFuture drops the future once start_poll has observed
// cancellation; the future is not polled again. If it implements Closer,
// Close is invoked under a panic guard; any error or panic is logged
// and swallowed, never surfaced through the JoinHandle (spec.md §7).
func (t *taskImpl[T]) closeCancelledFuture() {
	fut := t.future
	t.future = nil
	closer, ok := any(fut).(Closer)
	if !ok {
		return
	}
	_, panicked := protect(func() {
		if err := closer.Close(); err != nil {
			logger.Warn("task: cancellation cleanup returned an error",
				zap.Uint64("task_id", uint64(t.hdr.id)), zap.Error(err))
		}
	})
	if panicked {
		logger.Warn("task: panic in cancellation cleanup, swallowed",
			zap.Uint64("task_id", uint64(t.hdr.id)))
	}
}

// pollTask is the dispatch table's poll entry for taskImpl[T].
func pollTask[T any](t *taskImpl[T]) pollResult {
	h := &t.hdr
	finish := h.startDiagSpan()
	defer finish()

	sp := h.state.startPoll()
	switch sp.action {
	case actionDontPoll:
		// start_poll declines whenever the task is already complete,
		// already running, or not notified — none of those mean this
		// call just finished the task, so it must not claim Ready/
		// ReadyJoined (the state word's COMPLETE bit was never touched
		// here; a JoinHandle relying on it would hang forever). Report
		// Pending: the caller may drop its handle exactly as it would
		// for a task that genuinely went back to sleep, and whatever
		// condition actually owns this task's completion or next wake
		// is unaffected by this no-op poll.
		logger.Warn("task: start_poll declined to poll", zap.Uint64("task_id", uint64(h.id)))
		return PollPending
	case actionCancelled:
		t.closeCancelledFuture()
		t.res = result[T]{kind: resultCancelled, cancel: CancelError[T]{ID: h.id}}
		if sp.wakeJoinWaker {
			t.wakeJoinWaker()
			return PollReadyJoined
		}
		return PollReady
	}

	cx := &Context{waker: newWaker(h)} // borrowed: not ref-counted unless Cloned.
	var (
		value T
		ready bool
	)
	payload, panicked := protect(func() {
		value, ready = t.future.Poll(cx)
	})
	if panicked {
		t.future = nil
		t.res = result[T]{kind: resultPanicked, panic: PanicError{ID: h.id, Payload: payload}}
		ready = true
	} else if ready {
		t.future = nil
		t.res = result[T]{kind: resultOK, value: value}
	}

	switch h.state.endPoll(ready) {
	case actionReadyJoined:
		t.wakeJoinWaker()
		return PollReadyJoined
	case actionReady:
		return PollReady
	case actionPendingSchedule:
		return PollPendingSchedule
	default:
		return PollPending
	}
}

// pollJoinTask is the dispatch table's poll_join entry for taskImpl[T].
func pollJoinTask[T any](t *taskImpl[T], out unsafe.Pointer, cx *joinContext) joinPollOutcome {
	dst := (*result[T])(out)
	h := &t.hdr

	tj := h.state.tryJoin()
	switch tj.action {
	case actionTakeOutput:
		t.takeOutput(dst)
		return joinTook
	case actionCanceled:
		if tj.completed && t.res.kind == resultPanicked {
			// A panic that happened before cancellation was observed
			// takes precedence: surface it, not the cancellation.
			t.takeOutput(dst)
			return joinTook
		}
		if tj.completed && t.res.kind == resultOK {
			t.takeOutput(dst)
			ce := CancelError[T]{ID: h.id, Completed: true, Output: dst.value}
			dst.kind = resultCancelled
			dst.cancel = ce
			return joinCancelled
		}
		dst.kind = resultCancelled
		dst.cancel = CancelError[T]{ID: h.id}
		return joinCancelled
	case actionRegister:
		t.joinWaker = cx.waker.Clone()
		h.state.joinWakerRegistered()
		return joinRegistered
	case actionReregister:
		old := t.joinWaker
		t.joinWaker = cx.waker.Clone()
		if old != nil {
			old.Release()
		}
		return joinPending
	}
	panic("task: unreachable try_join outcome")
}
