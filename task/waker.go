package task

// Waker is the standard-shaped (data pointer, vtable) pair described in
// spec.md §4.5: its data is a task header pointer, and its four
// operations (Clone, Wake, WakeByRef, Release) are all that a future
// needs to request rescheduling. A Waker owns exactly one reference
// count on the task it wakes; Clone mints a new one, Wake and Release
// consume the receiver's.
type Waker struct {
	hdr *header
}

// newWaker builds a waker over hdr, consuming one ref count the caller
// already owns (it does not clone — callers that want an additional
// ref should Clone the result).
func newWaker(hdr *header) *Waker {
	return &Waker{hdr: hdr}
}

// Clone increments the task's reference count and returns a new Waker
// pointing at the same task.
func (w *Waker) Clone() *Waker {
	w.hdr.state.cloneRef()
	return &Waker{hdr: w.hdr}
}

// Wake consumes the waker (by value, in spec terms): it performs the
// wake_by_val transition and either hands its reference off to the
// scheduler (on Enqueue) or drops it. Calling any method on w after
// Wake is a programming error.
func (w *Waker) Wake() {
	hdr := w.hdr
	w.hdr = nil
	switch hdr.state.wakeByVal() {
	case actionEnqueue:
		hdr.vtable.scheduleRaw(hdr)
	case actionNone:
		releaseHeader(hdr)
	}
}

// WakeByRef performs the wake_by_ref transition without consuming the
// waker's own reference: on Enqueue it clones a fresh reference for the
// scheduler and leaves w usable afterward.
func (w *Waker) WakeByRef() {
	w.hdr.vtable.wakeByRef(w.hdr)
}

// Release drops the waker's reference count without waking the task,
// e.g. when overwriting a previously-stored waker. Calling any method
// on w after Release is a programming error.
func (w *Waker) Release() {
	if w.hdr == nil {
		return
	}
	hdr := w.hdr
	w.hdr = nil
	releaseHeader(hdr)
}

// releaseHeader drops one reference and deallocates the task if that
// was the last one.
func releaseHeader(hdr *header) {
	if hdr.state.dropRef() {
		hdr.vtable.deallocate(hdr)
	}
}
