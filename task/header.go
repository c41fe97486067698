package task

import (
	"context"
	"unsafe"

	"github.com/zoobzio/tracez"
)

// cacheLineSize is the padding target for header, chosen to match the
// spec's x86-64/aarch64/ppc64 figure (128 bytes) rather than gate on a
// build tag per architecture; see SPEC_FULL.md's Open Questions.
const cacheLineSize = 128

// Diagnostic span keys used when a header carries a tracer. Kept
// task-package local since they describe the core's own lifecycle,
// not any particular scheduler's.
const (
	spanPoll = tracez.Key("task.poll")
)

// header is the fixed, type-erased prefix shared by every task
// allocation. It is never constructed or accessed directly by callers;
// the sole public surface onto it is Handle.
type header struct {
	state  state
	vtable *vtable
	id     ID

	// Intrusive link fields. spec.md's run queue and owning-task list are
	// an external, black-box collaborator (§1 Out of scope); these two
	// slots exist so such a collaborator can splice a *header directly
	// into an intrusive singly-linked structure without this package's
	// involvement. This repository's own scheduler.Pool (see DESIGN.md)
	// uses buffered channels instead, the idiomatic Go substitute for a
	// hand-rolled intrusive MPSC queue, and never touches these fields —
	// they are committed data-layout surface for a future or
	// externally-supplied intrusive-queue scheduler, not dead weight the
	// shipped scheduler forgot to wire up. Any collaborator that does
	// store into them directly must account for one reference per
	// task-in-queue, exactly as spec.md §9 requires.
	runqNext  unsafe.Pointer
	ownerNext unsafe.Pointer

	// trace is the optional diagnostic span producer for this task.
	// Nil when the host configured no tracer at spawn time (the spec
	// explicitly allows omitting this field entirely).
	trace *tracez.Tracer

	// The fields above sum to 48 bytes on a 64-bit host (state 8,
	// vtable ptr 8, id 8, runqNext 8, ownerNext 8, trace ptr 8); pad
	// the rest of the cache line.
	_pad [cacheLineSize - 48]byte
}

// startDiagSpan opens a poll-scoped diagnostic span if this header was
// spawned with a tracer configured. The returned finish func is always
// safe to call, even when tracing is disabled.
func (h *header) startDiagSpan() func() {
	if h.trace == nil {
		return func() {}
	}
	_, span := h.trace.StartSpan(context.Background(), spanPoll)
	span.SetTag(tracez.Tag("task.id"), uintToStr(uint64(h.id)))
	return span.Finish
}

func uintToStr(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
