// Package task implements the type-erased, reference-counted task
// primitive and its atomic state machine: the allocation, state word,
// handle, dispatch table, waker protocol and join handle that every
// other part of an asynchronous runtime builds on.
//
// The package has no opinion on how futures are scheduled; it only
// requires a Scheduler able to accept a *Handle and guarantee it is
// eventually polled again.
package task

// Future is a unit of cooperatively-scheduled, poll-based work. It is
// the Go analog of a poll-based future: Poll returns (value, true)
// once the future is ready, or (zero value, false) while pending. A
// pending Poll call must arrange for cx.Waker() (or a clone of it) to
// be woken once the future can make further progress; a poll that
// forgets to do so leaves the task asleep forever, exactly as with any
// other poll-based async runtime.
//
// Poll is never called concurrently for a given task: the state word's
// RUNNING bit enforces exclusion.
type Future[T any] interface {
	Poll(cx *Context) (T, bool)
}

// FutureFunc adapts a plain poll function to Future, for the common
// case of a future with no extra state beyond its closure's captures.
type FutureFunc[T any] func(cx *Context) (T, bool)

// Poll implements Future.
func (f FutureFunc[T]) Poll(cx *Context) (T, bool) { return f(cx) }

// Closer is implemented by futures that need best-effort cleanup when
// cancelled before completion. Go has no destructor equivalent to the
// spec's future-drop path, so cancellation cleanup is modeled as an
// optional Close call instead; any panic or error it returns is caught
// and logged, never surfaced through the JoinHandle (spec.md §7).
type Closer interface {
	Close() error
}

// Context is passed to Future.Poll. It carries the Waker the future
// must clone and store (or wake) if it returns pending.
type Context struct {
	waker *Waker
}

// Waker returns the waker for the task currently being polled. The
// returned Waker is borrowed for the duration of the poll; clone it
// before storing it anywhere that outlives the call to Poll.
func (c *Context) Waker() *Waker { return c.waker }
