package task

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fifoScheduler is the simplest possible Scheduler: an unbounded FIFO
// queue drained synchronously by runToQuiescence. It exists purely to
// give these tests deterministic control over when a task is polled;
// the scheduler, jobs and cmd/kerneldemo packages build real ones.
type fifoScheduler struct {
	mu    sync.Mutex
	queue []*Handle
}

func (s *fifoScheduler) Schedule(h *Handle) {
	s.mu.Lock()
	s.queue = append(s.queue, h)
	s.mu.Unlock()
}

func (s *fifoScheduler) pop() (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	h := s.queue[0]
	s.queue = s.queue[1:]
	return h, true
}

// runToQuiescence polls every scheduled handle until the queue drains,
// releasing the scheduler's reference once a handle no longer needs
// re-polling.
func (s *fifoScheduler) runToQuiescence() {
	for {
		h, ok := s.pop()
		if !ok {
			return
		}
		switch h.Poll() {
		case PollPendingSchedule:
			s.Schedule(h)
		case PollPending, PollReady, PollReadyJoined:
			h.Release()
		}
	}
}

// dummyContext stands in for the Context a real consumer task would
// pass when polling a JoinHandle from inside its own Future.Poll; these
// tests poll join handles directly, so they need a throwaway waker that
// is never expected to be woken. NewStub's header is a convenient,
// self-contained target for it.
func dummyContext() *Context {
	return &Context{waker: newWaker(NewStub().hdr)}
}

// yieldOnce returns pending on its first poll (cloning and waking its
// own waker so the scheduler re-polls it) and ready on the second.
type yieldOnce struct {
	polls int
}

func (f *yieldOnce) Poll(cx *Context) (int, bool) {
	f.polls++
	if f.polls == 1 {
		cx.Waker().Clone().Wake()
		return 0, false
	}
	return 42, true
}

func TestScenarioImmediateReady(t *testing.T) {
	sched := &fifoScheduler{}
	h, j := Spawn[int](sched, FutureFunc[int](func(cx *Context) (int, bool) {
		return 7, true
	}))
	sched.runToQuiescence()

	out, ready := j.Poll(dummyContext())
	require.True(t, ready)
	require.NoError(t, out.Err)
	require.Equal(t, 7, out.Value)

	h.Release()
	j.Close()
}

func TestScenarioSelfWake(t *testing.T) {
	sched := &fifoScheduler{}
	h, j := Spawn[int](sched, &yieldOnce{})
	sched.runToQuiescence()

	out, ready := j.Poll(dummyContext())
	require.True(t, ready)
	require.NoError(t, out.Err)
	require.Equal(t, 42, out.Value)

	h.Release()
	j.Close()
}

// externalWake never wakes itself; a released waker is exposed via the
// wakerCh channel for the test to wake from outside the scheduler loop.
type externalWake struct {
	wakerCh chan *Waker
	done    bool
}

func (f *externalWake) Poll(cx *Context) (string, bool) {
	if f.done {
		return "done", true
	}
	f.wakerCh <- cx.Waker().Clone()
	return "", false
}

func TestScenarioExternalWake(t *testing.T) {
	sched := &fifoScheduler{}
	wakerCh := make(chan *Waker, 1)
	fut := &externalWake{wakerCh: wakerCh}
	h, j := Spawn[string](sched, fut)
	sched.runToQuiescence()

	// The task is now suspended; nothing left in the queue.
	w := <-wakerCh
	fut.done = true
	w.Wake()
	sched.runToQuiescence()

	out, ready := j.Poll(dummyContext())
	require.True(t, ready)
	require.Equal(t, "done", out.Value)

	h.Release()
	j.Close()
}

// blockForever never completes and never wakes itself; used to drive
// the cancel-while-pending scenario.
type blockForever struct {
	wakerCh chan *Waker
}

func (f *blockForever) Poll(cx *Context) (struct{}, bool) {
	f.wakerCh <- cx.Waker().Clone()
	return struct{}{}, false
}

func TestScenarioCancelWhilePending(t *testing.T) {
	sched := &fifoScheduler{}
	wakerCh := make(chan *Waker, 1)
	h, j := Spawn[struct{}](sched, &blockForever{wakerCh: wakerCh})
	sched.runToQuiescence()
	w := <-wakerCh
	defer w.Release()

	require.True(t, h.Cancel())
	sched.runToQuiescence()

	out, ready := j.Poll(dummyContext())
	require.True(t, ready)
	var ce *CancelError[struct{}]
	require.ErrorAs(t, out.Err, &ce)
	require.False(t, ce.Completed)

	h.Release()
	j.Close()
}

func TestScenarioCancelAfterCompletion(t *testing.T) {
	sched := &fifoScheduler{}
	h, j := Spawn[int](sched, FutureFunc[int](func(cx *Context) (int, bool) {
		return 9, true
	}))
	sched.runToQuiescence()

	require.True(t, h.Cancel())

	out, ready := j.Poll(dummyContext())
	require.True(t, ready)
	var ce *CancelError[int]
	require.ErrorAs(t, out.Err, &ce)
	require.True(t, ce.Completed)
	require.Equal(t, 9, ce.Output)
	require.Equal(t, 9, out.Value)

	h.Release()
	j.Close()
}

func TestScenarioPanicInPoll(t *testing.T) {
	sched := &fifoScheduler{}
	h, j := Spawn[int](sched, FutureFunc[int](func(cx *Context) (int, bool) {
		panic("boom")
	}))
	sched.runToQuiescence()

	out, ready := j.Poll(dummyContext())
	require.True(t, ready)
	var pe *PanicError
	require.ErrorAs(t, out.Err, &pe)
	require.Equal(t, "boom", pe.Payload)

	h.Release()
	j.Close()
}

func TestScenarioDoubleJoinPanics(t *testing.T) {
	sched := &fifoScheduler{}
	h, j := Spawn[int](sched, FutureFunc[int](func(cx *Context) (int, bool) {
		return 1, true
	}))
	sched.runToQuiescence()

	_, ready := j.Poll(dummyContext())
	require.True(t, ready)

	require.Panics(t, func() {
		j.Poll(dummyContext())
	})

	h.Release()
}
