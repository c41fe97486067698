package task

import "sync/atomic"

// state is the single atomic word that encodes a task's lifecycle flags
// and reference count. Every field below is read or mutated exclusively
// through the CAS-loop transitions in this file; there is no lock.
type state struct {
	bits atomic.Uint64
}

// Bit layout, low to high. The remaining bits (6..63) are the reference
// count: 58 bits, never resized, per the non-goal in spec.md.
const (
	bitRunning      = 1 << 0
	bitComplete     = 1 << 1
	bitNotified     = 1 << 2
	bitCancelled    = 1 << 3
	bitJoinInterest = 1 << 4
	bitJoinWaker    = 1 << 5

	refCountShift = 6
	refCountOne   = 1 << refCountShift
	refCountMask  = ^uint64(0) << refCountShift
	refCountMax   = refCountMask >> refCountShift
)

// snapshot is a decoded, immutable read of the state word at one instant.
type snapshot uint64

func (s snapshot) running() bool      { return uint64(s)&bitRunning != 0 }
func (s snapshot) complete() bool     { return uint64(s)&bitComplete != 0 }
func (s snapshot) notified() bool     { return uint64(s)&bitNotified != 0 }
func (s snapshot) cancelled() bool    { return uint64(s)&bitCancelled != 0 }
func (s snapshot) joinInterest() bool { return uint64(s)&bitJoinInterest != 0 }
func (s snapshot) joinWaker() bool    { return uint64(s)&bitJoinWaker != 0 }
func (s snapshot) refCount() uint64   { return uint64(s) >> refCountShift }

// initialState is the state a freshly spawned task starts in: ref count
// of 3 (scheduler's enqueued copy, the returned Handle, the JoinHandle),
// JOIN_INTEREST set, and NOTIFIED set. NOTIFIED must already be set here
// because Spawn hands the scheduler's enqueued copy straight to
// Schedule without routing it through a wake_by_val/wake_by_ref
// transition first — construction itself is the hand-off that would
// otherwise have set the bit, so it has to carry it from the start or
// the task's first start_poll would see !notified and decline to poll.
func initialState() state {
	var s state
	s.bits.Store(3*refCountOne | bitJoinInterest | bitNotified)
	return s
}

// newStubState is the state of a stub sentinel task: ref count of 1,
// JOIN_INTEREST unset (no join handle ever exists for a stub), and every
// other bit clear. Stub tasks are never polled or woken.
func newStubState() state {
	var s state
	s.bits.Store(1 * refCountOne)
	return s
}

func (s *state) load() snapshot { return snapshot(s.bits.Load()) }

// startPollAction is the typed outcome of startPoll.
type startPollAction int

const (
	// actionDontPoll is returned when the task must not be polled right
	// now (already complete, already running, or not notified).
	actionDontPoll startPollAction = iota
	// actionPoll means the caller must invoke the future's Poll.
	actionPoll
	// actionCancelled means the task was cancelled before it could be
	// polled; the caller must run the cancellation cleanup path instead.
	actionCancelled
)

type startPollResult struct {
	action        startPollAction
	wakeJoinWaker bool // valid only when action == actionCancelled
}

// startPoll is invoked by a worker about to poll a task.
func (s *state) startPoll() startPollResult {
	for {
		cur := s.load()
		if cur.complete() || cur.running() || !cur.notified() {
			return startPollResult{action: actionDontPoll}
		}
		if cur.cancelled() {
			next := uint64(cur) &^ bitNotified
			next |= bitComplete
			if s.bits.CompareAndSwap(uint64(cur), next) {
				return startPollResult{
					action:        actionCancelled,
					wakeJoinWaker: cur.joinWaker() && cur.joinInterest(),
				}
			}
			continue
		}
		next := uint64(cur) &^ bitNotified
		next |= bitRunning
		if s.bits.CompareAndSwap(uint64(cur), next) {
			return startPollResult{action: actionPoll}
		}
	}
}

// endPollAction is the typed outcome of endPoll.
type endPollAction int

const (
	// actionReady means the future completed; no join waker needs waking.
	actionReady endPollAction = iota
	// actionReadyJoined means the future completed and a stored join
	// waker must be woken by the caller, who must then clear JOIN_WAKER.
	actionReadyJoined
	// actionPending means the future returned pending and was not woken
	// during the poll; the caller may drop the task handle.
	actionPending
	// actionPendingSchedule means the future (or someone else) woke the
	// task while it was being polled; the caller must re-enqueue it.
	actionPendingSchedule
)

// endPoll is invoked after the future's Poll call returns.
func (s *state) endPoll(ready bool) endPollAction {
	for {
		cur := s.load()
		if ready {
			next := uint64(cur) &^ bitRunning
			next |= bitComplete
			if !s.bits.CompareAndSwap(uint64(cur), next) {
				continue
			}
			if cur.joinInterest() && cur.joinWaker() {
				return actionReadyJoined
			}
			return actionReady
		}
		next := uint64(cur) &^ bitRunning
		if !s.bits.CompareAndSwap(uint64(cur), next) {
			continue
		}
		if cur.notified() {
			return actionPendingSchedule
		}
		return actionPending
	}
}

// tryJoinAction is the typed outcome of tryJoin.
type tryJoinAction int

const (
	// actionTakeOutput means the caller may read the output slot exactly
	// once and mark the stage consumed.
	actionTakeOutput tryJoinAction = iota
	// actionCanceled means the task was cancelled; completed reports
	// whether it ran to completion before the cancellation was observed
	// (in which case the completed output is still available to take).
	actionCanceled
	// actionRegister means no waker was previously stored; the caller
	// must write one and then call joinWakerRegistered.
	actionRegister
	// actionReregister means a waker is already stored and may be
	// updated in place without touching JOIN_WAKER.
	actionReregister
)

type tryJoinResult struct {
	action    tryJoinAction
	completed bool // valid only when action == actionCanceled
}

// tryJoin is invoked by a JoinHandle's poll.
func (s *state) tryJoin() tryJoinResult {
	cur := s.load()
	if cur.complete() && !cur.cancelled() {
		return tryJoinResult{action: actionTakeOutput}
	}
	if cur.cancelled() {
		return tryJoinResult{action: actionCanceled, completed: cur.complete()}
	}
	if !cur.joinWaker() {
		return tryJoinResult{action: actionRegister}
	}
	return tryJoinResult{action: actionReregister}
}

// joinWakerRegistered sets JOIN_WAKER after the caller has written a
// waker into the join-waker slot following an actionRegister outcome.
func (s *state) joinWakerRegistered() {
	for {
		cur := s.bits.Load()
		next := cur | bitJoinWaker
		if s.bits.CompareAndSwap(cur, next) {
			return
		}
	}
}

// clearJoinWaker drops JOIN_WAKER, e.g. after the runtime has finished
// invoking a stored join waker on completion.
func (s *state) clearJoinWaker() {
	for {
		cur := s.bits.Load()
		next := cur &^ bitJoinWaker
		if s.bits.CompareAndSwap(cur, next) {
			return
		}
	}
}

// wakeAction is the typed outcome shared by wakeByVal and wakeByRef.
type wakeAction int

const (
	actionNone wakeAction = iota
	// actionEnqueue means the caller must push the task handle to the
	// scheduler, retaining exactly the ref count owed per the call that
	// produced this outcome.
	actionEnqueue
)

// wakeByVal consumes one ref count (the caller's Waker handle). The
// returned action tells the caller whether to enqueue (it still then
// owns the dropped ref, which it must pass to Schedule) or simply drop
// its ref because no enqueue is needed: either the task was already
// notified or complete, or it is currently RUNNING, in which case
// setting NOTIFIED is enough — the worker polling it will observe the
// bit in end_poll and reschedule itself, so no separate enqueue is
// needed (and none would be safe: nothing else owns the running poll).
func (s *state) wakeByVal() wakeAction {
	for {
		cur := s.load()
		if cur.complete() || cur.notified() {
			return actionNone
		}
		next := uint64(cur) | bitNotified
		if !s.bits.CompareAndSwap(uint64(cur), next) {
			continue
		}
		if cur.running() {
			return actionNone
		}
		return actionEnqueue
	}
}

// wakeByRef does not consume a ref count; on actionEnqueue the caller
// owes the scheduler a freshly cloned ref. See wakeByVal for the
// running-task case.
func (s *state) wakeByRef() wakeAction {
	for {
		cur := s.load()
		if cur.complete() || cur.notified() {
			return actionNone
		}
		next := uint64(cur) | bitNotified
		if !s.bits.CompareAndSwap(uint64(cur), next) {
			continue
		}
		if cur.running() {
			return actionNone
		}
		return actionEnqueue
	}
}

// cancel sets CANCELLED. It does not itself arrange for the task to be
// polled again: the caller (Handle.Cancel) always follows a successful
// cancel with wake_by_ref, which both decides whether a poll is needed
// right now (the task may already be running, in which case wake_by_ref
// only sets NOTIFIED, end_poll then reports PendingSchedule, and the
// next start_poll observes CANCELLED) and performs
// the actual enqueue. Returns whether this call was the one that first
// set CANCELLED.
func (s *state) cancel() bool {
	for {
		cur := s.load()
		if cur.cancelled() {
			return false
		}
		next := uint64(cur) | bitCancelled
		if s.bits.CompareAndSwap(uint64(cur), next) {
			return true
		}
	}
}

// clearJoinInterest drops JOIN_INTEREST, e.g. when a JoinHandle is
// dropped. Returns the snapshot observed at the moment of the
// successful CAS, so the caller can decide whether it is now
// responsible for dropping the completed output and/or the join
// waker.
func (s *state) clearJoinInterest() snapshot {
	for {
		cur := s.load()
		next := uint64(cur) &^ bitJoinInterest
		if s.bits.CompareAndSwap(uint64(cur), next) {
			return cur
		}
	}
}

// cloneRef atomically increments the reference count.
func (s *state) cloneRef() {
	s.bits.Add(refCountOne)
}

// dropRef atomically decrements the reference count. It returns true
// iff the old count was exactly one, i.e. the caller must deallocate.
func (s *state) dropRef() bool {
	old := s.bits.Add(^uint64(refCountOne - 1)) // subtract refCountOne
	// old is the value *after* the subtraction; recover the prior count.
	prevCount := (old + refCountOne) >> refCountShift
	return prevCount == 1
}
