package task

import "sync/atomic"

// ID is a dense, process-wide monotonically increasing task identifier.
type ID uint64

// StubID is the distinguished identifier reserved for stub sentinel
// tasks. A stub identifier never corresponds to a runnable future.
const StubID ID = 0

var nextID atomic.Uint64

// newID draws the next identifier from the process-wide counter. IDs
// start at 1 so that StubID (0) is never handed out to a real task.
func newID() ID {
	return ID(nextID.Add(1))
}
