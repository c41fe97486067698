package task

// protect runs fn and converts a panic into (ok=false, payload). It is
// the boundary every call from this package into user code (a
// future's Poll, a cancelled future's Close, a join waker invocation)
// must cross, per spec.md §7/§9: panics inside Poll are surfaced
// through the JoinHandle, panics everywhere else are caught and
// swallowed (logged, never propagated).
func protect(fn func()) (payload any, recovered bool) {
	defer func() {
		if r := recover(); r != nil {
			payload = r
			recovered = true
		}
	}()
	fn()
	return nil, false
}
