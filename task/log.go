package task

import "go.uber.org/zap"

// logger is the ambient structured logger every swallowed panic and
// diagnostic event in this package is reported through. It defaults to
// a no-op so the core never forces a logging backend on a caller that
// hasn't configured one; SetLogger installs a real one, matching the corpus's constructor-injection
// style for *zap.Logger (see github.com/joeycumines/go-sql and
// github.com/nugget/thane-ai-agent in the examples pack).
var logger = zap.NewNop()

// SetLogger installs the package-wide logger used to report swallowed
// panics (cancellation cleanup, join-waker invocation) that spec.md §7
// says must never reach a caller. Passing nil restores the no-op
// logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		logger = zap.NewNop()
		return
	}
	logger = l
}
