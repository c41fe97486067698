// Package scheduler implements a priority worker pool that satisfies
// task.Scheduler: a fixed number of goroutines drain three priority run
// queues (high, normal, low) with a preferential, mostly-non-blocking
// select, exactly the shape Guti2010-Proyecto-SO's internal/sched used
// to dispatch HTTP job work — generalized here to dispatch task.Handle
// polls instead of one-shot request handlers.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
	"golang.org/x/sync/semaphore"

	"rvkernel/task"
)

// Priority selects which of a Pool's three run queues a task lands in.
type Priority int

const (
	Normal Priority = iota
	High
	Low
)

// Event is emitted through a Pool's hooks at the points a supervisor
// might want to observe without touching the hot poll path directly.
type Event struct {
	Pool   string
	TaskID task.ID
	Kind   EventKind
}

type EventKind int

const (
	EventScheduled EventKind = iota
	EventSettled
	EventRejected
)

// Metric keys this package reports through a shared metricz.Registry.
const (
	MetricSubmitted = metricz.Key("scheduler.tasks.submitted")
	MetricCompleted = metricz.Key("scheduler.tasks.completed")
	MetricRejected  = metricz.Key("scheduler.tasks.rejected")
)

// Hook keys this package emits through a shared hookz.Hooks[Event].
const (
	HookTaskScheduled = hookz.Key("scheduler.task.scheduled")
	HookTaskSettled   = hookz.Key("scheduler.task.settled")
	HookTaskRejected  = hookz.Key("scheduler.task.rejected")
)

const spanPoll = tracez.Key("scheduler.poll")

// stat accumulates a running mean/stddev with Welford's online
// algorithm, unchanged from the teacher's latency accounting.
type stat struct {
	mu   sync.Mutex
	n    int64
	mean float64
	m2   float64
}

func (s *stat) add(x float64) {
	s.mu.Lock()
	s.n++
	delta := x - s.mean
	s.mean += delta / float64(s.n)
	delta2 := x - s.mean
	s.m2 += delta * delta2
	s.mu.Unlock()
}

func (s *stat) snapshot() (count int64, mean, std float64) {
	s.mu.Lock()
	count = s.n
	mean = s.mean
	if s.n > 1 {
		if variance := s.m2 / float64(s.n-1); variance > 0 {
			std = math.Sqrt(variance)
		}
	}
	s.mu.Unlock()
	return
}

type queueItem struct {
	h        *task.Handle
	enqueued time.Time
}

// Pool is a task.Scheduler backed by three priority run queues drained
// by a fixed worker goroutine pool.
type Pool struct {
	name string

	qHigh chan queueItem
	qNorm chan queueItem
	qLow  chan queueItem

	total   int
	busy    atomic.Int64
	start   sync.Once
	mu      sync.Mutex
	closed  bool

	clock   clockz.Clock
	sem     *semaphore.Weighted
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[Event]

	submitted atomic.Uint64
	completed atomic.Uint64
	rejected  atomic.Uint64
	waitStat  stat
	runStat   stat
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithSemaphore bounds the number of polls this pool may run
// concurrently, independent of its worker count — useful for sharing a
// process-wide concurrency budget across several pools.
func WithSemaphore(sem *semaphore.Weighted) Option {
	return func(p *Pool) { p.sem = sem }
}

// WithMetrics attaches a metricz.Registry the pool reports submitted,
// completed and rejected counters to.
func WithMetrics(r *metricz.Registry) Option {
	return func(p *Pool) { p.metrics = r }
}

// WithTracer attaches a tracez.Tracer the pool opens a span on around
// every dispatched poll.
func WithTracer(t *tracez.Tracer) Option {
	return func(p *Pool) { p.tracer = t }
}

// WithHooks attaches a hookz.Hooks[Event] the pool emits lifecycle
// events through.
func WithHooks(h *hookz.Hooks[Event]) Option {
	return func(p *Pool) { p.hooks = h }
}

// WithClock overrides the pool's time source, for deterministic tests.
func WithClock(c clockz.Clock) Option {
	return func(p *Pool) { p.clock = c }
}

// NewPool builds a pool with workers goroutines and capacity queue
// slots split 1:2:1 across low:normal:high, matching the teacher's
// split.
func NewPool(name string, workers, capacity int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	ch := imax(1, capacity/4)
	cn := imax(1, capacity/2)
	cl := imax(1, capacity-ch-cn)

	p := &Pool{
		name:  name,
		qHigh: make(chan queueItem, ch),
		qNorm: make(chan queueItem, cn),
		qLow:  make(chan queueItem, cl),
		total: workers,
		clock: clockz.RealClock,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func imax(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Schedule implements task.Scheduler: it enqueues h at Normal priority,
// blocking if the queue is full rather than dropping the handle (the
// backpressure task.Scheduler's contract requires).
func (p *Pool) Schedule(h *task.Handle) {
	p.ScheduleAt(h, Normal)
}

// ScheduleAt enqueues h at the given priority.
func (p *Pool) ScheduleAt(h *task.Handle, prio Priority) {
	item := queueItem{h: h, enqueued: p.clock.Now()}
	p.queueFor(prio) <- item
	p.submitted.Add(1)
	p.count(MetricSubmitted)
	p.emit(HookTaskScheduled, h.ID())
}

// TryScheduleAt attempts a non-blocking enqueue at the given priority,
// reporting false (and counting a rejection) if the queue is full —
// the bounded-capacity escape hatch callers that would rather reject
// than block can use instead of ScheduleAt.
func (p *Pool) TryScheduleAt(h *task.Handle, prio Priority) bool {
	item := queueItem{h: h, enqueued: p.clock.Now()}
	select {
	case p.queueFor(prio) <- item:
		p.submitted.Add(1)
		p.count(MetricSubmitted)
		p.emit(HookTaskScheduled, h.ID())
		return true
	default:
		p.rejected.Add(1)
		p.count(MetricRejected)
		p.emit(HookTaskRejected, h.ID())
		return false
	}
}

func (p *Pool) queueFor(prio Priority) chan queueItem {
	switch prio {
	case High:
		return p.qHigh
	case Low:
		return p.qLow
	default:
		return p.qNorm
	}
}

func (p *Pool) count(key metricz.Key) {
	if p.metrics == nil {
		return
	}
	p.metrics.Counter(key).Inc()
}

func (p *Pool) emit(kind hookz.Key, id task.ID) {
	if p.hooks == nil {
		return
	}
	ek := EventScheduled
	switch kind {
	case HookTaskSettled:
		ek = EventSettled
	case HookTaskRejected:
		ek = EventRejected
	}
	_ = p.hooks.Emit(context.Background(), kind, Event{Pool: p.name, TaskID: id, Kind: ek})
}

// Start launches the pool's worker goroutines. Calling it more than
// once has no effect.
func (p *Pool) Start() {
	p.start.Do(func() {
		for i := 0; i < p.total; i++ {
			workerID := i
			go p.runWorker(p.name + "#" + strconv.Itoa(workerID))
		}
	})
}

func (p *Pool) runWorker(tag string) {
	for {
		item, ok := p.next()
		if !ok {
			return
		}
		p.dispatch(item)
	}
}

// next blocks for the next item, preferring high over normal over low,
// exactly as the teacher's non-blocking-then-blocking select cascade
// did. It only reports false once the pool has been Closed and every
// queue has observed closed-and-drained.
func (p *Pool) next() (queueItem, bool) {
	for {
		select {
		case item, ok := <-p.qHigh:
			if ok {
				return item, true
			}
		default:
			select {
			case item, ok := <-p.qNorm:
				if ok {
					return item, true
				}
			default:
				select {
				case item, ok := <-p.qHigh:
					if ok {
						return item, true
					}
				case item, ok := <-p.qNorm:
					if ok {
						return item, true
					}
				case item, ok := <-p.qLow:
					if ok {
						return item, true
					}
				}
			}
		}
		if p.isClosed() {
			// Every queue is closed here, so these receives never block;
			// drain the rest in priority order before reporting false.
			for _, q := range [...]chan queueItem{p.qHigh, p.qNorm, p.qLow} {
				if item, ok := <-q; ok {
					return item, true
				}
			}
			return queueItem{}, false
		}
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) dispatch(item queueItem) {
	wait := p.clock.Now().Sub(item.enqueued)

	if p.sem != nil {
		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			item.h.Release()
			return
		}
		defer p.sem.Release(1)
	}

	var finish func()
	if p.tracer != nil {
		_, span := p.tracer.StartSpan(context.Background(), spanPoll)
		span.SetTag(tracez.Tag("pool"), p.name)
		finish = span.Finish
	} else {
		finish = func() {}
	}

	p.busy.Add(1)
	start := p.clock.Now()
	result := item.h.Poll()
	run := p.clock.Now().Sub(start)
	p.busy.Add(-1)
	finish()

	p.waitStat.add(float64(wait) / float64(time.Millisecond))
	p.runStat.add(float64(run) / float64(time.Millisecond))

	switch result {
	case task.PollPendingSchedule:
		item.enqueued = p.clock.Now()
		p.qNorm <- item
	default:
		p.completed.Add(1)
		p.count(MetricCompleted)
		p.emit(HookTaskSettled, item.h.ID())
		item.h.Release()
	}
}

// Close stops accepting new work; in-flight polls finish normally, and
// idle workers observing all three queues closed exit.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.qHigh)
	close(p.qNorm)
	close(p.qLow)
}

// Snapshot is the serializable metrics view a /metrics-style endpoint
// would expose, grounded on the teacher's Pool.metrics().
type Snapshot struct {
	QueueLen   int            `json:"queue_len"`
	QueueCap   int            `json:"queue_cap"`
	Workers    int            `json:"workers"`
	Busy       int64          `json:"busy"`
	Submitted  uint64         `json:"submitted"`
	Completed  uint64         `json:"completed"`
	Rejected   uint64         `json:"rejected"`
	WaitMillis LatencySummary `json:"wait_ms"`
	RunMillis  LatencySummary `json:"run_ms"`
}

type LatencySummary struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
}

func (p *Pool) Metrics() Snapshot {
	waitN, waitMean, waitStd := p.waitStat.snapshot()
	runN, runMean, runStd := p.runStat.snapshot()
	return Snapshot{
		QueueLen:  len(p.qHigh) + len(p.qNorm) + len(p.qLow),
		QueueCap:  cap(p.qHigh) + cap(p.qNorm) + cap(p.qLow),
		Workers:   p.total,
		Busy:      p.busy.Load(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		WaitMillis: LatencySummary{Count: waitN, Mean: waitMean, Std: waitStd},
		RunMillis:  LatencySummary{Count: runN, Mean: runMean, Std: runStd},
	}
}

// Manager is a named registry of pools, unchanged in spirit from the
// teacher's Manager.
type Manager struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

func NewManager() *Manager {
	return &Manager{pools: make(map[string]*Pool)}
}

func (m *Manager) Register(name string, p *Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[name]; ok {
		return errors.New("scheduler: pool already registered")
	}
	m.pools[name] = p
	p.Start()
	return nil
}

func (m *Manager) Pool(name string) (*Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[name]
	return p, ok
}

func (m *Manager) MetricsJSON() string {
	m.mu.RLock()
	out := make(map[string]Snapshot, len(m.pools))
	for name, p := range m.pools {
		out[name] = p.Metrics()
	}
	m.mu.RUnlock()
	b, _ := json.Marshal(out)
	return string(b)
}
