package taskqueue

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"code.hybscloud.com/atomix"

	"github.com/dshills/vimsync/internal/logging"
)

// Task is a unit of work. The context carries the values of the context it
// was enqueued with (never its cancellation) and must be passed to Enqueue
// for work the task itself schedules.
type Task func(ctx context.Context) error

// PanicHandler is called when a task panics. It receives the task's sequence
// number, the panic value and the stack trace.
type PanicHandler func(seq uint32, panicValue any, stack []byte)

// ErrorHandler is called when a task returns a non-nil error.
type ErrorHandler func(seq uint32, err error)

// Queue is a strict FIFO, single-consumer execution queue.
type Queue struct {
	mu      sync.Mutex
	pending []*entry
	started bool
	stopped bool

	wake chan struct{}
	done chan struct{}

	seq    atomix.Uint32
	logger *logging.Logger

	panicHandler PanicHandler
	errorHandler ErrorHandler

	enqueued  atomic.Uint64
	processed atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	panicked  atomic.Uint64
	dropped   atomic.Uint64
}

type entry struct {
	seq      uint32
	ctx      context.Context
	task     Task
	internal bool
}

// frame tracks the task that is currently running and the work it enqueued.
type frame struct {
	q        *Queue
	active   bool // guarded by q.mu
	children []*entry
}

type frameKey struct{}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used to report task failures.
func WithLogger(l *logging.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithPanicHandler sets a callback invoked after a task panics.
func WithPanicHandler(h PanicHandler) Option {
	return func(q *Queue) {
		q.panicHandler = h
	}
}

// WithErrorHandler sets a callback invoked after a task returns an error.
func WithErrorHandler(h ErrorHandler) Option {
	return func(q *Queue) {
		q.errorHandler = h
	}
}

// New creates a queue. Tasks may be enqueued before Start; they run once the
// worker is started.
func New(opts ...Option) *Queue {
	q := &Queue{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.WithComponent("taskqueue")
	return q
}

// Start starts the worker goroutine.
func (q *Queue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrStopped
	}
	if q.started {
		return ErrAlreadyRunning
	}
	q.started = true
	go q.run()
	return nil
}

// Stop refuses new work and waits for every queued task to settle, or for
// ctx to be done.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return ErrNotRunning
	}
	q.stopped = true
	q.mu.Unlock()
	q.signal()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue appends task and returns immediately.
//
// If ctx belongs to a task that is still running, task becomes its child and
// runs right after it. After Stop only such children are accepted; anything
// else is logged and dropped.
func (q *Queue) Enqueue(ctx context.Context, task Task) {
	if task == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	e := &entry{seq: q.seq.Add(1), ctx: ctx, task: task}

	q.mu.Lock()
	if f, ok := ctx.Value(frameKey{}).(*frame); ok && f.q == q && f.active {
		f.children = append(f.children, e)
		q.mu.Unlock()
		q.enqueued.Add(1)
		return
	}
	if q.stopped {
		q.mu.Unlock()
		q.dropped.Add(1)
		q.logger.Warn("task %d dropped: queue stopped", e.seq)
		return
	}
	q.pending = append(q.pending, e)
	q.mu.Unlock()

	q.enqueued.Add(1)
	q.signal()
}

// Flush blocks until every task enqueued before the call has settled.
// It must not be called from inside a task.
func (q *Queue) Flush(ctx context.Context) error {
	if q.InTask(ctx) {
		return ErrReentrantFlush
	}

	done := make(chan struct{})
	marker := &entry{
		seq:      q.seq.Add(1),
		ctx:      context.Background(),
		internal: true,
		task: func(context.Context) error {
			close(done)
			return nil
		},
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrStopped
	}
	q.pending = append(q.pending, marker)
	q.mu.Unlock()
	q.signal()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain flushes until no task is pending, so tasks enqueued by running
// tasks (including unrelated ones) have settled too.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		if err := q.Flush(ctx); err != nil {
			return err
		}
		if q.Len() == 0 {
			return nil
		}
	}
}

// InTask reports whether ctx belongs to a task of this queue that is still running.
func (q *Queue) InTask(ctx context.Context) bool {
	f, ok := ctx.Value(frameKey{}).(*frame)
	if !ok || f.q != q {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return f.active
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		e, ok := q.next()
		if !ok {
			return
		}
		q.execute(e)
	}
}

// next blocks until a task is available. It returns false once the queue is
// stopped and drained.
func (q *Queue) next() (*entry, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			e := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return e, true
		}
		stopped := q.stopped
		q.mu.Unlock()

		if stopped {
			return nil, false
		}
		<-q.wake
	}
}

func (q *Queue) execute(e *entry) {
	f := &frame{q: q, active: true}
	ctx := context.WithValue(context.WithoutCancel(e.ctx), frameKey{}, f)

	err := q.invoke(ctx, e)

	q.mu.Lock()
	f.active = false
	if len(f.children) > 0 {
		head := make([]*entry, 0, len(f.children)+len(q.pending))
		head = append(head, f.children...)
		q.pending = append(head, q.pending...)
	}
	q.mu.Unlock()

	if e.internal {
		return
	}
	q.processed.Add(1)

	var perr *PanicError
	switch {
	case errors.As(err, &perr):
		q.panicked.Add(1)
		q.logger.Error("task %d panicked: %v\n%s", e.seq, perr.Value, perr.Stack)
		if q.panicHandler != nil {
			q.panicHandler(e.seq, perr.Value, perr.Stack)
		}
	case err != nil:
		q.failed.Add(1)
		q.logger.Error("task %d failed: %v", e.seq, err)
		if q.errorHandler != nil {
			q.errorHandler(e.seq, err)
		}
	default:
		q.succeeded.Add(1)
	}
}

// invoke runs the task, converting a panic into a *PanicError.
func (q *Queue) invoke(ctx context.Context, e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return e.task(ctx)
}

// Stats contains counters for a queue.
type Stats struct {
	Enqueued  uint64
	Processed uint64
	Succeeded uint64
	Failed    uint64
	Panicked  uint64
	Dropped   uint64
	Pending   int
}

// Stats returns queue statistics.
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:  q.enqueued.Load(),
		Processed: q.processed.Load(),
		Succeeded: q.succeeded.Load(),
		Failed:    q.failed.Load(),
		Panicked:  q.panicked.Load(),
		Dropped:   q.dropped.Load(),
		Pending:   q.Len(),
	}
}
