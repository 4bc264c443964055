// Package jobqueue contains the asynchronous job queue.  Jobs are accepted
// immediately, processed by a worker pool in strict priority order, and their
// results are retained for polling for a configurable TTL.
package jobqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Default tuning values for [Queue].
const (
	DefaultWorkers     = 4
	DefaultResultTTL   = 24 * time.Hour
	DefaultStatsWindow = 15 * time.Minute
)

// maxHistory is the number of recent outcomes kept for [Stats.History].
const maxHistory = 100

// Errors returned by [Queue].
const (
	// ErrOverCapacity is returned by [Queue.Submit] when the submission rate
	// limiter rejects the job.  Callers should retry later.
	ErrOverCapacity errors.Error = "queue over capacity"

	// ErrNotFound is returned by [Queue.Poll] and [Queue.Cancel] for an
	// unknown request id.
	ErrNotFound errors.Error = "job not found"

	// ErrClosed is returned by [Queue.Submit] after shutdown has started.
	ErrClosed errors.Error = "queue is closed"
)

// Priority is the scheduling class of a job.  High-priority jobs always run
// before normal ones, normal before low.  Within a class jobs are FIFO.
type Priority string

// Priority values.
const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// rank returns the scheduling rank of p.  Unknown values schedule as normal.
func (p Priority) rank() (r int) {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Status is the lifecycle state of a job.  Transitions are pending to
// running to one of the terminal states, never backwards.
type Status string

// Status values.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// isTerminal returns true for the terminal statuses.
func (s Status) isTerminal() (ok bool) {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is the unit of work given to the [Handler].
type Job struct {
	// ID is the opaque request id returned by [Queue.Submit].
	ID string

	// Kind names the kind of work, for example "compile".
	Kind string

	// Payload is the kind-specific request body.
	Payload json.RawMessage

	// Priority is the scheduling class.
	Priority Priority
}

// Handler processes jobs.  The result is retained for polling.
type Handler interface {
	Handle(ctx context.Context, job *Job) (result any, err error)
}

// HandlerFunc is an adapter to allow the use of ordinary functions as
// handlers.
type HandlerFunc func(ctx context.Context, job *Job) (result any, err error)

// type check
var _ Handler = HandlerFunc(nil)

// Handle implements the [Handler] interface for HandlerFunc.
func (f HandlerFunc) Handle(ctx context.Context, job *Job) (result any, err error) {
	return f(ctx, job)
}

// Info is the poll-visible record of a job.
type Info struct {
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// State is the response to a poll.
type State struct {
	Info   *Info  `json:"job_info"`
	ID     string `json:"request_id"`
	Status Status `json:"status"`
}

// job is the internal representation of an accepted job.
type job struct {
	cancel     context.CancelFunc
	enqueuedAt time.Time
	startedAt  time.Time
	j          *Job
	status     Status
}

// Queue is the job queue.  Construct with [New], then call [Queue.Start] to
// launch the workers.
type Queue struct {
	logger    *slog.Logger
	handler   Handler
	results   *gocache.Cache
	clock     timeutil.Clock
	metrics   Metrics
	limiter   *rate.Limiter
	mu        *sync.Mutex
	cond      *sync.Cond
	wg        *sync.WaitGroup
	cancelAll context.CancelFunc
	jobs      map[string]*job
	pending   [3][]*job
	window    []*outcome
	history   []*HistoryEntry
	workers   int
	windowDur time.Duration
	closed    bool
}

// Config is the configuration structure for [Queue].
type Config struct {
	// Logger is used for logging the operation of the queue.  It must not be
	// nil.
	Logger *slog.Logger

	// Handler processes the jobs.  It must not be nil.
	Handler Handler

	// Clock is used to get the current time.  If nil, [timeutil.SystemClock]
	// is used.
	Clock timeutil.Clock

	// Metrics is used for the collection of the queue statistics.  If nil,
	// [EmptyMetrics] is used.
	Metrics Metrics

	// Workers is the number of concurrent workers.  Zero means
	// [DefaultWorkers].
	Workers int

	// ResultTTL is how long terminal job states are retained for polling.
	// Zero means [DefaultResultTTL].
	ResultTTL time.Duration

	// StatsWindow is the rolling window for [Queue.Stats].  Zero means
	// [DefaultStatsWindow].
	StatsWindow time.Duration

	// RateLimit and RateBurst configure the submission limiter.  A zero
	// RateLimit disables limiting.
	RateLimit rate.Limit
	RateBurst int
}

// New returns a new job queue.  c must not be nil.
func New(c *Config) (q *Queue) {
	q = &Queue{
		logger:    c.Logger,
		handler:   c.Handler,
		clock:     c.Clock,
		metrics:   c.Metrics,
		mu:        &sync.Mutex{},
		wg:        &sync.WaitGroup{},
		jobs:      map[string]*job{},
		workers:   c.Workers,
		windowDur: c.StatsWindow,
	}

	q.cond = sync.NewCond(q.mu)

	if q.clock == nil {
		q.clock = timeutil.SystemClock{}
	}

	if q.metrics == nil {
		q.metrics = EmptyMetrics{}
	}

	if q.workers == 0 {
		q.workers = DefaultWorkers
	}

	if q.windowDur == 0 {
		q.windowDur = DefaultStatsWindow
	}

	resultTTL := c.ResultTTL
	if resultTTL == 0 {
		resultTTL = DefaultResultTTL
	}

	q.results = gocache.New(resultTTL, resultTTL)

	if c.RateLimit > 0 {
		q.limiter = rate.NewLimiter(c.RateLimit, c.RateBurst)
	}

	return q
}

// Start launches the worker pool.
func (q *Queue) Start(_ context.Context) (err error) {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancelAll = cancel

	for range q.workers {
		q.wg.Add(1)

		go q.worker(ctx)
	}

	return nil
}

// Shutdown stops accepting jobs, cancels the running ones, and waits for the
// workers to finish or ctx to be done.
func (q *Queue) Shutdown(ctx context.Context) (err error) {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	q.cancelAll()

	done := make(chan struct{})
	go func() {
		defer close(done)

		q.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit accepts a job and returns its request id.  The job becomes pending
// immediately.
func (q *Queue) Submit(
	ctx context.Context,
	kind string,
	payload json.RawMessage,
	prio Priority,
) (id string, err error) {
	if q.limiter != nil && !q.limiter.Allow() {
		return "", ErrOverCapacity
	}

	id = uuid.NewString()
	j := &job{
		enqueuedAt: q.clock.Now(),
		j: &Job{
			ID:       id,
			Kind:     kind,
			Payload:  payload,
			Priority: prio,
		},
		status: StatusPending,
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrClosed
	}

	q.jobs[id] = j
	r := prio.rank()
	q.pending[r] = append(q.pending[r], j)

	q.metrics.SetPending(ctx, q.pendingLenLocked())

	q.cond.Signal()

	return id, nil
}

// Poll returns the current state of a job.
func (q *Queue) Poll(_ context.Context, id string) (st *State, err error) {
	q.mu.Lock()
	j, ok := q.jobs[id]
	if ok {
		st = q.stateOf(j, nil, "")
	}
	q.mu.Unlock()

	if st != nil {
		return st, nil
	}

	if v, found := q.results.Get(id); found {
		return v.(*State), nil
	}

	return nil, ErrNotFound
}

// Cancel cancels a job.  Pending jobs terminate immediately; running jobs are
// signalled and terminate at their next checkpoint.  Cancelling a finished
// job is a no-op.
func (q *Queue) Cancel(ctx context.Context, id string) (err error) {
	q.mu.Lock()

	j, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()

		if _, found := q.results.Get(id); found {
			return nil
		}

		return ErrNotFound
	}

	switch j.status {
	case StatusPending:
		r := j.j.Priority.rank()
		for i, p := range q.pending[r] {
			if p == j {
				q.pending[r] = append(q.pending[r][:i], q.pending[r][i+1:]...)

				break
			}
		}

		q.finalizeLocked(ctx, j, StatusCancelled, nil, "cancelled before start")
	case StatusRunning:
		j.cancel()
	default:
		// Already finishing.
	}

	q.mu.Unlock()

	return nil
}

// worker is the loop of one worker goroutine.
func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	defer slogutil.RecoverAndLog(ctx, q.logger)

	for {
		j := q.next(ctx)
		if j == nil {
			return
		}

		q.run(ctx, j)
	}
}

// next blocks until a job is available or the queue is closed, in which case
// it returns nil.  Priorities are strict, FIFO within one.
func (q *Queue) next(ctx context.Context) (j *job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		for r := range q.pending {
			if len(q.pending[r]) > 0 {
				j = q.pending[r][0]
				q.pending[r] = q.pending[r][1:]

				q.metrics.SetPending(ctx, q.pendingLenLocked())

				return j
			}
		}

		if q.closed {
			return nil
		}

		q.cond.Wait()
	}
}

// run processes one job.
func (q *Queue) run(ctx context.Context, j *job) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q.mu.Lock()
	j.status = StatusRunning
	j.startedAt = q.clock.Now()
	j.cancel = cancel
	q.mu.Unlock()

	res, err := q.handler.Handle(jobCtx, j.j)

	q.mu.Lock()
	defer q.mu.Unlock()

	switch {
	case err == nil:
		q.finalizeLocked(ctx, j, StatusCompleted, res, "")
	case jobCtx.Err() != nil:
		q.finalizeLocked(ctx, j, StatusCancelled, nil, err.Error())
	default:
		q.finalizeLocked(ctx, j, StatusFailed, nil, err.Error())
	}
}

// finalizeLocked moves a job to a terminal status, retains its state for
// polling, and records it in the stats window.  q.mu must be held.
func (q *Queue) finalizeLocked(
	ctx context.Context,
	j *job,
	status Status,
	res any,
	errMsg string,
) {
	now := q.clock.Now()
	j.status = status

	st := q.stateOf(j, res, errMsg)
	st.Info.FinishedAt = &now

	delete(q.jobs, j.j.ID)
	q.results.SetDefault(j.j.ID, st)

	var lag time.Duration
	if !j.startedAt.IsZero() {
		lag = j.startedAt.Sub(j.enqueuedAt)
	}

	q.metrics.ObserveJob(ctx, status, lag)
	q.recordLocked(j, status, now)
}

// pendingLenLocked returns the total number of pending jobs.  q.mu must be
// held.
func (q *Queue) pendingLenLocked() (n int) {
	for r := range q.pending {
		n += len(q.pending[r])
	}

	return n
}

// stateOf builds the poll-visible state of a job.  q.mu must be held.
func (q *Queue) stateOf(j *job, res any, errMsg string) (st *State) {
	info := &Info{
		EnqueuedAt: j.enqueuedAt,
		Result:     res,
		Error:      errMsg,
	}

	if !j.startedAt.IsZero() {
		started := j.startedAt
		info.StartedAt = &started
	}

	return &State{
		Info:   info,
		ID:     j.j.ID,
		Status: j.status,
	}
}
