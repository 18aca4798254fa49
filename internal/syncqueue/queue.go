// Package syncqueue runs outbound reconciliation jobs one at a time, in the
// order they were enqueued, retrying failures with exponential backoff.
package syncqueue

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/taskdesk/internal/eventbus"
	"github.com/kazz187/taskdesk/pkg/clog"
	"github.com/kazz187/taskdesk/pkg/panicerr"
)

const (
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
	backoffFactor         = 2
	drainPollInterval     = 10 * time.Millisecond
)

type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Retryable reports whether a failed attempt is worth repeating.
	// Nil retries every failure.
	Retryable func(error) bool
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.Retryable == nil {
		c.Retryable = func(error) bool { return true }
	}
	return c
}

// Backoff is the wait before attempt+1, given that attempt attempts failed.
func (c Config) Backoff(attempt int) time.Duration {
	c = c.withDefaults()
	d := c.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= backoffFactor
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return d
}

type Job struct {
	ID         string
	Kind       string
	TaskID     string
	EnqueuedAt time.Time
	Run        func(ctx context.Context) error
}

type Status struct {
	Pending       int       `json:"pending"`
	Succeeded     uint64    `json:"succeeded"`
	Failed        uint64    `json:"failed"`
	Retries       uint64    `json:"retries"`
	LastError     string    `json:"lastError,omitempty"`
	LastErrorAt   time.Time `json:"lastErrorAt,omitzero"`
	LastSuccessAt time.Time `json:"lastSuccessAt,omitzero"`
}

type Option func(*Queue)

func WithEventBus(bus *eventbus.Bus) Option {
	return func(q *Queue) {
		q.bus = bus
	}
}

// WithOnSettled registers fn to run after each job either succeeds or is
// given up on. err is nil on success.
func WithOnSettled(fn func(job Job, err error)) Option {
	return func(q *Queue) {
		q.onSettled = fn
	}
}

type Queue struct {
	cfg       Config
	bus       *eventbus.Bus
	onSettled func(Job, error)

	mu       sync.Mutex
	jobs     []Job
	inflight bool
	status   Status
	notify   chan struct{}
}

func New(cfg Config, opts ...Option) *Queue {
	q := &Queue{
		cfg:    cfg.withDefaults(),
		notify: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a job and returns its id. It never blocks.
func (q *Queue) Enqueue(kind, taskID string, run func(ctx context.Context) error) string {
	job := Job{
		ID:         ulid.Make().String(),
		Kind:       kind,
		TaskID:     taskID,
		EnqueuedAt: time.Now(),
		Run:        run,
	}
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return job.ID
}

func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.status
	s.Pending = len(q.jobs)
	if q.inflight {
		s.Pending++
	}
	return s
}

// Drain blocks until no job is queued or running, or ctx is done.
func (q *Queue) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		if q.Status().Pending == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Run processes jobs until ctx is done. Jobs still queued at that point are
// dropped.
func (q *Queue) Run(ctx context.Context) error {
	for {
		job, ok := q.take()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-q.notify:
				continue
			}
		}
		q.process(ctx, job)
		q.mu.Lock()
		q.inflight = false
		q.mu.Unlock()
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (q *Queue) take() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.inflight = true
	return job, true
}

func (q *Queue) process(ctx context.Context, job Job) {
	for attempt := 1; ; attempt++ {
		jobCtx := clog.ForkContext(ctx)
		clog.AddAttributes(jobCtx, map[string]any{
			"job":     job.Kind,
			"job_id":  job.ID,
			"task_id": job.TaskID,
			"attempt": attempt,
		})

		err := panicerr.SafeContext(job.Run)(jobCtx)
		if err == nil {
			q.succeed(jobCtx, job, attempt)
			return
		}
		if ctx.Err() != nil {
			slog.DebugContext(jobCtx, "sync job interrupted by shutdown", "error", err)
			return
		}
		if attempt >= q.cfg.MaxAttempts || !q.cfg.Retryable(err) {
			q.fail(jobCtx, job, attempt, err)
			return
		}

		wait := q.cfg.Backoff(attempt)
		q.mu.Lock()
		q.status.Retries++
		q.status.LastError = err.Error()
		q.status.LastErrorAt = time.Now()
		q.mu.Unlock()
		slog.WarnContext(jobCtx, "sync job failed, retrying", "error", err, "backoff", wait)
		q.publish(eventbus.SyncRetrying, job, attempt, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (q *Queue) succeed(ctx context.Context, job Job, attempt int) {
	q.mu.Lock()
	q.status.Succeeded++
	q.status.LastSuccessAt = time.Now()
	q.mu.Unlock()
	slog.DebugContext(ctx, "sync job succeeded")
	q.publish(eventbus.SyncSucceeded, job, attempt, nil)
	q.settle(job, nil)
}

func (q *Queue) fail(ctx context.Context, job Job, attempt int, err error) {
	q.mu.Lock()
	q.status.Failed++
	q.status.LastError = err.Error()
	q.status.LastErrorAt = time.Now()
	q.mu.Unlock()
	slog.ErrorContext(ctx, "sync job dropped", "error", err)
	q.publish(eventbus.SyncFailed, job, attempt, err)
	q.settle(job, err)
}

func (q *Queue) settle(job Job, err error) {
	if q.onSettled == nil {
		return
	}
	panicerr.Run(func() { q.onSettled(job, err) }, func(perr error) {
		slog.Error("sync settle callback panicked", "job_id", job.ID, "error", perr)
	})
}

func (q *Queue) publish(t eventbus.EventType, job Job, attempt int, err error) {
	if q.bus == nil {
		return
	}
	meta := map[string]string{
		"job":     job.Kind,
		"job_id":  job.ID,
		"attempt": strconv.Itoa(attempt),
	}
	if err != nil {
		meta["error"] = err.Error()
	}
	q.bus.PublishNew(t, job.TaskID, job.Kind, meta)
}
