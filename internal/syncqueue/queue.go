// Package syncqueue coalesces register sync requests per project and runs at
// most one rebuild per project at a time.
package syncqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/register"
)

// State is the externally visible state of a project's queue.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateLocked  State = "locked"
	StateError   State = "error"
)

// DefaultBackoff is the retry schedule used after resource-locked failures.
var DefaultBackoff = []time.Duration{
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
}

// DefaultMaxRetries is the number of automatic retries before giving up.
const DefaultMaxRetries = 5

// Runner executes one sync of a project's register.
type Runner interface {
	Run(ctx context.Context, key project.Key) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, key project.Key) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, key project.Key) error { return f(ctx, key) }

// Timer is the handle of a scheduled retry.
type Timer interface {
	Stop() bool
}

// Options configures a Registry.
type Options struct {
	// Backoff is indexed by attempt; the last entry is the cap.
	Backoff    []time.Duration
	MaxRetries int
	// ResetOnEnqueue clears the attempt counter when a new request arrives
	// while the queue is idle or in error.
	ResetOnEnqueue bool
	AfterFunc      func(d time.Duration, f func()) Timer
	Now            func() time.Time
}

// DefaultOptions returns the production queue settings.
func DefaultOptions() Options {
	return Options{
		Backoff:        DefaultBackoff,
		MaxRetries:     DefaultMaxRetries,
		ResetOnEnqueue: true,
	}
}

// Snapshot is a point-in-time view of one project's queue.
type Snapshot struct {
	Key          project.Key    `json:"-"`
	ProjectID    string         `json:"project_id"`
	State        State          `json:"state"`
	Pending      bool           `json:"pending"`
	Running      bool           `json:"running"`
	Attempts     int            `json:"attempts"`
	NextRetryAt  *time.Time     `json:"next_retry_at,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	ErrorClass   register.Class `json:"error_class,omitempty"`
	LastReason   string         `json:"last_reason,omitempty"`
	LastSyncedAt *time.Time     `json:"last_synced_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Registry owns one queue per project key. Entries are created lazily and
// live as long as the registry.
type Registry struct {
	runner Runner
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queues map[project.Key]*queue
	closed bool
	wg     sync.WaitGroup
}

type queue struct {
	key project.Key

	mu           sync.Mutex
	state        State
	pending      bool
	running      bool
	attempts     int
	nextRetryAt  time.Time
	timer        Timer
	lastErr      error
	errClass     register.Class
	lastReason   string
	lastSyncedAt time.Time
	updatedAt    time.Time

	subs        map[int]func(Snapshot)
	nextSub     int
	outbox      []Snapshot
	dispatching bool
}

// NewRegistry creates a Registry that runs syncs through runner.
func NewRegistry(runner Runner, opts Options, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(opts.Backoff) == 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		runner: runner,
		opts:   opts,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		queues: make(map[project.Key]*queue),
	}
}

// Enqueue requests a sync of key. It never blocks on the sync itself and may
// be called arbitrarily often.
func (r *Registry) Enqueue(key project.Key, reason string) {
	q := r.queue(key)

	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = true
	q.lastReason = reason
	idle := !q.running && q.timer == nil
	if idle && r.opts.ResetOnEnqueue && (q.state == StateIdle || q.state == StateError) {
		q.attempts = 0
	}
	if !idle {
		r.logger.Debug("register sync coalesced", "tenant", key.TenantID, "project", key.ProjectID, "reason", reason)
		r.publishLocked(q)
		return
	}
	r.startLocked(q)
}

// GetState returns the current snapshot for key. The second result is false
// when nothing was ever enqueued or subscribed for key.
func (r *Registry) GetState(key project.Key) (Snapshot, bool) {
	r.mu.Lock()
	q, ok := r.queues[key]
	r.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked(), true
}

// Subscribe registers fn for every state transition of key and returns the
// unsubscribe function. Snapshots are delivered in order from a separate
// goroutine, never while the queue is locked.
func (r *Registry) Subscribe(key project.Key, fn func(Snapshot)) func() {
	q := r.queue(key)

	q.mu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = fn
	q.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			delete(q.subs, id)
			q.mu.Unlock()
		})
	}
}

// Close stops pending retries and waits for in-flight runs to finish.
// Requests after Close are recorded but never run.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	queues := make([]*queue, 0, len(r.queues))
	for _, q := range r.queues {
		queues = append(queues, q)
	}
	r.mu.Unlock()

	for _, q := range queues {
		q.mu.Lock()
		if q.timer != nil {
			q.timer.Stop()
			q.timer = nil
		}
		q.mu.Unlock()
	}
	r.cancel()
	r.wg.Wait()
}

func (r *Registry) queue(key project.Key) *queue {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[key]
	if !ok {
		q = &queue{
			key:       key,
			state:     StateIdle,
			subs:      make(map[int]func(Snapshot)),
			updatedAt: r.opts.Now(),
		}
		r.queues[key] = q
	}
	return q
}

// spawn starts fn unless the registry is closed. Callers may hold a queue
// lock; the registry lock is always taken after it.
func (r *Registry) spawn(fn func()) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		fn()
	}()
	return true
}

func (r *Registry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Registry) startLocked(q *queue) {
	prev := q.state
	q.running = true
	q.pending = false
	q.state = StateRunning
	q.nextRetryAt = time.Time{}

	if !r.spawn(func() { r.run(q) }) {
		q.running = false
		q.pending = true
		q.state = prev
		return
	}
	r.logger.Debug("register sync started", "tenant", q.key.TenantID, "project", q.key.ProjectID, "attempt", q.attempts+1, "reason", q.lastReason)
	r.publishLocked(q)
}

func (r *Registry) run(q *queue) {
	err := r.execute(q.key)

	q.mu.Lock()
	defer q.mu.Unlock()

	q.running = false
	if err == nil {
		q.attempts = 0
		q.state = StateIdle
		q.lastErr = nil
		q.errClass = register.ClassNone
		q.lastSyncedAt = r.opts.Now()
		r.publishLocked(q)
		if q.pending {
			r.startLocked(q)
		}
		return
	}

	class := register.Classify(err)
	q.lastErr = err
	q.errClass = class

	if class.Retryable() {
		q.attempts++
		if q.attempts <= r.opts.MaxRetries && !r.isClosed() {
			delay := r.delay(q.attempts)
			q.pending = true
			q.state = StateLocked
			q.nextRetryAt = r.opts.Now().Add(delay)
			q.timer = r.opts.AfterFunc(delay, func() { r.retry(q) })
			r.logger.Warn("register locked, retry scheduled",
				"tenant", q.key.TenantID, "project", q.key.ProjectID,
				"attempt", q.attempts, "delay", delay, "error", err)
			r.publishLocked(q)
			return
		}
		q.state = StateError
		r.logger.Error("register sync gave up after retries",
			"tenant", q.key.TenantID, "project", q.key.ProjectID,
			"attempt", q.attempts, "error", err)
		r.publishLocked(q)
		return
	}

	q.state = StateError
	r.logger.Error("register sync failed",
		"tenant", q.key.TenantID, "project", q.key.ProjectID,
		"class", class, "error", err)
	r.publishLocked(q)
	if q.pending {
		r.startLocked(q)
	}
}

func (r *Registry) retry(q *queue) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.timer = nil
	if q.running {
		return
	}
	r.startLocked(q)
}

func (r *Registry) execute(key project.Key) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &register.ProgrammingError{Op: "register sync", Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	return r.runner.Run(r.ctx, key)
}

func (r *Registry) delay(attempt int) time.Duration {
	i := attempt - 1
	if i >= len(r.opts.Backoff) {
		i = len(r.opts.Backoff) - 1
	}
	if i < 0 {
		i = 0
	}
	return r.opts.Backoff[i]
}

func (r *Registry) publishLocked(q *queue) {
	q.updatedAt = r.opts.Now()
	if len(q.subs) == 0 {
		return
	}
	q.outbox = append(q.outbox, q.snapshotLocked())
	if q.dispatching {
		return
	}
	if r.spawn(func() { r.dispatch(q) }) {
		q.dispatching = true
	} else {
		q.outbox = nil
	}
}

func (r *Registry) dispatch(q *queue) {
	for {
		q.mu.Lock()
		if len(q.outbox) == 0 {
			q.dispatching = false
			q.mu.Unlock()
			return
		}
		batch := q.outbox
		q.outbox = nil
		subs := make([]func(Snapshot), 0, len(q.subs))
		for _, fn := range q.subs {
			subs = append(subs, fn)
		}
		q.mu.Unlock()

		for _, snap := range batch {
			for _, fn := range subs {
				fn(snap)
			}
		}
	}
}

func (q *queue) snapshotLocked() Snapshot {
	snap := Snapshot{
		Key:        q.key,
		ProjectID:  q.key.ProjectID,
		State:      q.state,
		Pending:    q.pending,
		Running:    q.running,
		Attempts:   q.attempts,
		ErrorClass: q.errClass,
		LastReason: q.lastReason,
		UpdatedAt:  q.updatedAt,
	}
	if q.state == StateLocked && !q.nextRetryAt.IsZero() {
		next := q.nextRetryAt
		snap.NextRetryAt = &next
	}
	if q.lastErr != nil {
		snap.LastError = q.lastErr.Error()
	}
	if !q.lastSyncedAt.IsZero() {
		synced := q.lastSyncedAt
		snap.LastSyncedAt = &synced
	}
	return snap
}
