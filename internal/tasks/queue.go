// Package tasks runs side effects off the frame loop: at most one job per
// key in flight, a bounded backlog, and cancellation.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/logging"
)

var (
	// ErrDuplicate is returned when a job with the same key is pending or running.
	ErrDuplicate = errors.New("job already in flight")
	// ErrFull is returned when the backlog is full.
	ErrFull = errors.New("task queue full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("task queue closed")
	// ErrNoHandler is returned for a kind nobody registered.
	ErrNoHandler = errors.New("no handler for job kind")
)

// Job is one unit of background work. Key identifies it for dedupe and
// cancellation, e.g. "payment:person_003".
type Job struct {
	Key     string
	Kind    string
	Payload []byte
	// Timeout overrides the queue's per-job timeout when set.
	Timeout time.Duration
}

// NewJob builds a job with a JSON payload.
func NewJob(kind, key string, payload any) (Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Job{Key: key, Kind: kind, Payload: data}, nil
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Kind, err)
	}
	return nil
}

// Handler runs a job. ctx is cancelled on timeout, Cancel, or Close.
type Handler func(ctx context.Context, job Job) error

// Result reports a finished job.
type Result struct {
	Job      Job
	Err      error
	Duration time.Duration
}

// Runner is the contract shared by the in-process queue and the Redis
// broker.
type Runner interface {
	Register(kind string, h Handler)
	Submit(job Job) error
	Cancel(key string) bool
	Close() error
}

// Config sizes the queue.
type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// DefaultConfig returns the queue defaults.
func DefaultConfig() Config {
	return Config{Workers: 4, QueueSize: 32, JobTimeout: time.Minute}
}

type entry struct {
	job    Job
	ctx    context.Context
	cancel context.CancelFunc
}

// Queue is an in-process worker pool.
type Queue struct {
	config Config
	log    *zap.SugaredLogger
	ctx    context.Context
	stop   context.CancelFunc
	jobs   chan *entry
	wg     sync.WaitGroup

	mu       sync.Mutex
	handlers map[string]Handler
	inflight map[string]*entry
	running  int
	closed   bool
	onResult func(Result)
}

// NewQueue starts config.Workers workers.
func NewQueue(config Config, log *zap.SugaredLogger) *Queue {
	def := DefaultConfig()
	if config.Workers < 1 {
		config.Workers = def.Workers
	}
	if config.QueueSize < 1 {
		config.QueueSize = def.QueueSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = def.JobTimeout
	}

	ctx, stop := context.WithCancel(context.Background())
	q := &Queue{
		config:   config,
		log:      logging.OrNop(log),
		ctx:      ctx,
		stop:     stop,
		jobs:     make(chan *entry, config.QueueSize),
		handlers: make(map[string]Handler),
		inflight: make(map[string]*entry),
	}

	for i := 0; i < config.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Register sets the handler for kind.
func (q *Queue) Register(kind string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = h
}

// OnResult sets a callback run after every job. It runs on the worker
// goroutine.
func (q *Queue) OnResult(fn func(Result)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onResult = fn
}

// Submit enqueues job without blocking.
func (q *Queue) Submit(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if _, ok := q.handlers[job.Kind]; !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, job.Kind)
	}
	if job.Key == "" {
		job.Key = job.Kind
	}
	if _, ok := q.inflight[job.Key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, job.Key)
	}

	ctx, cancel := context.WithCancel(q.ctx)
	e := &entry{job: job, ctx: ctx, cancel: cancel}

	select {
	case q.jobs <- e:
		q.inflight[job.Key] = e
		return nil
	default:
		cancel()
		return ErrFull
	}
}

// Cancel cancels the pending or running job with key. A pending job is
// skipped; a running one sees its context cancelled.
func (q *Queue) Cancel(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.inflight[key]
	if !ok {
		return false
	}
	e.cancel()
	return true
}

// InFlight reports whether a job with key is pending or running.
func (q *Queue) InFlight(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inflight[key]
	return ok
}

// Stats returns the number of pending and running jobs.
func (q *Queue) Stats() (pending, running int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight) - q.running, q.running
}

// Close rejects new jobs, cancels everything in flight and waits for the
// workers to exit.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.stop()
	q.wg.Wait()
	return nil
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			q.drain()
			return
		case e := <-q.jobs:
			q.run(e)
		}
	}
}

// drain releases jobs that never started.
func (q *Queue) drain() {
	for {
		select {
		case e := <-q.jobs:
			q.finish(e, Result{Job: e.job, Err: context.Canceled})
		default:
			return
		}
	}
}

func (q *Queue) run(e *entry) {
	if e.ctx.Err() != nil {
		q.log.Debugf("skipping cancelled job %s", e.job.Key)
		q.finish(e, Result{Job: e.job, Err: e.ctx.Err()})
		return
	}

	q.mu.Lock()
	h := q.handlers[e.job.Kind]
	q.running++
	q.mu.Unlock()

	timeout := e.job.Timeout
	if timeout <= 0 {
		timeout = q.config.JobTimeout
	}
	ctx, cancel := context.WithTimeout(e.ctx, timeout)
	defer cancel()

	start := time.Now()
	err := q.call(ctx, h, e.job)
	if err != nil {
		q.log.Warnf("job %s failed: %v", e.job.Key, err)
	} else {
		q.log.Debugf("job %s done in %s", e.job.Key, time.Since(start))
	}

	q.mu.Lock()
	q.running--
	q.mu.Unlock()
	q.finish(e, Result{Job: e.job, Err: err, Duration: time.Since(start)})
}

func (q *Queue) call(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Key, r)
		}
	}()
	return h(ctx, job)
}

func (q *Queue) finish(e *entry, res Result) {
	e.cancel()

	q.mu.Lock()
	if q.inflight[e.job.Key] == e {
		delete(q.inflight, e.job.Key)
	}
	fn := q.onResult
	q.mu.Unlock()

	if fn != nil {
		fn(res)
	}
}
